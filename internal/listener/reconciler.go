/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pool-onboarding-go/internal/metrics"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	"go.uber.org/zap"
)

const (
	defaultKycInterval       = 5 * time.Minute
	defaultAgreementInterval = time.Hour
)

// KycSyncer re-runs the identity provider sync for one user
type KycSyncer interface {
	Sync(ctx context.Context, userId string) (*models.KycRecord, error)
}

// EnvelopeSyncer polls the e-signature provider for one agreement
type EnvelopeSyncer interface {
	SyncEnvelope(ctx context.Context, a models.Agreement) error
}

// Propagator pushes an eligible (user, pool, tranche) to the membership registry
type Propagator interface {
	Propagate(ctx context.Context, userId, poolId, tranche string) (*models.PropagationResult, error)
}

// ReconcilerConfig contains configuration for Reconciler
type ReconcilerConfig struct {
	Store             store.OnboardingStore
	Kyc               KycSyncer
	Agreements        EnvelopeSyncer
	Propagator        Propagator
	Metrics           *metrics.Metrics
	KycInterval       time.Duration
	AgreementInterval time.Duration
}

// Reconciler periodically sweeps stored state against the external providers
// to catch missed webhooks. Each sweep handles its candidates one at a time.
type Reconciler struct {
	store      store.OnboardingStore
	kyc        KycSyncer
	agreements EnvelopeSyncer
	propagator Propagator
	metrics    *metrics.Metrics

	kycInterval       time.Duration
	agreementInterval time.Duration

	// sweepMu keeps a manual sweep from overlapping a scheduled one
	sweepMu sync.Mutex

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a new drift reconciler
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	kycInterval := cfg.KycInterval
	if kycInterval <= 0 {
		kycInterval = defaultKycInterval
	}
	agreementInterval := cfg.AgreementInterval
	if agreementInterval <= 0 {
		agreementInterval = defaultAgreementInterval
	}
	return &Reconciler{
		store:             cfg.Store,
		kyc:               cfg.Kyc,
		agreements:        cfg.Agreements,
		propagator:        cfg.Propagator,
		metrics:           cfg.Metrics,
		kycInterval:       kycInterval,
		agreementInterval: agreementInterval,
		stopChan:          make(chan struct{}),
		doneChan:          make(chan struct{}),
	}
}

// Start runs both sweeps once and then on their intervals until Stop or ctx is done.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.store == nil || r.kyc == nil || r.agreements == nil {
		return fmt.Errorf("reconciler requires store, kyc and agreement syncers")
	}

	zap.L().Info("Starting reconciler",
		zap.Duration("kyc_interval", r.kycInterval),
		zap.Duration("agreement_interval", r.agreementInterval))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.loop(ctx, "kyc", r.kycInterval, r.SweepKyc)
	}()
	go func() {
		defer wg.Done()
		r.loop(ctx, "agreements", r.agreementInterval, r.SweepAgreements)
	}()
	go func() {
		wg.Wait()
		close(r.doneChan)
	}()
	return nil
}

// Stop gracefully stops the reconciler and waits for in-flight sweeps.
func (r *Reconciler) Stop() {
	zap.L().Info("Stopping reconciler")
	r.stopOnce.Do(func() { close(r.stopChan) })
	<-r.doneChan
	zap.L().Info("Reconciler stopped")
}

func (r *Reconciler) loop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) SweepReport) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.runSweep(ctx, name, sweep)

	for {
		select {
		case <-ticker.C:
			r.runSweep(ctx, name, sweep)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) runSweep(ctx context.Context, name string, sweep func(context.Context) SweepReport) {
	start := time.Now()
	report := sweep(ctx)
	r.metrics.ObserveSweep(name, time.Since(start))

	zap.L().Info("Sweep finished",
		zap.String("sweep", name),
		zap.Int("candidates", report.Candidates),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(start)))
}
