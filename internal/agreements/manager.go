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

package agreements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pool-onboarding-go/internal/esign"
	"pool-onboarding-go/internal/metrics"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/notify"
	"pool-onboarding-go/internal/pools"
	"pool-onboarding-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Propagator pushes an eligible (user, pool, tranche) to the membership registry
type Propagator interface {
	Propagate(ctx context.Context, userId, poolId, tranche string) (*models.PropagationResult, error)
}

// Manager owns the agreement lifecycle between the store and the e-signature provider.
type Manager struct {
	store           store.OnboardingStore
	provider        esign.Provider
	providerName    string
	pools           pools.Directory
	propagator      Propagator
	notifier        *notify.Dispatcher
	metrics         *metrics.Metrics
	notifyEveryVoid bool
	group           singleflight.Group
	now             func() time.Time
}

type ManagerParams struct {
	Store        store.OnboardingStore
	Provider     esign.Provider
	ProviderName string
	Pools        pools.Directory
	Propagator   Propagator
	Notifier     *notify.Dispatcher
	Metrics      *metrics.Metrics
	// NotifyEveryVoid sends a voided notification on every observation instead
	// of only on the first transition.
	NotifyEveryVoid bool
}

func NewManager(p ManagerParams) *Manager {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NewDispatcher(nil, p.Metrics)
	}
	if p.NotifyEveryVoid {
		zap.L().Warn("Voided agreements notify on every observed event")
	}
	return &Manager{
		store:           p.Store,
		provider:        p.Provider,
		providerName:    p.ProviderName,
		pools:           p.Pools,
		propagator:      p.Propagator,
		notifier:        notifier,
		metrics:         p.Metrics,
		notifyEveryVoid: p.NotifyEveryVoid,
		now:             time.Now,
	}
}

// CountryTag returns the profile agreement tag for an investor country code.
func CountryTag(countryCode string) string {
	if strings.EqualFold(strings.TrimSpace(countryCode), "US") {
		return models.CountryUS
	}
	return models.CountryNonUS
}

// FindOrCreateAgreementsForPool returns the active agreement for every profile
// agreement matching the investor's tax residency, requesting envelopes for
// those that have none. Requirements that fail are reported in the joined error
// while the others are still returned.
func (m *Manager) FindOrCreateAgreementsForPool(ctx context.Context, userId, poolId, countryCode string) ([]models.Agreement, error) {
	user, err := m.store.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	pool, err := m.pools.GetPool(ctx, poolId)
	if err != nil {
		return nil, err
	}

	tag := CountryTag(countryCode)
	var result []models.Agreement
	var errs []error
	for _, req := range pool.RequiredAgreements {
		if req.Country != tag {
			continue
		}
		a, err := m.findOrCreate(ctx, user, pool, req)
		if err != nil {
			zap.L().Warn("Failed to find or create agreement",
				zap.String("user_id", userId),
				zap.String("pool_id", poolId),
				zap.String("template_id", req.ProviderTemplateId),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		result = append(result, *a)
	}
	return result, errors.Join(errs...)
}

func (m *Manager) findOrCreate(ctx context.Context, user *models.User, pool *models.Pool, req models.ProfileAgreement) (*models.Agreement, error) {
	key := store.AgreementKey{
		UserId:             user.Id,
		PoolId:             pool.Id,
		Tranche:            req.Tranche,
		ProviderTemplateId: req.ProviderTemplateId,
	}
	flightKey := strings.Join([]string{key.UserId, key.PoolId, key.Tranche, key.ProviderTemplateId}, "|")

	v, err, _ := m.group.Do(flightKey, func() (interface{}, error) {
		a, err := m.store.FindActiveAgreement(ctx, key)
		if err != nil {
			return nil, err
		}
		if a == nil {
			var inserted bool
			a, inserted, err = m.store.InsertAgreementOrGet(ctx, store.InsertAgreementParams{
				AgreementKey: key,
				Name:         req.Name,
				Provider:     m.providerName,
			})
			if err != nil {
				return nil, err
			}
			if inserted {
				zap.L().Info("Agreement created",
					zap.String("agreement_id", a.Id),
					zap.String("user_id", key.UserId),
					zap.String("pool_id", key.PoolId),
					zap.String("tranche", key.Tranche))
			}
		}
		if a.ProviderEnvelopeId != "" {
			return a, nil
		}
		return m.sendEnvelope(ctx, a, user, pool)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Agreement), nil
}

// sendEnvelope requests an envelope for a Created agreement. On failure the row
// stays Created and the next call retries.
func (m *Manager) sendEnvelope(ctx context.Context, a *models.Agreement, user *models.User, pool *models.Pool) (*models.Agreement, error) {
	signers := []models.EnvelopeSigner{
		{Role: models.SignerInvestor, Email: user.Email, Name: displayName(user), ClientId: user.Id},
		{Role: models.SignerIssuer, Email: pool.Issuer.Email, Name: pool.Issuer.Name},
	}

	envelopeId, err := m.provider.CreateEnvelope(ctx, a.ProviderTemplateId, signers)
	if err != nil {
		return nil, fmt.Errorf("unable to create envelope for agreement %s: %w", a.Id, err)
	}
	m.metrics.IncEnvelopeCreated()

	set, err := m.store.SetAgreementEnvelope(ctx, a.Id, envelopeId)
	if err != nil {
		return nil, err
	}
	if !set {
		zap.L().Warn("Agreement already had an envelope, discarding new one",
			zap.String("agreement_id", a.Id),
			zap.String("envelope_id", envelopeId))
	}
	return m.store.GetAgreementById(ctx, a.Id)
}

func displayName(user *models.User) string {
	if user.EntityName != "" {
		return user.EntityName
	}
	if user.FullName != "" {
		return user.FullName
	}
	return user.Email
}

// ApplyProviderEvent advances the agreement behind envelopeId. Unknown envelopes
// are ignored. Each transition happens at most once, so webhook redeliveries and
// sweeps may apply the same event repeatedly.
func (m *Manager) ApplyProviderEvent(ctx context.Context, envelopeId string, event models.EnvelopeEvent, signers []models.SignerOutcome) error {
	a, err := m.store.FindAgreementByEnvelope(ctx, m.providerName, envelopeId)
	if err != nil {
		if errors.Is(err, store.ErrAgreementNotFound) {
			zap.L().Info("Ignoring event for unknown envelope",
				zap.String("envelope_id", envelopeId),
				zap.String("event", string(event)))
			return nil
		}
		return err
	}

	now := m.now().UTC()
	if (event == models.EnvelopeDeclined || event == models.EnvelopeVoided) && a.State() == models.AgreementCounterSigned {
		m.metrics.IncInvariantViolation(string(event) + "_after_counter_signed")
		zap.L().Warn("Ignoring event for counter-signed agreement",
			zap.String("agreement_id", a.Id),
			zap.String("envelope_id", envelopeId),
			zap.String("event", string(event)))
		return nil
	}

	switch event {
	case models.EnvelopeDeclined:
		changed, err := m.store.MarkAgreementDeclined(ctx, a.Id, now)
		if err != nil {
			return err
		}
		m.metrics.IncAgreementEvent(string(event), changed)
		if changed {
			zap.L().Info("Agreement declined", zap.String("agreement_id", a.Id))
			m.notify(ctx, models.NotifyAgreementDeclined, a)
		}
		return nil

	case models.EnvelopeVoided:
		changed, err := m.store.MarkAgreementVoided(ctx, a.Id, now)
		if err != nil {
			return err
		}
		m.metrics.IncAgreementEvent(string(event), changed)
		if changed {
			zap.L().Info("Agreement voided", zap.String("agreement_id", a.Id))
		}
		if changed || (m.notifyEveryVoid && a.State() == models.AgreementVoided) {
			m.notify(ctx, models.NotifyAgreementVoided, a)
		}
		return nil
	}

	if !a.Active() {
		zap.L().Debug("Ignoring signer event for terminated agreement",
			zap.String("agreement_id", a.Id),
			zap.String("state", string(a.State())))
		return nil
	}
	return m.applySigners(ctx, a, event, signers, now)
}

func (m *Manager) applySigners(ctx context.Context, a *models.Agreement, event models.EnvelopeEvent, signers []models.SignerOutcome, now time.Time) error {
	var investorDone, issuerDone bool
	for _, s := range signers {
		if !s.Completed() {
			continue
		}
		switch s.Role {
		case models.SignerInvestor:
			investorDone = true
		case models.SignerIssuer:
			issuerDone = true
		}
	}
	// a completed envelope without signer detail means everyone signed
	if event == models.EnvelopeCompleted && len(signers) == 0 {
		investorDone, issuerDone = true, true
	}

	if investorDone && a.SignedAt == nil {
		changed, err := m.store.MarkAgreementSigned(ctx, a.Id, now)
		if err != nil {
			return err
		}
		m.metrics.IncAgreementEvent("signed", changed)
		if changed {
			zap.L().Info("Agreement signed", zap.String("agreement_id", a.Id))
			m.notify(ctx, models.NotifyAgreementSigned, a)
		}
	}

	if !issuerDone || a.CounterSignedAt != nil {
		return nil
	}

	if !investorDone && a.SignedAt == nil {
		// Recorded as reported; signed_at is filled in the same write
		m.metrics.IncInvariantViolation("counter_signed_before_signed")
		zap.L().Warn("Provider reports counter-signature before investor signature",
			zap.String("agreement_id", a.Id),
			zap.String("envelope_id", a.ProviderEnvelopeId))
	}

	changed, err := m.store.MarkAgreementCounterSigned(ctx, a.Id, now)
	if err != nil {
		return err
	}
	m.metrics.IncAgreementEvent("counter-signed", changed)
	if !changed {
		return nil
	}

	zap.L().Info("Agreement counter-signed",
		zap.String("agreement_id", a.Id),
		zap.String("user_id", a.UserId),
		zap.String("pool_id", a.PoolId),
		zap.String("tranche", a.Tranche))

	if m.propagator != nil {
		if _, err := m.propagator.Propagate(ctx, a.UserId, a.PoolId, a.Tranche); err != nil {
			zap.L().Warn("Propagation after counter-signature failed",
				zap.String("agreement_id", a.Id),
				zap.Error(err))
		}
	}
	return nil
}

// SyncEnvelope polls the provider for an agreement and applies what it reports.
func (m *Manager) SyncEnvelope(ctx context.Context, a models.Agreement) error {
	if a.ProviderEnvelopeId == "" {
		return nil
	}
	status, err := m.provider.GetEnvelopeStatus(ctx, a.ProviderEnvelopeId)
	if err != nil {
		return err
	}
	return m.ApplyProviderEvent(ctx, a.ProviderEnvelopeId, status.Event, status.Signers)
}

// ProviderName is the provider key stored on agreements.
func (m *Manager) ProviderName() string {
	return m.providerName
}

func (m *Manager) notify(ctx context.Context, kind models.NotificationKind, a *models.Agreement) {
	n := notify.Notification{
		Kind:        kind,
		UserId:      a.UserId,
		PoolId:      a.PoolId,
		Tranche:     a.Tranche,
		AgreementId: a.Id,
	}
	if user, err := m.store.GetUserById(ctx, a.UserId); err == nil {
		n.Email = user.Email
		n.FullName = user.FullName
	}
	if pool, err := m.pools.GetPool(ctx, a.PoolId); err == nil {
		n.PoolName = pool.Name
	}
	m.notifier.Send(ctx, n)
}
