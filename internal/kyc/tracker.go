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

package kyc

import (
	"context"
	"errors"
	"fmt"

	"pool-onboarding-go/internal/identity"
	"pool-onboarding-go/internal/metrics"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	"go.uber.org/zap"
)

// Propagator pushes an eligible (user, pool, tranche) to the membership registry
type Propagator interface {
	Propagate(ctx context.Context, userId, poolId, tranche string) (*models.PropagationResult, error)
}

// Tracker keeps KycRecords in step with the identity provider.
type Tracker struct {
	store      store.OnboardingStore
	provider   IdentityProvider
	ledger     *identity.Ledger
	propagator Propagator
	mirror     store.LedgerMirror
	metrics    *metrics.Metrics
	name       string
}

type TrackerParams struct {
	Store        store.OnboardingStore
	Provider     IdentityProvider
	ProviderName string
	Ledger       *identity.Ledger
	Propagator   Propagator
	Mirror       store.LedgerMirror
	Metrics      *metrics.Metrics
}

func NewTracker(p TrackerParams) *Tracker {
	return &Tracker{
		store:      p.Store,
		provider:   p.Provider,
		ledger:     p.Ledger,
		propagator: p.Propagator,
		mirror:     p.Mirror,
		metrics:    p.Metrics,
		name:       p.ProviderName,
	}
}

// ProviderName is the provider key used for stored KycRecords.
func (t *Tracker) ProviderName() string {
	return t.name
}

// Connect stores a freshly exchanged credential for a provider account and runs
// a first sync. A failed sync leaves the credential in place for the reconciler.
func (t *Tracker) Connect(ctx context.Context, userId, providerAccountId string, credential models.Credential) (*models.KycRecord, error) {
	if providerAccountId == "" || credential.AccessToken == "" {
		return nil, fmt.Errorf("%w: provider account and access token are required", store.ErrInvalidInput)
	}
	if _, err := t.store.GetUserById(ctx, userId); err != nil {
		return nil, err
	}

	params := store.UpsertKycParams{
		UserId:            userId,
		Provider:          t.name,
		ProviderAccountId: providerAccountId,
		Status:            models.KycStatusNone,
		Credential:        credential,
	}
	existing, err := t.store.GetKycRecord(ctx, userId, t.name)
	if err != nil && !errors.Is(err, store.ErrKycNotFound) {
		return nil, err
	}
	if existing != nil && existing.ProviderAccountId == providerAccountId {
		params.Status = existing.Status
		params.UsaTaxResident = existing.UsaTaxResident
		params.Accredited = existing.Accredited
	}

	rec, err := t.store.UpsertKycRecord(ctx, params)
	if err != nil {
		return nil, err
	}
	zap.L().Info("Connected kyc account",
		zap.String("user_id", userId),
		zap.String("provider", t.name),
		zap.String("provider_account_id", providerAccountId))

	synced, err := t.Sync(ctx, userId)
	if err != nil {
		zap.L().Warn("Initial kyc sync failed, reconciler will retry",
			zap.String("user_id", userId),
			zap.Error(err))
		return rec, nil
	}
	return synced, nil
}

// Sync fetches the investor from the provider and persists the normalized
// result. Nothing is written unless the fetch succeeds.
func (t *Tracker) Sync(ctx context.Context, userId string) (*models.KycRecord, error) {
	prev, err := t.store.GetKycRecord(ctx, userId, t.name)
	if err != nil {
		return nil, err
	}

	profile, refreshed, err := t.fetch(ctx, prev)
	if err != nil {
		t.metrics.IncKycSync("abandoned")
		zap.L().Warn("Abandoning kyc sync for this cycle",
			zap.String("user_id", userId),
			zap.String("provider", t.name),
			zap.Error(err))
		return nil, err
	}

	params := store.UpsertKycParams{
		UserId:            userId,
		Provider:          t.name,
		ProviderAccountId: prev.ProviderAccountId,
		Status:            profile.Status,
		UsaTaxResident:    profile.UsaTaxResident,
		Accredited:        profile.Accredited,
	}
	if refreshed != nil {
		params.Credential = *refreshed
	}

	rec, err := t.store.UpsertKycRecord(ctx, params)
	if err != nil {
		t.metrics.IncKycSync("abandoned")
		return nil, fmt.Errorf("unable to persist kyc record: %w", err)
	}

	if rec.Status == models.KycStatusVerified {
		if _, err := t.ledger.MergeVerifiedProfile(ctx, userId, *profile); err != nil {
			zap.L().Warn("Failed to merge verified profile", zap.String("user_id", userId), zap.Error(err))
		}
	}

	if t.mirror != nil {
		if err := t.mirror.MirrorKyc(ctx, *rec); err != nil {
			zap.L().Warn("Failed to mirror kyc record", zap.String("user_id", userId), zap.Error(err))
		}
	}

	changed := prev.Status != rec.Status || prev.Accredited != rec.Accredited
	if !changed {
		t.metrics.IncKycSync("unchanged")
		zap.L().Debug("Kyc status unchanged", zap.String("user_id", userId), zap.String("status", string(rec.Status)))
		return rec, nil
	}

	t.metrics.IncKycSync("updated")
	zap.L().Info("Kyc status changed",
		zap.String("user_id", userId),
		zap.String("from", string(prev.Status)),
		zap.String("to", string(rec.Status)),
		zap.Bool("accredited", rec.Accredited))

	t.propagateAll(ctx, userId)
	return rec, nil
}

// fetch returns the profile and, when a refresh happened, the new credential.
func (t *Tracker) fetch(ctx context.Context, rec *models.KycRecord) (*models.InvestorProfile, *models.Credential, error) {
	profile, err := t.provider.GetInvestor(ctx, rec.Credential)
	if err == nil {
		return profile, nil, nil
	}
	if !errors.Is(err, ErrCredentialExpired) {
		return nil, nil, err
	}

	zap.L().Info("Kyc credential expired, refreshing", zap.String("user_id", rec.UserId))
	refreshed, err := t.provider.RefreshCredential(ctx, rec.Credential.RefreshToken)
	if err != nil {
		t.metrics.IncCredentialRefresh("failed")
		return nil, nil, err
	}
	if refreshed == nil {
		t.metrics.IncCredentialRefresh("invalid")
		return nil, nil, ErrCredentialInvalid
	}
	t.metrics.IncCredentialRefresh("refreshed")

	// The provider may have rotated the refresh token, so keep it even if the retry fails
	if err := t.store.UpdateKycCredential(ctx, rec.Id, *refreshed); err != nil {
		zap.L().Warn("Failed to persist refreshed credential", zap.String("user_id", rec.UserId), zap.Error(err))
	}

	profile, err = t.provider.GetInvestor(ctx, *refreshed)
	if err != nil {
		if errors.Is(err, ErrCredentialExpired) {
			return nil, nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
		}
		return nil, nil, err
	}
	return profile, refreshed, nil
}

type poolTranche struct {
	poolId  string
	tranche string
}

// propagateAll re-evaluates every pool tranche the user has agreements or
// whitelist records under. Failures are logged per tranche.
func (t *Tracker) propagateAll(ctx context.Context, userId string) {
	if t.propagator == nil {
		return
	}

	seen := map[poolTranche]bool{}
	var targets []poolTranche
	add := func(poolId, tranche string) {
		key := poolTranche{poolId: poolId, tranche: tranche}
		if !seen[key] {
			seen[key] = true
			targets = append(targets, key)
		}
	}

	agreements, err := t.store.ListAgreementsForUser(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to list agreements for propagation", zap.String("user_id", userId), zap.Error(err))
		return
	}
	for _, a := range agreements {
		add(a.PoolId, a.Tranche)
	}

	investments, err := t.store.ListUserInvestments(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to list investments for propagation", zap.String("user_id", userId), zap.Error(err))
		return
	}
	for _, inv := range investments {
		add(inv.PoolId, inv.Tranche)
	}

	for _, target := range targets {
		if _, err := t.propagator.Propagate(ctx, userId, target.poolId, target.tranche); err != nil {
			zap.L().Warn("Propagation after kyc change failed",
				zap.String("user_id", userId),
				zap.String("pool_id", target.poolId),
				zap.String("tranche", target.tranche),
				zap.Error(err))
		}
	}
}
