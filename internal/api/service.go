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

package api

import (
	"context"
	"errors"
	"fmt"

	"pool-onboarding-go/internal/eligibility"
	"pool-onboarding-go/internal/identity"
	"pool-onboarding-go/internal/metrics"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/pools"
	"pool-onboarding-go/internal/store"

	"go.uber.org/zap"
)

// KycConnector stores provider credentials and syncs the investor
type KycConnector interface {
	Connect(ctx context.Context, userId, providerAccountId string, credential models.Credential) (*models.KycRecord, error)
	ProviderName() string
}

// AgreementService owns the agreement lifecycle
type AgreementService interface {
	FindOrCreateAgreementsForPool(ctx context.Context, userId, poolId, countryCode string) ([]models.Agreement, error)
	ApplyProviderEvent(ctx context.Context, envelopeId string, event models.EnvelopeEvent, signers []models.SignerOutcome) error
}

// OnboardingService answers status queries from the local store and routes
// provider events into the lifecycle managers. It never calls providers to
// build a status.
type OnboardingService struct {
	store              store.OnboardingStore
	pools              pools.Directory
	ledger             *identity.Ledger
	kyc                KycConnector
	kycProvider        string
	agreements         AgreementService
	metrics            *metrics.Metrics
	globalRestrictions []string
}

type OnboardingServiceParams struct {
	Store  store.OnboardingStore
	Pools  pools.Directory
	Ledger *identity.Ledger
	Kyc    KycConnector
	// KycProvider names the stored KycRecords to read when Kyc is nil
	KycProvider        string
	Agreements         AgreementService
	Metrics            *metrics.Metrics
	GlobalRestrictions []string
}

func NewOnboardingService(p OnboardingServiceParams) *OnboardingService {
	ledger := p.Ledger
	if ledger == nil {
		ledger = identity.NewLedger(p.Store)
	}
	kycProvider := p.KycProvider
	if p.Kyc != nil {
		kycProvider = p.Kyc.ProviderName()
	}
	return &OnboardingService{
		store:              p.Store,
		pools:              p.Pools,
		ledger:             ledger,
		kyc:                p.Kyc,
		kycProvider:        kycProvider,
		agreements:         p.Agreements,
		metrics:            p.Metrics,
		globalRestrictions: p.GlobalRestrictions,
	}
}

func (s *OnboardingService) HealthCheck(ctx context.Context) error {
	_, err := s.store.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// GetOnboardingStatus returns the last reconciled state of a user in a pool.
func (s *OnboardingService) GetOnboardingStatus(ctx context.Context, userId, poolId string) (*models.OnboardingStatus, error) {
	if userId == "" || poolId == "" {
		return nil, fmt.Errorf("%w: user_id and pool_id are required", store.ErrInvalidInput)
	}

	user, err := s.store.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	pool, err := s.pools.GetPool(ctx, poolId)
	if err != nil {
		return nil, err
	}

	status := &models.OnboardingStatus{
		UserId:            userId,
		PoolId:            poolId,
		KycStatus:         models.KycStatusNone,
		Whitelisted:       map[string]bool{},
		PendingAgreements: []models.AgreementSummary{},
		Restricted: eligibility.IsRestricted(user.CountryCode, s.globalRestrictions) ||
			eligibility.IsRestricted(user.CountryCode, pool.RestrictedCountryCodes),
	}

	if s.kycProvider != "" {
		rec, err := s.store.GetKycRecord(ctx, userId, s.kycProvider)
		switch {
		case err == nil:
			status.KycStatus = rec.Status
			status.Accredited = rec.Accredited
			status.UsaTaxResident = rec.UsaTaxResident
		case !errors.Is(err, store.ErrKycNotFound):
			return nil, err
		}
	}

	agreements, err := s.store.ListAgreementsForPool(ctx, userId, poolId)
	if err != nil {
		return nil, err
	}
	for _, a := range agreements {
		if !a.Active() || a.State() == models.AgreementCounterSigned {
			continue
		}
		status.PendingAgreements = append(status.PendingAgreements, models.AgreementSummary{
			Id:         a.Id,
			Name:       a.Name,
			Tranche:    a.Tranche,
			State:      a.State(),
			EnvelopeId: a.ProviderEnvelopeId,
			CreatedAt:  a.CreatedAt,
		})
	}

	for _, tranche := range pool.Tranches() {
		status.Whitelisted[tranche] = false
	}
	investments, err := s.store.ListUserInvestments(ctx, userId)
	if err != nil {
		return nil, err
	}
	for _, inv := range investments {
		if inv.PoolId == poolId && inv.IsWhitelisted {
			status.Whitelisted[inv.Tranche] = true
		}
	}

	return status, nil
}

// AddressStatus resolves (and on first sight creates) the owner of an address
// and returns its onboarding status. Once KYC is verified and the user is not
// restricted, the pool's agreements are requested as a side effect.
func (s *OnboardingService) AddressStatus(ctx context.Context, blockchain, network, address, poolId string) (*models.OnboardingStatus, error) {
	if _, err := s.pools.GetPool(ctx, poolId); err != nil {
		return nil, err
	}

	user, _, _, err := s.ledger.EnsureAddress(ctx, blockchain, network, address)
	if err != nil {
		return nil, err
	}

	status, err := s.GetOnboardingStatus(ctx, user.Id, poolId)
	if err != nil {
		return nil, err
	}
	if status.KycStatus != models.KycStatusVerified || status.Restricted || s.agreements == nil {
		return status, nil
	}

	country := user.CountryCode
	if status.UsaTaxResident {
		country = "US"
	}
	if _, err := s.agreements.FindOrCreateAgreementsForPool(ctx, user.Id, poolId, country); err != nil {
		// Partial results are still persisted; the status below shows what exists
		zap.L().Warn("Some agreements could not be prepared",
			zap.String("user_id", user.Id),
			zap.String("pool_id", poolId),
			zap.Error(err))
	}
	return s.GetOnboardingStatus(ctx, user.Id, poolId)
}

// ConnectKyc stores the credential issued by the identity provider for a user.
func (s *OnboardingService) ConnectKyc(ctx context.Context, userId, providerAccountId string, credential models.Credential) (*models.KycRecord, error) {
	if s.kyc == nil {
		return nil, fmt.Errorf("%w: no identity provider configured", store.ErrInvalidInput)
	}
	return s.kyc.Connect(ctx, userId, providerAccountId, credential)
}

// CreateAgreements finds or creates the agreements a user needs for a pool.
func (s *OnboardingService) CreateAgreements(ctx context.Context, userId, poolId, countryCode string) ([]models.Agreement, error) {
	if s.agreements == nil {
		return nil, fmt.Errorf("%w: no e-signature provider configured", store.ErrInvalidInput)
	}
	if countryCode == "" {
		user, err := s.store.GetUserById(ctx, userId)
		if err != nil {
			return nil, err
		}
		countryCode = user.CountryCode
	}
	return s.agreements.FindOrCreateAgreementsForPool(ctx, userId, poolId, countryCode)
}
