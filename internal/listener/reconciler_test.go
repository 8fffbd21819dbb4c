package listener

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"pool-onboarding-go/internal/database"
	"pool-onboarding-go/internal/identity"
	"pool-onboarding-go/internal/kyc"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	profile models.InvestorProfile
	err     error
}

func (p *staticProvider) GetInvestor(ctx context.Context, cred models.Credential) (*models.InvestorProfile, error) {
	if p.err != nil {
		return nil, p.err
	}
	profile := p.profile
	return &profile, nil
}

func (p *staticProvider) RefreshCredential(ctx context.Context, refreshToken string) (*models.Credential, error) {
	return nil, nil
}

type recordingPropagator struct {
	mu    sync.Mutex
	calls []propagationKey
	err   error
}

func (p *recordingPropagator) Propagate(ctx context.Context, userId, poolId, tranche string) (*models.PropagationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, propagationKey{userId, poolId, tranche})
	if p.err != nil {
		return nil, p.err
	}
	return &models.PropagationResult{UserId: userId, PoolId: poolId, Tranche: tranche, Eligible: true}, nil
}

type recordingEnvelopes struct {
	mu     sync.Mutex
	synced []string
	fail   map[string]bool
}

func (e *recordingEnvelopes) SyncEnvelope(ctx context.Context, a models.Agreement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synced = append(e.synced, a.Id)
	if e.fail[a.Id] {
		return errors.New("provider outage")
	}
	return nil
}

func setupStore(t *testing.T) *database.Service {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	svc, err := database.NewServiceFromDB(context.Background(), db)
	require.NoError(t, err)
	return svc
}

func createAgreement(t *testing.T, s *database.Service, userId, tranche, envelope string, signed, counterSigned bool) *models.Agreement {
	t.Helper()
	ctx := context.Background()
	a, _, err := s.InsertAgreementOrGet(ctx, store.InsertAgreementParams{
		AgreementKey: store.AgreementKey{UserId: userId, PoolId: "pool-a", Tranche: tranche, ProviderTemplateId: "tmpl-" + tranche},
		Provider:     "docusign",
	})
	require.NoError(t, err)
	if envelope != "" {
		_, err = s.SetAgreementEnvelope(ctx, a.Id, envelope)
		require.NoError(t, err)
	}
	if signed {
		_, err = s.MarkAgreementSigned(ctx, a.Id, time.Now())
		require.NoError(t, err)
	}
	if counterSigned {
		_, err = s.MarkAgreementCounterSigned(ctx, a.Id, time.Now())
		require.NoError(t, err)
	}
	return a
}

func TestSweepKyc_VerifiedTriggersPropagation(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	user, err := s.CreateUser(ctx, store.CreateUserParams{CountryCode: "DE"})
	require.NoError(t, err)
	_, err = s.UpsertKycRecord(ctx, store.UpsertKycParams{
		UserId:            user.Id,
		Provider:          "parallel",
		ProviderAccountId: "acct-1",
		Status:            models.KycStatusProcessing,
		Credential:        models.Credential{AccessToken: "token", RefreshToken: "refresh"},
	})
	require.NoError(t, err)
	createAgreement(t, s, user.Id, "senior", "env-1", true, true)

	propagator := &recordingPropagator{}
	tracker := kyc.NewTracker(kyc.TrackerParams{
		Store:        s,
		Provider:     &staticProvider{profile: models.InvestorProfile{Status: models.KycStatusVerified, FullName: "Jane Investor"}},
		ProviderName: "parallel",
		Ledger:       identity.NewLedger(s),
		Propagator:   propagator,
	})
	r := NewReconciler(ReconcilerConfig{Store: s, Kyc: tracker, Agreements: &recordingEnvelopes{}})

	report := r.SweepKyc(ctx)
	assert.Equal(t, SweepReport{Candidates: 1}, report)
	require.Len(t, propagator.calls, 1)
	assert.Equal(t, propagationKey{user.Id, "pool-a", "senior"}, propagator.calls[0])

	rec, err := s.GetKycRecord(ctx, user.Id, "parallel")
	require.NoError(t, err)
	assert.Equal(t, models.KycStatusVerified, rec.Status)

	// settled records drop out of the sweep
	report = r.SweepKyc(ctx)
	assert.Equal(t, 0, report.Candidates)
	assert.Len(t, propagator.calls, 1)
}

func TestSweepKyc_ProviderOutageIsCounted(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	user, err := s.CreateUser(ctx, store.CreateUserParams{})
	require.NoError(t, err)
	_, err = s.UpsertKycRecord(ctx, store.UpsertKycParams{
		UserId:            user.Id,
		Provider:          "parallel",
		ProviderAccountId: "acct-1",
		Status:            models.KycStatusProcessing,
	})
	require.NoError(t, err)

	tracker := kyc.NewTracker(kyc.TrackerParams{
		Store:        s,
		Provider:     &staticProvider{err: errors.New("connection refused")},
		ProviderName: "parallel",
		Ledger:       identity.NewLedger(s),
	})
	r := NewReconciler(ReconcilerConfig{Store: s, Kyc: tracker, Agreements: &recordingEnvelopes{}})

	report := r.SweepKyc(ctx)
	assert.Equal(t, SweepReport{Candidates: 1, Failed: 1}, report)

	rec, err := s.GetKycRecord(ctx, user.Id, "parallel")
	require.NoError(t, err)
	assert.Equal(t, models.KycStatusProcessing, rec.Status)
}

func TestSweepAgreements(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	user, err := s.CreateUser(ctx, store.CreateUserParams{})
	require.NoError(t, err)
	waiting := createAgreement(t, s, user.Id, "senior", "env-1", true, false)
	failing := createAgreement(t, s, user.Id, "junior", "env-2", true, false)
	createAgreement(t, s, user.Id, "mezzanine", "env-3", false, false)
	createAgreement(t, s, user.Id, "equity", "env-4", true, true)

	envelopes := &recordingEnvelopes{fail: map[string]bool{failing.Id: true}}
	propagator := &recordingPropagator{}
	r := NewReconciler(ReconcilerConfig{
		Store:      s,
		Kyc:        &staticSyncer{},
		Agreements: envelopes,
		Propagator: propagator,
	})

	report := r.SweepAgreements(ctx)
	assert.ElementsMatch(t, []string{waiting.Id, failing.Id}, envelopes.synced)
	assert.Equal(t, []propagationKey{{user.Id, "pool-a", "equity"}}, propagator.calls)
	assert.Equal(t, SweepReport{Candidates: 3, Failed: 1}, report)
}

type staticSyncer struct {
	mu    sync.Mutex
	calls int
}

func (s *staticSyncer) Sync(ctx context.Context, userId string) (*models.KycRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &models.KycRecord{UserId: userId}, nil
}

func TestReconciler_StartRunsInitialSweepAndStops(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	user, err := s.CreateUser(ctx, store.CreateUserParams{})
	require.NoError(t, err)
	_, err = s.UpsertKycRecord(ctx, store.UpsertKycParams{
		UserId:            user.Id,
		Provider:          "parallel",
		ProviderAccountId: "acct-1",
		Status:            models.KycStatusProcessing,
	})
	require.NoError(t, err)

	syncer := &staticSyncer{}
	r := NewReconciler(ReconcilerConfig{
		Store:             s,
		Kyc:               syncer,
		Agreements:        &recordingEnvelopes{},
		KycInterval:       time.Hour,
		AgreementInterval: time.Hour,
	})
	require.NoError(t, r.Start(ctx))

	assert.Eventually(t, func() bool {
		syncer.mu.Lock()
		defer syncer.mu.Unlock()
		return syncer.calls == 1
	}, time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()
}

func TestReconciler_StartRequiresSyncers(t *testing.T) {
	r := NewReconciler(ReconcilerConfig{})
	assert.Error(t, r.Start(context.Background()))
}
