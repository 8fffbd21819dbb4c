package kyc

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"pool-onboarding-go/internal/database"
	"pool-onboarding-go/internal/identity"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu            sync.Mutex
	validToken    string
	profile       models.InvestorProfile
	refreshed     *models.Credential
	fetchErr      error
	getCalls      int
	refreshCalls  int
	seenRefreshes []string
}

func (f *fakeProvider) GetInvestor(ctx context.Context, cred models.Credential) (*models.InvestorProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if cred.AccessToken != f.validToken {
		return nil, ErrCredentialExpired
	}
	p := f.profile
	return &p, nil
}

func (f *fakeProvider) RefreshCredential(ctx context.Context, refreshToken string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	f.seenRefreshes = append(f.seenRefreshes, refreshToken)
	return f.refreshed, nil
}

type propagateCall struct {
	userId, poolId, tranche string
}

type fakePropagator struct {
	calls []propagateCall
}

func (f *fakePropagator) Propagate(ctx context.Context, userId, poolId, tranche string) (*models.PropagationResult, error) {
	f.calls = append(f.calls, propagateCall{userId, poolId, tranche})
	return &models.PropagationResult{UserId: userId, PoolId: poolId, Tranche: tranche}, nil
}

type trackerFixture struct {
	store      *database.Service
	provider   *fakeProvider
	propagator *fakePropagator
	tracker    *Tracker
	user       *models.User
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	svc, err := database.NewServiceFromDB(context.Background(), db)
	require.NoError(t, err)

	user, err := svc.CreateUser(context.Background(), store.CreateUserParams{})
	require.NoError(t, err)

	provider := &fakeProvider{validToken: "access-1"}
	propagator := &fakePropagator{}
	tracker := NewTracker(TrackerParams{
		Store:        svc,
		Provider:     provider,
		ProviderName: "parallel",
		Ledger:       identity.NewLedger(svc),
		Propagator:   propagator,
	})
	return &trackerFixture{store: svc, provider: provider, propagator: propagator, tracker: tracker, user: user}
}

func (f *trackerFixture) seedRecord(t *testing.T, status models.KycStatus, accessToken string) {
	t.Helper()
	_, err := f.store.UpsertKycRecord(context.Background(), store.UpsertKycParams{
		UserId:            f.user.Id,
		Provider:          "parallel",
		ProviderAccountId: "acct-1",
		Status:            status,
		Credential:        models.Credential{AccessToken: accessToken, RefreshToken: "refresh-1"},
	})
	require.NoError(t, err)
}

func TestSync_RefreshesExpiredCredentialOnce(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	f.seedRecord(t, models.KycStatusProcessing, "stale-access")

	f.provider.refreshed = &models.Credential{AccessToken: "access-1", RefreshToken: "refresh-2", ExpiresAt: time.Now().Add(time.Hour)}
	f.provider.profile = models.InvestorProfile{Status: models.KycStatusVerified}

	rec, err := f.tracker.Sync(ctx, f.user.Id)
	require.NoError(t, err)
	assert.Equal(t, models.KycStatusVerified, rec.Status)
	assert.Equal(t, 2, f.provider.getCalls)
	assert.Equal(t, 1, f.provider.refreshCalls)
	assert.Equal(t, []string{"refresh-1"}, f.provider.seenRefreshes)

	stored, err := f.store.GetKycRecord(ctx, f.user.Id, "parallel")
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.Credential.AccessToken)
	assert.Equal(t, "refresh-2", stored.Credential.RefreshToken)
}

func TestSync_AbandonsWhenRefreshRefused(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	f.seedRecord(t, models.KycStatusProcessing, "stale-access")
	f.provider.refreshed = nil

	_, err := f.tracker.Sync(ctx, f.user.Id)
	assert.True(t, errors.Is(err, ErrCredentialInvalid))

	stored, err := f.store.GetKycRecord(ctx, f.user.Id, "parallel")
	require.NoError(t, err)
	assert.Equal(t, models.KycStatusProcessing, stored.Status)
	assert.Equal(t, "stale-access", stored.Credential.AccessToken)
	assert.Empty(t, f.propagator.calls)
}

func TestSync_AbandonsWhenRefreshedCredentialRejected(t *testing.T) {
	f := newTrackerFixture(t)
	f.seedRecord(t, models.KycStatusProcessing, "stale-access")
	f.provider.refreshed = &models.Credential{AccessToken: "also-stale", RefreshToken: "refresh-2"}

	_, err := f.tracker.Sync(context.Background(), f.user.Id)
	assert.True(t, errors.Is(err, ErrCredentialInvalid))
	assert.Equal(t, 2, f.provider.getCalls)
}

func TestSync_ProviderOutageWritesNothing(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	f.seedRecord(t, models.KycStatusProcessing, "access-1")
	f.provider.fetchErr = errors.New("connection refused")

	_, err := f.tracker.Sync(ctx, f.user.Id)
	require.Error(t, err)

	stored, err := f.store.GetKycRecord(ctx, f.user.Id, "parallel")
	require.NoError(t, err)
	assert.Equal(t, models.KycStatusProcessing, stored.Status)
}

func TestSync_PropagatesOnStatusChange(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	f.seedRecord(t, models.KycStatusProcessing, "access-1")

	_, _, err := f.store.InsertAgreementOrGet(ctx, store.InsertAgreementParams{
		AgreementKey: store.AgreementKey{UserId: f.user.Id, PoolId: "pool-a", Tranche: "senior", ProviderTemplateId: "tmpl-1"},
		Provider:     "docusign",
	})
	require.NoError(t, err)

	f.provider.profile = models.InvestorProfile{
		Status:      models.KycStatusVerified,
		Email:       "verified@example.com",
		CountryCode: "de",
	}

	_, err = f.tracker.Sync(ctx, f.user.Id)
	require.NoError(t, err)
	require.Len(t, f.propagator.calls, 1)
	assert.Equal(t, propagateCall{f.user.Id, "pool-a", "senior"}, f.propagator.calls[0])

	user, err := f.store.GetUserById(ctx, f.user.Id)
	require.NoError(t, err)
	assert.Equal(t, "verified@example.com", user.Email)
	assert.Equal(t, "DE", user.CountryCode)

	// a second identical sync changes nothing and triggers nothing
	_, err = f.tracker.Sync(ctx, f.user.Id)
	require.NoError(t, err)
	assert.Len(t, f.propagator.calls, 1)
}

func TestConnect_StoresCredentialAndSyncs(t *testing.T) {
	f := newTrackerFixture(t)
	f.provider.profile = models.InvestorProfile{Status: models.KycStatusProcessing}

	rec, err := f.tracker.Connect(context.Background(), f.user.Id, "acct-9", models.Credential{AccessToken: "access-1", RefreshToken: "r"})
	require.NoError(t, err)
	assert.Equal(t, models.KycStatusProcessing, rec.Status)
	assert.Equal(t, "acct-9", rec.ProviderAccountId)

	_, err = f.tracker.Connect(context.Background(), f.user.Id, "", models.Credential{})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}
