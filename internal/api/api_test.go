package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"pool-onboarding-go/internal/agreements"
	"pool-onboarding-go/internal/database"
	"pool-onboarding-go/internal/esign"
	"pool-onboarding-go/internal/metrics"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/notify"
	"pool-onboarding-go/internal/pools"
	"pool-onboarding-go/internal/store"

	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	webhookSecret = "whsec-test"
	testAddress   = "0x00000000000000000000000000000000000000b1"
)

type fakeESign struct {
	mu      sync.Mutex
	created int
}

func (f *fakeESign) CreateEnvelope(ctx context.Context, templateId string, signers []models.EnvelopeSigner) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return fmt.Sprintf("env-%d", f.created), nil
}

func (f *fakeESign) GetEnvelopeStatus(ctx context.Context, envelopeId string) (*models.EnvelopeStatus, error) {
	return &models.EnvelopeStatus{EnvelopeId: envelopeId, Event: models.EnvelopeSent}, nil
}

type fakeConnector struct {
	store store.OnboardingStore
}

func (f *fakeConnector) ProviderName() string { return "parallel" }

func (f *fakeConnector) Connect(ctx context.Context, userId, providerAccountId string, credential models.Credential) (*models.KycRecord, error) {
	return f.store.UpsertKycRecord(ctx, store.UpsertKycParams{
		UserId:            userId,
		Provider:          "parallel",
		ProviderAccountId: providerAccountId,
		Status:            models.KycStatusProcessing,
		Credential:        credential,
	})
}

type countingSink struct {
	mu    sync.Mutex
	kinds []models.NotificationKind
}

func (c *countingSink) Notify(ctx context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, n.Kind)
	return nil
}

func (c *countingSink) count(kind models.NotificationKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type apiFixture struct {
	store  *database.Service
	esign  *fakeESign
	sink   *countingSink
	svc    *OnboardingService
	router http.Handler
}

func testPool() models.Pool {
	return models.Pool{
		Id:      "pool-a",
		Name:    "Pool A",
		Network: "mainnet",
		RequiredAgreements: []models.ProfileAgreement{
			{Name: "Subscription", Tranche: "senior", Country: models.CountryUS, ProviderTemplateId: "tmpl-us"},
			{Name: "Subscription", Tranche: "senior", Country: models.CountryNonUS, ProviderTemplateId: "tmpl-intl"},
		},
		RestrictedCountryCodes:   []string{"KP"},
		RegistryAddressByTranche: map[string]string{"senior": "0x00000000000000000000000000000000000000a1", "junior": "0x00000000000000000000000000000000000000a2"},
	}
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := database.NewServiceFromDB(context.Background(), db)
	require.NoError(t, err)

	directory := pools.NewStaticDirectory(testPool())
	provider := &fakeESign{}
	sink := &countingSink{}
	manager := agreements.NewManager(agreements.ManagerParams{
		Store:        s,
		Provider:     provider,
		ProviderName: "docusign",
		Pools:        directory,
		Notifier:     notify.NewDispatcher(sink, nil),
	})

	reg := prometheus.NewRegistry()
	svc := NewOnboardingService(OnboardingServiceParams{
		Store:              s,
		Pools:              directory,
		Kyc:                &fakeConnector{store: s},
		Agreements:         manager,
		Metrics:            metrics.New(reg),
		GlobalRestrictions: []string{"CU"},
	})
	verifier, err := esign.NewVerifier(webhookSecret)
	require.NoError(t, err)

	return &apiFixture{
		store:  s,
		esign:  provider,
		sink:   sink,
		svc:    svc,
		router: NewHandler(svc, verifier, reg).Router(),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func signedHeader(body []byte) http.Header {
	h := http.Header{}
	h.Set(esign.SignatureHeader, hex.EncodeToString(esign.Sign([]byte(webhookSecret), body)))
	return h
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

func (f *apiFixture) verifiedUser(t *testing.T, country string, usaTaxResident bool) *models.User {
	t.Helper()
	ctx := context.Background()
	user, _, _, err := f.svc.ledger.EnsureAddress(ctx, "ethereum", "mainnet", testAddress)
	require.NoError(t, err)
	if country != "" {
		user, err = f.store.FillUserProfile(ctx, user.Id, store.UserProfile{CountryCode: country})
		require.NoError(t, err)
	}
	_, err = f.store.UpsertKycRecord(ctx, store.UpsertKycParams{
		UserId:            user.Id,
		Provider:          "parallel",
		ProviderAccountId: "acct-1",
		Status:            models.KycStatusVerified,
		UsaTaxResident:    usaTaxResident,
		Accredited:        true,
	})
	require.NoError(t, err)
	return user
}

func TestWebhook_RejectsBadSignatures(t *testing.T) {
	f := newAPIFixture(t)
	body := []byte(`{"envelopeId":"env-1","status":"declined"}`)

	rec := f.do(t, http.MethodPost, "/webhooks/esign", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec))

	bad := http.Header{}
	bad.Set(esign.SignatureHeader, hex.EncodeToString([]byte("nope")))
	rec = f.do(t, http.MethodPost, "/webhooks/esign", body, bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_DeclineNotifiesOnce(t *testing.T) {
	f := newAPIFixture(t)
	user := f.verifiedUser(t, "DE", false)

	created, err := f.svc.CreateAgreements(context.Background(), user.Id, "pool-a", "")
	require.NoError(t, err)
	require.Len(t, created, 1)
	envelope := created[0].ProviderEnvelopeId
	require.NotEmpty(t, envelope)

	body := []byte(fmt.Sprintf(`{"envelopeId":%q,"status":"declined"}`, envelope))
	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/webhooks/esign", body, signedHeader(body))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 1, f.sink.count(models.NotifyAgreementDeclined))
	a, err := f.store.GetAgreementById(context.Background(), created[0].Id)
	require.NoError(t, err)
	assert.Equal(t, models.AgreementDeclined, a.State())
}

func TestWebhook_UnknownEnvelopeIsAccepted(t *testing.T) {
	f := newAPIFixture(t)
	body := []byte(`{"envelopeId":"env-missing","status":"completed"}`)

	rec := f.do(t, http.MethodPost, "/webhooks/esign", body, signedHeader(body))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_UnknownStatusIsBadRequest(t *testing.T) {
	f := newAPIFixture(t)
	body := []byte(`{"envelopeId":"env-1","status":"exploded"}`)

	rec := f.do(t, http.MethodPost, "/webhooks/esign", body, signedHeader(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decodeError(t, rec))
}

func TestWebhook_MalformedPayload(t *testing.T) {
	f := newAPIFixture(t)
	body := []byte(`{"status":"declined"}`)

	rec := f.do(t, http.MethodPost, "/webhooks/esign", body, signedHeader(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_payload", decodeError(t, rec))
}

func TestAddressStatus_CreatesUserOnFirstSight(t *testing.T) {
	f := newAPIFixture(t)
	path := "/addresses/ethereum/mainnet/" + testAddress + "/pools/pool-a"

	rec := f.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.OnboardingStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.NotEmpty(t, status.UserId)
	assert.Equal(t, models.KycStatusNone, status.KycStatus)
	assert.Empty(t, status.PendingAgreements)
	assert.Equal(t, map[string]bool{"senior": false, "junior": false}, status.Whitelisted)
	assert.Equal(t, 0, f.esign.created)

	// same address, same user
	rec = f.do(t, http.MethodGet, path, nil, nil)
	var again models.OnboardingStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&again))
	assert.Equal(t, status.UserId, again.UserId)
}

func TestAddressStatus_VerifiedUserGetsAgreements(t *testing.T) {
	f := newAPIFixture(t)
	f.verifiedUser(t, "US", true)

	status, err := f.svc.AddressStatus(context.Background(), "ethereum", "mainnet", testAddress, "pool-a")
	require.NoError(t, err)
	require.Len(t, status.PendingAgreements, 1)
	assert.Equal(t, models.AgreementSent, status.PendingAgreements[0].State)
	assert.Equal(t, 1, f.esign.created)

	// repeated checks reuse the agreement
	_, err = f.svc.AddressStatus(context.Background(), "ethereum", "mainnet", testAddress, "pool-a")
	require.NoError(t, err)
	assert.Equal(t, 1, f.esign.created)

	agreementsForPool, err := f.store.ListAgreementsForPool(context.Background(), status.UserId, "pool-a")
	require.NoError(t, err)
	require.Len(t, agreementsForPool, 1)
	assert.Equal(t, "tmpl-us", agreementsForPool[0].ProviderTemplateId)
}

func TestAddressStatus_RestrictedUserGetsNoAgreements(t *testing.T) {
	f := newAPIFixture(t)
	f.verifiedUser(t, "CU", false)

	status, err := f.svc.AddressStatus(context.Background(), "ethereum", "mainnet", testAddress, "pool-a")
	require.NoError(t, err)
	assert.True(t, status.Restricted)
	assert.Equal(t, 0, f.esign.created)
}

func TestAddressStatus_UnknownPool(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/addresses/ethereum/mainnet/"+testAddress+"/pools/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec))
}

func TestOnboardingStatus_ReflectsWhitelist(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	user := f.verifiedUser(t, "DE", false)

	addrs, err := f.store.GetAllUserAddresses(ctx, user.Id)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	_, err = f.store.MarkWhitelisted(ctx, addrs[0].Id, "pool-a", "senior", "agr-1")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/users/"+user.Id+"/pools/pool-a", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.OnboardingStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, models.KycStatusVerified, status.KycStatus)
	assert.True(t, status.Whitelisted["senior"])
	assert.False(t, status.Whitelisted["junior"])
	assert.False(t, status.Restricted)
}

func TestOnboardingStatus_UnknownUser(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/users/nobody/pools/pool-a", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorBodyCarriesRequestId(t *testing.T) {
	f := newAPIFixture(t)

	header := http.Header{}
	header.Set(middleware.RequestIDHeader, "trace-42")
	rec := f.do(t, http.MethodGet, "/users/nobody/pools/pool-a", nil, header)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "trace-42", body.RequestId)
	assert.Equal(t, "not_found", body.Error.Code)
}

func TestConnectKyc(t *testing.T) {
	f := newAPIFixture(t)
	user, err := f.store.CreateUser(context.Background(), store.CreateUserParams{})
	require.NoError(t, err)

	body := []byte(`{"providerAccountId":"acct-9","accessToken":"a","refreshToken":"r"}`)
	rec := f.do(t, http.MethodPost, "/users/"+user.Id+"/kyc", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp kycResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "parallel", resp.Provider)
	assert.Equal(t, models.KycStatusProcessing, resp.Status)

	rec = f.do(t, http.MethodPost, "/users/"+user.Id+"/kyc", []byte(`{"unexpected":true}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAgreementsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	user := f.verifiedUser(t, "DE", false)

	rec := f.do(t, http.MethodPost, "/users/"+user.Id+"/pools/pool-a/agreements", []byte(`{"countryCode":"US"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp agreementsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Agreements, 1)
	assert.Equal(t, "senior", resp.Agreements[0].Tranche)
	assert.Equal(t, 1, f.esign.created)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
