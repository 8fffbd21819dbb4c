package kyc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pool-onboarding-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(models.KycConfig{Provider: "parallel", BaseURL: srv.URL, IssuerId: "issuer-1", MaxAttempts: 1}, srv.Client())
	c.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestClient_GetInvestor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/me/investor", r.URL.Path)
		assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"manual-review","accredited":true,"usa_tax_resident":true,"email":"a@example.com","country_code":"US"}`))
	})

	profile, err := c.GetInvestor(context.Background(), models.Credential{AccessToken: "good"})
	require.NoError(t, err)
	assert.Equal(t, models.KycStatusProcessing, profile.Status)
	assert.True(t, profile.Accredited)
	assert.Equal(t, "US", profile.CountryCode)
}

func TestClient_GetInvestorExpired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.GetInvestor(context.Background(), models.Credential{AccessToken: "stale"})
	assert.True(t, errors.Is(err, ErrCredentialExpired))
}

func TestClient_GetInvestorUnknownStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"mystery"}`))
	})

	_, err := c.GetInvestor(context.Background(), models.Credential{AccessToken: "good"})
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestClient_RefreshCredential(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		var req refreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.RefreshToken != "refresh-ok" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "issuer-1", req.ClientId)
		w.Write([]byte(`{"access_token":"new-access","expires_in":3600}`))
	})

	cred, err := c.RefreshCredential(context.Background(), "refresh-ok")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "new-access", cred.AccessToken)
	assert.Equal(t, "refresh-ok", cred.RefreshToken)
	assert.Equal(t, time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC), cred.ExpiresAt)

	none, err := c.RefreshCredential(context.Background(), "revoked")
	require.NoError(t, err)
	assert.Nil(t, none)
}
