package esign

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"pool-onboarding-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent("Declined")
	require.NoError(t, err)
	assert.Equal(t, models.EnvelopeDeclined, event)

	_, err = ParseEvent("shredded")
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestNormalizeSigners(t *testing.T) {
	signers, errs := NormalizeSigners([]models.SignerOutcome{
		{Role: "Investor", Status: "Completed"},
		{Role: "countersigner", Status: "sent"},
		{Role: "witness", Status: "completed"},
	})
	require.Len(t, signers, 2)
	assert.Len(t, errs, 1)
	assert.Equal(t, models.SignerInvestor, signers[0].Role)
	assert.True(t, signers[0].Completed())
	assert.Equal(t, models.SignerIssuer, signers[1].Role)
	assert.False(t, signers[1].Completed())
}

func TestVerifier(t *testing.T) {
	v, err := NewVerifier("shh")
	require.NoError(t, err)
	body := []byte(`{"envelopeId":"E","status":"declined"}`)

	headers := http.Header{}
	assert.True(t, errors.Is(v.Verify(headers, body), ErrMissingSignature))

	headers.Set(SignatureHeader, "zz")
	assert.True(t, errors.Is(v.Verify(headers, body), ErrInvalidSignature))

	headers.Set(SignatureHeader, hex.EncodeToString(Sign([]byte("other"), body)))
	assert.True(t, errors.Is(v.Verify(headers, body), ErrInvalidSignature))

	headers.Set(SignatureHeader, hex.EncodeToString(Sign([]byte("shh"), body)))
	assert.NoError(t, v.Verify(headers, body))

	_, err = NewVerifier(" ")
	assert.Error(t, err)
}

func TestParseWebhook(t *testing.T) {
	payload, err := ParseWebhook([]byte(`{"envelopeId":"E","status":"completed","signers":[{"role":"issuer","status":"completed"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "E", payload.EnvelopeId)
	require.Len(t, payload.Signers, 1)

	_, err = ParseWebhook([]byte(`{"status":"completed"}`))
	assert.True(t, errors.Is(err, ErrInvalidPayload))

	_, err = ParseWebhook([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrInvalidPayload))
}

func TestClient_CreateAndPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2.1/accounts/acct/envelopes":
			var req createEnvelopeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "tmpl-1", req.TemplateId)
			require.Len(t, req.Signers, 2)
			assert.Equal(t, "investor", req.Signers[0].Role)
			w.Write([]byte(`{"envelopeId":"env-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v2.1/accounts/acct/envelopes/env-1":
			w.Write([]byte(`{"envelopeId":"env-1","status":"completed","signers":[{"role":"signer","status":"completed"},{"role":"issuer","status":"completed"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(models.ESignConfig{Provider: "docusign", BaseURL: srv.URL, AccountId: "acct", AccessToken: "token", MaxAttempts: 1}, srv.Client())

	envelopeId, err := c.CreateEnvelope(context.Background(), "tmpl-1", []models.EnvelopeSigner{
		{Role: models.SignerInvestor, Email: "i@example.com", Name: "Investor"},
		{Role: models.SignerIssuer, Email: "issuer@example.com", Name: "Issuer"},
	})
	require.NoError(t, err)
	assert.Equal(t, "env-1", envelopeId)

	status, err := c.GetEnvelopeStatus(context.Background(), "env-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnvelopeCompleted, status.Event)
	require.Len(t, status.Signers, 2)
	assert.Equal(t, models.SignerInvestor, status.Signers[0].Role)
}

func TestClient_CreateEnvelopeIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(models.ESignConfig{Provider: "docusign", BaseURL: srv.URL, AccountId: "acct", AccessToken: "token", MaxAttempts: 3}, srv.Client())

	_, err := c.CreateEnvelope(context.Background(), "tmpl-1", []models.EnvelopeSigner{{Role: models.SignerInvestor, Email: "i@example.com"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
