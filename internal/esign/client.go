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

package esign

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/providers"

	"go.uber.org/zap"
)

// Provider is the external e-signature service
type Provider interface {
	CreateEnvelope(ctx context.Context, templateId string, signers []models.EnvelopeSigner) (string, error)
	GetEnvelopeStatus(ctx context.Context, envelopeId string) (*models.EnvelopeStatus, error)
}

type envelopeSigner struct {
	Role         string `json:"role"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	ClientUserId string `json:"clientUserId,omitempty"`
}

type createEnvelopeRequest struct {
	TemplateId string           `json:"templateId"`
	Status     string           `json:"status"`
	Signers    []envelopeSigner `json:"signers"`
}

type createEnvelopeResponse struct {
	EnvelopeId string `json:"envelopeId"`
}

type envelopeResponse struct {
	EnvelopeId string                 `json:"envelopeId"`
	Status     string                 `json:"status"`
	Signers    []models.SignerOutcome `json:"signers"`
}

// Client talks to the e-signature provider REST API.
type Client struct {
	rest        *providers.RestClient
	accountId   string
	accessToken string
}

var _ Provider = (*Client)(nil)

func NewClient(cfg models.ESignConfig, httpClient *http.Client) *Client {
	return &Client{
		rest: providers.NewRestClient(providers.RestConfig{
			ProviderID:  cfg.Provider,
			BaseURL:     cfg.BaseURL,
			HTTPClient:  httpClient,
			MaxAttempts: cfg.MaxAttempts,
		}),
		accountId:   cfg.AccountId,
		accessToken: cfg.AccessToken,
	}
}

func (c *Client) envelopesPath() string {
	return "/v2.1/accounts/" + url.PathEscape(c.accountId) + "/envelopes"
}

// CreateEnvelope sends the template to the signers, pre-filling their identity.
// It is attempted once; callers retry from the agreement's Created row.
func (c *Client) CreateEnvelope(ctx context.Context, templateId string, signers []models.EnvelopeSigner) (string, error) {
	req := createEnvelopeRequest{TemplateId: templateId, Status: "sent"}
	for _, s := range signers {
		req.Signers = append(req.Signers, envelopeSigner{
			Role:         string(s.Role),
			Email:        s.Email,
			Name:         s.Name,
			ClientUserId: s.ClientId,
		})
	}

	var resp createEnvelopeResponse
	err := c.rest.Do(ctx, providers.Request{
		Method:        http.MethodPost,
		Path:          c.envelopesPath(),
		BearerToken:   c.accessToken,
		Body:          req,
		SingleAttempt: true,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("unable to create envelope: %w", err)
	}
	if resp.EnvelopeId == "" {
		return "", providers.NewProviderError(providers.ErrorContractMismatch, c.rest.ProviderID(), "envelope id missing from response", nil)
	}

	zap.L().Info("Envelope created",
		zap.String("template_id", templateId),
		zap.String("envelope_id", resp.EnvelopeId))
	return resp.EnvelopeId, nil
}

// GetEnvelopeStatus polls an envelope directly, bypassing webhooks.
func (c *Client) GetEnvelopeStatus(ctx context.Context, envelopeId string) (*models.EnvelopeStatus, error) {
	var resp envelopeResponse
	err := c.rest.Do(ctx, providers.Request{
		Method:      http.MethodGet,
		Path:        c.envelopesPath() + "/" + url.PathEscape(envelopeId),
		BearerToken: c.accessToken,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("unable to get envelope %s: %w", envelopeId, err)
	}

	event, err := ParseEvent(resp.Status)
	if err != nil {
		return nil, err
	}
	signers, errs := NormalizeSigners(resp.Signers)
	for _, e := range errs {
		zap.L().Warn("Ignoring signer", zap.String("envelope_id", envelopeId), zap.Error(e))
	}

	return &models.EnvelopeStatus{
		EnvelopeId: envelopeId,
		Event:      event,
		Signers:    signers,
	}, nil
}
