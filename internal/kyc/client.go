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
	"net/http"
	"time"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/providers"
)

var (
	// ErrCredentialExpired is returned when the provider rejects the access token
	ErrCredentialExpired = errors.New("kyc credential expired")

	// ErrCredentialInvalid is returned when a refreshed credential is refused as well
	ErrCredentialInvalid = errors.New("kyc credential invalid")
)

// IdentityProvider is the external identity-verification service
type IdentityProvider interface {
	// GetInvestor returns ErrCredentialExpired when the credential is rejected.
	GetInvestor(ctx context.Context, credential models.Credential) (*models.InvestorProfile, error)
	// RefreshCredential returns nil, nil when the refresh token is no longer accepted.
	RefreshCredential(ctx context.Context, refreshToken string) (*models.Credential, error)
}

type investorResponse struct {
	Status         string `json:"status"`
	Accredited     bool   `json:"accredited"`
	UsaTaxResident bool   `json:"usa_tax_resident"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	EntityName     string `json:"entity_name"`
	CountryCode    string `json:"country_code"`
	TaxId          string `json:"tax_id"`
	Address        string `json:"address"`
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientId     string `json:"client_id"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Client talks to the identity provider REST API.
type Client struct {
	rest     *providers.RestClient
	clientId string
	now      func() time.Time
}

var _ IdentityProvider = (*Client)(nil)

func NewClient(cfg models.KycConfig, httpClient *http.Client) *Client {
	return &Client{
		rest: providers.NewRestClient(providers.RestConfig{
			ProviderID:  cfg.Provider,
			BaseURL:     cfg.BaseURL,
			HTTPClient:  httpClient,
			MaxAttempts: cfg.MaxAttempts,
		}),
		clientId: cfg.IssuerId,
		now:      time.Now,
	}
}

func (c *Client) GetInvestor(ctx context.Context, credential models.Credential) (*models.InvestorProfile, error) {
	if credential.AccessToken == "" {
		return nil, ErrCredentialExpired
	}

	var resp investorResponse
	err := c.rest.Do(ctx, providers.Request{
		Method:      http.MethodGet,
		Path:        "/v1/me/investor",
		BearerToken: credential.AccessToken,
	}, &resp)
	if err != nil {
		if providers.GetCategory(err) == providers.ErrorAuthentication {
			return nil, fmt.Errorf("%w: %v", ErrCredentialExpired, err)
		}
		return nil, fmt.Errorf("unable to fetch investor: %w", err)
	}

	status, err := NormalizeStatus(resp.Status)
	if err != nil {
		return nil, err
	}

	return &models.InvestorProfile{
		Status:         status,
		Accredited:     resp.Accredited,
		UsaTaxResident: resp.UsaTaxResident,
		Email:          resp.Email,
		FullName:       resp.FullName,
		EntityName:     resp.EntityName,
		CountryCode:    resp.CountryCode,
		TaxId:          resp.TaxId,
		Address:        resp.Address,
	}, nil
}

func (c *Client) RefreshCredential(ctx context.Context, refreshToken string) (*models.Credential, error) {
	if refreshToken == "" {
		return nil, nil
	}

	var resp tokenResponse
	err := c.rest.Do(ctx, providers.Request{
		Method: http.MethodPost,
		Path:   "/oauth/token",
		Body: refreshRequest{
			GrantType:    "refresh_token",
			RefreshToken: refreshToken,
			ClientId:     c.clientId,
		},
	}, &resp)
	if err != nil {
		switch providers.GetCategory(err) {
		case providers.ErrorAuthentication, providers.ErrorBadData:
			return nil, nil
		}
		return nil, fmt.Errorf("unable to refresh credential: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, nil
	}

	cred := &models.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	if resp.ExpiresIn > 0 {
		cred.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	return cred, nil
}
