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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"pool-onboarding-go/internal/models"
)

const SignatureHeader = "X-Signature"

var (
	ErrMissingSignature = errors.New("webhook signature missing")
	ErrInvalidSignature = errors.New("webhook signature invalid")
	ErrInvalidPayload   = errors.New("webhook payload invalid")
)

// Verifier checks the hex HMAC-SHA256 of the raw webhook body.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhook verifier secret is empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func (v *Verifier) Verify(headers http.Header, rawBody []byte) error {
	sigHex := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHex == "" {
		return ErrMissingSignature
	}
	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(Sign(v.secret, rawBody), provided) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the signature the provider is expected to send.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// ParseWebhook decodes a payload and requires an envelope id and status.
func ParseWebhook(rawBody []byte) (*models.WebhookPayload, error) {
	var payload models.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(payload.EnvelopeId) == "" || strings.TrimSpace(payload.Status) == "" {
		return nil, fmt.Errorf("%w: envelopeId and status are required", ErrInvalidPayload)
	}
	return &payload, nil
}
