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
	"errors"
	"fmt"
	"strings"

	"pool-onboarding-go/internal/models"
)

var (
	ErrUnknownEvent = errors.New("unknown envelope event")
	ErrUnknownRole  = errors.New("unknown signer role")
)

var eventTable = map[string]models.EnvelopeEvent{
	"created":   models.EnvelopeSent,
	"sent":      models.EnvelopeSent,
	"delivered": models.EnvelopeDelivered,
	"completed": models.EnvelopeCompleted,
	"signed":    models.EnvelopeCompleted,
	"declined":  models.EnvelopeDeclined,
	"voided":    models.EnvelopeVoided,
}

var roleTable = map[string]models.SignerRole{
	"investor":       models.SignerInvestor,
	"signer":         models.SignerInvestor,
	"issuer":         models.SignerIssuer,
	"countersigner":  models.SignerIssuer,
	"counter-signer": models.SignerIssuer,
}

// ParseEvent maps a provider envelope status onto the closed event set.
func ParseEvent(raw string) (models.EnvelopeEvent, error) {
	event, ok := eventTable[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, raw)
	}
	return event, nil
}

// NormalizeSigners maps provider roles and lower-cases statuses. Signers with an
// unrecognized role are dropped and reported in the returned error list.
func NormalizeSigners(raw []models.SignerOutcome) ([]models.SignerOutcome, []error) {
	signers := make([]models.SignerOutcome, 0, len(raw))
	var errs []error
	for _, s := range raw {
		role, ok := roleTable[strings.ToLower(strings.TrimSpace(string(s.Role)))]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownRole, s.Role))
			continue
		}
		signers = append(signers, models.SignerOutcome{
			Role:   role,
			Status: strings.ToLower(strings.TrimSpace(s.Status)),
		})
	}
	return signers, errs
}
