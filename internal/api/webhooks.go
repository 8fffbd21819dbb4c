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
	"fmt"

	"pool-onboarding-go/internal/esign"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	"go.uber.org/zap"
)

// HandleProviderWebhook normalizes an e-signature notification and applies it.
// Signer entries with an unknown role are dropped; an unknown event rejects the
// whole payload.
func (s *OnboardingService) HandleProviderWebhook(ctx context.Context, payload *models.WebhookPayload) error {
	if s.agreements == nil {
		return fmt.Errorf("%w: no e-signature provider configured", store.ErrInvalidInput)
	}

	event, err := esign.ParseEvent(payload.Status)
	if err != nil {
		s.metrics.IncWebhookDelivery("unknown_event")
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	signers, errs := esign.NormalizeSigners(payload.Signers)
	for _, e := range errs {
		zap.L().Warn("Dropping signer entry", zap.String("envelope_id", payload.EnvelopeId), zap.Error(e))
	}

	if err := s.agreements.ApplyProviderEvent(ctx, payload.EnvelopeId, event, signers); err != nil {
		s.metrics.IncWebhookDelivery("failed")
		return err
	}
	s.metrics.IncWebhookDelivery("applied")
	return nil
}
