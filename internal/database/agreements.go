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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanAgreement(row rowScanner, a *models.Agreement) error {
	var signedAt, counterSignedAt, declinedAt, voidedAt sql.NullTime
	err := row.Scan(&a.Id, &a.UserId, &a.PoolId, &a.Tranche, &a.Name, &a.Provider,
		&a.ProviderTemplateId, &a.ProviderEnvelopeId,
		&signedAt, &counterSignedAt, &declinedAt, &voidedAt, &a.CreatedAt)
	if err != nil {
		return err
	}
	a.SignedAt = nullTimePtr(signedAt)
	a.CounterSignedAt = nullTimePtr(counterSignedAt)
	a.DeclinedAt = nullTimePtr(declinedAt)
	a.VoidedAt = nullTimePtr(voidedAt)
	return nil
}

func (s *Service) queryAgreements(ctx context.Context, query string, args ...any) ([]models.Agreement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query agreements: %w", err)
	}
	defer closeRows(rows)

	var agreements []models.Agreement
	for rows.Next() {
		var a models.Agreement
		if err := scanAgreement(rows, &a); err != nil {
			zap.L().Error("Failed to scan agreement row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan agreement row: %w", err)
		}
		agreements = append(agreements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agreement rows: %w", err)
	}
	return agreements, nil
}

// InsertAgreementOrGet claims the dedup key. The partial unique index makes the
// insert a no-op when an active agreement already exists, in which case that row
// is returned with inserted=false.
func (s *Service) InsertAgreementOrGet(ctx context.Context, params store.InsertAgreementParams) (*models.Agreement, bool, error) {
	agreementId := uuid.New().String()
	result, err := s.db.ExecContext(ctx, queryInsertAgreement, agreementId,
		params.UserId, params.PoolId, params.Tranche, params.Name, params.Provider, params.ProviderTemplateId)
	if err != nil {
		zap.L().Error("Failed to insert agreement",
			zap.String("user_id", params.UserId),
			zap.String("pool_id", params.PoolId),
			zap.Error(err))
		return nil, false, fmt.Errorf("unable to insert agreement: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("unable to get rows affected: %w", err)
	}

	agreement, err := s.FindActiveAgreement(ctx, params.AgreementKey)
	if err != nil {
		return nil, false, err
	}
	if agreement == nil {
		// The active row was declined or voided between the insert and the read.
		return nil, false, fmt.Errorf("%w: active agreement vanished for template %s", store.ErrAgreementNotFound, params.ProviderTemplateId)
	}
	return agreement, rowsAffected == 1 && agreement.Id == agreementId, nil
}

// SetAgreementEnvelope records the envelope once. It returns false when another
// writer already attached an envelope.
func (s *Service) SetAgreementEnvelope(ctx context.Context, agreementId, envelopeId string) (bool, error) {
	return s.execConditional(ctx, querySetAgreementEnvelope, envelopeId, agreementId)
}

func (s *Service) GetAgreementById(ctx context.Context, agreementId string) (*models.Agreement, error) {
	var a models.Agreement
	err := scanAgreement(s.db.QueryRowContext(ctx, queryGetAgreementById, agreementId), &a)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrAgreementNotFound, agreementId)
		}
		return nil, fmt.Errorf("unable to query agreement: %w", err)
	}
	return &a, nil
}

// FindActiveAgreement returns nil, nil when no active agreement holds the key.
func (s *Service) FindActiveAgreement(ctx context.Context, key store.AgreementKey) (*models.Agreement, error) {
	var a models.Agreement
	err := scanAgreement(s.db.QueryRowContext(ctx, queryFindActiveAgreement,
		key.UserId, key.PoolId, key.Tranche, key.ProviderTemplateId), &a)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query active agreement: %w", err)
	}
	return &a, nil
}

func (s *Service) FindAgreementByEnvelope(ctx context.Context, provider, envelopeId string) (*models.Agreement, error) {
	var a models.Agreement
	err := scanAgreement(s.db.QueryRowContext(ctx, queryFindAgreementByEnvelope, provider, envelopeId), &a)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: envelope %s", store.ErrAgreementNotFound, envelopeId)
		}
		return nil, fmt.Errorf("unable to query agreement by envelope: %w", err)
	}
	return &a, nil
}

func (s *Service) ListAgreementsForPool(ctx context.Context, userId, poolId string) ([]models.Agreement, error) {
	return s.queryAgreements(ctx, queryListAgreementsForPool, userId, poolId)
}

func (s *Service) ListAgreementsForUser(ctx context.Context, userId string) ([]models.Agreement, error) {
	return s.queryAgreements(ctx, queryListAgreementsForUser, userId)
}

func (s *Service) ListAgreementsAwaitingCounterSignature(ctx context.Context) ([]models.Agreement, error) {
	return s.queryAgreements(ctx, queryListAgreementsAwaitingCounterSignature)
}

func (s *Service) ListCounterSignedAgreements(ctx context.Context) ([]models.Agreement, error) {
	return s.queryAgreements(ctx, queryListCounterSignedAgreements)
}

// The Mark* methods only write when the timestamp is still unset and report
// whether this call performed the transition.

func (s *Service) MarkAgreementSigned(ctx context.Context, agreementId string, at time.Time) (bool, error) {
	return s.execConditional(ctx, queryMarkAgreementSigned, at.UTC(), agreementId)
}

func (s *Service) MarkAgreementCounterSigned(ctx context.Context, agreementId string, at time.Time) (bool, error) {
	return s.execConditional(ctx, queryMarkAgreementCounterSigned, at.UTC(), at.UTC(), agreementId)
}

func (s *Service) MarkAgreementDeclined(ctx context.Context, agreementId string, at time.Time) (bool, error) {
	return s.execConditional(ctx, queryMarkAgreementDeclined, at.UTC(), agreementId)
}

func (s *Service) MarkAgreementVoided(ctx context.Context, agreementId string, at time.Time) (bool, error) {
	return s.execConditional(ctx, queryMarkAgreementVoided, at.UTC(), agreementId)
}

func (s *Service) execConditional(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("unable to update agreement: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
