package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanKycRecord(row rowScanner, rec *models.KycRecord) error {
	var status string
	var expiresAt sql.NullTime
	err := row.Scan(&rec.Id, &rec.UserId, &rec.Provider, &rec.ProviderAccountId, &status,
		&rec.UsaTaxResident, &rec.Accredited,
		&rec.Credential.AccessToken, &rec.Credential.RefreshToken, &expiresAt,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return err
	}
	rec.Status = models.KycStatus(status)
	if expiresAt.Valid {
		rec.Credential.ExpiresAt = expiresAt.Time
	}
	return nil
}

func (s *Service) GetKycRecord(ctx context.Context, userId, provider string) (*models.KycRecord, error) {
	var rec models.KycRecord
	err := scanKycRecord(s.db.QueryRowContext(ctx, queryGetKycRecord, userId, provider), &rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s provider %s", store.ErrKycNotFound, userId, provider)
		}
		zap.L().Error("Failed to query kyc record", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to query kyc record: %w", err)
	}
	return &rec, nil
}

// UpsertKycRecord writes a full sync result in one statement. A blank access
// token keeps the stored credential.
func (s *Service) UpsertKycRecord(ctx context.Context, params store.UpsertKycParams) (*models.KycRecord, error) {
	if !params.Status.Valid() {
		return nil, fmt.Errorf("%w: kyc status %q", store.ErrInvalidInput, params.Status)
	}

	var expiresAt any
	if !params.Credential.ExpiresAt.IsZero() {
		expiresAt = params.Credential.ExpiresAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, queryUpsertKycRecord,
		uuid.New().String(), params.UserId, params.Provider, params.ProviderAccountId,
		string(params.Status), params.UsaTaxResident, params.Accredited,
		params.Credential.AccessToken, params.Credential.RefreshToken, expiresAt)
	if err != nil {
		zap.L().Error("Failed to upsert kyc record",
			zap.String("user_id", params.UserId),
			zap.String("provider", params.Provider),
			zap.Error(err))
		return nil, fmt.Errorf("unable to upsert kyc record: %w", err)
	}

	var rec models.KycRecord
	err = scanKycRecord(s.db.QueryRowContext(ctx, queryGetKycRecordByKey, params.UserId, params.Provider, params.ProviderAccountId), &rec)
	if err != nil {
		return nil, fmt.Errorf("unable to read kyc record: %w", err)
	}

	zap.L().Debug("Kyc record upserted",
		zap.String("user_id", rec.UserId),
		zap.String("status", string(rec.Status)),
		zap.Bool("accredited", rec.Accredited))
	return &rec, nil
}

func (s *Service) UpdateKycCredential(ctx context.Context, recordId string, credential models.Credential) error {
	var expiresAt any
	if !credential.ExpiresAt.IsZero() {
		expiresAt = credential.ExpiresAt.UTC()
	}

	result, err := s.db.ExecContext(ctx, queryUpdateKycCredential,
		credential.AccessToken, credential.RefreshToken, expiresAt, recordId)
	if err != nil {
		return fmt.Errorf("unable to update kyc credential: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrKycNotFound, recordId)
	}
	return nil
}

// ListKycForReconciliation returns records that are not verified yet or whose
// accreditation may still change.
func (s *Service) ListKycForReconciliation(ctx context.Context) ([]models.KycRecord, error) {
	rows, err := s.db.QueryContext(ctx, queryListKycForReconciliation)
	if err != nil {
		zap.L().Error("Failed to list kyc records for reconciliation", zap.Error(err))
		return nil, fmt.Errorf("unable to list kyc records: %w", err)
	}
	defer closeRows(rows)

	var records []models.KycRecord
	for rows.Next() {
		var rec models.KycRecord
		if err := scanKycRecord(rows, &rec); err != nil {
			return nil, fmt.Errorf("unable to scan kyc row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kyc rows: %w", err)
	}
	return records, nil
}
