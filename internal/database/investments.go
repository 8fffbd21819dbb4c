package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pool-onboarding-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanInvestment(row rowScanner, inv *models.Investment) error {
	return row.Scan(&inv.Id, &inv.AddressId, &inv.PoolId, &inv.Tranche, &inv.IsWhitelisted, &inv.AgreementId, &inv.UpdatedAt)
}

// GetInvestment returns nil, nil when the address has no record for the tranche.
func (s *Service) GetInvestment(ctx context.Context, addressId, poolId, tranche string) (*models.Investment, error) {
	var inv models.Investment
	err := scanInvestment(s.db.QueryRowContext(ctx, queryGetInvestment, addressId, poolId, tranche), &inv)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query investment: %w", err)
	}
	return &inv, nil
}

// MarkWhitelisted is the only writer of investments and only ever sets the flag,
// so a whitelisted record can not be reverted through this store.
func (s *Service) MarkWhitelisted(ctx context.Context, addressId, poolId, tranche, agreementId string) (*models.Investment, error) {
	_, err := s.db.ExecContext(ctx, queryMarkWhitelisted, uuid.New().String(), addressId, poolId, tranche, agreementId)
	if err != nil {
		zap.L().Error("Failed to mark address whitelisted",
			zap.String("address_id", addressId),
			zap.String("pool_id", poolId),
			zap.String("tranche", tranche),
			zap.Error(err))
		return nil, fmt.Errorf("unable to upsert investment: %w", err)
	}

	inv, err := s.GetInvestment(ctx, addressId, poolId, tranche)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("investment missing after upsert for address %s", addressId)
	}
	return inv, nil
}

func (s *Service) ListUserInvestments(ctx context.Context, userId string) ([]models.Investment, error) {
	rows, err := s.db.QueryContext(ctx, queryListUserInvestments, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query investments: %w", err)
	}
	defer closeRows(rows)

	var investments []models.Investment
	for rows.Next() {
		var inv models.Investment
		if err := scanInvestment(rows, &inv); err != nil {
			return nil, fmt.Errorf("unable to scan investment row: %w", err)
		}
		investments = append(investments, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investment rows: %w", err)
	}
	return investments, nil
}
