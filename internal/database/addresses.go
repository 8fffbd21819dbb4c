package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanAddress(row rowScanner, addr *models.Address) error {
	return row.Scan(&addr.Id, &addr.UserId, &addr.Blockchain, &addr.Network, &addr.Address, &addr.CreatedAt)
}

func (s *Service) StoreAddress(ctx context.Context, params store.StoreAddressParams) (*models.Address, error) {
	if params.UserId == "" || strings.TrimSpace(params.Address) == "" {
		return nil, fmt.Errorf("%w: user id and address are required", store.ErrInvalidInput)
	}

	zap.L().Info("Storing address",
		zap.String("user_id", params.UserId),
		zap.String("blockchain", params.Blockchain),
		zap.String("network", params.Network),
		zap.String("address", params.Address))

	addressId := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertAddress, addressId, params.UserId,
		strings.ToLower(params.Blockchain), strings.ToLower(params.Network), strings.TrimSpace(params.Address))
	if err != nil {
		zap.L().Error("Failed to insert address",
			zap.String("user_id", params.UserId),
			zap.String("address", params.Address),
			zap.Error(err))
		return nil, fmt.Errorf("unable to insert address: %w", err)
	}

	var addr models.Address
	if err := scanAddress(s.db.QueryRowContext(ctx, queryGetAddressById, addressId), &addr); err != nil {
		return nil, fmt.Errorf("unable to read stored address: %w", err)
	}

	zap.L().Info("Address stored successfully", zap.String("id", addressId))
	return &addr, nil
}

func (s *Service) GetAllUserAddresses(ctx context.Context, userId string) ([]models.Address, error) {
	zap.L().Debug("Querying all addresses for user", zap.String("user_id", userId))

	rows, err := s.db.QueryContext(ctx, queryGetAllUserAddresses, userId)
	if err != nil {
		zap.L().Error("Failed to query all addresses",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, fmt.Errorf("unable to query all addresses: %w", err)
	}
	defer closeRows(rows)

	var addresses []models.Address
	for rows.Next() {
		var addr models.Address
		if err := scanAddress(rows, &addr); err != nil {
			zap.L().Error("Failed to scan address row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan address row: %w", err)
		}
		addresses = append(addresses, addr)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during address row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating address rows: %w", err)
	}

	zap.L().Debug("Retrieved all addresses",
		zap.String("user_id", userId),
		zap.Int("count", len(addresses)))
	return addresses, nil
}

// FindUserByAddress matches the address string case-insensitively. It returns
// nil, nil, nil when the address is unknown.
func (s *Service) FindUserByAddress(ctx context.Context, address string) (*models.User, *models.Address, error) {
	zap.L().Debug("Finding user by address", zap.String("address", address))

	var user models.User
	var addr models.Address
	err := s.db.QueryRowContext(ctx, queryFindUserByAddress, strings.TrimSpace(address)).Scan(
		&user.Id, &user.Email, &user.FullName, &user.EntityName, &user.CountryCode, &user.CreatedAt, &user.UpdatedAt,
		&addr.Id, &addr.UserId, &addr.Blockchain, &addr.Network, &addr.Address, &addr.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		zap.L().Debug("No user found for address", zap.String("address", address))
		return nil, nil, nil
	}

	if err != nil {
		zap.L().Error("Failed to query user by address", zap.String("address", address), zap.Error(err))
		return nil, nil, fmt.Errorf("unable to query user by address: %w", err)
	}

	return &user, &addr, nil
}

func (s *Service) RelinkAddress(ctx context.Context, addressId, userId string) error {
	zap.L().Info("Relinking address", zap.String("address_id", addressId), zap.String("user_id", userId))

	result, err := s.db.ExecContext(ctx, queryRelinkAddress, userId, addressId)
	if err != nil {
		return fmt.Errorf("unable to relink address: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrAddressNotFound, addressId)
	}
	return nil
}
