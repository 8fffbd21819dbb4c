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
	"strings"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, user *models.User) error {
	return row.Scan(&user.Id, &user.Email, &user.FullName, &user.EntityName, &user.CountryCode, &user.CreatedAt, &user.UpdatedAt)
}

func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	zap.L().Debug("Querying users")

	rows, err := s.db.QueryContext(ctx, queryGetUsers)
	if err != nil {
		zap.L().Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			zap.L().Error("Failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan user row: %w", err)
		}
		users = append(users, user)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during user row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	zap.L().Debug("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	zap.L().Debug("Querying user by ID", zap.String("user_id", userId))

	var user models.User
	err := scanUser(s.db.QueryRowContext(ctx, queryGetUserById, userId), &user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, userId)
		}
		zap.L().Error("Failed to query user by ID", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by ID: %w", err)
	}

	return &user, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	zap.L().Debug("Querying user by email", zap.String("email", email))

	var user models.User
	err := scanUser(s.db.QueryRowContext(ctx, queryGetUserByEmail, email), &user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, email)
		}
		zap.L().Error("Failed to query user by email", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by email: %w", err)
	}

	return &user, nil
}

func (s *Service) CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error) {
	userId := uuid.New().String()
	zap.L().Info("Creating user", zap.String("id", userId), zap.String("email", params.Email))

	_, err := s.db.ExecContext(ctx, queryInsertUser, userId,
		strings.TrimSpace(params.Email),
		strings.TrimSpace(params.FullName),
		strings.TrimSpace(params.EntityName),
		normalizeCountry(params.CountryCode))
	if err != nil {
		zap.L().Error("Failed to insert user", zap.String("email", params.Email), zap.Error(err))
		return nil, fmt.Errorf("unable to insert user: %w", err)
	}

	return s.GetUserById(ctx, userId)
}

// FillUserProfile only writes columns that are still blank, so confirmed values
// are never replaced or erased by later syncs.
func (s *Service) FillUserProfile(ctx context.Context, userId string, profile store.UserProfile) (*models.User, error) {
	result, err := s.db.ExecContext(ctx, queryFillUserProfile,
		strings.TrimSpace(profile.FullName),
		strings.TrimSpace(profile.EntityName),
		normalizeCountry(profile.CountryCode),
		userId)
	if err != nil {
		zap.L().Error("Failed to fill user profile", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to fill user profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, userId)
	}

	if email := strings.TrimSpace(profile.Email); email != "" {
		result, err = s.db.ExecContext(ctx, queryFillUserEmail, email, userId, email, userId)
		if err != nil {
			zap.L().Error("Failed to fill user email", zap.String("user_id", userId), zap.Error(err))
			return nil, fmt.Errorf("unable to fill user email: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			zap.L().Debug("User email not filled", zap.String("user_id", userId), zap.String("email", email))
		}
	}

	return s.GetUserById(ctx, userId)
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
