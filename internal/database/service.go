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
	"fmt"
	"time"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.OnboardingStore.
var _ store.OnboardingStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// NewServiceFromDB wraps an open handle and creates the schema. Used by tests and
// tools that manage the connection themselves.
func NewServiceFromDB(ctx context.Context, db *sql.DB) (*Service, error) {
	service := &Service{db: db}
	if err := service.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := `
	-- Users are created blank on first address registration and filled from KYC
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		entity_name TEXT NOT NULL DEFAULT '',
		country_code TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Email is unique only once known
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email != '';

	CREATE TABLE IF NOT EXISTS addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		blockchain TEXT NOT NULL,
		network TEXT NOT NULL,
		address TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_addresses_chain_address ON addresses(blockchain, network, LOWER(address));
	CREATE INDEX IF NOT EXISTS idx_addresses_lower_address ON addresses(LOWER(address));
	CREATE INDEX IF NOT EXISTS idx_addresses_user ON addresses(user_id);

	CREATE TABLE IF NOT EXISTS kyc_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		provider_account_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'none',
		usa_tax_resident BOOLEAN NOT NULL DEFAULT 0,
		accredited BOOLEAN NOT NULL DEFAULT 0,
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		token_expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, provider, provider_account_id)
	);

	CREATE INDEX IF NOT EXISTS idx_kyc_status ON kyc_records(status);

	CREATE TABLE IF NOT EXISTS agreements (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		pool_id TEXT NOT NULL,
		tranche TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		provider_template_id TEXT NOT NULL,
		provider_envelope_id TEXT NOT NULL DEFAULT '',
		signed_at TIMESTAMP,
		counter_signed_at TIMESTAMP,
		declined_at TIMESTAMP,
		voided_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Declined and voided agreements do not block a fresh envelope for the same requirement
	CREATE UNIQUE INDEX IF NOT EXISTS idx_agreements_active_key
		ON agreements(user_id, pool_id, tranche, provider_template_id)
		WHERE declined_at IS NULL AND voided_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_agreements_envelope ON agreements(provider, provider_envelope_id);
	CREATE INDEX IF NOT EXISTS idx_agreements_user_pool ON agreements(user_id, pool_id);

	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		address_id TEXT NOT NULL REFERENCES addresses(id) ON DELETE CASCADE,
		pool_id TEXT NOT NULL,
		tranche TEXT NOT NULL,
		is_whitelisted BOOLEAN NOT NULL DEFAULT 0,
		agreement_id TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(address_id, pool_id, tranche)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// closeRows is shared by every multi-row query
func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
