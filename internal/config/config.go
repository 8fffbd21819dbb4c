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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pool-onboarding-go/internal/models"
)

func Load() (*models.Config, error) {
	kycInterval, err := getEnvDuration("RECONCILER_KYC_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	agreementInterval, err := getEnvDuration("RECONCILER_AGREEMENT_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	kycTimeout, err := getEnvDuration("KYC_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	esignTimeout, err := getEnvDuration("ESIGN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	submitTimeout, err := getEnvDuration("CHAIN_SUBMIT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	notifyTimeout, err := getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "onboarding.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Reconciler: models.ReconcilerConfig{
			KycInterval:       kycInterval,
			AgreementInterval: agreementInterval,
			Enabled:           getEnvBool("RECONCILER_ENABLED", true),
		},
		Kyc: models.KycConfig{
			Provider:    getEnvString("KYC_PROVIDER", "securitize"),
			BaseURL:     getEnvString("KYC_BASE_URL", ""),
			IssuerId:    getEnvString("KYC_ISSUER_ID", ""),
			Timeout:     kycTimeout,
			MaxAttempts: getEnvInt("KYC_MAX_ATTEMPTS", 3),
		},
		ESign: models.ESignConfig{
			Provider:      getEnvString("ESIGN_PROVIDER", "docusign"),
			BaseURL:       getEnvString("ESIGN_BASE_URL", ""),
			AccountId:     getEnvString("ESIGN_ACCOUNT_ID", ""),
			AccessToken:   getEnvString("ESIGN_ACCESS_TOKEN", ""),
			WebhookSecret: getEnvString("ESIGN_WEBHOOK_SECRET", ""),
			Timeout:       esignTimeout,
			MaxAttempts:   getEnvInt("ESIGN_MAX_ATTEMPTS", 3),
		},
		Chain: models.ChainConfig{
			RPCURL:        getEnvString("CHAIN_RPC_URL", ""),
			SignerKey:     getEnvString("CHAIN_SIGNER_KEY", ""),
			GasLimit:      uint64(getEnvInt("CHAIN_GAS_LIMIT", 200000)),
			SubmitTimeout: submitTimeout,
		},
		Pools: models.PoolsConfig{
			File: getEnvString("POOLS_FILE", "pools.yaml"),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":8080"),
			ShutdownTimeout: shutdownTimeout,
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "pool-onboarding"),
		},
		Notify: models.NotifyConfig{
			URL:     getEnvString("NOTIFY_URL", ""),
			Timeout: notifyTimeout,
		},
		Policy: models.PolicyConfig{
			GlobalRestrictedCountries: getEnvList("GLOBAL_RESTRICTED_COUNTRIES", nil),
			NotifyEveryVoid:           getEnvBool("NOTIFY_EVERY_VOID", false),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks and upper-casing entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
