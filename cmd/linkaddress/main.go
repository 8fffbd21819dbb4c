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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"regexp"
	"strings"

	"pool-onboarding-go/internal/common"
	"pool-onboarding-go/internal/config"
	"pool-onboarding-go/internal/identity"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateAddress(blockchain, address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if strings.EqualFold(blockchain, "ethereum") && !ethcommon.IsHexAddress(address) {
		return fmt.Errorf("invalid ethereum address: %s", address)
	}
	return nil
}

// resolveUser finds the target user by id or email, creating one by email when missing.
func resolveUser(ctx context.Context, db store.OnboardingStore, userId, email, name, country string) (*models.User, bool, error) {
	if userId != "" {
		user, err := db.GetUserById(ctx, userId)
		return user, false, err
	}

	user, err := db.GetUserByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, false, err
	}

	user, err = db.CreateUser(ctx, store.CreateUserParams{
		Email:       email,
		FullName:    name,
		CountryCode: country,
	})
	return user, true, err
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Existing user id (optional, otherwise --email is used)")
	emailFlag := flag.String("email", "", "User email; a user is created when none exists")
	nameFlag := flag.String("name", "", "Full name for a newly created user (optional)")
	countryFlag := flag.String("country", "", "ISO country code for a newly created user (optional)")
	addressFlag := flag.String("address", "", "Wallet address to link (required)")
	blockchainFlag := flag.String("blockchain", "ethereum", "Blockchain of the address")
	networkFlag := flag.String("network", "mainnet", "Network of the address")
	flag.Parse()

	if *userFlag == "" {
		if err := validateEmail(*emailFlag); err != nil {
			zap.L().Fatal("Either --user or a valid --email is required", zap.Error(err))
		}
	}
	if err := validateAddress(*blockchainFlag, *addressFlag); err != nil {
		zap.L().Fatal("Invalid address", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	user, created, err := resolveUser(ctx, dbService, *userFlag, *emailFlag, *nameFlag, *countryFlag)
	if err != nil {
		zap.L().Fatal("Failed to resolve user", zap.Error(err))
	}

	ledger := identity.NewLedger(dbService)
	addr, err := ledger.LinkAddress(ctx, user.Id, *blockchainFlag, *networkFlag, *addressFlag)
	if err != nil {
		zap.L().Fatal("Failed to link address", zap.Error(err))
	}

	info := common.UserInfo{Id: user.Id, FullName: user.FullName, Email: user.Email, CountryCode: user.CountryCode}
	common.PrintHeader("ADDRESS LINKED")
	fmt.Printf("User:     %s (%s)\n", info.DisplayName(), user.Id)
	fmt.Printf("Created:  %s\n", common.Check(created))
	fmt.Printf("Address:  %s-%s %s\n", addr.Blockchain, addr.Network, addr.Address)
	common.PrintFooter("Done")

	zap.L().Info("Address linked",
		zap.String("user_id", user.Id),
		zap.String("address", addr.Address),
		zap.Bool("user_created", created))
}
