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
	"flag"
	"fmt"

	"pool-onboarding-go/internal/common"
	"pool-onboarding-go/internal/config"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	"go.uber.org/zap"
)

type reportStats struct {
	totalUsers         int
	totalAddresses     int
	usersWithAddresses int
}

func printUserHeader(user common.UserInfo, addressCount int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.DisplayName(), user.CountryCode)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Addresses: %d\n", addressCount)
}

func printAddresses(addresses []models.Address) {
	for i, addr := range addresses {
		network := fmt.Sprintf("%s-%s", addr.Blockchain, addr.Network)
		fmt.Printf("%s %-30s → %s\n", common.BoxPrefix(i == len(addresses)-1), network, addr.Address)
	}
}

func processUser(ctx context.Context, user common.UserInfo, dbService store.OnboardingStore) (int, error) {
	addresses, err := dbService.GetAllUserAddresses(ctx, user.Id)
	if err != nil {
		return 0, fmt.Errorf("failed to get addresses: %w", err)
	}

	if len(addresses) == 0 {
		return 0, nil
	}

	printUserHeader(user, len(addresses))
	printAddresses(addresses)

	return len(addresses), nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Filter by user email or id (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	users, err := common.ResolveUsers(ctx, dbService, *userFlag)
	if err != nil {
		zap.L().Fatal("Failed to resolve users", zap.Error(err))
	}

	common.PrintHeader("LINKED ADDRESSES REPORT")

	stats := reportStats{}
	for _, user := range users {
		stats.totalUsers++
		count, err := processUser(ctx, user, dbService)
		if err != nil {
			zap.L().Error("Failed to process user", zap.String("user_id", user.Id), zap.Error(err))
			continue
		}
		if count > 0 {
			stats.usersWithAddresses++
			stats.totalAddresses += count
		}
	}

	common.PrintFooter(fmt.Sprintf("SUMMARY: %d users with addresses (%d total addresses across %d users queried)",
		stats.usersWithAddresses, stats.totalAddresses, stats.totalUsers))
}
