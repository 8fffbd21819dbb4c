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
	"sort"

	"pool-onboarding-go/internal/api"
	"pool-onboarding-go/internal/common"
	"pool-onboarding-go/internal/config"
	"pool-onboarding-go/internal/formance"
	"pool-onboarding-go/internal/pools"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Filter by user email or id (optional)")
	poolFlag := flag.String("pool", "", "Only report this pool (optional)")
	mirrorFlag := flag.Bool("mirror", false, "Also show what the Formance ledger mirror holds")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Status reports never call providers; the local store is the source
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	directory, err := pools.NewFileDirectory(cfg.Pools.File)
	if err != nil {
		zap.L().Fatal("Failed to load pools", zap.Error(err))
	}

	var mirror *formance.Service
	if *mirrorFlag {
		if !cfg.Formance.Enabled() {
			zap.L().Fatal("--mirror requires FORMANCE_STACK_URL, FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET")
		}
		mirror, err = formance.NewService(ctx, cfg.Formance)
		if err != nil {
			zap.L().Fatal("Failed to connect to Formance", zap.Error(err))
		}
		defer mirror.Close()
	}

	svc := api.NewOnboardingService(api.OnboardingServiceParams{
		Store:              dbService,
		Pools:              directory,
		KycProvider:        cfg.Kyc.Provider,
		GlobalRestrictions: cfg.Policy.GlobalRestrictedCountries,
	})

	poolIds := []string{*poolFlag}
	if *poolFlag == "" {
		poolIds, err = directory.ListPoolIds(ctx)
		if err != nil {
			zap.L().Fatal("Failed to list pools", zap.Error(err))
		}
	}

	users, err := common.ResolveUsers(ctx, dbService, *userFlag)
	if err != nil {
		zap.L().Fatal("Failed to resolve users", zap.Error(err))
	}

	common.PrintHeader("ONBOARDING STATUS REPORT")

	for _, user := range users {
		fmt.Printf("\n┌─ User: %s (%s)\n", user.DisplayName(), user.Id)
		for _, poolId := range poolIds {
			status, err := svc.GetOnboardingStatus(ctx, user.Id, poolId)
			if err != nil {
				zap.L().Error("Failed to get status", zap.String("user_id", user.Id), zap.String("pool_id", poolId), zap.Error(err))
				continue
			}
			fmt.Printf("│  %s: kyc %s, accredited %s, restricted %s\n",
				poolId, status.KycStatus, common.Check(status.Accredited), common.Check(status.Restricted))
			fmt.Printf("│     whitelisted: %s\n", common.FormatWhitelist(status.Whitelisted))
			for _, a := range status.PendingAgreements {
				fmt.Printf("│     pending: %s\n", common.FormatAgreement(a))
			}
		}

		if mirror != nil {
			meta, err := mirror.InvestorMetadata(ctx, user.Id)
			if err != nil {
				zap.L().Error("Failed to read mirror", zap.String("user_id", user.Id), zap.Error(err))
				continue
			}
			keys := formance.WhitelistedFromMeta(meta)
			sort.Strings(keys)
			fmt.Printf("│  mirror: kyc %s, %d whitelist entries\n", meta["kyc_status"], len(keys))
			for i, k := range keys {
				fmt.Printf("%s   %s\n", common.BoxPrefix(i == len(keys)-1), k)
			}
		}
	}

	common.PrintFooter(fmt.Sprintf("SUMMARY: %d users across %d pools", len(users), len(poolIds)))
}
