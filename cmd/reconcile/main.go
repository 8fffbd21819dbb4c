package main

import (
	"context"
	"flag"
	"fmt"

	"pool-onboarding-go/internal/common"
	"pool-onboarding-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	kycFlag := flag.Bool("kyc", true, "Run the KYC drift sweep")
	agreementsFlag := flag.Bool("agreements", true, "Run the agreement drift sweep")
	userFlag := flag.String("user", "", "Propagate a single user instead of sweeping (requires --pool and --tranche)")
	poolFlag := flag.String("pool", "", "Pool id for --user")
	trancheFlag := flag.String("tranche", "", "Tranche for --user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *userFlag != "" {
		if *poolFlag == "" || *trancheFlag == "" {
			zap.L().Fatal("--pool and --tranche are required with --user")
		}
		result, err := services.Membership.Propagate(ctx, *userFlag, *poolFlag, *trancheFlag)
		if err != nil {
			zap.L().Fatal("Propagation failed", zap.Error(err))
		}
		common.PrintHeader("PROPAGATION")
		fmt.Println(common.FormatPropagation(result))
		for i, addr := range result.Failed {
			fmt.Printf("%s failed: %s\n", common.BoxPrefix(i == len(result.Failed)-1), addr)
		}
		common.PrintFooter("Done")
		return
	}

	common.PrintHeader("RECONCILIATION")
	if *kycFlag {
		report := services.Reconciler.SweepKyc(ctx)
		fmt.Printf("KYC sweep:        %d candidates, %d failed\n", report.Candidates, report.Failed)
	}
	if *agreementsFlag {
		report := services.Reconciler.SweepAgreements(ctx)
		fmt.Printf("Agreement sweep:  %d candidates, %d failed\n", report.Candidates, report.Failed)
	}
	common.PrintFooter("Reconciliation finished")
}
