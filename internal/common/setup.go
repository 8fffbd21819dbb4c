package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"pool-onboarding-go/internal/agreements"
	"pool-onboarding-go/internal/api"
	"pool-onboarding-go/internal/chain"
	"pool-onboarding-go/internal/database"
	"pool-onboarding-go/internal/esign"
	"pool-onboarding-go/internal/formance"
	"pool-onboarding-go/internal/identity"
	"pool-onboarding-go/internal/kyc"
	"pool-onboarding-go/internal/listener"
	"pool-onboarding-go/internal/membership"
	"pool-onboarding-go/internal/metrics"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/notify"
	"pool-onboarding-go/internal/pools"
	"pool-onboarding-go/internal/providers"
	"pool-onboarding-go/internal/store"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services holds the fully wired onboarding engine
type Services struct {
	DbService  *database.Service
	Pools      *pools.FileDirectory
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Formance   *formance.Service
	Ledger     *identity.Ledger
	Tracker    *kyc.Tracker
	Agreements *agreements.Manager
	Chain      *chain.EthRegistry
	Signer     *chain.Signer
	Membership *membership.Engine
	Onboarding *api.OnboardingService
	Reconciler *listener.Reconciler
	Verifier   *esign.Verifier
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires every component from cfg. The returned Services
// own a running signer and must be closed.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	svc := &Services{DbService: dbService}

	if err := svc.wire(ctx, cfg); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Services) wire(ctx context.Context, cfg *models.Config) error {
	directory, err := pools.NewFileDirectory(cfg.Pools.File)
	if err != nil {
		return err
	}
	s.Pools = directory

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.Metrics = metrics.New(s.Registry)

	// Keep the interface nil when the mirror is disabled
	var mirror store.LedgerMirror
	if cfg.Formance.Enabled() {
		s.Formance, err = formance.NewService(ctx, cfg.Formance)
		if err != nil {
			return err
		}
		mirror = s.Formance
	} else {
		zap.L().Info("Formance mirror disabled")
	}

	kycHTTP, err := providers.NewHTTPClient(cfg.Kyc.Timeout)
	if err != nil {
		return err
	}
	esignHTTP, err := providers.NewHTTPClient(cfg.ESign.Timeout)
	if err != nil {
		return err
	}

	zap.L().Info("Connecting to membership registry RPC")
	s.Chain, err = chain.DialRegistry(ctx, cfg.Chain)
	if err != nil {
		return err
	}
	zap.L().Info("Using registry signer", zap.String("from", s.Chain.From()))
	s.Signer = chain.NewSigner(s.Chain)
	s.Signer.Start()

	sink, err := notificationSink(cfg.Notify)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(sink, s.Metrics)

	s.Membership = membership.NewEngine(membership.EngineParams{
		Store:              s.DbService,
		Pools:              s.Pools,
		Registry:           s.Chain,
		Signer:             s.Signer,
		Mirror:             mirror,
		Notifier:           dispatcher,
		Metrics:            s.Metrics,
		KycProvider:        cfg.Kyc.Provider,
		GlobalRestrictions: cfg.Policy.GlobalRestrictedCountries,
	})

	s.Ledger = identity.NewLedger(s.DbService)
	s.Tracker = kyc.NewTracker(kyc.TrackerParams{
		Store:        s.DbService,
		Provider:     kyc.NewClient(cfg.Kyc, kycHTTP),
		ProviderName: cfg.Kyc.Provider,
		Ledger:       s.Ledger,
		Propagator:   s.Membership,
		Mirror:       mirror,
		Metrics:      s.Metrics,
	})
	s.Agreements = agreements.NewManager(agreements.ManagerParams{
		Store:           s.DbService,
		Provider:        esign.NewClient(cfg.ESign, esignHTTP),
		ProviderName:    cfg.ESign.Provider,
		Pools:           s.Pools,
		Propagator:      s.Membership,
		Notifier:        dispatcher,
		Metrics:         s.Metrics,
		NotifyEveryVoid: cfg.Policy.NotifyEveryVoid,
	})

	s.Onboarding = api.NewOnboardingService(api.OnboardingServiceParams{
		Store:              s.DbService,
		Pools:              s.Pools,
		Ledger:             s.Ledger,
		Kyc:                s.Tracker,
		Agreements:         s.Agreements,
		Metrics:            s.Metrics,
		GlobalRestrictions: cfg.Policy.GlobalRestrictedCountries,
	})

	s.Reconciler = listener.NewReconciler(listener.ReconcilerConfig{
		Store:             s.DbService,
		Kyc:               s.Tracker,
		Agreements:        s.Agreements,
		Propagator:        s.Membership,
		Metrics:           s.Metrics,
		KycInterval:       cfg.Reconciler.KycInterval,
		AgreementInterval: cfg.Reconciler.AgreementInterval,
	})

	if cfg.ESign.WebhookSecret == "" {
		zap.L().Warn("ESIGN_WEBHOOK_SECRET not set, all webhooks will be rejected")
	} else {
		s.Verifier, err = esign.NewVerifier(cfg.ESign.WebhookSecret)
		if err != nil {
			return err
		}
	}
	return nil
}

func notificationSink(cfg models.NotifyConfig) (notify.Sink, error) {
	if cfg.URL == "" {
		zap.L().Info("NOTIFY_URL not set, notifications are logged only")
		return notify.LogSink{}, nil
	}
	httpClient, err := providers.NewHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	sink, err := notify.NewHTTPSink(cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("unable to create notification sink: %w", err)
	}
	return sink, nil
}

// InitializeDatabaseOnly initializes just the database service without providers or chain access
// Useful for read-only operations like status reports
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (s *Services) Close() {
	if s.Signer != nil {
		s.Signer.Stop()
	}
	if s.Chain != nil {
		s.Chain.Close()
	}
	if s.Formance != nil {
		s.Formance.Close()
	}
	if s.DbService != nil {
		s.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
