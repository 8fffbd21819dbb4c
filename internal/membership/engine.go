package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pool-onboarding-go/internal/chain"
	"pool-onboarding-go/internal/eligibility"
	"pool-onboarding-go/internal/metrics"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/notify"
	"pool-onboarding-go/internal/pools"
	"pool-onboarding-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// membershipTerm is how long a registry membership stays valid
const membershipTerm = 100

var ErrNoRegistry = errors.New("no membership registry for tranche")

// Submitter is the serialized write path to the registry
type Submitter interface {
	Submit(ctx context.Context, registryAddress, member string, validUntil time.Time) (*chain.TxHandle, error)
}

// Engine whitelists the addresses of eligible investors on the tranche registry.
type Engine struct {
	store              store.OnboardingStore
	pools              pools.Directory
	registry           chain.Registry
	signer             Submitter
	mirror             store.LedgerMirror
	notifier           *notify.Dispatcher
	metrics            *metrics.Metrics
	kycProvider        string
	globalRestrictions []string
	group              singleflight.Group
	now                func() time.Time
}

type EngineParams struct {
	Store              store.OnboardingStore
	Pools              pools.Directory
	Registry           chain.Registry
	Signer             Submitter
	Mirror             store.LedgerMirror
	Notifier           *notify.Dispatcher
	Metrics            *metrics.Metrics
	KycProvider        string
	GlobalRestrictions []string
}

func NewEngine(p EngineParams) *Engine {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NewDispatcher(nil, p.Metrics)
	}
	return &Engine{
		store:              p.Store,
		pools:              p.Pools,
		registry:           p.Registry,
		signer:             p.Signer,
		mirror:             p.Mirror,
		notifier:           notifier,
		metrics:            p.Metrics,
		kycProvider:        p.KycProvider,
		globalRestrictions: p.GlobalRestrictions,
		now:                time.Now,
	}
}

// Propagate re-checks eligibility and, when eligible, whitelists every address
// of the user one after another. Per-address failures are reported in the
// result; an error means the run could not start.
func (e *Engine) Propagate(ctx context.Context, userId, poolId, tranche string) (*models.PropagationResult, error) {
	key := userId + "|" + poolId + "|" + tranche
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		return e.propagate(ctx, userId, poolId, tranche)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.PropagationResult), nil
}

func (e *Engine) propagate(ctx context.Context, userId, poolId, tranche string) (*models.PropagationResult, error) {
	result := &models.PropagationResult{UserId: userId, PoolId: poolId, Tranche: tranche}

	user, err := e.store.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	pool, err := e.pools.GetPool(ctx, poolId)
	if err != nil {
		return nil, err
	}
	kyc, err := e.store.GetKycRecord(ctx, userId, e.kycProvider)
	if err != nil && !errors.Is(err, store.ErrKycNotFound) {
		return nil, err
	}
	agreements, err := e.store.ListAgreementsForPool(ctx, userId, poolId)
	if err != nil {
		return nil, err
	}

	decision := eligibility.Evaluate(eligibility.Input{
		Kyc:                kyc,
		Agreements:         agreements,
		UserCountry:        user.CountryCode,
		PoolRestrictions:   pool.RestrictedCountryCodes,
		GlobalRestrictions: e.globalRestrictions,
		Tranche:            tranche,
	})
	result.Eligible = decision.Eligible
	result.Reason = string(decision.Reason)
	if !decision.Eligible {
		zap.L().Debug("Not eligible, skipping propagation",
			zap.String("user_id", userId),
			zap.String("pool_id", poolId),
			zap.String("tranche", tranche),
			zap.String("reason", result.Reason))
		return result, nil
	}

	registryAddress := pool.RegistryAddressByTranche[tranche]
	if registryAddress == "" {
		return nil, fmt.Errorf("%w: pool %s tranche %s", ErrNoRegistry, poolId, tranche)
	}

	addresses, err := e.store.GetAllUserAddresses(ctx, userId)
	if err != nil {
		return nil, err
	}

	validUntil := e.now().AddDate(membershipTerm, 0, 0)
	for _, addr := range addresses {
		if pool.Network != "" && !strings.EqualFold(addr.Network, pool.Network) {
			zap.L().Warn("Propagating to address on a different network than the pool",
				zap.String("address", addr.Address),
				zap.String("address_network", addr.Network),
				zap.String("pool_network", pool.Network))
		}

		outcome, err := e.propagateAddress(ctx, user, pool, tranche, registryAddress, addr, decision.AgreementId, validUntil)
		e.metrics.IncMembershipSubmission(outcome)
		switch {
		case err != nil:
			zap.L().Warn("Failed to whitelist address",
				zap.String("user_id", userId),
				zap.String("address", addr.Address),
				zap.String("outcome", outcome),
				zap.Error(err))
			result.Failed = append(result.Failed, addr.Address)
		case outcome == "skipped":
			result.Skipped = append(result.Skipped, addr.Address)
		default:
			result.Whitelisted = append(result.Whitelisted, addr.Address)
		}
	}

	zap.L().Info("Propagation finished",
		zap.String("user_id", userId),
		zap.String("pool_id", poolId),
		zap.String("tranche", tranche),
		zap.Int("whitelisted", len(result.Whitelisted)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

// propagateAddress returns the metrics outcome for one address.
func (e *Engine) propagateAddress(ctx context.Context, user *models.User, pool *models.Pool, tranche, registryAddress string, addr models.Address, agreementId string, validUntil time.Time) (string, error) {
	inv, err := e.store.GetInvestment(ctx, addr.Id, pool.Id, tranche)
	if err != nil {
		return "store_failed", err
	}
	if inv != nil && inv.IsWhitelisted {
		return "skipped", nil
	}

	member, err := e.registry.IsMember(ctx, registryAddress, addr.Address)
	if err != nil {
		return "read_failed", err
	}

	if !member {
		tx, err := e.signer.Submit(ctx, registryAddress, addr.Address, validUntil)
		if err != nil {
			return "submit_failed", err
		}
		if err := e.registry.WaitMined(ctx, tx); err != nil {
			return "wait_failed", err
		}

		member, err = e.registry.IsMember(ctx, registryAddress, addr.Address)
		if err != nil {
			return "read_failed", err
		}
		if !member {
			return "not_member", fmt.Errorf("registry does not report %s as member after %s", addr.Address, tx.Hash())
		}
	}

	inv, err = e.store.MarkWhitelisted(ctx, addr.Id, pool.Id, tranche, agreementId)
	if err != nil {
		return "store_failed", err
	}

	if e.mirror != nil {
		if err := e.mirror.MirrorWhitelist(ctx, user.Id, addr, *inv); err != nil {
			zap.L().Warn("Failed to mirror whitelist", zap.String("address", addr.Address), zap.Error(err))
		}
	}

	e.notifier.Send(ctx, notify.Notification{
		Kind:        models.NotifyWhitelisted,
		UserId:      user.Id,
		Email:       user.Email,
		FullName:    user.FullName,
		PoolId:      pool.Id,
		PoolName:    pool.Name,
		Tranche:     tranche,
		AgreementId: agreementId,
		Address:     addr.Address,
	})
	return "confirmed", nil
}
