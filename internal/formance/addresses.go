package formance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pool-onboarding-go/internal/models"

	"go.uber.org/zap"
)

// MirrorWhitelist records a confirmed whitelisting under a per-address key so
// the investor account lists every (pool, tranche, address) it was admitted to.
func (s *Service) MirrorWhitelist(ctx context.Context, userId string, address models.Address, investment models.Investment) error {
	account := investorAccount(userId)
	zap.L().Debug("Mirroring whitelist",
		zap.String("account", account),
		zap.String("address", address.Address),
		zap.String("pool_id", investment.PoolId),
		zap.String("tranche", investment.Tranche))

	if err := s.addMetadata(ctx, account, whitelistMetadata(address, investment)); err != nil {
		return fmt.Errorf("failed to mirror whitelist for %s: %w", address.Address, err)
	}
	return nil
}

// whitelistMetaKey returns the metadata key for one whitelisted address.
func whitelistMetaKey(poolId, tranche, address string) string {
	return "whitelist_" + poolId + "_" + tranche + "_" + strings.ToLower(address)
}

func whitelistMetadata(address models.Address, investment models.Investment) map[string]string {
	return map[string]string{
		"entity_type": "investor",
		whitelistMetaKey(investment.PoolId, investment.Tranche, address.Address): investment.AgreementId,
		"last_whitelisted_at": investment.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// WhitelistedFromMeta extracts the whitelist keys from mirrored metadata.
func WhitelistedFromMeta(meta map[string]string) []string {
	var keys []string
	for k := range meta {
		if strings.HasPrefix(k, "whitelist_") {
			keys = append(keys, strings.TrimPrefix(k, "whitelist_"))
		}
	}
	return keys
}
