package formance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"pool-onboarding-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"go.uber.org/zap"
)

// MirrorKyc copies the normalized verification state onto the investor account.
func (s *Service) MirrorKyc(ctx context.Context, record models.KycRecord) error {
	account := investorAccount(record.UserId)
	zap.L().Debug("Mirroring KYC state",
		zap.String("account", account),
		zap.String("status", string(record.Status)))

	if err := s.addMetadata(ctx, account, kycMetadata(record)); err != nil {
		return fmt.Errorf("failed to mirror kyc for %s: %w", record.UserId, err)
	}
	return nil
}

// InvestorMetadata returns the mirrored metadata for a user, or nil when the
// investor account has never been written.
func (s *Service) InvestorMetadata(ctx context.Context, userId string) (map[string]string, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: investorAccount(userId),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get investor account: %w", err)
	}
	return resp.V2AccountResponse.Data.Metadata, nil
}

// kycMetadata never carries credentials.
func kycMetadata(record models.KycRecord) map[string]string {
	return map[string]string{
		"entity_type":          "investor",
		"kyc_provider":         record.Provider,
		"kyc_account_id":       record.ProviderAccountId,
		"kyc_status":           string(record.Status),
		"kyc_usa_tax_resident": strconv.FormatBool(record.UsaTaxResident),
		"kyc_accredited":       strconv.FormatBool(record.Accredited),
		"kyc_updated_at":       record.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
