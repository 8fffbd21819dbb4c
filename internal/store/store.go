package store

import (
	"context"
	"errors"
	"time"

	"pool-onboarding-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrAddressNotFound   = errors.New("address not found")
	ErrKycNotFound       = errors.New("kyc record not found")
	ErrAgreementNotFound = errors.New("agreement not found")
	ErrPoolNotFound      = errors.New("pool not found")
	ErrInvalidInput      = errors.New("invalid input")
)

// CreateUserParams contains the parameters for creating a user. Any field may be blank.
type CreateUserParams struct {
	Email       string
	FullName    string
	EntityName  string
	CountryCode string
}

// UserProfile carries verified profile data. Blank fields are ignored and
// populated fields only fill columns that are still blank.
type UserProfile struct {
	Email       string
	FullName    string
	EntityName  string
	CountryCode string
}

// StoreAddressParams contains the parameters for linking a wallet address.
type StoreAddressParams struct {
	UserId     string
	Blockchain string
	Network    string
	Address    string
}

// UpsertKycParams captures one provider sync result.
type UpsertKycParams struct {
	UserId            string
	Provider          string
	ProviderAccountId string
	Status            models.KycStatus
	UsaTaxResident    bool
	Accredited        bool
	Credential        models.Credential
}

// AgreementKey is the dedup key of an active agreement.
type AgreementKey struct {
	UserId             string
	PoolId             string
	Tranche            string
	ProviderTemplateId string
}

// InsertAgreementParams creates an agreement row in the Created state.
type InsertAgreementParams struct {
	AgreementKey
	Name     string
	Provider string
}

// OnboardingStore defines the contract that every backend must satisfy.
type OnboardingStore interface {
	// --- Users ---
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	FillUserProfile(ctx context.Context, userId string, profile UserProfile) (*models.User, error)

	// --- Addresses ---
	StoreAddress(ctx context.Context, params StoreAddressParams) (*models.Address, error)
	GetAllUserAddresses(ctx context.Context, userId string) ([]models.Address, error)
	FindUserByAddress(ctx context.Context, address string) (*models.User, *models.Address, error)
	RelinkAddress(ctx context.Context, addressId, userId string) error

	// --- KYC ---
	GetKycRecord(ctx context.Context, userId, provider string) (*models.KycRecord, error)
	UpsertKycRecord(ctx context.Context, params UpsertKycParams) (*models.KycRecord, error)
	UpdateKycCredential(ctx context.Context, recordId string, credential models.Credential) error
	ListKycForReconciliation(ctx context.Context) ([]models.KycRecord, error)

	// --- Agreements ---
	InsertAgreementOrGet(ctx context.Context, params InsertAgreementParams) (*models.Agreement, bool, error)
	SetAgreementEnvelope(ctx context.Context, agreementId, envelopeId string) (bool, error)
	GetAgreementById(ctx context.Context, agreementId string) (*models.Agreement, error)
	FindActiveAgreement(ctx context.Context, key AgreementKey) (*models.Agreement, error)
	FindAgreementByEnvelope(ctx context.Context, provider, envelopeId string) (*models.Agreement, error)
	ListAgreementsForPool(ctx context.Context, userId, poolId string) ([]models.Agreement, error)
	ListAgreementsForUser(ctx context.Context, userId string) ([]models.Agreement, error)
	ListAgreementsAwaitingCounterSignature(ctx context.Context) ([]models.Agreement, error)
	ListCounterSignedAgreements(ctx context.Context) ([]models.Agreement, error)
	MarkAgreementSigned(ctx context.Context, agreementId string, at time.Time) (bool, error)
	MarkAgreementCounterSigned(ctx context.Context, agreementId string, at time.Time) (bool, error)
	MarkAgreementDeclined(ctx context.Context, agreementId string, at time.Time) (bool, error)
	MarkAgreementVoided(ctx context.Context, agreementId string, at time.Time) (bool, error)

	// --- Investments ---
	GetInvestment(ctx context.Context, addressId, poolId, tranche string) (*models.Investment, error)
	MarkWhitelisted(ctx context.Context, addressId, poolId, tranche, agreementId string) (*models.Investment, error)
	ListUserInvestments(ctx context.Context, userId string) ([]models.Investment, error)

	// --- Lifecycle ---
	Close()
}

// LedgerMirror receives best-effort copies of confirmed state for external audit.
type LedgerMirror interface {
	MirrorKyc(ctx context.Context, record models.KycRecord) error
	MirrorWhitelist(ctx context.Context, userId string, address models.Address, investment models.Investment) error
}
