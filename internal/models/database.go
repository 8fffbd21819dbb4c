package models

import "time"

// User represents an investor. Profile fields are only ever filled, never blanked.
type User struct {
	Id          string    `db:"id"`
	Email       string    `db:"email"`
	FullName    string    `db:"full_name"`
	EntityName  string    `db:"entity_name"`
	CountryCode string    `db:"country_code"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Address represents a wallet address linked to a user
type Address struct {
	Id         string    `db:"id"`
	UserId     string    `db:"user_id"`
	Blockchain string    `db:"blockchain"`
	Network    string    `db:"network"`
	Address    string    `db:"address"`
	CreatedAt  time.Time `db:"created_at"`
}

// Credential is the refreshable token digest issued by the identity provider
type Credential struct {
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// Expired reports whether the access token is past its expiry at the given time.
// A zero expiry is treated as unknown and never expired.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// KycRecord holds the normalized verification state for one provider account
type KycRecord struct {
	Id                string     `db:"id"`
	UserId            string     `db:"user_id"`
	Provider          string     `db:"provider"`
	ProviderAccountId string     `db:"provider_account_id"`
	Status            KycStatus  `db:"status"`
	UsaTaxResident    bool       `db:"usa_tax_resident"`
	Accredited        bool       `db:"accredited"`
	Credential        Credential `db:"-"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// Agreement is a subscription agreement envelope for a (user, pool, tranche, template)
type Agreement struct {
	Id                 string     `db:"id"`
	UserId             string     `db:"user_id"`
	PoolId             string     `db:"pool_id"`
	Tranche            string     `db:"tranche"`
	Name               string     `db:"name"`
	Provider           string     `db:"provider"`
	ProviderTemplateId string     `db:"provider_template_id"`
	ProviderEnvelopeId string     `db:"provider_envelope_id"`
	SignedAt           *time.Time `db:"signed_at"`
	CounterSignedAt    *time.Time `db:"counter_signed_at"`
	DeclinedAt         *time.Time `db:"declined_at"`
	VoidedAt           *time.Time `db:"voided_at"`
	CreatedAt          time.Time  `db:"created_at"`
}

// Investment is the whitelist record for one address in one pool tranche
type Investment struct {
	Id            string    `db:"id"`
	AddressId     string    `db:"address_id"`
	PoolId        string    `db:"pool_id"`
	Tranche       string    `db:"tranche"`
	IsWhitelisted bool      `db:"is_whitelisted"`
	AgreementId   string    `db:"agreement_id"`
	UpdatedAt     time.Time `db:"updated_at"`
}
