package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Reconciler ReconcilerConfig
	Kyc        KycConfig
	ESign      ESignConfig
	Chain      ChainConfig
	Pools      PoolsConfig
	Server     ServerConfig
	Formance   FormanceConfig
	Notify     NotifyConfig
	Policy     PolicyConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ReconcilerConfig holds drift sweep settings
type ReconcilerConfig struct {
	KycInterval       time.Duration
	AgreementInterval time.Duration
	Enabled           bool
}

// KycConfig holds identity provider settings
type KycConfig struct {
	Provider    string
	BaseURL     string
	IssuerId    string
	Timeout     time.Duration
	MaxAttempts int
}

// ESignConfig holds e-signature provider settings
type ESignConfig struct {
	Provider      string
	BaseURL       string
	AccountId     string
	AccessToken   string
	WebhookSecret string
	Timeout       time.Duration
	MaxAttempts   int
}

// ChainConfig holds membership registry RPC settings
type ChainConfig struct {
	RPCURL        string
	SignerKey     string
	GasLimit      uint64
	SubmitTimeout time.Duration
}

// PoolsConfig points at the pool profile directory
type PoolsConfig struct {
	File string
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// FormanceConfig holds optional ledger mirror settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// Enabled reports whether the mirror is configured.
func (c FormanceConfig) Enabled() bool {
	return c.StackURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// NotifyConfig holds the notification endpoint
type NotifyConfig struct {
	URL     string
	Timeout time.Duration
}

// PolicyConfig holds platform-wide onboarding policy
type PolicyConfig struct {
	GlobalRestrictedCountries []string
	NotifyEveryVoid           bool
}
