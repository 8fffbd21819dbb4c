package models

// KycStatus is the normalized identity-verification state
type KycStatus string

const (
	KycStatusNone            KycStatus = "none"
	KycStatusProcessing      KycStatus = "processing"
	KycStatusUpdatesRequired KycStatus = "updates-required"
	KycStatusVerified        KycStatus = "verified"
	KycStatusRejected        KycStatus = "rejected"
	KycStatusExpired         KycStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s KycStatus) Valid() bool {
	switch s {
	case KycStatusNone, KycStatusProcessing, KycStatusUpdatesRequired,
		KycStatusVerified, KycStatusRejected, KycStatusExpired:
		return true
	}
	return false
}

// AgreementState is derived from agreement timestamps and never stored
type AgreementState string

const (
	AgreementCreated       AgreementState = "created"
	AgreementSent          AgreementState = "sent"
	AgreementSigned        AgreementState = "signed"
	AgreementCounterSigned AgreementState = "counter-signed"
	AgreementDeclined      AgreementState = "declined"
	AgreementVoided        AgreementState = "voided"
)

// State derives the lifecycle state. Voided and declined win over signatures
// because both can happen from any pre-terminal state.
func (a Agreement) State() AgreementState {
	switch {
	case a.VoidedAt != nil:
		return AgreementVoided
	case a.DeclinedAt != nil:
		return AgreementDeclined
	case a.CounterSignedAt != nil:
		return AgreementCounterSigned
	case a.SignedAt != nil:
		return AgreementSigned
	case a.ProviderEnvelopeId != "":
		return AgreementSent
	default:
		return AgreementCreated
	}
}

// Active reports whether the agreement still counts towards the dedup key.
func (a Agreement) Active() bool {
	return a.DeclinedAt == nil && a.VoidedAt == nil
}

// EnvelopeEvent is the closed set of e-signature envelope events
type EnvelopeEvent string

const (
	EnvelopeSent      EnvelopeEvent = "sent"
	EnvelopeDelivered EnvelopeEvent = "delivered"
	EnvelopeCompleted EnvelopeEvent = "completed"
	EnvelopeDeclined  EnvelopeEvent = "declined"
	EnvelopeVoided    EnvelopeEvent = "voided"
)

// SignerRole identifies which party a signer outcome belongs to
type SignerRole string

const (
	SignerInvestor SignerRole = "investor"
	SignerIssuer   SignerRole = "issuer"
)

// SignerOutcome is the status of one signer on an envelope
type SignerOutcome struct {
	Role   SignerRole `json:"role"`
	Status string     `json:"status"`
}

// Completed reports whether the signer finished signing.
func (s SignerOutcome) Completed() bool {
	return s.Status == "completed"
}

// NotificationKind names an investor-facing notification
type NotificationKind string

const (
	NotifyAgreementSigned   NotificationKind = "agreement-signed"
	NotifyAgreementDeclined NotificationKind = "agreement-declined"
	NotifyAgreementVoided   NotificationKind = "agreement-voided"
	NotifyWhitelisted       NotificationKind = "whitelisted"
)
