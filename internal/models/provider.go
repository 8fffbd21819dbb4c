package models

// InvestorProfile is the identity provider's view of an investor
type InvestorProfile struct {
	Status         KycStatus
	Accredited     bool
	UsaTaxResident bool
	Email          string
	FullName       string
	EntityName     string
	CountryCode    string
	TaxId          string
	Address        string
}

// EnvelopeSigner is the identity passed to the e-signature provider for pre-fill
type EnvelopeSigner struct {
	Role     SignerRole
	Email    string
	Name     string
	ClientId string
}

// EnvelopeStatus is a direct poll of an envelope
type EnvelopeStatus struct {
	EnvelopeId string
	Event      EnvelopeEvent
	Signers    []SignerOutcome
}

// WebhookPayload is the inbound e-signature provider notification
type WebhookPayload struct {
	EnvelopeId string          `json:"envelopeId"`
	Status     string          `json:"status"`
	Signers    []SignerOutcome `json:"signers"`
}
