package eligibility

import (
	"strings"

	"pool-onboarding-go/internal/models"
)

// Reason names the rule that decided an evaluation
type Reason string

const (
	ReasonEligible          Reason = "eligible"
	ReasonCountryUnknown    Reason = "country_unknown"
	ReasonGlobalRestriction Reason = "country_globally_restricted"
	ReasonPoolRestriction   Reason = "country_restricted_by_pool"
	ReasonKycNotVerified    Reason = "kyc_not_verified"
	ReasonNotAccredited     Reason = "us_tax_resident_not_accredited"
	ReasonNoCounterSigned   Reason = "no_counter_signed_agreement"
)

// Input carries everything a decision needs. Agreements may include other
// tranches; only those for Tranche are considered.
type Input struct {
	Kyc                *models.KycRecord
	Agreements         []models.Agreement
	UserCountry        string
	PoolRestrictions   []string
	GlobalRestrictions []string
	Tranche            string
}

// Decision is the outcome of one evaluation
type Decision struct {
	Eligible    bool
	Reason      Reason
	AgreementId string // first counter-signed agreement for the tranche
}

// Evaluate applies the rule chain. It performs no I/O and keeps no state.
// Rule priority (fail-fast):
//  1. Country restrictions, global before pool. An unknown country fails
//     closed since restrictions cannot be checked.
//  2. Verified KYC, with accreditation for US tax residents
//  3. At least one counter-signed agreement for the tranche
func Evaluate(in Input) Decision {
	// Rule 1: restrictions win over everything else
	if strings.TrimSpace(in.UserCountry) == "" {
		return Decision{Reason: ReasonCountryUnknown}
	}
	if IsRestricted(in.UserCountry, in.GlobalRestrictions) {
		return Decision{Reason: ReasonGlobalRestriction}
	}
	if IsRestricted(in.UserCountry, in.PoolRestrictions) {
		return Decision{Reason: ReasonPoolRestriction}
	}

	// Rule 2: KYC clearance is re-derived on every call
	if in.Kyc == nil || in.Kyc.Status != models.KycStatusVerified {
		return Decision{Reason: ReasonKycNotVerified}
	}
	if in.Kyc.UsaTaxResident && !in.Kyc.Accredited {
		return Decision{Reason: ReasonNotAccredited}
	}

	// Rule 3: any counter-signed agreement is sufficient
	for _, a := range in.Agreements {
		if a.Tranche == in.Tranche && a.State() == models.AgreementCounterSigned {
			return Decision{Eligible: true, Reason: ReasonEligible, AgreementId: a.Id}
		}
	}
	return Decision{Reason: ReasonNoCounterSigned}
}

// IsEligible is the boolean form of Evaluate.
func IsEligible(kyc *models.KycRecord, agreements []models.Agreement, userCountry string, poolRestrictions, globalRestrictions []string, tranche string) bool {
	return Evaluate(Input{
		Kyc:                kyc,
		Agreements:         agreements,
		UserCountry:        userCountry,
		PoolRestrictions:   poolRestrictions,
		GlobalRestrictions: globalRestrictions,
		Tranche:            tranche,
	}).Eligible
}

// IsRestricted reports whether country appears in restrictions, ignoring case.
// An unknown (blank) country is never restricted.
func IsRestricted(country string, restrictions []string) bool {
	country = strings.TrimSpace(country)
	if country == "" {
		return false
	}
	for _, r := range restrictions {
		if strings.EqualFold(strings.TrimSpace(r), country) {
			return true
		}
	}
	return false
}
