package models

// CountryUS tags profile agreements for US tax residents
const (
	CountryUS    = "us"
	CountryNonUS = "non-us"
)

// ProfileAgreement is a required agreement template in a pool profile
type ProfileAgreement struct {
	Name               string `yaml:"name" json:"name"`
	Tranche            string `yaml:"tranche" json:"tranche"`
	Country            string `yaml:"country" json:"country"`
	ProviderTemplateId string `yaml:"provider_template_id" json:"providerTemplateId"`
}

// Issuer is the counter-signing party of a pool
type Issuer struct {
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email" json:"email"`
}

// Pool is the read-only pool profile
type Pool struct {
	Id                       string             `yaml:"id" json:"id"`
	Name                     string             `yaml:"name" json:"name"`
	Network                  string             `yaml:"network" json:"network"`
	Issuer                   Issuer             `yaml:"issuer" json:"issuer"`
	RequiredAgreements       []ProfileAgreement `yaml:"agreements" json:"agreements"`
	RestrictedCountryCodes   []string           `yaml:"restricted_countries" json:"restrictedCountryCodes"`
	RegistryAddressByTranche map[string]string  `yaml:"registries" json:"registries"`
}

// Tranches returns the tranche names that have a membership registry.
func (p Pool) Tranches() []string {
	tranches := make([]string, 0, len(p.RegistryAddressByTranche))
	for t := range p.RegistryAddressByTranche {
		tranches = append(tranches, t)
	}
	return tranches
}
