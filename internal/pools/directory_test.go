package pools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"
)

const samplePools = `
pools:
  - id: pool-a
    name: Pool A
    network: mainnet
    issuer:
      name: Issuer LLC
      email: ops@issuer.example
    agreements:
      - name: Subscription Agreement (US)
        tranche: senior
        country: US
        provider_template_id: tmpl-us
      - name: Subscription Agreement
        tranche: senior
        country: non-us
        provider_template_id: tmpl-intl
    restricted_countries: [kp, ir]
    registries:
      senior: "0x00000000000000000000000000000000000000a1"
`

func TestParsePools(t *testing.T) {
	pools, err := ParsePools([]byte(samplePools))
	if err != nil {
		t.Fatalf("ParsePools failed: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("Expected 1 pool, got %d", len(pools))
	}

	p := pools[0]
	if p.RequiredAgreements[0].Country != models.CountryUS {
		t.Errorf("Expected country tag to be normalized, got %q", p.RequiredAgreements[0].Country)
	}
	if p.RestrictedCountryCodes[0] != "KP" {
		t.Errorf("Expected restricted countries to be upper-cased, got %v", p.RestrictedCountryCodes)
	}
	if p.Issuer.Email != "ops@issuer.example" {
		t.Errorf("Unexpected issuer %+v", p.Issuer)
	}
	if len(p.Tranches()) != 1 || p.Tranches()[0] != "senior" {
		t.Errorf("Unexpected tranches %v", p.Tranches())
	}
}

func TestParsePools_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing id":       "pools:\n  - name: x\n",
		"bad registry":     "pools:\n  - id: p\n    registries:\n      senior: nope\n",
		"bad country":      "pools:\n  - id: p\n    agreements:\n      - name: a\n        tranche: s\n        country: eu\n        provider_template_id: t\n",
		"duplicate ids":    "pools:\n  - id: p\n  - id: p\n",
		"missing template": "pools:\n  - id: p\n    agreements:\n      - name: a\n        tranche: s\n        country: us\n",
	}
	for name, data := range tests {
		if _, err := ParsePools([]byte(data)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestFileDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.yaml")
	if err := os.WriteFile(path, []byte(samplePools), 0o600); err != nil {
		t.Fatalf("Failed to write pools file: %v", err)
	}

	dir, err := NewFileDirectory(path)
	if err != nil {
		t.Fatalf("NewFileDirectory failed: %v", err)
	}

	ids, err := dir.ListPoolIds(context.Background())
	if err != nil || len(ids) != 1 || ids[0] != "pool-a" {
		t.Fatalf("Unexpected pool ids %v (err %v)", ids, err)
	}

	if _, err := dir.GetPool(context.Background(), "missing"); !errors.Is(err, store.ErrPoolNotFound) {
		t.Errorf("Expected ErrPoolNotFound, got %v", err)
	}

	// an invalid file keeps the previous cache
	if err := os.WriteFile(path, []byte("pools:\n  - name: broken\n"), 0o600); err != nil {
		t.Fatalf("Failed to write pools file: %v", err)
	}
	if err := dir.Reload(); err == nil {
		t.Fatal("Expected reload of invalid file to fail")
	}
	if _, err := dir.GetPool(context.Background(), "pool-a"); err != nil {
		t.Errorf("Expected cached pool to survive failed reload, got %v", err)
	}
}
