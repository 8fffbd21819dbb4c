package common

import (
	"testing"

	"pool-onboarding-go/internal/models"
)

func TestFormatWhitelist(t *testing.T) {
	got := FormatWhitelist(map[string]bool{"senior": true, "junior": false})
	want := "junior ✗, senior ✓"
	if got != want {
		t.Errorf("FormatWhitelist = %q, want %q", got, want)
	}
	if FormatWhitelist(nil) != "-" {
		t.Error("expected placeholder for empty map")
	}
}

func TestFormatPropagation(t *testing.T) {
	r := &models.PropagationResult{PoolId: "pool-a", Tranche: "senior", Eligible: false, Reason: "kyc_not_verified"}
	if got := FormatPropagation(r); got != "pool-a/senior not eligible (kyc_not_verified)" {
		t.Errorf("unexpected: %q", got)
	}

	r = &models.PropagationResult{PoolId: "pool-a", Tranche: "senior", Eligible: true, Whitelisted: []string{"0x1"}, Failed: []string{"0x2"}}
	if got := FormatPropagation(r); got != "pool-a/senior whitelisted 1, skipped 0, failed 1" {
		t.Errorf("unexpected: %q", got)
	}
}

func TestUserInfoDisplayName(t *testing.T) {
	tests := []struct {
		user UserInfo
		want string
	}{
		{UserInfo{Id: "u1", FullName: "Jane", Email: "j@example.com"}, "Jane"},
		{UserInfo{Id: "u1", Email: "j@example.com"}, "j@example.com"},
		{UserInfo{Id: "u1"}, "u1"},
	}
	for _, tt := range tests {
		if got := tt.user.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
}
