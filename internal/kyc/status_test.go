package kyc

import (
	"errors"
	"testing"

	"pool-onboarding-go/internal/models"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want models.KycStatus
	}{
		{"manual-review", models.KycStatusProcessing},
		{"MANUAL_REVIEW", models.KycStatusProcessing},
		{" pending ", models.KycStatusProcessing},
		{"approved", models.KycStatusVerified},
		{"verified", models.KycStatusVerified},
		{"updates_required", models.KycStatusUpdatesRequired},
		{"rejected", models.KycStatusRejected},
		{"expired", models.KycStatusExpired},
		{"", models.KycStatusNone},
	}

	for _, tt := range tests {
		got, err := NormalizeStatus(tt.raw)
		if err != nil {
			t.Fatalf("NormalizeStatus(%q) failed: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("NormalizeStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeStatus_Unknown(t *testing.T) {
	_, err := NormalizeStatus("sort-of-verified")
	if !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("Expected ErrUnknownStatus, got %v", err)
	}
}

func TestNormalizeStatus_NeverLeaksManualReview(t *testing.T) {
	for raw, status := range statusTable {
		if !status.Valid() {
			t.Errorf("Mapping for %q produced invalid status %q", raw, status)
		}
	}
}
