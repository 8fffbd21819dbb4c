package database

import (
	"context"
	"testing"

	"pool-onboarding-go/internal/store"
)

func TestMarkWhitelisted_Monotonic(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, s, "wl@example.com")
	addr, err := s.StoreAddress(ctx, store.StoreAddressParams{UserId: user.Id, Blockchain: "ethereum", Network: "mainnet", Address: "0xbeef"})
	if err != nil {
		t.Fatalf("StoreAddress failed: %v", err)
	}

	before, err := s.GetInvestment(ctx, addr.Id, "pool-1", "senior")
	if err != nil {
		t.Fatalf("GetInvestment failed: %v", err)
	}
	if before != nil {
		t.Fatalf("Expected no investment yet, got %+v", before)
	}

	first, err := s.MarkWhitelisted(ctx, addr.Id, "pool-1", "senior", "agreement-1")
	if err != nil {
		t.Fatalf("MarkWhitelisted failed: %v", err)
	}
	if !first.IsWhitelisted || first.AgreementId != "agreement-1" {
		t.Errorf("Unexpected investment %+v", first)
	}

	second, err := s.MarkWhitelisted(ctx, addr.Id, "pool-1", "senior", "agreement-2")
	if err != nil {
		t.Fatalf("MarkWhitelisted failed: %v", err)
	}
	if second.Id != first.Id {
		t.Errorf("Expected the same record, got %s and %s", first.Id, second.Id)
	}
	if second.AgreementId != "agreement-1" {
		t.Errorf("Expected original agreement to be kept, got %s", second.AgreementId)
	}

	all, err := s.ListUserInvestments(ctx, user.Id)
	if err != nil {
		t.Fatalf("ListUserInvestments failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 investment, got %d", len(all))
	}
}
