package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"pool-onboarding-go/internal/database"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *database.Service) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	svc, err := database.NewServiceFromDB(context.Background(), db)
	require.NoError(t, err)
	return NewLedger(svc), svc
}

func TestEnsureAddress_CreatesOnceThenResolves(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	user, addr, created, err := ledger.EnsureAddress(ctx, "ethereum", "mainnet", "0xAbC")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, user.Id, addr.UserId)

	again, againAddr, created, err := ledger.EnsureAddress(ctx, "ethereum", "mainnet", "0xabc")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.Id, again.Id)
	assert.Equal(t, addr.Id, againAddr.Id)
}

func TestEnsureAddress_RequiresFields(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, _, _, err := ledger.EnsureAddress(context.Background(), "ethereum", "", "0x1")
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}

func TestLinkAddress_Relinks(t *testing.T) {
	ledger, svc := newTestLedger(t)
	ctx := context.Background()

	first, _, _, err := ledger.EnsureAddress(ctx, "ethereum", "mainnet", "0x01")
	require.NoError(t, err)
	second, err := svc.CreateUser(ctx, store.CreateUserParams{Email: "second@example.com"})
	require.NoError(t, err)

	addr, err := ledger.LinkAddress(ctx, second.Id, "ethereum", "mainnet", "0x01")
	require.NoError(t, err)
	assert.Equal(t, second.Id, addr.UserId)

	firstAddrs, err := ledger.Addresses(ctx, first.Id)
	require.NoError(t, err)
	assert.Empty(t, firstAddrs)

	_, err = ledger.LinkAddress(ctx, "missing", "ethereum", "mainnet", "0x02")
	assert.True(t, errors.Is(err, store.ErrUserNotFound))
}

func TestMergeVerifiedProfile_NeverErases(t *testing.T) {
	ledger, svc := newTestLedger(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, store.CreateUserParams{Email: "kept@example.com", CountryCode: "DE"})
	require.NoError(t, err)

	merged, err := ledger.MergeVerifiedProfile(ctx, user.Id, models.InvestorProfile{
		Email:    "",
		FullName: "Grace Hopper",
	})
	require.NoError(t, err)
	assert.Equal(t, "kept@example.com", merged.Email)
	assert.Equal(t, "DE", merged.CountryCode)
	assert.Equal(t, "Grace Hopper", merged.FullName)
}
