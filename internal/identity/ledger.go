package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Ledger maps wallet addresses to canonical users.
type Ledger struct {
	store store.OnboardingStore
	group singleflight.Group
}

func NewLedger(s store.OnboardingStore) *Ledger {
	return &Ledger{store: s}
}

type addressResult struct {
	user    *models.User
	address *models.Address
	created bool
}

// EnsureAddress resolves the owner of an address, creating a blank user and the
// address link on first sight. created reports whether this call linked it.
func (l *Ledger) EnsureAddress(ctx context.Context, blockchain, network, address string) (*models.User, *models.Address, bool, error) {
	address = strings.TrimSpace(address)
	if address == "" || strings.TrimSpace(blockchain) == "" || strings.TrimSpace(network) == "" {
		return nil, nil, false, fmt.Errorf("%w: blockchain, network and address are required", store.ErrInvalidInput)
	}

	key := strings.ToLower(blockchain + "|" + network + "|" + address)
	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		user, addr, err := l.store.FindUserByAddress(ctx, address)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return addressResult{user: user, address: addr}, nil
		}

		user, err = l.store.CreateUser(ctx, store.CreateUserParams{})
		if err != nil {
			return nil, err
		}
		addr, err = l.store.StoreAddress(ctx, store.StoreAddressParams{
			UserId:     user.Id,
			Blockchain: blockchain,
			Network:    network,
			Address:    address,
		})
		if err != nil {
			// Another process may have linked it first
			existingUser, existingAddr, findErr := l.store.FindUserByAddress(ctx, address)
			if findErr == nil && existingUser != nil {
				zap.L().Warn("Address linked concurrently, using existing owner",
					zap.String("address", address),
					zap.String("user_id", existingUser.Id),
					zap.String("orphan_user_id", user.Id))
				return addressResult{user: existingUser, address: existingAddr}, nil
			}
			return nil, err
		}

		zap.L().Info("Linked new address to new user",
			zap.String("user_id", user.Id),
			zap.String("blockchain", addr.Blockchain),
			zap.String("network", addr.Network),
			zap.String("address", addr.Address))
		return addressResult{user: user, address: addr, created: true}, nil
	})
	if err != nil {
		return nil, nil, false, fmt.Errorf("unable to resolve address %s: %w", address, err)
	}

	res := v.(addressResult)
	return res.user, res.address, res.created, nil
}

// LinkAddress attaches an address to userId, moving it away from any previous owner.
func (l *Ledger) LinkAddress(ctx context.Context, userId, blockchain, network, address string) (*models.Address, error) {
	if _, err := l.store.GetUserById(ctx, userId); err != nil {
		return nil, err
	}

	owner, existing, err := l.store.FindUserByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return l.store.StoreAddress(ctx, store.StoreAddressParams{
			UserId:     userId,
			Blockchain: blockchain,
			Network:    network,
			Address:    address,
		})
	}
	if owner.Id == userId {
		return existing, nil
	}

	if err := l.store.RelinkAddress(ctx, existing.Id, userId); err != nil {
		return nil, err
	}
	zap.L().Info("Relinked address",
		zap.String("address", existing.Address),
		zap.String("from_user_id", owner.Id),
		zap.String("to_user_id", userId))

	existing.UserId = userId
	return existing, nil
}

// MergeVerifiedProfile fills blank user fields from provider data. Populated
// fields are never replaced.
func (l *Ledger) MergeVerifiedProfile(ctx context.Context, userId string, profile models.InvestorProfile) (*models.User, error) {
	user, err := l.store.FillUserProfile(ctx, userId, store.UserProfile{
		Email:       profile.Email,
		FullName:    profile.FullName,
		EntityName:  profile.EntityName,
		CountryCode: profile.CountryCode,
	})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("unable to merge profile for user %s: %w", userId, err)
	}
	return user, nil
}

// Addresses returns every address linked to the user.
func (l *Ledger) Addresses(ctx context.Context, userId string) ([]models.Address, error) {
	return l.store.GetAllUserAddresses(ctx, userId)
}
