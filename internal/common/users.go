/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"context"
	"fmt"

	"pool-onboarding-go/internal/store"

	"go.uber.org/zap"
)

// UserInfo represents simplified user information for command-line utilities
type UserInfo struct {
	Id          string
	FullName    string
	Email       string
	CountryCode string
}

// DisplayName returns the best label for a user, falling back to the id for
// users created from an address that have not completed KYC yet.
func (u UserInfo) DisplayName() string {
	switch {
	case u.FullName != "":
		return u.FullName
	case u.Email != "":
		return u.Email
	default:
		return u.Id
	}
}

// ResolveUsers retrieves users based on an optional filter. The filter is
// tried as an email first and then as a user id. An empty filter returns all users.
func ResolveUsers(ctx context.Context, dbService store.OnboardingStore, filter string) ([]UserInfo, error) {
	var users []UserInfo

	if filter != "" {
		zap.L().Info("Looking up user", zap.String("filter", filter))
		user, err := dbService.GetUserByEmail(ctx, filter)
		if err != nil {
			user, err = dbService.GetUserById(ctx, filter)
		}
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		users = append(users, UserInfo{
			Id:          user.Id,
			FullName:    user.FullName,
			Email:       user.Email,
			CountryCode: user.CountryCode,
		})
	} else {
		allUsers, err := dbService.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		for _, u := range allUsers {
			users = append(users, UserInfo{
				Id:          u.Id,
				FullName:    u.FullName,
				Email:       u.Email,
				CountryCode: u.CountryCode,
			})
		}
	}

	zap.L().Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}
