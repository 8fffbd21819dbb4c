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

package kyc

import (
	"errors"
	"fmt"
	"strings"

	"pool-onboarding-go/internal/models"
)

// ErrUnknownStatus is returned for provider statuses missing from the mapping table.
var ErrUnknownStatus = errors.New("unknown provider kyc status")

// statusTable maps provider vocabulary to the internal enum. manual-review is
// never exposed as its own state.
var statusTable = map[string]models.KycStatus{
	"":                 models.KycStatusNone,
	"none":             models.KycStatusNone,
	"not-started":      models.KycStatusNone,
	"pending":          models.KycStatusProcessing,
	"submitted":        models.KycStatusProcessing,
	"processing":       models.KycStatusProcessing,
	"in-review":        models.KycStatusProcessing,
	"manual-review":    models.KycStatusProcessing,
	"updates-required": models.KycStatusUpdatesRequired,
	"needs-updates":    models.KycStatusUpdatesRequired,
	"verified":         models.KycStatusVerified,
	"approved":         models.KycStatusVerified,
	"rejected":         models.KycStatusRejected,
	"denied":           models.KycStatusRejected,
	"expired":          models.KycStatusExpired,
}

// NormalizeStatus maps a raw provider status. Case, surrounding space and
// underscores are ignored.
func NormalizeStatus(raw string) (models.KycStatus, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	status, ok := statusTable[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return status, nil
}
