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

package models

import "time"

// AgreementSummary is the investor-facing view of an agreement
type AgreementSummary struct {
	Id         string         `json:"id"`
	Name       string         `json:"name"`
	Tranche    string         `json:"tranche"`
	State      AgreementState `json:"state"`
	EnvelopeId string         `json:"envelopeId,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// OnboardingStatus is the last reconciled onboarding state of a user in a pool
type OnboardingStatus struct {
	UserId            string             `json:"userId"`
	PoolId            string             `json:"poolId"`
	KycStatus         KycStatus          `json:"kycStatus"`
	Accredited        bool               `json:"accredited"`
	UsaTaxResident    bool               `json:"usaTaxResident"`
	Whitelisted       map[string]bool    `json:"whitelisted"`
	PendingAgreements []AgreementSummary `json:"pendingAgreements"`
	Restricted        bool               `json:"restricted"`
}

// PropagationResult reports what a membership propagation run did
type PropagationResult struct {
	UserId      string   `json:"userId"`
	PoolId      string   `json:"poolId"`
	Tranche     string   `json:"tranche"`
	Eligible    bool     `json:"eligible"`
	Reason      string   `json:"reason"`
	Whitelisted []string `json:"whitelisted,omitempty"`
	Skipped     []string `json:"skipped,omitempty"`
	Failed      []string `json:"failed,omitempty"`
}
