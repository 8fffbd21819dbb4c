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

package database

const (
	userColumns = `id, email, full_name, entity_name, country_code, created_at, updated_at`

	// User queries
	queryGetUsers = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at`

	queryInsertUser = `
		INSERT INTO users (id, email, full_name, entity_name, country_code)
		VALUES (?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ?`

	queryGetUserByEmail = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = ? AND email != ''`

	queryFillUserProfile = `
		UPDATE users SET
			full_name = CASE WHEN full_name = '' THEN ? ELSE full_name END,
			entity_name = CASE WHEN entity_name = '' THEN ? ELSE entity_name END,
			country_code = CASE WHEN country_code = '' THEN ? ELSE country_code END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	// Email is unique across users; a taken email is left unfilled.
	queryFillUserEmail = `
		UPDATE users SET
			email = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND email = ''
			AND NOT EXISTS (SELECT 1 FROM users WHERE email = ? AND id != ?)`

	// Address queries
	addressColumns = `id, user_id, blockchain, network, address, created_at`

	queryInsertAddress = `
		INSERT INTO addresses (id, user_id, blockchain, network, address)
		VALUES (?, ?, ?, ?, ?)`

	queryGetAddressById = `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE id = ?`

	queryGetAllUserAddresses = `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE user_id = ?
		ORDER BY created_at`

	queryFindUserByAddress = `
		SELECT u.id, u.email, u.full_name, u.entity_name, u.country_code, u.created_at, u.updated_at,
		       a.id, a.user_id, a.blockchain, a.network, a.address, a.created_at
		FROM users u
		JOIN addresses a ON u.id = a.user_id
		WHERE LOWER(a.address) = LOWER(?)
		ORDER BY a.created_at
		LIMIT 1`

	queryRelinkAddress = `
		UPDATE addresses SET user_id = ? WHERE id = ?`

	// KYC queries
	kycColumns = `id, user_id, provider, provider_account_id, status, usa_tax_resident, accredited,
		access_token, refresh_token, token_expires_at, created_at, updated_at`

	queryGetKycRecord = `
		SELECT ` + kycColumns + `
		FROM kyc_records
		WHERE user_id = ? AND provider = ?
		ORDER BY updated_at DESC
		LIMIT 1`

	queryUpsertKycRecord = `
		INSERT INTO kyc_records (id, user_id, provider, provider_account_id, status, usa_tax_resident, accredited,
			access_token, refresh_token, token_expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider, provider_account_id) DO UPDATE SET
			status = excluded.status,
			usa_tax_resident = excluded.usa_tax_resident,
			accredited = excluded.accredited,
			access_token = CASE WHEN excluded.access_token = '' THEN kyc_records.access_token ELSE excluded.access_token END,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN kyc_records.refresh_token ELSE excluded.refresh_token END,
			token_expires_at = CASE WHEN excluded.access_token = '' THEN kyc_records.token_expires_at ELSE excluded.token_expires_at END,
			updated_at = CURRENT_TIMESTAMP`

	queryGetKycRecordByKey = `
		SELECT ` + kycColumns + `
		FROM kyc_records
		WHERE user_id = ? AND provider = ? AND provider_account_id = ?`

	queryUpdateKycCredential = `
		UPDATE kyc_records
		SET access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryListKycForReconciliation = `
		SELECT ` + kycColumns + `
		FROM kyc_records
		WHERE status != 'verified' OR (usa_tax_resident = 1 AND accredited = 0)
		ORDER BY updated_at`

	// Agreement queries
	agreementColumns = `id, user_id, pool_id, tranche, name, provider, provider_template_id, provider_envelope_id,
		signed_at, counter_signed_at, declined_at, voided_at, created_at`

	queryInsertAgreement = `
		INSERT OR IGNORE INTO agreements (id, user_id, pool_id, tranche, name, provider, provider_template_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	querySetAgreementEnvelope = `
		UPDATE agreements SET provider_envelope_id = ?
		WHERE id = ? AND provider_envelope_id = ''`

	queryGetAgreementById = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE id = ?`

	queryFindActiveAgreement = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE user_id = ? AND pool_id = ? AND tranche = ? AND provider_template_id = ?
		  AND declined_at IS NULL AND voided_at IS NULL`

	queryFindAgreementByEnvelope = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE provider = ? AND provider_envelope_id = ? AND provider_envelope_id != ''`

	queryListAgreementsForPool = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE user_id = ? AND pool_id = ?
		ORDER BY created_at`

	queryListAgreementsForUser = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE user_id = ?
		ORDER BY pool_id, created_at`

	queryListAgreementsAwaitingCounterSignature = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE signed_at IS NOT NULL AND counter_signed_at IS NULL
		  AND declined_at IS NULL AND voided_at IS NULL
		  AND provider_envelope_id != ''
		ORDER BY created_at`

	queryListCounterSignedAgreements = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE counter_signed_at IS NOT NULL
		  AND declined_at IS NULL AND voided_at IS NULL
		ORDER BY user_id, pool_id, tranche`

	queryMarkAgreementSigned = `
		UPDATE agreements SET signed_at = ?
		WHERE id = ? AND signed_at IS NULL`

	// signed_at is filled in the same write so counter_signed_at never precedes it
	queryMarkAgreementCounterSigned = `
		UPDATE agreements SET signed_at = COALESCE(signed_at, ?), counter_signed_at = ?
		WHERE id = ? AND counter_signed_at IS NULL
		  AND declined_at IS NULL AND voided_at IS NULL`

	// Terminal states are exclusive: only a pre-terminal agreement can end
	queryMarkAgreementDeclined = `
		UPDATE agreements SET declined_at = ?
		WHERE id = ? AND counter_signed_at IS NULL
		  AND declined_at IS NULL AND voided_at IS NULL`

	queryMarkAgreementVoided = `
		UPDATE agreements SET voided_at = ?
		WHERE id = ? AND counter_signed_at IS NULL
		  AND declined_at IS NULL AND voided_at IS NULL`

	// Investment queries
	investmentColumns = `id, address_id, pool_id, tranche, is_whitelisted, agreement_id, updated_at`

	queryGetInvestment = `
		SELECT ` + investmentColumns + `
		FROM investments
		WHERE address_id = ? AND pool_id = ? AND tranche = ?`

	queryMarkWhitelisted = `
		INSERT INTO investments (id, address_id, pool_id, tranche, is_whitelisted, agreement_id)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(address_id, pool_id, tranche) DO UPDATE SET
			is_whitelisted = 1,
			agreement_id = CASE WHEN investments.agreement_id = '' THEN excluded.agreement_id ELSE investments.agreement_id END,
			updated_at = CURRENT_TIMESTAMP`

	queryListUserInvestments = `
		SELECT i.id, i.address_id, i.pool_id, i.tranche, i.is_whitelisted, i.agreement_id, i.updated_at
		FROM investments i
		JOIN addresses a ON a.id = i.address_id
		WHERE a.user_id = ?
		ORDER BY i.pool_id, i.tranche`
)
