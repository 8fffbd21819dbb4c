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

package listener

import (
	"context"

	"go.uber.org/zap"
)

// SweepReport summarizes one sweep
type SweepReport struct {
	Candidates int
	Failed     int
}

type propagationKey struct {
	userId  string
	poolId  string
	tranche string
}

// SweepKyc re-syncs every KycRecord that is not yet settled. Status changes
// cascade into propagation inside the tracker.
func (r *Reconciler) SweepKyc(ctx context.Context) SweepReport {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	var report SweepReport
	records, err := r.store.ListKycForReconciliation(ctx)
	if err != nil {
		zap.L().Error("Failed to list kyc records for reconciliation", zap.Error(err))
		return report
	}
	report.Candidates = len(records)

	for _, rec := range records {
		if ctx.Err() != nil {
			return report
		}
		if _, err := r.kyc.Sync(ctx, rec.UserId); err != nil {
			report.Failed++
			zap.L().Warn("KYC reconciliation failed",
				zap.String("user_id", rec.UserId),
				zap.String("provider", rec.Provider),
				zap.Error(err))
		}
	}
	return report
}

// SweepAgreements polls the e-signature provider for agreements still waiting
// on a counter-signature, then retries propagation for counter-signed
// agreements so a chain failure in an earlier cycle gets another attempt.
func (r *Reconciler) SweepAgreements(ctx context.Context) SweepReport {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	var report SweepReport
	pending, err := r.store.ListAgreementsAwaitingCounterSignature(ctx)
	if err != nil {
		zap.L().Error("Failed to list agreements awaiting counter-signature", zap.Error(err))
		return report
	}
	report.Candidates += len(pending)

	for _, a := range pending {
		if ctx.Err() != nil {
			return report
		}
		if err := r.agreements.SyncEnvelope(ctx, a); err != nil {
			report.Failed++
			zap.L().Warn("Agreement reconciliation failed",
				zap.String("agreement_id", a.Id),
				zap.String("envelope_id", a.ProviderEnvelopeId),
				zap.Error(err))
		}
	}

	if r.propagator == nil {
		return report
	}

	counterSigned, err := r.store.ListCounterSignedAgreements(ctx)
	if err != nil {
		zap.L().Error("Failed to list counter-signed agreements", zap.Error(err))
		return report
	}

	seen := map[propagationKey]bool{}
	for _, a := range counterSigned {
		key := propagationKey{userId: a.UserId, poolId: a.PoolId, tranche: a.Tranche}
		if seen[key] {
			continue
		}
		seen[key] = true
		report.Candidates++

		if ctx.Err() != nil {
			return report
		}
		result, err := r.propagator.Propagate(ctx, a.UserId, a.PoolId, a.Tranche)
		if err != nil {
			report.Failed++
			zap.L().Warn("Propagation retry failed",
				zap.String("user_id", a.UserId),
				zap.String("pool_id", a.PoolId),
				zap.String("tranche", a.Tranche),
				zap.Error(err))
			continue
		}
		if len(result.Failed) > 0 {
			report.Failed++
		}
	}
	return report
}
