package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the onboarding engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// KYC syncs by outcome: updated, unchanged, abandoned
	KycSyncs *prometheus.CounterVec

	// Credential refreshes by outcome: refreshed, invalid, failed
	CredentialRefreshes *prometheus.CounterVec

	// Applied provider events by event kind and whether they changed state
	AgreementEvents *prometheus.CounterVec

	// Envelopes created at the e-signature provider
	EnvelopesCreated prometheus.Counter

	// Chain submissions by outcome: confirmed, submit_failed, wait_failed, not_member, skipped
	MembershipSubmissions *prometheus.CounterVec

	// Notifications by kind and outcome
	Notifications *prometheus.CounterVec

	// Provider data that broke a local ordering invariant
	InvariantViolations *prometheus.CounterVec

	// Sweep duration by sweep name
	SweepDuration *prometheus.HistogramVec

	// Webhook deliveries by outcome
	WebhookDeliveries *prometheus.CounterVec
}

// New registers all engine metrics on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		KycSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_kyc_syncs_total",
			Help: "Total KYC syncs by outcome",
		}, []string{"outcome"}),

		CredentialRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_kyc_credential_refreshes_total",
			Help: "Total identity provider credential refreshes by outcome",
		}, []string{"outcome"}),

		AgreementEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_agreement_events_total",
			Help: "Total e-signature events applied by event kind and transition",
		}, []string{"event", "transition"}),

		EnvelopesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_envelopes_created_total",
			Help: "Total envelopes requested from the e-signature provider",
		}),

		MembershipSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_membership_submissions_total",
			Help: "Total membership registry submissions by outcome",
		}, []string{"outcome"}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_notifications_total",
			Help: "Total investor notifications by kind and outcome",
		}, []string{"kind", "outcome"}),

		InvariantViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_invariant_violations_total",
			Help: "Provider data observed out of the expected order",
		}, []string{"kind"}),

		SweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_sweep_duration_seconds",
			Help:    "Duration of reconciliation sweeps",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}, []string{"sweep"}),

		WebhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_webhook_deliveries_total",
			Help: "Total e-signature webhook deliveries by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncKycSync(outcome string) {
	if m != nil {
		m.KycSyncs.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncCredentialRefresh(outcome string) {
	if m != nil {
		m.CredentialRefreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncAgreementEvent(event string, transitioned bool) {
	if m != nil {
		transition := "noop"
		if transitioned {
			transition = "applied"
		}
		m.AgreementEvents.WithLabelValues(event, transition).Inc()
	}
}

func (m *Metrics) IncEnvelopeCreated() {
	if m != nil {
		m.EnvelopesCreated.Inc()
	}
}

func (m *Metrics) IncMembershipSubmission(outcome string) {
	if m != nil {
		m.MembershipSubmissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncNotification(kind, outcome string) {
	if m != nil {
		m.Notifications.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) IncInvariantViolation(kind string) {
	if m != nil {
		m.InvariantViolations.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveSweep(sweep string, d time.Duration) {
	if m != nil {
		m.SweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
	}
}

func (m *Metrics) IncWebhookDelivery(outcome string) {
	if m != nil {
		m.WebhookDeliveries.WithLabelValues(outcome).Inc()
	}
}
