package notify

import (
	"context"
	"net/http"
	"net/url"

	"pool-onboarding-go/internal/metrics"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/providers"

	"go.uber.org/zap"
)

// Notification is one investor-facing message
type Notification struct {
	Kind        models.NotificationKind `json:"kind"`
	UserId      string                  `json:"userId"`
	Email       string                  `json:"email"`
	FullName    string                  `json:"fullName,omitempty"`
	PoolId      string                  `json:"poolId"`
	PoolName    string                  `json:"poolName,omitempty"`
	Tranche     string                  `json:"tranche"`
	AgreementId string                  `json:"agreementId,omitempty"`
	Address     string                  `json:"address,omitempty"`
}

// Sink delivers notifications, e.g. to a mailer
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// LogSink only logs. Used when no mailer is configured.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, n Notification) error {
	zap.L().Info("Notification",
		zap.String("kind", string(n.Kind)),
		zap.String("user_id", n.UserId),
		zap.String("pool_id", n.PoolId),
		zap.String("tranche", n.Tranche))
	return nil
}

// HTTPSink posts notifications as JSON to a mailer endpoint.
type HTTPSink struct {
	rest *providers.RestClient
	path string
}

func NewHTTPSink(cfg models.NotifyConfig, httpClient *http.Client) (*HTTPSink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	path := u.EscapedPath()
	u.Path, u.RawPath = "", ""

	return &HTTPSink{
		rest: providers.NewRestClient(providers.RestConfig{
			ProviderID: "mailer",
			BaseURL:    u.String(),
			HTTPClient: httpClient,
		}),
		path: path,
	}, nil
}

func (s *HTTPSink) Notify(ctx context.Context, n Notification) error {
	return s.rest.Do(ctx, providers.Request{Method: http.MethodPost, Path: s.path, Body: n}, nil)
}

// Dispatcher sends fire-and-forget notifications. Failures are logged and
// counted, never returned.
type Dispatcher struct {
	sink    Sink
	metrics *metrics.Metrics
}

func NewDispatcher(sink Sink, m *metrics.Metrics) *Dispatcher {
	if sink == nil {
		sink = LogSink{}
	}
	return &Dispatcher{sink: sink, metrics: m}
}

func (d *Dispatcher) Send(ctx context.Context, n Notification) {
	if err := d.sink.Notify(ctx, n); err != nil {
		d.metrics.IncNotification(string(n.Kind), "failed")
		zap.L().Warn("Failed to send notification",
			zap.String("kind", string(n.Kind)),
			zap.String("user_id", n.UserId),
			zap.Error(err))
		return
	}
	d.metrics.IncNotification(string(n.Kind), "sent")
}
