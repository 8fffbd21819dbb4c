package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"pool-onboarding-go/internal/esign"
	"pool-onboarding-go/internal/models"
	"pool-onboarding-go/internal/providers"
	"pool-onboarding-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// Handler exposes the onboarding service over HTTP
type Handler struct {
	svc      *OnboardingService
	verifier *esign.Verifier
	gatherer prometheus.Gatherer
}

// NewHandler builds the HTTP handler. A nil verifier rejects every webhook;
// a nil gatherer serves the default registry.
func NewHandler(svc *OnboardingService, verifier *esign.Verifier, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{svc: svc, verifier: verifier, gatherer: gatherer}
}

// Router returns the chi router with every route registered.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Register(r)
	return r
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Post("/webhooks/esign", h.esignWebhook)
	r.Get("/addresses/{blockchain}/{network}/{address}/pools/{poolId}", h.addressStatus)

	r.Route("/users/{userId}", func(r chi.Router) {
		r.Get("/pools/{poolId}", h.onboardingStatus)
		r.Post("/pools/{poolId}/agreements", h.createAgreements)
		r.Post("/kyc", h.connectKyc)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.HealthCheck(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "unhealthy", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) esignWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "unable to read body")
		return
	}

	if h.verifier == nil {
		h.svc.metrics.IncWebhookDelivery("rejected_signature")
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "webhook verification not configured")
		return
	}
	if err := h.verifier.Verify(r.Header, body); err != nil {
		h.svc.metrics.IncWebhookDelivery("rejected_signature")
		zap.L().Warn("Rejected webhook", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		writeError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	payload, err := esign.ParseWebhook(body)
	if err != nil {
		h.svc.metrics.IncWebhookDelivery("invalid_payload")
		writeError(w, r, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	if err := h.svc.HandleProviderWebhook(r.Context(), payload); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *Handler) addressStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.AddressStatus(r.Context(),
		chi.URLParam(r, "blockchain"),
		chi.URLParam(r, "network"),
		chi.URLParam(r, "address"),
		chi.URLParam(r, "poolId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) onboardingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.GetOnboardingStatus(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "poolId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type createAgreementsRequest struct {
	CountryCode string `json:"countryCode"`
}

type agreementsResponse struct {
	Agreements []models.AgreementSummary `json:"agreements"`
	Errors     []string                  `json:"errors,omitempty"`
}

func (h *Handler) createAgreements(w http.ResponseWriter, r *http.Request) {
	var req createAgreementsRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
	}

	agreements, err := h.svc.CreateAgreements(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "poolId"), req.CountryCode)
	if err != nil && len(agreements) == 0 {
		writeServiceError(w, r, err)
		return
	}

	resp := agreementsResponse{Agreements: make([]models.AgreementSummary, 0, len(agreements))}
	for _, a := range agreements {
		resp.Agreements = append(resp.Agreements, models.AgreementSummary{
			Id:         a.Id,
			Name:       a.Name,
			Tranche:    a.Tranche,
			State:      a.State(),
			EnvelopeId: a.ProviderEnvelopeId,
			CreatedAt:  a.CreatedAt,
		})
	}
	status := http.StatusOK
	if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

type connectKycRequest struct {
	ProviderAccountId string    `json:"providerAccountId"`
	AccessToken       string    `json:"accessToken"`
	RefreshToken      string    `json:"refreshToken"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

type kycResponse struct {
	Provider       string           `json:"provider"`
	Status         models.KycStatus `json:"status"`
	Accredited     bool             `json:"accredited"`
	UsaTaxResident bool             `json:"usaTaxResident"`
}

func (h *Handler) connectKyc(w http.ResponseWriter, r *http.Request) {
	var req connectKycRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	rec, err := h.svc.ConnectKyc(r.Context(), chi.URLParam(r, "userId"), req.ProviderAccountId, models.Credential{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, kycResponse{
		Provider:       rec.Provider,
		Status:         rec.Status,
		Accredited:     rec.Accredited,
		UsaTaxResident: rec.UsaTaxResident,
	})
}

// ---------- helpers ----------

type errorBody struct {
	RequestId string      `json:"request_id"`
	Error     errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// requestId reuses the id assigned by the RequestID middleware.
func requestId(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return "req_" + uuid.NewString()
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorBody{
		RequestId: requestId(r),
		Error:     errorDetail{Code: code, Message: message},
	})
}

// writeServiceError maps sentinel errors to 4xx and hides everything else.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrAddressNotFound),
		errors.Is(err, store.ErrKycNotFound),
		errors.Is(err, store.ErrAgreementNotFound),
		errors.Is(err, store.ErrPoolNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case providers.IsRetryable(err):
		writeError(w, r, http.StatusServiceUnavailable, "provider_unavailable", "upstream provider unavailable, retry later")
	default:
		zap.L().Error("Request failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
