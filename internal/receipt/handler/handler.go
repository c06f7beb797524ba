// Package handler exposes the verification service over HTTP.
//
// Verification outcomes are never HTTP errors: a receipt that cannot be verified is a
// 200 with success=false and a reason. Only malformed requests and infrastructure faults
// use error statuses.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"slipcheck/internal/receipt/models"
	"slipcheck/internal/receipt/service"
	"slipcheck/pkg/platform/httputil"
	request "slipcheck/pkg/platform/middleware/request"
)

// Service is the verification surface the handler needs.
type Service interface {
	Verify(ctx context.Context, provider, reference string, args map[string]string) models.VerifyResult
	Invalidate(ctx context.Context, provider, reference string) (int, error)
	Health(ctx context.Context) map[string]error
	Providers() []service.ProviderInfo
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.With(request.ContentTypeJSON).Post("/verify", h.HandleVerify)
	r.Delete("/verify/{provider}/{reference}", h.HandleInvalidate)
	r.Get("/providers", h.HandleProviders)
	r.Get("/health/providers", h.HandleProviderHealth)
}

// HandleVerify verifies one receipt.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	result := h.service.Verify(ctx, req.Provider, req.Reference, req.Args())
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleInvalidate drops cached results for a reference so the next verification goes
// back to the bank.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	provider := chi.URLParam(r, "provider")
	reference := chi.URLParam(r, "reference")

	removed, err := h.service.Invalidate(ctx, provider, reference)
	if err != nil {
		h.logger.ErrorContext(ctx, "invalidate receipt cache failed",
			"error", err,
			"request_id", requestID,
			"provider", provider,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, InvalidateResponse{
		Provider:  provider,
		Reference: reference,
		Removed:   removed,
	})
}

func (h *Handler) HandleProviders(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, ProvidersResponse{Providers: h.service.Providers()})
}

// HandleProviderHealth probes every bank. A degraded bank does not make the service
// unready, so this always answers 200.
func (h *Handler) HandleProviderHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, toProviderHealthResponse(h.service.Health(r.Context())))
}
