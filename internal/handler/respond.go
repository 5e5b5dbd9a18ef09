package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/service"
	"github.com/mmeshcher/storefront/internal/validation"
)

type errorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Reconciliation bool   `json:"reconciliation,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "malformed identifier")
		return uuid.Nil, false
	}
	return id, true
}

// fail переводит ошибку сервиса в HTTP-ответ.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		declined *service.DeclinedError
		recErr   *service.ReconciliationError
	)

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", "")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email, password or answer")
	case errors.Is(err, service.ErrInvalidCart):
		writeError(w, http.StatusBadRequest, "invalid_cart", err.Error())
	case errors.Is(err, service.ErrMissingIdempotencyKey):
		writeError(w, http.StatusBadRequest, "missing_idempotency_key", "idempotency key is required")
	case errors.Is(err, service.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, validation.ErrInvalid):
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, service.ErrPaymentInProgress):
		writeError(w, http.StatusConflict, "payment_in_progress", "a payment with this idempotency key is in progress")
	case errors.As(err, &declined):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{
			Error:   "payment_declined",
			Message: "payment was declined",
			Reason:  declined.Reason,
		})
	case errors.Is(err, service.ErrGateway):
		h.logger.Warn(op+" gateway error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "gateway_unavailable", "payment gateway is unavailable")
	case errors.As(err, &recErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:          "persistence",
			Message:        "payment captured but order was not recorded",
			Reconciliation: true,
			TransactionID:  recErr.TransactionID,
			OrderID:        recErr.OrderID.String(),
		})
	case errors.Is(err, repository.ErrUserExists), errors.Is(err, repository.ErrCategoryExists),
		errors.Is(err, repository.ErrCategoryInUse):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, repository.ErrUserNotFound), errors.Is(err, repository.ErrCategoryNotFound),
		errors.Is(err, repository.ErrProductNotFound), errors.Is(err, repository.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error(op+" error", zap.Error(err), zap.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, "internal", "")
	}
}
