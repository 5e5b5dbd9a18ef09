package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/service"
)

// IdempotencyKeyHeader содержит имя заголовка с ключом идемпотентности оплаты.
const IdempotencyKeyHeader = "Idempotency-Key"

// ClientToken выдаёт клиентский токен платёжного шлюза.
func (h *Handler) ClientToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.checkout.IssueClientToken(r.Context())
	if err != nil {
		h.fail(w, r, "client token", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"clientToken": token})
}

type paymentRequest struct {
	Nonce          string     `json:"nonce"`
	Cart           model.Cart `json:"cart"`
	IdempotencyKey string     `json:"idempotency_key"`
}

type paymentResponse struct {
	OK            bool   `json:"ok"`
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	Replayed      bool   `json:"replayed,omitempty"`
}

// Pay списывает сумму корзины и создаёт заказ текущего пользователя.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var identity *model.Identity
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		identity = &id
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}

	res, err := h.checkout.ExecutePayment(r.Context(), identity, service.PaymentRequest{
		Cart:           req.Cart,
		Nonce:          req.Nonce,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, "payment", err)
		return
	}

	h.logger.Debug("payment accepted", zap.String("order_id", res.OrderID.String()), zap.Bool("replayed", res.Replayed))
	writeJSON(w, http.StatusOK, paymentResponse{
		OK:            res.OK,
		OrderID:       res.OrderID.String(),
		TransactionID: res.TransactionID,
		Replayed:      res.Replayed,
	})
}
