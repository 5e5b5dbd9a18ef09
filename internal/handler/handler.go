// Package handler содержит HTTP-обработчики API витрины.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/service"
)

// Service определяет контракт бизнес-логики учётных записей и каталога.
type Service interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, in service.LoginInput) (*model.User, string, error)
	ForgotPassword(ctx context.Context, in service.ForgotPasswordInput) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, in service.ProfileInput) (*model.User, error)
	OrdersByBuyer(ctx context.Context, buyer uuid.UUID) ([]model.Order, error)
	AllOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error)

	CreateCategory(ctx context.Context, in service.CategoryInput) (*model.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, in service.CategoryInput) (*model.Category, error)
	Categories(ctx context.Context) ([]model.Category, error)
	CategoryBySlug(ctx context.Context, slug string) (*model.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	CreateProduct(ctx context.Context, in service.ProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in service.ProductInput) (*model.Product, error)
	LatestProducts(ctx context.Context) ([]model.Product, error)
	ProductBySlug(ctx context.Context, slug string) (*model.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ProductCount(ctx context.Context) (int64, error)
	ProductPage(ctx context.Context, page int) ([]model.Product, error)
	FilterProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error)
	SearchProducts(ctx context.Context, keyword string) ([]model.Product, error)
	RelatedProducts(ctx context.Context, productID, categoryID uuid.UUID) ([]model.Product, error)
	ProductsByCategory(ctx context.Context, slug string) (*model.Category, []model.Product, error)
}

// Checkout определяет контракт процесса оплаты.
type Checkout interface {
	IssueClientToken(ctx context.Context) (string, error)
	ExecutePayment(ctx context.Context, identity *model.Identity, req service.PaymentRequest) (*service.CheckoutResult, error)
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service        Service
	checkout       Checkout
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	limiter        *middleware.RateLimiter
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. limiter может быть nil.
func NewHandler(s Service, checkout Checkout, logger *zap.Logger, auth *middleware.AuthMiddleware, limiter *middleware.RateLimiter) *Handler {
	return &Handler{
		service:        s,
		checkout:       checkout,
		logger:         logger,
		authMiddleware: auth,
		limiter:        limiter,
	}
}

type userResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Phone   string    `json:"phone"`
	Address string    `json:"address"`
	Role    int       `json:"role"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Phone:   u.Phone,
		Address: u.Address,
		Role:    int(u.Role),
	}
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	u, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, "register user", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": newUserResponse(u)})
}

// Login выполняет аутентификацию пользователя и выдаёт токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	u, token, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.fail(w, r, "login user", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": newUserResponse(u), "token": token})
}

// ForgotPassword сбрасывает пароль по секретному ответу.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req service.ForgotPasswordInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req); err != nil {
		h.fail(w, r, "forgot password", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AuthCheck подтверждает, что запрос прошёл проверку доступа.
func (h *Handler) AuthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// UpdateProfile обновляет профиль текущего пользователя.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "")
		return
	}

	var req service.ProfileInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), identity.SubjectID, req)
	if err != nil {
		h.fail(w, r, "update profile", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": newUserResponse(u)})
}

type orderResponse struct {
	ID        uuid.UUID        `json:"id"`
	Products  model.Cart       `json:"products"`
	Amount    decimal.Decimal  `json:"amount"`
	Payment   model.Settlement `json:"payment"`
	Buyer     uuid.UUID        `json:"buyer"`
	Status    string           `json:"status"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
}

func newOrderResponse(o model.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		Products:  o.Cart,
		Amount:    o.Amount,
		Payment:   o.Settlement,
		Buyer:     o.Buyer,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
		UpdatedAt: o.UpdatedAt.Format(time.RFC3339),
	}
}

func newOrdersResponse(orders []model.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	return resp
}

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "")
		return
	}

	orders, err := h.service.OrdersByBuyer(r.Context(), identity.SubjectID)
	if err != nil {
		h.fail(w, r, "get orders", err)
		return
	}

	writeJSON(w, http.StatusOK, newOrdersResponse(orders))
}

// GetAllOrders возвращает все заказы магазина.
func (h *Handler) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.AllOrders(r.Context())
	if err != nil {
		h.fail(w, r, "get all orders", err)
		return
	}

	writeJSON(w, http.StatusOK, newOrdersResponse(orders))
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus меняет статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	var req orderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), id, model.OrderStatus(req.Status))
	if err != nil {
		h.fail(w, r, "update order status", err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(*o))
}
