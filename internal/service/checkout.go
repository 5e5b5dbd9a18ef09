package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
)

// PaymentGateway описывает внешний платёжный шлюз.
type PaymentGateway interface {
	GenerateClientToken(ctx context.Context) (string, error)
	Sale(ctx context.Context, req model.SaleRequest) (*model.SaleResult, error)
}

// OrderLedger сохраняет оплаченные заказы. CreateOrder должен быть идемпотентен по ID заказа.
type OrderLedger interface {
	CreateOrder(ctx context.Context, o *model.Order) error
}

// IdempotencyStore хранит ключи идемпотентности попыток оплаты.
type IdempotencyStore interface {
	ClaimPayment(ctx context.Context, buyer uuid.UUID, key string, window time.Duration) (*model.PaymentAttempt, bool, error)
	CompletePayment(ctx context.Context, buyer uuid.UUID, key string, orderID uuid.UUID) error
	ReleasePayment(ctx context.Context, buyer uuid.UUID, key string) error
}

// CheckoutConfig задаёт ограничения процесса оплаты.
type CheckoutConfig struct {
	GatewayTimeout    time.Duration
	IdempotencyWindow time.Duration
}

// PaymentRequest описывает запрос покупателя на оплату корзины.
type PaymentRequest struct {
	Cart           model.Cart
	Nonce          string
	IdempotencyKey string
}

// CheckoutResult описывает успешную оплату.
type CheckoutResult struct {
	OK            bool
	OrderID       uuid.UUID
	TransactionID string
	// Replayed означает, что результат взят из ранее завершённой попытки с тем же ключом.
	Replayed bool
}

// CheckoutFlow проводит оплату корзины через шлюз и записывает заказ.
type CheckoutFlow struct {
	gateway    PaymentGateway
	ledger     OrderLedger
	attempts   IdempotencyStore
	reconciler *Reconciler
	logger     *zap.Logger
	cfg        CheckoutConfig
	now        func() time.Time
}

// NewCheckoutFlow создаёт процесс оплаты. reconciler может быть nil.
func NewCheckoutFlow(gateway PaymentGateway, ledger OrderLedger, attempts IdempotencyStore,
	reconciler *Reconciler, logger *zap.Logger, cfg CheckoutConfig) *CheckoutFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.IdempotencyWindow <= 0 {
		cfg.IdempotencyWindow = 24 * time.Hour
	}
	return &CheckoutFlow{
		gateway:    gateway,
		ledger:     ledger,
		attempts:   attempts,
		reconciler: reconciler,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IssueClientToken запрашивает у шлюза новый клиентский токен.
func (f *CheckoutFlow) IssueClientToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.GatewayTimeout)
	defer cancel()

	token, err := f.gateway.GenerateClientToken(ctx)
	if err != nil {
		f.logger.Warn("client token generation failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return token, nil
}

// ExecutePayment списывает сумму корзины и записывает заказ покупателя.
// Заказ создаётся только после подтверждённого списания.
func (f *CheckoutFlow) ExecutePayment(ctx context.Context, identity *model.Identity, req PaymentRequest) (*CheckoutResult, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}
	if err := validatePayment(req); err != nil {
		return nil, err
	}

	buyer := identity.SubjectID
	log := f.logger.With(zap.String("buyer", buyer.String()), zap.String("idempotency_key", req.IdempotencyKey))

	attempt, claimed, err := f.attempts.ClaimPayment(ctx, buyer, req.IdempotencyKey, f.cfg.IdempotencyWindow)
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if !claimed {
		if attempt.Status == model.AttemptCompleted {
			log.Info("payment replayed", zap.String("order_id", attempt.OrderID.String()))
			return &CheckoutResult{OK: true, OrderID: attempt.OrderID, Replayed: true}, nil
		}
		return nil, ErrPaymentInProgress
	}

	orderID := uuid.New()
	amount := req.Cart.Total()

	res, err := f.sale(ctx, model.SaleRequest{
		Amount:            amount,
		Nonce:             req.Nonce,
		SettleImmediately: true,
		Reference:         orderID.String(),
	})
	if err != nil {
		f.release(ctx, log, buyer, req.IdempotencyKey)
		log.Warn("payment gateway failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if !res.Succeeded() {
		f.release(ctx, log, buyer, req.IdempotencyKey)
		log.Info("payment declined", zap.String("reason", res.Reason))
		return nil, &DeclinedError{Reason: res.Reason}
	}

	now := f.now()
	order := &model.Order{
		ID:             orderID,
		Cart:           req.Cart,
		Amount:         amount,
		Settlement:     *res.Settlement,
		Buyer:          buyer,
		Status:         model.OrderStatusNotProcessed,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Деньги уже списаны: отмена запроса клиентом не должна прерывать запись.
	persistCtx := context.WithoutCancel(ctx)

	if err := f.ledger.CreateOrder(persistCtx, order); err != nil {
		log.Error("order not persisted after successful charge, reconciliation required",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", order.Settlement.TransactionID),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err),
		)
		if f.reconciler != nil {
			f.reconciler.Enqueue(order)
		}
		return nil, &ReconciliationError{
			OrderID:       order.ID,
			TransactionID: order.Settlement.TransactionID,
			Err:           err,
		}
	}

	if err := f.attempts.CompletePayment(persistCtx, buyer, req.IdempotencyKey, order.ID); err != nil {
		log.Warn("failed to complete idempotency claim", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	log.Info("payment completed",
		zap.String("order_id", order.ID.String()),
		zap.String("transaction_id", order.Settlement.TransactionID),
		zap.String("amount", amount.StringFixed(2)),
	)

	return &CheckoutResult{OK: true, OrderID: order.ID, TransactionID: order.Settlement.TransactionID}, nil
}

func (f *CheckoutFlow) sale(ctx context.Context, req model.SaleRequest) (*model.SaleResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.GatewayTimeout)
	defer cancel()

	res, err := f.gateway.Sale(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("empty sale result")
	}
	return res, nil
}

func (f *CheckoutFlow) release(ctx context.Context, log *zap.Logger, buyer uuid.UUID, key string) {
	if err := f.attempts.ReleasePayment(context.WithoutCancel(ctx), buyer, key); err != nil {
		log.Warn("failed to release idempotency claim", zap.Error(err))
	}
}

func validatePayment(req PaymentRequest) error {
	if len(req.Cart) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrInvalidCart)
	}
	for i, line := range req.Cart {
		if !line.Price.IsPositive() {
			return fmt.Errorf("%w: line %d has non-positive price", ErrInvalidCart, i)
		}
		// Шлюзы и журнал заказов работают в центах.
		if !line.Price.Equal(line.Price.Round(2)) {
			return fmt.Errorf("%w: line %d price is finer than one cent", ErrInvalidCart, i)
		}
	}
	if req.Nonce == "" {
		return fmt.Errorf("%w: payment method nonce is empty", ErrInvalidCart)
	}
	if req.IdempotencyKey == "" {
		return ErrMissingIdempotencyKey
	}
	return nil
}
