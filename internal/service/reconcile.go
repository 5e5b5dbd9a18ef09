package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
)

type pendingOrder struct {
	order    *model.Order
	attempts int
}

// Reconciler повторяет запись заказов, оплата которых прошла, а сохранение не удалось.
type Reconciler struct {
	ledger      OrderLedger
	attempts    IdempotencyStore
	logger      *zap.Logger
	interval    time.Duration
	maxAttempts int

	mu    sync.Mutex
	queue []pendingOrder
}

// NewReconciler создаёт фонового исполнителя сверки. attempts может быть nil.
func NewReconciler(ledger OrderLedger, attempts IdempotencyStore, logger *zap.Logger, interval time.Duration, maxAttempts int) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Reconciler{
		ledger:      ledger,
		attempts:    attempts,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Enqueue ставит заказ в очередь на повторную запись.
func (r *Reconciler) Enqueue(o *model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, pendingOrder{order: o})
}

// Pending возвращает число заказов, ожидающих записи.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Run обрабатывает очередь до отмены контекста.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.abandon(ctx.Err())
			return nil
		case <-ticker.C:
			r.reconcileBatch(ctx)
		}
	}
}

// abandon снимает с очереди все незаписанные заказы и сообщает о каждом.
func (r *Reconciler) abandon(cause error) {
	r.mu.Lock()
	left := r.queue
	r.queue = nil
	r.mu.Unlock()

	if len(left) == 0 {
		return
	}
	r.logger.Error("reconciler stopped with unpersisted orders", zap.Int("pending", len(left)))
	for _, p := range left {
		r.alert(p, cause)
	}
}

func (r *Reconciler) alert(p pendingOrder, err error) {
	o := p.order
	r.logger.Error("manual reconciliation required",
		zap.String("order_id", o.ID.String()),
		zap.String("buyer", o.Buyer.String()),
		zap.String("transaction_id", o.Settlement.TransactionID),
		zap.String("amount", o.Amount.StringFixed(2)),
		zap.Int("attempts", p.attempts),
		zap.Error(err),
	)
}

func (r *Reconciler) reconcileBatch(ctx context.Context) {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.mu.Unlock()

	var retry []pendingOrder
	for _, p := range batch {
		if ctx.Err() != nil {
			retry = append(retry, p)
			continue
		}

		o := p.order
		if err := r.ledger.CreateOrder(ctx, o); err != nil {
			p.attempts++
			if p.attempts >= r.maxAttempts {
				r.alert(p, err)
				continue
			}
			r.logger.Warn("order reconciliation failed",
				zap.String("order_id", o.ID.String()),
				zap.Int("attempts", p.attempts),
				zap.Error(err),
			)
			retry = append(retry, p)
			continue
		}

		if r.attempts != nil {
			if err := r.attempts.CompletePayment(ctx, o.Buyer, o.IdempotencyKey, o.ID); err != nil {
				r.logger.Warn("failed to complete idempotency claim", zap.String("order_id", o.ID.String()), zap.Error(err))
			}
		}
		r.logger.Info("order reconciled",
			zap.String("order_id", o.ID.String()),
			zap.String("transaction_id", o.Settlement.TransactionID),
		)
	}

	if len(retry) > 0 {
		r.mu.Lock()
		r.queue = append(retry, r.queue...)
		r.mu.Unlock()
	}
}
