package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront/internal/model"
)

type fakeGateway struct {
	mu sync.Mutex

	token    string
	tokenErr error

	result *model.SaleResult
	err    error
	// block ждёт отмены контекста вызова Sale.
	block bool
	// consumed включает одноразовые nonce: повторное использование отклоняется.
	consumed map[string]bool

	calls []model.SaleRequest
}

func (g *fakeGateway) GenerateClientToken(ctx context.Context) (string, error) {
	return g.token, g.tokenErr
}

func (g *fakeGateway) Sale(ctx context.Context, req model.SaleRequest) (*model.SaleResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	block := g.block
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}
	if g.consumed != nil {
		if g.consumed[req.Nonce] {
			return &model.SaleResult{Reason: "payment_method_nonce_consumed"}, nil
		}
		g.consumed[req.Nonce] = true
		return &model.SaleResult{Settlement: &model.Settlement{
			TransactionID: uuid.NewString(),
			Status:        "SUBMITTED_FOR_SETTLEMENT",
			Amount:        req.Amount,
			Provider:      "fake",
		}}, nil
	}
	return g.result, nil
}

func (g *fakeGateway) Calls() []model.SaleRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.SaleRequest(nil), g.calls...)
}

func acceptingGateway(txID string) *fakeGateway {
	return &fakeGateway{result: &model.SaleResult{Settlement: &model.Settlement{
		TransactionID: txID,
		Status:        "SUBMITTED_FOR_SETTLEMENT",
		Provider:      "fake",
	}}}
}

type memoryLedger struct {
	mu     sync.Mutex
	orders map[uuid.UUID]model.Order
	// failures задаёт число следующих вызовов CreateOrder, которые завершатся ошибкой. -1 означает все.
	failures int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{orders: make(map[uuid.UUID]model.Order)}
}

func (l *memoryLedger) CreateOrder(ctx context.Context, o *model.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failures != 0 {
		if l.failures > 0 {
			l.failures--
		}
		return errors.New("connection refused")
	}
	l.orders[o.ID] = *o
	return nil
}

func (l *memoryLedger) Orders() []model.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := make([]model.Order, 0, len(l.orders))
	for _, o := range l.orders {
		res = append(res, o)
	}
	return res
}

type attemptKey struct {
	buyer uuid.UUID
	key   string
}

type memoryAttempts struct {
	mu       sync.Mutex
	attempts map[attemptKey]model.PaymentAttempt
}

func newMemoryAttempts() *memoryAttempts {
	return &memoryAttempts{attempts: make(map[attemptKey]model.PaymentAttempt)}
}

func (m *memoryAttempts) ClaimPayment(ctx context.Context, buyer uuid.UUID, key string, window time.Duration) (*model.PaymentAttempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := attemptKey{buyer: buyer, key: key}
	if existing, ok := m.attempts[k]; ok && time.Since(existing.CreatedAt) < window {
		return &existing, false, nil
	}
	a := model.PaymentAttempt{Buyer: buyer, Key: key, Status: model.AttemptPending, CreatedAt: time.Now()}
	m.attempts[k] = a
	return &a, true, nil
}

func (m *memoryAttempts) CompletePayment(ctx context.Context, buyer uuid.UUID, key string, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := attemptKey{buyer: buyer, key: key}
	a := m.attempts[k]
	a.Status = model.AttemptCompleted
	a.OrderID = orderID
	m.attempts[k] = a
	return nil
}

func (m *memoryAttempts) ReleasePayment(ctx context.Context, buyer uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := attemptKey{buyer: buyer, key: key}
	if a, ok := m.attempts[k]; ok && a.Status == model.AttemptPending {
		delete(m.attempts, k)
	}
	return nil
}

func (m *memoryAttempts) Get(buyer uuid.UUID, key string) (model.PaymentAttempt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptKey{buyer: buyer, key: key}]
	return a, ok
}
