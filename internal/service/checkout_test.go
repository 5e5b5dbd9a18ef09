package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/storefront/internal/model"
)

func line(price string, qty int) model.CartLine {
	return model.CartLine{ProductID: uuid.NewString(), Price: decimal.RequireFromString(price), Quantity: qty}
}

func newTestFlow(gw PaymentGateway, ledger OrderLedger, attempts IdempotencyStore) *CheckoutFlow {
	return NewCheckoutFlow(gw, ledger, attempts, nil, zap.NewNop(), CheckoutConfig{
		GatewayTimeout:    time.Second,
		IdempotencyWindow: time.Hour,
	})
}

func TestExecutePayment_RecordsOrderForAcceptedCharge(t *testing.T) {
	gw := acceptingGateway("tx-1")
	ledger := newMemoryLedger()
	attempts := newMemoryAttempts()
	flow := newTestFlow(gw, ledger, attempts)

	identity := &model.Identity{SubjectID: uuid.New()}
	res, err := flow.ExecutePayment(context.Background(), identity, PaymentRequest{
		Cart:           model.Cart{line("20", 1), line("5", 3)},
		Nonce:          "fake-valid-nonce",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Replayed)
	assert.Equal(t, "tx-1", res.TransactionID)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Amount.Equal(decimal.NewFromInt(25)), "amount = %s", calls[0].Amount)
	assert.Equal(t, "fake-valid-nonce", calls[0].Nonce)
	assert.True(t, calls[0].SettleImmediately)
	assert.Equal(t, res.OrderID.String(), calls[0].Reference)

	orders := ledger.Orders()
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, res.OrderID, o.ID)
	assert.Equal(t, identity.SubjectID, o.Buyer)
	assert.Equal(t, "tx-1", o.Settlement.TransactionID)
	assert.Equal(t, model.OrderStatusNotProcessed, o.Status)
	assert.True(t, o.Amount.Equal(decimal.NewFromInt(25)))
	assert.Len(t, o.Cart, 2)

	a, ok := attempts.Get(identity.SubjectID, "key-1")
	require.True(t, ok)
	assert.Equal(t, model.AttemptCompleted, a.Status)
	assert.Equal(t, res.OrderID, a.OrderID)
}

// Количество позиции сознательно не входит в сумму списания.
func TestExecutePayment_QuantityIgnoredInTotal(t *testing.T) {
	gw := acceptingGateway("tx-1")
	flow := newTestFlow(gw, newMemoryLedger(), newMemoryAttempts())

	_, err := flow.ExecutePayment(context.Background(), &model.Identity{SubjectID: uuid.New()}, PaymentRequest{
		Cart:           model.Cart{line("10.50", 4), line("0.25", 100)},
		Nonce:          "nonce",
		IdempotencyKey: "key",
	})
	require.NoError(t, err)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "10.75", calls[0].Amount.StringFixed(2))
}

func TestExecutePayment_DeclineRecordsNothing(t *testing.T) {
	gw := &fakeGateway{result: &model.SaleResult{Reason: "processor_declined"}}
	ledger := newMemoryLedger()
	attempts := newMemoryAttempts()
	flow := newTestFlow(gw, ledger, attempts)
	buyer := uuid.New()

	res, err := flow.ExecutePayment(context.Background(), &model.Identity{SubjectID: buyer}, PaymentRequest{
		Cart:           model.Cart{line("20", 1), line("5", 3)},
		Nonce:          "fake-valid-nonce",
		IdempotencyKey: "key-1",
	})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPaymentDeclined))

	var declined *DeclinedError
	require.True(t, errors.As(err, &declined))
	assert.Equal(t, "processor_declined", declined.Reason)

	assert.Empty(t, ledger.Orders())
	_, claimed := attempts.Get(buyer, "key-1")
	assert.False(t, claimed, "declined attempt must release its key")
}

func TestExecutePayment_GatewayFailureRecordsNothing(t *testing.T) {
	tests := []struct {
		name string
		gw   *fakeGateway
	}{
		{name: "transport error", gw: &fakeGateway{err: errors.New("connection reset by peer")}},
		{name: "timeout", gw: &fakeGateway{block: true}},
		{name: "empty result", gw: &fakeGateway{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemoryLedger()
			attempts := newMemoryAttempts()
			flow := NewCheckoutFlow(tt.gw, ledger, attempts, nil, zap.NewNop(), CheckoutConfig{
				GatewayTimeout:    50 * time.Millisecond,
				IdempotencyWindow: time.Hour,
			})
			buyer := uuid.New()

			res, err := flow.ExecutePayment(context.Background(), &model.Identity{SubjectID: buyer}, PaymentRequest{
				Cart:           model.Cart{line("20", 1)},
				Nonce:          "nonce",
				IdempotencyKey: "key",
			})
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrGateway), "got %v", err)
			assert.False(t, errors.Is(err, ErrPaymentDeclined))
			assert.Empty(t, ledger.Orders())

			_, claimed := attempts.Get(buyer, "key")
			assert.False(t, claimed)
		})
	}
}

func TestExecutePayment_RejectsBeforeCharging(t *testing.T) {
	valid := PaymentRequest{Cart: model.Cart{line("20", 1)}, Nonce: "nonce", IdempotencyKey: "key"}
	identity := &model.Identity{SubjectID: uuid.New()}

	tests := []struct {
		name     string
		identity *model.Identity
		req      func(r PaymentRequest) PaymentRequest
		want     error
	}{
		{
			name: "no identity",
			req:  func(r PaymentRequest) PaymentRequest { return r },
			want: ErrUnauthenticated,
		},
		{
			name:     "empty cart",
			identity: identity,
			req:      func(r PaymentRequest) PaymentRequest { r.Cart = nil; return r },
			want:     ErrInvalidCart,
		},
		{
			name:     "zero price",
			identity: identity,
			req: func(r PaymentRequest) PaymentRequest {
				r.Cart = model.Cart{line("20", 1), line("0", 1)}
				return r
			},
			want: ErrInvalidCart,
		},
		{
			name:     "negative price",
			identity: identity,
			req:      func(r PaymentRequest) PaymentRequest { r.Cart = model.Cart{line("-1", 1)}; return r },
			want:     ErrInvalidCart,
		},
		{
			name:     "price below one cent",
			identity: identity,
			req:      func(r PaymentRequest) PaymentRequest { r.Cart = model.Cart{line("0.004", 1)}; return r },
			want:     ErrInvalidCart,
		},
		{
			name:     "price with fractional cents",
			identity: identity,
			req: func(r PaymentRequest) PaymentRequest {
				r.Cart = model.Cart{line("20", 1), line("10.005", 1)}
				return r
			},
			want: ErrInvalidCart,
		},
		{
			name:     "empty nonce",
			identity: identity,
			req:      func(r PaymentRequest) PaymentRequest { r.Nonce = ""; return r },
			want:     ErrInvalidCart,
		},
		{
			name:     "missing idempotency key",
			identity: identity,
			req:      func(r PaymentRequest) PaymentRequest { r.IdempotencyKey = ""; return r },
			want:     ErrMissingIdempotencyKey,
		},
		{
			name:     "first failing precondition wins",
			identity: identity,
			req: func(r PaymentRequest) PaymentRequest {
				r.Cart = nil
				r.IdempotencyKey = ""
				return r
			},
			want: ErrInvalidCart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := acceptingGateway("tx")
			ledger := newMemoryLedger()
			attempts := newMemoryAttempts()
			flow := newTestFlow(gw, ledger, attempts)

			res, err := flow.ExecutePayment(context.Background(), tt.identity, tt.req(valid))
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			assert.Empty(t, gw.Calls())
			assert.Empty(t, ledger.Orders())
			assert.Empty(t, attempts.attempts)
		})
	}
}

func TestExecutePayment_ReplaysCompletedAttempt(t *testing.T) {
	gw := acceptingGateway("tx-1")
	ledger := newMemoryLedger()
	flow := newTestFlow(gw, ledger, newMemoryAttempts())
	identity := &model.Identity{SubjectID: uuid.New()}
	req := PaymentRequest{Cart: model.Cart{line("20", 1)}, Nonce: "nonce", IdempotencyKey: "key"}

	first, err := flow.ExecutePayment(context.Background(), identity, req)
	require.NoError(t, err)

	second, err := flow.ExecutePayment(context.Background(), identity, req)
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderID, second.OrderID)

	assert.Len(t, gw.Calls(), 1)
	assert.Len(t, ledger.Orders(), 1)
}

func TestExecutePayment_KeysAreScopedToBuyer(t *testing.T) {
	gw := acceptingGateway("tx")
	ledger := newMemoryLedger()
	flow := newTestFlow(gw, ledger, newMemoryAttempts())
	req := PaymentRequest{Cart: model.Cart{line("20", 1)}, Nonce: "nonce", IdempotencyKey: "same"}

	_, err := flow.ExecutePayment(context.Background(), &model.Identity{SubjectID: uuid.New()}, req)
	require.NoError(t, err)
	_, err = flow.ExecutePayment(context.Background(), &model.Identity{SubjectID: uuid.New()}, req)
	require.NoError(t, err)

	assert.Len(t, gw.Calls(), 2)
	assert.Len(t, ledger.Orders(), 2)
}

func TestExecutePayment_PendingAttemptConflicts(t *testing.T) {
	gw := acceptingGateway("tx")
	attempts := newMemoryAttempts()
	flow := newTestFlow(gw, newMemoryLedger(), attempts)
	buyer := uuid.New()

	_, claimed, err := attempts.ClaimPayment(context.Background(), buyer, "key", time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = flow.ExecutePayment(context.Background(), &model.Identity{SubjectID: buyer}, PaymentRequest{
		Cart:           model.Cart{line("20", 1)},
		Nonce:          "nonce",
		IdempotencyKey: "key",
	})
	assert.True(t, errors.Is(err, ErrPaymentInProgress))
	assert.Empty(t, gw.Calls())
}

func TestExecutePayment_RetryAfterDecline(t *testing.T) {
	gw := &fakeGateway{result: &model.SaleResult{Reason: "processor_declined"}}
	ledger := newMemoryLedger()
	flow := newTestFlow(gw, ledger, newMemoryAttempts())
	identity := &model.Identity{SubjectID: uuid.New()}
	req := PaymentRequest{Cart: model.Cart{line("20", 1)}, Nonce: "nonce", IdempotencyKey: "key"}

	_, err := flow.ExecutePayment(context.Background(), identity, req)
	require.True(t, errors.Is(err, ErrPaymentDeclined))

	gw.mu.Lock()
	gw.result = &model.SaleResult{Settlement: &model.Settlement{TransactionID: "tx-2"}}
	gw.mu.Unlock()

	res, err := flow.ExecutePayment(context.Background(), identity, req)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Len(t, ledger.Orders(), 1)
}

func TestExecutePayment_PersistenceFailureNeedsReconciliation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	gw := acceptingGateway("tx-42")
	ledger := newMemoryLedger()
	ledger.failures = -1
	attempts := newMemoryAttempts()
	reconciler := NewReconciler(ledger, attempts, logger, time.Hour, 3)
	flow := NewCheckoutFlow(gw, ledger, attempts, reconciler, logger, CheckoutConfig{GatewayTimeout: time.Second})
	buyer := uuid.New()

	res, err := flow.ExecutePayment(context.Background(), &model.Identity{SubjectID: buyer}, PaymentRequest{
		Cart:           model.Cart{line("20", 1)},
		Nonce:          "nonce",
		IdempotencyKey: "key",
	})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))

	var recErr *ReconciliationError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, "tx-42", recErr.TransactionID)

	assert.Equal(t, 1, reconciler.Pending())
	a, ok := attempts.Get(buyer, "key")
	require.True(t, ok)
	assert.Equal(t, model.AttemptPending, a.Status)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tx-42", entries[0].ContextMap()["transaction_id"])
}

func TestExecutePayment_ConcurrentConsumedNonceChargesOnce(t *testing.T) {
	gw := &fakeGateway{consumed: make(map[string]bool)}
	ledger := newMemoryLedger()
	flow := newTestFlow(gw, ledger, newMemoryAttempts())
	identity := &model.Identity{SubjectID: uuid.New()}

	const workers = 2
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		declined int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := flow.ExecutePayment(context.Background(), identity, PaymentRequest{
				Cart:           model.Cart{line("20", 1), line("5", 3)},
				Nonce:          "fake-valid-nonce",
				IdempotencyKey: fmt.Sprintf("key-%d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrPaymentDeclined):
				declined++
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, declined)
	assert.Len(t, ledger.Orders(), 1)
}

func TestExecutePayment_ConcurrentSameKeyChargesOnce(t *testing.T) {
	gw := &fakeGateway{consumed: make(map[string]bool)}
	ledger := newMemoryLedger()
	flow := newTestFlow(gw, ledger, newMemoryAttempts())
	identity := &model.Identity{SubjectID: uuid.New()}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = flow.ExecutePayment(context.Background(), identity, PaymentRequest{
				Cart:           model.Cart{line("20", 1)},
				Nonce:          "nonce",
				IdempotencyKey: "same-key",
			})
		}()
	}
	wg.Wait()

	assert.Len(t, gw.Calls(), 1)
	assert.Len(t, ledger.Orders(), 1)
}

func TestIssueClientToken(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		flow := newTestFlow(&fakeGateway{token: "client-token"}, newMemoryLedger(), newMemoryAttempts())
		token, err := flow.IssueClientToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "client-token", token)
	})

	t.Run("gateway failure", func(t *testing.T) {
		flow := newTestFlow(&fakeGateway{tokenErr: errors.New("boom")}, newMemoryLedger(), newMemoryAttempts())
		_, err := flow.IssueClientToken(context.Background())
		assert.True(t, errors.Is(err, ErrGateway))
	})
}
