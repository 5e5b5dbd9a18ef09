package service

import (
	"context"
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

func capturedOrder(buyer uuid.UUID, key string) *model.Order {
	return &model.Order{
		ID:             uuid.New(),
		Cart:           model.Cart{{ProductID: "p1", Price: decimal.NewFromInt(20), Quantity: 1}},
		Amount:         decimal.NewFromInt(20),
		Settlement:     model.Settlement{TransactionID: "tx-1", Amount: decimal.NewFromInt(20)},
		Buyer:          buyer,
		Status:         model.OrderStatusNotProcessed,
		IdempotencyKey: key,
	}
}

func TestReconciler_PersistsAfterTransientFailure(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.failures = 1
	attempts := newMemoryAttempts()
	r := NewReconciler(ledger, attempts, zap.NewNop(), time.Hour, 3)

	buyer := uuid.New()
	_, _, err := attempts.ClaimPayment(context.Background(), buyer, "key", time.Hour)
	require.NoError(t, err)

	o := capturedOrder(buyer, "key")
	r.Enqueue(o)

	r.reconcileBatch(context.Background())
	assert.Equal(t, 1, r.Pending())
	assert.Empty(t, ledger.Orders())

	r.reconcileBatch(context.Background())
	assert.Equal(t, 0, r.Pending())
	require.Len(t, ledger.Orders(), 1)
	assert.Equal(t, o.ID, ledger.Orders()[0].ID)

	a, ok := attempts.Get(buyer, "key")
	require.True(t, ok)
	assert.Equal(t, model.AttemptCompleted, a.Status)
	assert.Equal(t, o.ID, a.OrderID)
}

func TestReconciler_GivesUpAfterMaxAttempts(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ledger := newMemoryLedger()
	ledger.failures = -1
	r := NewReconciler(ledger, nil, zap.New(core), time.Hour, 2)

	o := capturedOrder(uuid.New(), "key")
	r.Enqueue(o)

	r.reconcileBatch(context.Background())
	assert.Equal(t, 1, r.Pending())
	r.reconcileBatch(context.Background())
	assert.Equal(t, 0, r.Pending())

	alerts := logs.FilterMessage("manual reconciliation required").All()
	require.Len(t, alerts, 1)
	fields := alerts[0].ContextMap()
	assert.Equal(t, o.ID.String(), fields["order_id"])
	assert.Equal(t, "tx-1", fields["transaction_id"])
	assert.Equal(t, "20.00", fields["amount"])
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	ledger := newMemoryLedger()
	r := NewReconciler(ledger, nil, zap.NewNop(), 10*time.Millisecond, 3)
	r.Enqueue(capturedOrder(uuid.New(), "key"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.Pending() == 0 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Len(t, ledger.Orders(), 1)
}

func TestReconciler_RunReportsEachOrderOnCancel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ledger := newMemoryLedger()
	ledger.failures = -1
	r := NewReconciler(ledger, nil, zap.New(core), time.Hour, 3)

	first := capturedOrder(uuid.New(), "key-1")
	second := capturedOrder(uuid.New(), "key-2")
	second.Settlement.TransactionID = "tx-2"
	r.Enqueue(first)
	r.Enqueue(second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 0, r.Pending())
	assert.Empty(t, ledger.Orders())

	alerts := logs.FilterMessage("manual reconciliation required").All()
	require.Len(t, alerts, 2)
	for i, want := range []*model.Order{first, second} {
		fields := alerts[i].ContextMap()
		assert.Equal(t, want.ID.String(), fields["order_id"])
		assert.Equal(t, want.Buyer.String(), fields["buyer"])
		assert.Equal(t, want.Settlement.TransactionID, fields["transaction_id"])
		assert.Equal(t, "20.00", fields["amount"])
	}
	assert.Equal(t, 1, logs.FilterMessage("reconciler stopped with unpersisted orders").Len())
}
