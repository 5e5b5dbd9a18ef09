package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storefront/internal/model"
)

const orderColumns = `id, buyer_id, cart, amount_cents, settlement, status, idempotency_key, created_at, updated_at`

// CreateOrder сохраняет оплаченный заказ. Повторная запись того же заказа ничего не меняет,
// поэтому вызов можно безопасно повторять.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	cart, err := json.Marshal(o.Cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	settlement, err := json.Marshal(o.Settlement)
	if err != nil {
		return fmt.Errorf("encode settlement: %w", err)
	}

	return withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO orders (`+orderColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO NOTHING`,
			o.ID, o.Buyer, cart, toCents(o.Amount), settlement, string(o.Status), o.IdempotencyKey, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
}

// GetOrdersByBuyer возвращает заказы покупателя, начиная с новых.
func (r *PostgresRepository) GetOrdersByBuyer(ctx context.Context, buyer uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`,
		buyer,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return scanOrders(rows)
}

// GetAllOrders возвращает все заказы, начиная с новых.
func (r *PostgresRepository) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return scanOrders(rows)
}

// UpdateOrderStatus меняет статус заказа и возвращает обновлённый заказ.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1 RETURNING `+orderColumns,
		id, string(status), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return &orders[0], nil
}

func scanOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		var (
			o           model.Order
			cart        []byte
			settlement  []byte
			amountCents int64
			status      string
		)
		if err := rows.Scan(&o.ID, &o.Buyer, &cart, &amountCents, &settlement, &status,
			&o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if err := json.Unmarshal(cart, &o.Cart); err != nil {
			return nil, fmt.Errorf("decode cart: %w", err)
		}
		if err := json.Unmarshal(settlement, &o.Settlement); err != nil {
			return nil, fmt.Errorf("decode settlement: %w", err)
		}
		o.Amount = fromCents(amountCents)
		o.Status = model.OrderStatus(status)
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ClaimPayment атомарно захватывает ключ идемпотентности покупателя.
// Если ключ уже занят и не старше window, возвращает существующую попытку и false.
func (r *PostgresRepository) ClaimPayment(ctx context.Context, buyer uuid.UUID, key string, window time.Duration) (*model.PaymentAttempt, bool, error) {
	var (
		attempt *model.PaymentAttempt
		claimed bool
	)

	err := withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO payment_attempts (buyer_id, idempotency_key, status, created_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (buyer_id, idempotency_key) DO UPDATE
			 SET status = EXCLUDED.status, order_id = NULL, created_at = now()
			 WHERE payment_attempts.created_at < now() - make_interval(secs => $4)`,
			buyer, key, string(model.AttemptPending), window.Seconds(),
		)
		if err != nil {
			return fmt.Errorf("claim payment: %w", err)
		}

		if tag.RowsAffected() == 1 {
			claimed = true
			attempt = &model.PaymentAttempt{Buyer: buyer, Key: key, Status: model.AttemptPending, CreatedAt: time.Now().UTC()}
			return nil
		}

		var (
			status  string
			orderID uuid.NullUUID
			a       = model.PaymentAttempt{Buyer: buyer, Key: key}
		)
		err = r.pool.QueryRow(ctx,
			`SELECT status, order_id, created_at FROM payment_attempts WHERE buyer_id = $1 AND idempotency_key = $2`,
			buyer, key,
		).Scan(&status, &orderID, &a.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("claim payment: attempt released concurrently")
			}
			return fmt.Errorf("select payment attempt: %w", err)
		}
		a.Status = model.AttemptStatus(status)
		if orderID.Valid {
			a.OrderID = orderID.UUID
		}
		attempt = &a
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return attempt, claimed, nil
}

// CompletePayment отмечает попытку завершённой и привязывает к ней заказ.
func (r *PostgresRepository) CompletePayment(ctx context.Context, buyer uuid.UUID, key string, orderID uuid.UUID) error {
	return withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE payment_attempts SET status = $3, order_id = $4 WHERE buyer_id = $1 AND idempotency_key = $2`,
			buyer, key, string(model.AttemptCompleted), orderID,
		)
		if err != nil {
			return fmt.Errorf("complete payment: %w", err)
		}
		return nil
	})
}

// ReleasePayment освобождает незавершённую попытку, чтобы покупатель мог повторить оплату.
func (r *PostgresRepository) ReleasePayment(ctx context.Context, buyer uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM payment_attempts WHERE buyer_id = $1 AND idempotency_key = $2 AND status = $3`,
		buyer, key, string(model.AttemptPending),
	)
	if err != nil {
		return fmt.Errorf("release payment: %w", err)
	}
	return nil
}
