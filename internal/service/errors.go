package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnauthenticated возвращается, если запрос не содержит проверенной личности.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden возвращается, если у пользователя недостаточно прав.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCart возвращается для пустой корзины, неположительной цены или пустого nonce.
	ErrInvalidCart = errors.New("invalid cart")
	// ErrMissingIdempotencyKey возвращается, если запрос оплаты не содержит ключа идемпотентности.
	ErrMissingIdempotencyKey = errors.New("missing idempotency key")
	// ErrPaymentInProgress возвращается, если оплата с тем же ключом ещё выполняется.
	ErrPaymentInProgress = errors.New("payment in progress")
	// ErrGateway возвращается при сбое связи с платёжным шлюзом.
	ErrGateway = errors.New("payment gateway unavailable")
	// ErrPaymentDeclined возвращается, если шлюз отклонил списание.
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPersistence возвращается, если списание прошло, а заказ сохранить не удалось.
	ErrPersistence = errors.New("order persistence failed")
	// ErrInvalidCredentials возвращается при неверном email или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidStatus возвращается для неизвестного статуса заказа.
	ErrInvalidStatus = errors.New("invalid order status")
)

// DeclinedError содержит причину отказа шлюза.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}

func (e *DeclinedError) Is(target error) bool {
	return target == ErrPaymentDeclined
}

// ReconciliationError означает, что деньги списаны, но заказ не записан.
// Такой заказ передан в Reconciler.
type ReconciliationError struct {
	OrderID       uuid.UUID
	TransactionID string
	Err           error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("order %s for transaction %s not persisted: %v", e.OrderID, e.TransactionID, e.Err)
}

func (e *ReconciliationError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}
