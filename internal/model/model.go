// Package model содержит доменные сущности сервиса витрины.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя. Числовые значения совпадают с хранимыми.
type Role int

const (
	RoleStandard Role = 0
	RoleAdmin    Role = 1
)

func (r Role) String() string {
	switch r {
	case RoleStandard:
		return "standard"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// User представляет зарегистрированного покупателя или администратора.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash []byte
	Phone        string
	Address      string
	AnswerHash   []byte
	Role         Role
	CreatedAt    time.Time
}

// Identity описывает аутентифицированного субъекта запроса.
type Identity struct {
	SubjectID uuid.UUID
	Role      Role
}

// Category описывает категорию каталога.
type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// Product описывает товар каталога.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  uuid.UUID       `json:"category_id"`
	Quantity    int             `json:"quantity"`
	Shipping    bool            `json:"shipping"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CartLine описывает позицию корзины в том виде, в котором её прислал клиент.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Cart описывает упорядоченный список позиций корзины.
type Cart []CartLine

// Total возвращает сумму цен позиций. Количество в сумме не учитывается.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c {
		total = total.Add(line.Price)
	}
	return total
}

// SaleRequest описывает запрос на списание средств у платёжного шлюза.
type SaleRequest struct {
	Amount            decimal.Decimal
	Nonce             string
	SettleImmediately bool
	// Reference передаётся шлюзу как внешний идентификатор попытки.
	Reference string
}

// Settlement описывает результат списания, возвращённый платёжным шлюзом.
type Settlement struct {
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Provider      string          `json:"provider"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// SaleResult содержит либо Settlement при успехе, либо причину отказа.
type SaleResult struct {
	Settlement *Settlement
	Reason     string
}

// Succeeded сообщает, подтвердил ли шлюз списание.
func (r *SaleResult) Succeeded() bool {
	return r != nil && r.Settlement != nil
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusNotProcessed OrderStatus = "NOT_PROCESSED"
	OrderStatusProcessing   OrderStatus = "PROCESSING"
	OrderStatusShipped      OrderStatus = "SHIPPED"
	OrderStatusDelivered    OrderStatus = "DELIVERED"
	OrderStatusCancelled    OrderStatus = "CANCELLED"
)

// Valid сообщает, является ли статус одним из известных.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNotProcessed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Order описывает оплаченный заказ.
type Order struct {
	ID             uuid.UUID
	Cart           Cart
	Amount         decimal.Decimal
	Settlement     Settlement
	Buyer          uuid.UUID
	Status         OrderStatus
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AttemptStatus описывает состояние попытки оплаты с ключом идемпотентности.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "PENDING"
	AttemptCompleted AttemptStatus = "COMPLETED"
)

// PaymentAttempt описывает захваченный ключ идемпотентности покупателя.
type PaymentAttempt struct {
	Buyer     uuid.UUID     `json:"buyer"`
	Key       string        `json:"key"`
	Status    AttemptStatus `json:"status"`
	OrderID   uuid.UUID     `json:"order_id"`
	CreatedAt time.Time     `json:"created_at"`
}
