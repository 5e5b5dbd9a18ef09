// Package service реализует бизнес-логику витрины: учётные записи, каталог и оплату заказов.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error

	CreateCategory(ctx context.Context, c *model.Category) error
	UpdateCategory(ctx context.Context, c *model.Category) error
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	CreateProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	GetProductBySlug(ctx context.Context, slug string) (*model.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ListProducts(ctx context.Context, limit, offset int) ([]model.Product, error)
	CountProducts(ctx context.Context) (int64, error)
	FilterProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error)
	SearchProducts(ctx context.Context, keyword string) ([]model.Product, error)
	RelatedProducts(ctx context.Context, productID, categoryID uuid.UUID, limit int) ([]model.Product, error)
	ProductsByCategory(ctx context.Context, categoryID uuid.UUID) ([]model.Product, error)

	GetOrdersByBuyer(ctx context.Context, buyer uuid.UUID) ([]model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error)
}

// TokenIssuer выпускает токены идентичности для вошедших пользователей.
type TokenIssuer interface {
	Issue(subject uuid.UUID, now time.Time) (string, error)
}

// Service содержит бизнес-логику учётных записей и каталога.
type Service struct {
	repo     Repository
	tokens   TokenIssuer
	logger   *zap.Logger
	hashCost int
	now      func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и выпускающим токены.
func NewService(repo Repository, tokens TokenIssuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		tokens:   tokens,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}
