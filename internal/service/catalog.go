package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/validation"
)

const (
	latestProductsLimit  = 12
	productsPerPage      = 6
	relatedProductsLimit = 3
)

// CategoryInput содержит данные категории.
type CategoryInput struct {
	Name string `json:"name" validate:"required"`
}

// ProductInput содержит данные товара.
type ProductInput struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
	CategoryID  uuid.UUID       `json:"category" validate:"required"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	Shipping    bool            `json:"shipping"`
}

// CreateCategory создаёт категорию.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*model.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	c := &model.Category{ID: uuid.New(), Name: in.Name, Slug: validation.Slug(in.Name)}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCategory переименовывает категорию.
func (s *Service) UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryInput) (*model.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	c := &model.Category{ID: id, Name: in.Name, Slug: validation.Slug(in.Name)}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Categories возвращает все категории.
func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

// CategoryBySlug возвращает категорию по slug.
func (s *Service) CategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	return s.repo.GetCategoryBySlug(ctx, slug)
}

// DeleteCategory удаляет категорию.
func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteCategory(ctx, id)
}

// CreateProduct создаёт товар.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Product{
		ID:          uuid.New(),
		Name:        in.Name,
		Slug:        validation.Slug(in.Name),
		Description: in.Description,
		Price:       in.Price,
		CategoryID:  in.CategoryID,
		Quantity:    in.Quantity,
		Shipping:    in.Shipping,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct перезаписывает товар.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*model.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	p := &model.Product{
		ID:          id,
		Name:        in.Name,
		Slug:        validation.Slug(in.Name),
		Description: in.Description,
		Price:       in.Price,
		CategoryID:  in.CategoryID,
		Quantity:    in.Quantity,
		Shipping:    in.Shipping,
		UpdatedAt:   s.now(),
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LatestProducts возвращает последние добавленные товары.
func (s *Service) LatestProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx, latestProductsLimit, 0)
}

// ProductBySlug возвращает товар по slug.
func (s *Service) ProductBySlug(ctx context.Context, slug string) (*model.Product, error) {
	return s.repo.GetProductBySlug(ctx, slug)
}

// DeleteProduct удаляет товар.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteProduct(ctx, id)
}

// ProductCount возвращает общее число товаров.
func (s *Service) ProductCount(ctx context.Context) (int64, error) {
	return s.repo.CountProducts(ctx)
}

// ProductPage возвращает страницу товаров. Нумерация страниц начинается с 1.
func (s *Service) ProductPage(ctx context.Context, page int) ([]model.Product, error) {
	if page < 1 {
		page = 1
	}
	return s.repo.ListProducts(ctx, productsPerPage, (page-1)*productsPerPage)
}

// FilterProducts отбирает товары по категориям и диапазону цен.
func (s *Service) FilterProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error) {
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, fmt.Errorf("%w: min price is greater than max price", validation.ErrInvalid)
	}
	return s.repo.FilterProducts(ctx, f)
}

// SearchProducts ищет товары по ключевому слову.
func (s *Service) SearchProducts(ctx context.Context, keyword string) ([]model.Product, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []model.Product{}, nil
	}
	return s.repo.SearchProducts(ctx, keyword)
}

// RelatedProducts возвращает похожие товары из той же категории.
func (s *Service) RelatedProducts(ctx context.Context, productID, categoryID uuid.UUID) ([]model.Product, error) {
	return s.repo.RelatedProducts(ctx, productID, categoryID, relatedProductsLimit)
}

// ProductsByCategory возвращает категорию по slug и её товары.
func (s *Service) ProductsByCategory(ctx context.Context, slug string) (*model.Category, []model.Product, error) {
	c, err := s.repo.GetCategoryBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	products, err := s.repo.ProductsByCategory(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, products, nil
}
