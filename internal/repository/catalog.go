package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
)

// CreateCategory сохраняет новую категорию.
func (r *PostgresRepository) CreateCategory(ctx context.Context, c *model.Category) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3)`,
		c.ID, c.Name, c.Slug,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrCategoryExists, c.Name)
		}
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// UpdateCategory переименовывает категорию.
func (r *PostgresRepository) UpdateCategory(ctx context.Context, c *model.Category) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE categories SET name = $2, slug = $3 WHERE id = $1`,
		c.ID, c.Name, c.Slug,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrCategoryExists, c.Name)
		}
		return fmt.Errorf("update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// ListCategories возвращает все категории по алфавиту.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var res []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetCategoryBySlug возвращает категорию по slug.
func (r *PostgresRepository) GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	var c model.Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, slug FROM categories WHERE slug = $1`, slug).
		Scan(&c.ID, &c.Name, &c.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// DeleteCategory удаляет категорию. Категорию с товарами удалить нельзя.
func (r *PostgresRepository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrCategoryInUse
		}
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

const productColumns = `id, name, slug, description, price_cents, category_id, quantity, shipping, created_at, updated_at`

// CreateProduct сохраняет новый товар.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (id, name, slug, description, price_cents, category_id, quantity, shipping, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Slug, p.Description, toCents(p.Price), p.CategoryID, p.Quantity, p.Shipping, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// UpdateProduct перезаписывает поля товара.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p *model.Product) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products
		 SET name = $2, slug = $3, description = $4, price_cents = $5, category_id = $6,
		     quantity = $7, shipping = $8, updated_at = $9
		 WHERE id = $1`,
		p.ID, p.Name, p.Slug, p.Description, toCents(p.Price), p.CategoryID, p.Quantity, p.Shipping, p.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetProductBySlug возвращает товар по slug.
func (r *PostgresRepository) GetProductBySlug(ctx context.Context, slug string) (*model.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1 LIMIT 1`, slug)
	if err != nil {
		return nil, fmt.Errorf("select product: %w", err)
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrProductNotFound
	}
	return &products[0], nil
}

// DeleteProduct удаляет товар.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListProducts возвращает товары, начиная с самых новых.
func (r *PostgresRepository) ListProducts(ctx context.Context, limit, offset int) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return scanProducts(rows)
}

// CountProducts возвращает общее число товаров.
func (r *PostgresRepository) CountProducts(ctx context.Context) (int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

// ProductFilter задаёт необязательные условия отбора товаров.
type ProductFilter struct {
	CategoryIDs []uuid.UUID
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
}

// FilterProducts возвращает товары из указанных категорий в указанном диапазоне цен.
func (r *PostgresRepository) FilterProducts(ctx context.Context, f ProductFilter) ([]model.Product, error) {
	var (
		conds []string
		args  []any
	)

	if len(f.CategoryIDs) > 0 {
		ids := make([]string, 0, len(f.CategoryIDs))
		for _, id := range f.CategoryIDs {
			ids = append(ids, id.String())
		}
		args = append(args, ids)
		conds = append(conds, fmt.Sprintf("category_id = ANY($%d::uuid[])", len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, toCents(*f.MinPrice))
		conds = append(conds, fmt.Sprintf("price_cents >= $%d", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, toCents(*f.MaxPrice))
		conds = append(conds, fmt.Sprintf("price_cents <= $%d", len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter products: %w", err)
	}
	return scanProducts(rows)
}

// SearchProducts ищет товары по подстроке в названии или описании без учёта регистра.
func (r *PostgresRepository) SearchProducts(ctx context.Context, keyword string) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		 ORDER BY created_at DESC`,
		keyword,
	)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return scanProducts(rows)
}

// RelatedProducts возвращает другие товары той же категории.
func (r *PostgresRepository) RelatedProducts(ctx context.Context, productID, categoryID uuid.UUID, limit int) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE category_id = $1 AND id <> $2
		 ORDER BY created_at DESC LIMIT $3`,
		categoryID, productID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("related products: %w", err)
	}
	return scanProducts(rows)
}

// ProductsByCategory возвращает все товары категории.
func (r *PostgresRepository) ProductsByCategory(ctx context.Context, categoryID uuid.UUID) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE category_id = $1 ORDER BY created_at DESC`,
		categoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("products by category: %w", err)
	}
	return scanProducts(rows)
}

func scanProducts(rows pgx.Rows) ([]model.Product, error) {
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		var (
			p          model.Product
			priceCents int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &priceCents, &p.CategoryID,
			&p.Quantity, &p.Shipping, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Price = fromCents(priceCents)
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
