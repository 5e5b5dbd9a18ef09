package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

func TestCreateCategory_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"name": "Summer Sale"}

	rec := env.do(t, http.MethodPost, "/api/v1/category/create-category", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/category/create-category", body, map[string]string{
		"Authorization": env.token(t, env.standard),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, env.svc.categoryIn)

	rec = env.do(t, http.MethodPost, "/api/v1/category/create-category", body, map[string]string{
		"Authorization": env.token(t, env.admin),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	category := decodeBody(t, rec)["category"].(map[string]any)
	assert.Equal(t, "summer-sale", category["slug"])
}

func TestCategoryErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		status int
	}{
		{name: "duplicate", err: repository.ErrCategoryExists, method: http.MethodPost, path: "/api/v1/category/create-category", status: http.StatusConflict},
		{name: "in use", err: repository.ErrCategoryInUse, method: http.MethodDelete, path: "/api/v1/category/delete-category/" + uuid.NewString(), status: http.StatusConflict},
		{name: "not found", err: repository.ErrCategoryNotFound, method: http.MethodDelete, path: "/api/v1/category/delete-category/" + uuid.NewString(), status: http.StatusNotFound},
		{name: "bad id", method: http.MethodDelete, path: "/api/v1/category/delete-category/42", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.svc.categoryErr = tt.err

			rec := env.do(t, tt.method, tt.path, map[string]string{"name": "Books"}, map[string]string{
				"Authorization": env.token(t, env.admin),
			})
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCreateProduct_DecodesBody(t *testing.T) {
	env := newTestEnv(t)
	categoryID := uuid.New()

	rec := env.do(t, http.MethodPost, "/api/v1/product/create-product", map[string]any{
		"name":        "Desk Lamp",
		"description": "Warm light",
		"price":       "19.99",
		"category":    categoryID.String(),
		"quantity":    3,
		"shipping":    true,
	}, map[string]string{"Authorization": env.token(t, env.admin)})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotNil(t, env.svc.productIn)
	assert.Equal(t, categoryID, env.svc.productIn.CategoryID)
	assert.Equal(t, "19.99", env.svc.productIn.Price.StringFixed(2))
	assert.True(t, env.svc.productIn.Shipping)
}

func TestProductList_Page(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/product/product-list/2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, env.svc.page)

	for _, page := range []string{"0", "abc"} {
		rec = env.do(t, http.MethodGet, "/api/v1/product/product-list/"+page, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, page)
	}
}

func TestFilterProducts(t *testing.T) {
	env := newTestEnv(t)
	categoryID := uuid.New()

	rec := env.do(t, http.MethodPost, "/api/v1/product/product-filters", map[string]any{
		"checked": []string{categoryID.String()},
		"radio":   []any{0, 19.99},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.svc.filter)
	assert.Equal(t, []uuid.UUID{categoryID}, env.svc.filter.CategoryIDs)
	require.NotNil(t, env.svc.filter.MaxPrice)
	assert.Equal(t, "19.99", env.svc.filter.MaxPrice.StringFixed(2))

	rec = env.do(t, http.MethodPost, "/api/v1/product/product-filters", map[string]any{"radio": []any{10}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductsByCategory(t *testing.T) {
	env := newTestEnv(t)
	env.svc.category = &model.Category{ID: uuid.New(), Name: "Books", Slug: "books"}
	env.svc.products = []model.Product{{ID: uuid.New(), Name: "Go"}}

	rec := env.do(t, http.MethodGet, "/api/v1/product/product-category/books", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "books", body["category"].(map[string]any)["slug"])
	assert.Len(t, body["products"], 1)
}

func TestGetProduct_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/product/get-product/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody(t, rec)["error"])
}

func TestRelatedProducts_BadIDs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/product/related-product/x/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
