package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/service"
)

// CreateCategory создаёт категорию.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req service.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	c, err := h.service.CreateCategory(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create category", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "category": c})
}

// UpdateCategory переименовывает категорию.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req service.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	c, err := h.service.UpdateCategory(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "update category", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "category": c})
}

// GetCategories возвращает все категории.
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		h.fail(w, r, "list categories", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "category": categories})
}

// GetCategory возвращает категорию по slug.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.CategoryBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, "get category", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "category": c})
}

// DeleteCategory удаляет категорию.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		h.fail(w, r, "delete category", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CreateProduct создаёт товар.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	p, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create product", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "product": p})
}

// UpdateProduct перезаписывает товар.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "pid"))
	if !ok {
		return
	}

	var req service.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "update product", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": p})
}

// GetProducts возвращает последние товары.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.LatestProducts(r.Context())
	if err != nil {
		h.fail(w, r, "list products", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "countTotal": len(products), "products": products})
}

// GetProduct возвращает товар по slug.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.ProductBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, "get product", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": p})
}

// DeleteProduct удаляет товар.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "pid"))
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.fail(w, r, "delete product", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type productFilterRequest struct {
	Checked []uuid.UUID       `json:"checked"`
	Radio   []decimal.Decimal `json:"radio"`
}

// FilterProducts отбирает товары по категориям и диапазону цен.
func (h *Handler) FilterProducts(w http.ResponseWriter, r *http.Request) {
	var req productFilterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	f := repository.ProductFilter{CategoryIDs: req.Checked}
	switch len(req.Radio) {
	case 0:
	case 2:
		f.MinPrice, f.MaxPrice = &req.Radio[0], &req.Radio[1]
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "price range must have two bounds")
		return
	}

	products, err := h.service.FilterProducts(r.Context(), f)
	if err != nil {
		h.fail(w, r, "filter products", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": products})
}

// ProductCount возвращает общее число товаров.
func (h *Handler) ProductCount(w http.ResponseWriter, r *http.Request) {
	total, err := h.service.ProductCount(r.Context())
	if err != nil {
		h.fail(w, r, "count products", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "total": total})
}

// ProductList возвращает страницу товаров.
func (h *Handler) ProductList(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", "page must be a positive integer")
		return
	}

	products, err := h.service.ProductPage(r.Context(), page)
	if err != nil {
		h.fail(w, r, "product page", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": products})
}

// SearchProducts ищет товары по ключевому слову.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.SearchProducts(r.Context(), chi.URLParam(r, "keyword"))
	if err != nil {
		h.fail(w, r, "search products", err)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// RelatedProducts возвращает похожие товары.
func (h *Handler) RelatedProducts(w http.ResponseWriter, r *http.Request) {
	pid, ok := parseID(w, chi.URLParam(r, "pid"))
	if !ok {
		return
	}
	cid, ok := parseID(w, chi.URLParam(r, "cid"))
	if !ok {
		return
	}

	products, err := h.service.RelatedProducts(r.Context(), pid, cid)
	if err != nil {
		h.fail(w, r, "related products", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": products})
}

// ProductsByCategory возвращает категорию и её товары.
func (h *Handler) ProductsByCategory(w http.ResponseWriter, r *http.Request) {
	c, products, err := h.service.ProductsByCategory(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, "products by category", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "category": c, "products": products})
}
