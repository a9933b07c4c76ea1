package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/vastra/app/models"
	"github.com/shashiranjanraj/vastra/app/services"
	"github.com/shashiranjanraj/vastra/pkg/bind"
	"github.com/shashiranjanraj/vastra/pkg/logger"
	"github.com/shashiranjanraj/vastra/pkg/response"
)

type CatalogController struct {
	service *services.CatalogService
}

func NewCatalogController(service *services.CatalogService) *CatalogController {
	return &CatalogController{service: service}
}

// Products handles GET /api/products.
func (c *CatalogController) Products(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	products, err := c.service.Products(r.Context(), limit, offset)
	if err != nil {
		logger.WithCtx(r.Context()).Error("product list failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	response.Success(w, products)
}

// Product handles GET /api/products/{id}.
func (c *CatalogController) Product(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.NotFound(w)
		return
	}

	product, err := c.service.Product(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			response.NotFound(w)
			return
		}
		logger.WithCtx(r.Context()).Error("product fetch failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	response.Success(w, product)
}

// CategoryTree handles GET /api/categories/tree.
func (c *CatalogController) CategoryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := c.service.CategoryTree(r.Context())
	if err != nil {
		logger.WithCtx(r.Context()).Error("category tree failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	response.Success(w, tree)
}

type createCategoryInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Slug     string `json:"slug" validate:"required,max=140"`
	ParentID *uint  `json:"parent_id"`
}

// CreateCategory handles POST /api/categories (staff only).
func (c *CatalogController) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input createCategoryInput
	if errs, err := bind.JSON(r, &input); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	} else if len(errs) > 0 {
		response.ValidationError(w, errs)
		return
	}

	category := models.Category{Name: input.Name, Slug: input.Slug, ParentID: input.ParentID}
	if err := c.service.CreateCategory(r.Context(), &category); err != nil {
		logger.WithCtx(r.Context()).Error("category create failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	response.Created(w, category)
}
