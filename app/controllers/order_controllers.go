package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/vastra/app/services"
	"github.com/shashiranjanraj/vastra/pkg/bind"
	"github.com/shashiranjanraj/vastra/pkg/logger"
	"github.com/shashiranjanraj/vastra/pkg/response"
)

type OrderController struct {
	service *services.OrderService
}

func NewOrderController(service *services.OrderService) *OrderController {
	return &OrderController{service: service}
}

// Create handles POST /api/orders.
func (c *OrderController) Create(w http.ResponseWriter, r *http.Request) {
	var input services.CreateOrderInput
	if errs, err := bind.JSON(r, &input); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	} else if len(errs) > 0 {
		response.ValidationError(w, errs)
		return
	}

	order, err := c.service.Create(r.Context(), input)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	response.Created(w, order)
}

// List handles GET /api/orders.
func (c *OrderController) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	orders, err := c.service.ListForActor(r.Context(), limit, offset)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	response.Success(w, orders)
}

// Show handles GET /api/orders/{id}.
func (c *OrderController) Show(w http.ResponseWriter, r *http.Request) {
	order, err := c.service.Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	response.Success(w, order)
}

// Cancel handles POST /api/orders/{id}/cancel.
func (c *OrderController) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := c.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	response.Success(w, order)
}

func (c *OrderController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		response.NotFound(w)
	case errors.Is(err, services.ErrInsufficientStock):
		response.ErrorCode(w, http.StatusConflict, "insufficient_stock", "insufficient stock for one or more items")
	case errors.Is(err, services.ErrAlreadyPaid):
		response.ErrorCode(w, http.StatusBadRequest, "already_paid", "order already paid")
	case errors.Is(err, services.ErrInvalidOrder):
		response.ErrorCode(w, http.StatusBadRequest, "invalid_order", err.Error())
	case errors.Is(err, services.ErrForbidden):
		response.Forbidden(w)
	default:
		logger.WithCtx(r.Context()).Error("order request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal error")
	}
}
