package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dkrylov/fashion_store/internal/models"
	"github.com/dkrylov/fashion_store/internal/notify"
	"github.com/dkrylov/fashion_store/internal/order"
	"github.com/dkrylov/fashion_store/internal/service"
	"github.com/dkrylov/fashion_store/internal/util"
)

type OrderHandler struct {
	Ledger *order.Ledger
	Toasts *notify.ToastQueue
}

type checkoutRequest struct {
	Customer       models.CustomerSnapshot `json:"customer"`
	Total          float64                 `json:"total"`
	IdempotencyKey string                  `json:"idempotency_key"`
}

// Checkout converts the caller's cart into an order. Works for guests
// and registered users alike; the identity comes from the request, the
// total is cross-checked server-side.
func (h *OrderHandler) Checkout(c echo.Context) error {
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id := resolveIdentity(c)
	ord, err := h.Ledger.Create(c.Request().Context(), order.CreateInput{
		Identity:       id,
		Customer:       req.Customer,
		ClaimedTotal:   req.Total,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return respondError(c, err)
	}
	if h.Toasts != nil {
		h.Toasts.Push(id.OwnerKey(), "Order "+ord.Code+" placed", "success")
	}
	return c.JSON(http.StatusCreated, ord)
}

func (h *OrderHandler) MyOrders(c echo.Context) error {
	uid, ok := c.Get(service.CtxUserID).(uint)
	if !ok || uid == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "login required")
	}
	orders, err := h.Ledger.ListByUser(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	ord, err := h.Ledger.ByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ord)
}

// --- staff surface ---

func (h *OrderHandler) ListOrders(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	orders, total, err := h.Ledger.List(c.Request().Context(), page, size)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data": orders,
		"meta": map[string]any{"page": page, "size": size, "total": total},
	})
}

func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ord, err := h.Ledger.UpdateStatus(c.Request().Context(), c.Param("code"), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ord)
}

func (h *OrderHandler) SetCourier(c echo.Context) error {
	var req struct {
		Courier string `json:"courier"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ord, err := h.Ledger.SetCourier(c.Request().Context(), c.Param("code"), req.Courier)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ord)
}

func (h *OrderHandler) MarkLabelPrinted(c echo.Context) error {
	ord, err := h.Ledger.MarkLabelPrinted(c.Request().Context(), c.Param("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ord)
}
