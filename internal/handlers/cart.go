package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dkrylov/fashion_store/internal/cart"
	"github.com/dkrylov/fashion_store/internal/notify"
	"github.com/dkrylov/fashion_store/internal/service"
)

type CartHandler struct {
	Cart   *cart.Store
	Toasts *notify.ToastQueue
}

// guestCookieTTL keeps an anonymous cart alive across visits until the
// device identity is merged away on login.
const guestCookieTTL = 180 * 24 * time.Hour

// resolveIdentity picks the explicit cart owner for this request: the
// authenticated user when present, otherwise the guest cookie, minting
// one on first contact.
func resolveIdentity(c echo.Context) cart.Identity {
	if uid, ok := c.Get(service.CtxUserID).(uint); ok && uid != 0 {
		return cart.UserIdentity(uid)
	}
	if ck, err := c.Cookie("guestID"); err == nil && ck.Value != "" {
		return cart.GuestIdentity(ck.Value)
	}
	id := cart.NewGuestIdentity()
	c.SetCookie(service.NewCookie("guestID", id.GuestToken, "/", time.Now().Add(guestCookieTTL)))
	return id
}

type lineRequest struct {
	ProductID uint   `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) GetCart(c echo.Context) error {
	lines, err := h.Cart.Lines(c.Request().Context(), resolveIdentity(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lines)
}

func (h *CartHandler) AddLine(c echo.Context) error {
	var req lineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProductID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "product_id required")
	}

	id := resolveIdentity(c)
	line, err := h.Cart.AddLine(c.Request().Context(), id,
		req.ProductID, req.Size, req.Color, req.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	if h.Toasts != nil {
		h.Toasts.Push(id.OwnerKey(), "Added to cart", "success")
	}
	return c.JSON(http.StatusOK, line)
}

func (h *CartHandler) SetQuantity(c echo.Context) error {
	var req lineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProductID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "product_id required")
	}

	id := resolveIdentity(c)
	if err := h.Cart.SetQuantity(c.Request().Context(), id,
		req.ProductID, req.Size, req.Color, req.Quantity); err != nil {
		return respondError(c, err)
	}
	lines, err := h.Cart.Lines(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lines)
}

func (h *CartHandler) RemoveLine(c echo.Context) error {
	var req lineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProductID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "product_id required")
	}

	id := resolveIdentity(c)
	if err := h.Cart.RemoveLine(c.Request().Context(), id,
		req.ProductID, req.Size, req.Color); err != nil {
		return respondError(c, err)
	}
	lines, err := h.Cart.Lines(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lines)
}
