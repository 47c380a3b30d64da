package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dkrylov/fashion_store/internal/notify"
	"github.com/dkrylov/fashion_store/internal/service"
)

type NotificationHandler struct {
	Fanout *notify.Fanout
	Bus    *notify.Bus
	Queue  *notify.ToastQueue
}

func requestRole(c echo.Context) (string, error) {
	role, _ := c.Get(service.CtxRole).(string)
	if role == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "role required")
	}
	return role, nil
}

func (h *NotificationHandler) List(c echo.Context) error {
	role, err := requestRole(c)
	if err != nil {
		return err
	}
	rows, err := h.Fanout.List(c.Request().Context(), role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	role, err := requestRole(c)
	if err != nil {
		return err
	}
	if err := h.Fanout.MarkAllRead(c.Request().Context(), role); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *NotificationHandler) ClearAll(c echo.Context) error {
	role, err := requestRole(c)
	if err != nil {
		return err
	}
	if err := h.Fanout.ClearAll(c.Request().Context(), role); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stream pushes freshly emitted notifications for the caller's role as
// server-sent events. This replaces interval polling on the admin
// side.
func (h *NotificationHandler) Stream(c echo.Context) error {
	role, err := requestRole(c)
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ch, cancel := h.Bus.Subscribe(role)
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// Toasts drains the session's live ephemeral toasts. Expired ones are
// gone whether or not anyone looked.
func (h *NotificationHandler) Toasts(c echo.Context) error {
	id := resolveIdentity(c)
	return c.JSON(http.StatusOK, h.Queue.Pending(id.OwnerKey()))
}
