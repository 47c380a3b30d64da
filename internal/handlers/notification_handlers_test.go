package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkrylov/fashion_store/internal/models"
	"github.com/dkrylov/fashion_store/internal/notify"
	"github.com/dkrylov/fashion_store/internal/service"
)

func newNotificationHandler(t *testing.T) (*testEnv, *NotificationHandler) {
	env := newTestEnv(t)
	h := &NotificationHandler{
		Fanout: &notify.Fanout{DB: env.DB},
		Bus:    notify.NewBus(),
		Queue:  notify.NewToastQueue(notify.DefaultToastTTL),
	}
	return env, h
}

func asRole(c echo.Context, role string) {
	c.Set(service.CtxRole, role)
}

func TestNotificationListRequiresRole(t *testing.T) {
	env, h := newNotificationHandler(t)

	_, c := env.doJSONRequest(http.MethodGet, "/api/v1/admin/notifications", nil)
	err := h.List(c)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestNotificationListScopedToRole(t *testing.T) {
	env, h := newNotificationHandler(t)

	_, err := h.Fanout.Emit(context.Background(), "New order", "msg", models.NotificationTypeOrder,
		models.RoleOwner, models.RoleSeller)
	require.NoError(t, err)

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/admin/notifications", nil)
	asRole(c, models.RoleSeller)
	require.NoError(t, h.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []models.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, models.RoleSeller, rows[0].TargetRole)
}

func TestClearAllLeavesOtherRoleAlone(t *testing.T) {
	env, h := newNotificationHandler(t)

	_, err := h.Fanout.Emit(context.Background(), "New order", "msg", models.NotificationTypeOrder,
		models.RoleOwner, models.RoleSeller)
	require.NoError(t, err)

	rec, c := env.doJSONRequest(http.MethodDelete, "/api/v1/admin/notifications", nil)
	asRole(c, models.RoleSeller)
	require.NoError(t, h.ClearAll(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var remaining []models.Notification
	require.NoError(t, env.DB.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, models.RoleOwner, remaining[0].TargetRole)
	require.False(t, remaining[0].IsRead)
}

func TestMarkAllReadViaHandler(t *testing.T) {
	env, h := newNotificationHandler(t)

	_, err := h.Fanout.Emit(context.Background(), "New order", "msg", models.NotificationTypeOrder,
		models.RoleOwner)
	require.NoError(t, err)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/admin/notifications/read", nil)
	asRole(c, models.RoleOwner)
	require.NoError(t, h.MarkAllRead(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var rows []models.Notification
	require.NoError(t, env.DB.Find(&rows).Error)
	require.True(t, rows[0].IsRead)
}
