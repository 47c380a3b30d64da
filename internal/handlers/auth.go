package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/cart"
	"github.com/dkrylov/fashion_store/internal/hash"
	"github.com/dkrylov/fashion_store/internal/logging"
	"github.com/dkrylov/fashion_store/internal/models"
	"github.com/dkrylov/fashion_store/internal/mykafka"
	"github.com/dkrylov/fashion_store/internal/service"
)

type AuthHandler struct {
	DB            *gorm.DB
	Cart          *cart.Store
	Producer      *mykafka.Producer
	JWTSecret     []byte
	RefreshSecret []byte
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Email    string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password required")
	}

	var existing models.User
	err := h.DB.Where("username = ?", req.Username).First(&existing).Error
	if err == nil {
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	user := models.User{
		Username:     req.Username,
		PasswordHash: pwHash,
		Role:         models.RoleCustomer,
		Name:         req.Name,
		Email:        req.Email,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":     "user_registered",
		"userID":   user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusOK, user)
}

// Login authenticates, issues the cookie pair, and reconciles the
// guest cart into the user cart. The merged cart is returned so the
// client can replace its local copy in one round trip.
func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	access, err := service.SignAccessToken(user.ID, user.Role, h.JWTSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	refresh, err := service.SignRefreshToken(user.ID, user.Role, h.RefreshSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := service.SaveRefreshToken(h.DB, refresh, user.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.SetCookie(service.NewCookie("accessToken", access, "/", time.Now().Add(15*time.Minute)))
	c.SetCookie(service.NewCookie("refreshToken", refresh, "/", time.Now().Add(7*24*time.Hour)))

	var lines []models.CartLine
	if ck, err := c.Cookie("guestID"); err == nil && ck.Value != "" {
		ctx := c.Request().Context()
		lines, err = h.Cart.MergeOnLogin(ctx, cart.GuestIdentity(ck.Value), cart.UserIdentity(user.ID))
		if err != nil {
			logging.FromContext(ctx).Error("cart merge on login failed",
				"user_id", user.ID, "error", err)
		}
		// The guest identity is spent after the merge.
		c.SetCookie(service.NewCookie("guestID", "", "/", time.Unix(0, 0)))
	}

	h.publish(c, map[string]any{
		"type":   "user_logged_in",
		"userID": user.ID,
	})

	return c.JSON(http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"role":          user.Role,
		"cart":          lines,
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	if ck, err := c.Cookie("refreshToken"); err == nil && ck.Value != "" {
		if err := h.DB.Model(&models.RefreshToken{}).
			Where("token = ?", ck.Value).
			Update("revoked", true).Error; err != nil {
			c.Logger().Errorf("revoke refresh token: %v", err)
		}
	}
	c.SetCookie(service.NewCookie("accessToken", "", "/", time.Unix(0, 0)))
	c.SetCookie(service.NewCookie("refreshToken", "", "/", time.Unix(0, 0)))
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "user_events", fmt.Sprint(event["userID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}
