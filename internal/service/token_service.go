package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/models"
)

// Echo context keys set by the auth middleware. Handlers read these
// instead of any ambient session state.
const (
	CtxUserID = "userID"
	CtxRole   = "role"
)

type TokenService struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
}

func (t *TokenService) RotateToken(rawToken string) (string, string, error) {
	claims, err := ValidateRefresh(rawToken, t.RefreshSecret, t.DB)
	if err != nil {
		return "", "", err
	}

	userID := uint(claims["sub"].(float64))
	role, _ := claims["role"].(string)

	newAccess, err := SignAccessToken(userID, role, t.JWTSecret)
	if err != nil {
		return "", "", err
	}
	newRefresh, err := SignRefreshToken(userID, role, t.RefreshSecret)
	if err != nil {
		return "", "", err
	}
	if err := SaveRefreshToken(t.DB, newRefresh, userID); err != nil {
		return "", "", err
	}
	return newAccess, newRefresh, nil
}

func (t *TokenService) RevokeRefresh(token string) error {
	if err := t.DB.Model(&models.RefreshToken{}).
		Where("token = ?", token).
		Update("revoked", true).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func setUserContext(c echo.Context, claims jwt.MapClaims) {
	if sub, ok := claims["sub"].(float64); ok {
		c.Set(CtxUserID, uint(sub))
	}
	if role, ok := claims["role"].(string); ok {
		c.Set(CtxRole, role)
	}
}

// AutoRefreshMiddleware authenticates from the access cookie and
// transparently rotates an expired access token off the refresh
// cookie.
func (t *TokenService) AutoRefreshMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if asCookie, err := c.Cookie("accessToken"); err == nil {
			token, err := jwt.Parse(asCookie.Value, func(j *jwt.Token) (interface{}, error) {
				return t.JWTSecret, nil
			})
			if err == nil && token.Valid {
				setUserContext(c, token.Claims.(jwt.MapClaims))
				return next(c)
			}
		}

		rfCookie, err := c.Cookie("refreshToken")
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
		}
		newAccess, newRefresh, err := t.RotateToken(rfCookie.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "cannot rotate token: "+err.Error())
		}

		c.SetCookie(NewCookie("accessToken", newAccess, "/", time.Now().Add(accessTTL)))
		c.SetCookie(NewCookie("refreshToken", newRefresh, "/", time.Now().Add(refreshTTL)))

		token, err := jwt.Parse(newAccess, func(j *jwt.Token) (interface{}, error) {
			return t.JWTSecret, nil
		})
		if err != nil || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}
		setUserContext(c, token.Claims.(jwt.MapClaims))
		return next(c)
	}
}

// OptionalAuth sets the user context when a valid access cookie is
// present and lets anonymous requests through untouched. Cart and
// checkout routes use it: guests are first-class there.
func (t *TokenService) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if asCookie, err := c.Cookie("accessToken"); err == nil {
			token, err := jwt.Parse(asCookie.Value, func(j *jwt.Token) (interface{}, error) {
				return t.JWTSecret, nil
			})
			if err == nil && token.Valid {
				setUserContext(c, token.Claims.(jwt.MapClaims))
			}
		}
		return next(c)
	}
}

// StaffOnly gates the admin surface to the seller and owner roles. It
// must run after AutoRefreshMiddleware.
func (t *TokenService) StaffOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, _ := c.Get(CtxRole).(string)
		for _, staff := range models.StaffRoles {
			if role == staff {
				return next(c)
			}
		}
		return echo.NewHTTPError(http.StatusForbidden, "staff only")
	}
}

func NewCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
