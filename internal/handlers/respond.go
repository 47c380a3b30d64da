package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dkrylov/fashion_store/internal/apperr"
)

// errorBody is the stable wire shape for typed failures.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID uint   `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
	Field     string `json:"field,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

// respondError maps the taxonomy onto HTTP. Recoverable errors come
// back with their payload for user-facing correction; integrity errors
// surface as a bare 500 after being logged upstream.
func respondError(c echo.Context, err error) error {
	var (
		stock      *apperr.InsufficientStock
		selection  *apperr.MissingSelection
		transition *apperr.IllegalTransition
	)
	switch {
	case errors.As(err, &stock):
		return c.JSON(http.StatusConflict, errorBody{
			Code:      "InsufficientStock",
			Message:   stock.Error(),
			ProductID: stock.ProductID,
			Requested: stock.Requested,
			Available: stock.Available,
		})
	case errors.As(err, &selection):
		return c.JSON(http.StatusBadRequest, errorBody{
			Code:      "MissingSelection",
			Message:   selection.Error(),
			ProductID: selection.ProductID,
			Field:     selection.Field,
		})
	case errors.As(err, &transition):
		return c.JSON(http.StatusConflict, errorBody{
			Code:    "IllegalTransition",
			Message: transition.Error(),
			From:    transition.From,
			To:      transition.To,
		})
	case errors.Is(err, apperr.ErrTotalMismatch):
		return c.JSON(http.StatusBadRequest, errorBody{
			Code:    "TotalMismatch",
			Message: err.Error(),
		})
	case errors.Is(err, apperr.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody{
			Code:    "NotFound",
			Message: err.Error(),
		})
	case errors.Is(err, apperr.ErrValidation):
		return c.JSON(http.StatusBadRequest, errorBody{
			Code:    "Validation",
			Message: err.Error(),
		})
	case errors.Is(err, apperr.ErrConflict):
		return c.JSON(http.StatusConflict, errorBody{
			Code:    "Conflict",
			Message: err.Error(),
		})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
