// Package checkout inspects a candidate order against current stock
// and required selections before any order record exists.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/models"
)

type Validator struct {
	DB *gorm.DB
}

// Result is the validated cart plus the grand total computed from
// frozen unit prices, for cross-checking any client-supplied total.
type Result struct {
	Lines []models.CartLine
	Total float64
}

// Validate checks every line of the cart and is all-or-nothing: a
// single failing product rejects the whole checkout.
//
// Stock is compared per product against the cart-wide quantity summed
// across all lines of that product, independent of size and color. A
// size selection is always required; a color selection is required
// only when the product declares color variants.
func (v *Validator) Validate(ctx context.Context, lines []models.CartLine) (*Result, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", apperr.ErrValidation)
	}

	products := make(map[uint]*models.Product)
	perProduct := make(map[uint]int)
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be >= 1", apperr.ErrValidation)
		}
		perProduct[line.ProductID] += line.Quantity
		if _, ok := products[line.ProductID]; ok {
			continue
		}
		var p models.Product
		if err := v.DB.WithContext(ctx).First(&p, line.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: product %d", apperr.ErrNotFound, line.ProductID)
			}
			return nil, fmt.Errorf("checkout: load product %d: %w", line.ProductID, err)
		}
		products[line.ProductID] = &p
	}

	for _, line := range lines {
		p := products[line.ProductID]
		if line.Size == "" {
			return nil, &apperr.MissingSelection{ProductID: line.ProductID, Field: "size"}
		}
		if p.HasColors() && line.Color == "" {
			return nil, &apperr.MissingSelection{ProductID: line.ProductID, Field: "color"}
		}
	}

	for productID, requested := range perProduct {
		p := products[productID]
		if requested > p.Stock {
			return nil, &apperr.InsufficientStock{
				ProductID: productID,
				Requested: requested,
				Available: p.Stock,
			}
		}
	}

	var total float64
	for _, line := range lines {
		total += line.UnitPrice * float64(line.Quantity)
	}

	return &Result{Lines: lines, Total: roundCents(total)}, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
