// Package inventory is the single source of truth for product
// availability. Reservation is one conditional UPDATE, never a
// read-then-write pair, so concurrent checkouts cannot oversell.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/models"
)

type Ledger struct {
	DB *gorm.DB
}

// Reserve decrements stock and increments the purchase counter for qty
// units of one product. It succeeds only if qty <= current stock; on
// shortfall nothing changes and the error carries the available
// quantity. There is no partial reservation.
func (l *Ledger) Reserve(ctx context.Context, productID uint, qty int) error {
	return l.reserve(ctx, l.DB, productID, qty)
}

// ReserveTx is Reserve inside a caller-owned transaction, used by
// order creation so multi-line reservations roll back together.
func (l *Ledger) ReserveTx(ctx context.Context, tx *gorm.DB, productID uint, qty int) error {
	return l.reserve(ctx, tx, productID, qty)
}

func (l *Ledger) reserve(ctx context.Context, db *gorm.DB, productID uint, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", apperr.ErrValidation)
	}

	res := db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Updates(map[string]interface{}{
			"stock":     gorm.Expr("stock - ?", qty),
			"purchased": gorm.Expr("purchased + ?", qty),
		})
	if res.Error != nil {
		return fmt.Errorf("reserve product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var p models.Product
	if err := db.WithContext(ctx).First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: product %d", apperr.ErrNotFound, productID)
		}
		return fmt.Errorf("reserve product %d: %w", productID, err)
	}
	return &apperr.InsufficientStock{
		ProductID: productID,
		Requested: qty,
		Available: p.Stock,
	}
}

// Restock raises stock without touching the purchase counter.
func (l *Ledger) Restock(ctx context.Context, productID uint, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", apperr.ErrValidation)
	}
	res := l.DB.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return fmt.Errorf("restock product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %d", apperr.ErrNotFound, productID)
	}
	return nil
}
