// Package cart holds the mutable per-identity line collection and the
// reconciliation of a guest cart into a user cart on login.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/logging"
	"github.com/dkrylov/fashion_store/internal/models"
	"github.com/dkrylov/fashion_store/internal/mykafka"
)

type Store struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

// AddLine appends a line or increments the quantity of the existing
// line with the same (product, size, color) tuple. The unit price is
// frozen from the product's effective price at first add and not
// recomputed on later price changes.
func (s *Store) AddLine(ctx context.Context, id Identity, productID uint, size, color string, qty int) (*models.CartLine, error) {
	if qty < 1 {
		qty = 1
	}

	var line models.CartLine
	err := s.DB.WithContext(ctx).
		Where("owner_key = ? AND product_id = ? AND size = ? AND color = ?",
			id.OwnerKey(), productID, size, color).
		First(&line).Error
	if err == nil {
		line.Quantity += qty
		if err := s.DB.WithContext(ctx).Save(&line).Error; err != nil {
			return nil, fmt.Errorf("cart: update line: %w", err)
		}
		s.publish(ctx, id, map[string]any{
			"type":       "cart_line_added",
			"owner":      id.OwnerKey(),
			"product_id": productID,
			"quantity":   line.Quantity,
		})
		return &line, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("cart: lookup line: %w", err)
	}

	var product models.Product
	if err := s.DB.WithContext(ctx).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", apperr.ErrNotFound, productID)
		}
		return nil, fmt.Errorf("cart: load product: %w", err)
	}

	line = models.CartLine{
		OwnerKey:  id.OwnerKey(),
		ProductID: productID,
		Size:      size,
		Color:     color,
		Quantity:  qty,
		UnitPrice: product.EffectivePrice(),
	}
	if err := s.DB.WithContext(ctx).Create(&line).Error; err != nil {
		return nil, fmt.Errorf("cart: create line: %w", err)
	}
	s.publish(ctx, id, map[string]any{
		"type":       "cart_line_added",
		"owner":      id.OwnerKey(),
		"product_id": productID,
		"quantity":   line.Quantity,
	})
	return &line, nil
}

// RemoveLine deletes the line matching the identity tuple. A missing
// line is a no-op, not an error.
func (s *Store) RemoveLine(ctx context.Context, id Identity, productID uint, size, color string) error {
	res := s.DB.WithContext(ctx).
		Where("owner_key = ? AND product_id = ? AND size = ? AND color = ?",
			id.OwnerKey(), productID, size, color).
		Delete(&models.CartLine{})
	if res.Error != nil {
		return fmt.Errorf("cart: remove line: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.publish(ctx, id, map[string]any{
			"type":       "cart_line_removed",
			"owner":      id.OwnerKey(),
			"product_id": productID,
		})
	}
	return nil
}

// SetQuantity replaces the line quantity in place. A value below 1 is
// defined as RemoveLine.
func (s *Store) SetQuantity(ctx context.Context, id Identity, productID uint, size, color string, qty int) error {
	if qty < 1 {
		return s.RemoveLine(ctx, id, productID, size, color)
	}
	res := s.DB.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("owner_key = ? AND product_id = ? AND size = ? AND color = ?",
			id.OwnerKey(), productID, size, color).
		Update("quantity", qty)
	if res.Error != nil {
		return fmt.Errorf("cart: set quantity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: cart line", apperr.ErrNotFound)
	}
	s.publish(ctx, id, map[string]any{
		"type":       "cart_quantity_set",
		"owner":      id.OwnerKey(),
		"product_id": productID,
		"quantity":   qty,
	})
	return nil
}

// Lines returns the cart in insertion order.
func (s *Store) Lines(ctx context.Context, id Identity) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := s.DB.WithContext(ctx).
		Where("owner_key = ?", id.OwnerKey()).
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("cart: list lines: %w", err)
	}
	return lines, nil
}

// Clear empties the cart. The cart itself is implicit, so emptying is
// all there is.
func (s *Store) Clear(ctx context.Context, id Identity) error {
	if err := s.DB.WithContext(ctx).
		Where("owner_key = ?", id.OwnerKey()).
		Delete(&models.CartLine{}).Error; err != nil {
		return fmt.Errorf("cart: clear: %w", err)
	}
	return nil
}

// ClearTx is Clear inside a caller-owned transaction.
func (s *Store) ClearTx(ctx context.Context, tx *gorm.DB, id Identity) error {
	if err := tx.WithContext(ctx).
		Where("owner_key = ?", id.OwnerKey()).
		Delete(&models.CartLine{}).Error; err != nil {
		return fmt.Errorf("cart: clear: %w", err)
	}
	return nil
}

// MergeOnLogin reconciles a guest cart into the user cart exactly once
// per anonymous -> authenticated transition. If the user cart already
// has lines, they win and the guest lines are discarded (no union);
// otherwise every guest line is carried over in order, keeping the
// add-time frozen unit price (a sale ending between add and login does
// not reprice the merged lines). Merging twice is safe: the second
// merge sees a non-empty user cart and changes nothing.
func (s *Store) MergeOnLogin(ctx context.Context, guest, user Identity) ([]models.CartLine, error) {
	userLines, err := s.Lines(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(userLines) > 0 {
		if err := s.Clear(ctx, guest); err != nil {
			logging.FromContext(ctx).Warn("cart: discard guest lines failed", "error", err)
		}
		return userLines, nil
	}

	guestLines, err := s.Lines(ctx, guest)
	if err != nil {
		return nil, err
	}
	for _, gl := range guestLines {
		nl := models.CartLine{
			OwnerKey:  user.OwnerKey(),
			ProductID: gl.ProductID,
			Size:      gl.Size,
			Color:     gl.Color,
			Quantity:  gl.Quantity,
			UnitPrice: gl.UnitPrice,
		}
		if err := s.DB.WithContext(ctx).Create(&nl).Error; err != nil {
			return nil, fmt.Errorf("cart: merge line for product %d: %w", gl.ProductID, err)
		}
	}
	if err := s.Clear(ctx, guest); err != nil {
		logging.FromContext(ctx).Warn("cart: clear guest cart after merge failed", "error", err)
	}
	if len(guestLines) > 0 {
		s.publish(ctx, user, map[string]any{
			"type":  "cart_merged",
			"owner": user.OwnerKey(),
			"lines": len(guestLines),
		})
	}
	return s.Lines(ctx, user)
}

// publish is fire-and-forget: cart mutations are optimistic and are
// not rolled back when the event stream is unavailable.
func (s *Store) publish(ctx context.Context, id Identity, event map[string]any) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Producer.PublishEvent(pubCtx, mykafka.TopicCartEvents, id.OwnerKey(), event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "topic", mykafka.TopicCartEvents, "error", err)
	}
}
