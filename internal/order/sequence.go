package order

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/models"
)

const codePrefix = "F"

// nextCode allocates the next human-readable order code (F00001, ...)
// inside the caller's transaction. The counter advance is a
// compare-and-swap: losing the swap means another allocation raced us,
// which is treated as an identity collision and never retried silently
// (the surrounding transaction aborts and the failure is escalated).
func nextCode(ctx context.Context, tx *gorm.DB) (string, error) {
	var seq models.OrderSequence
	err := tx.WithContext(ctx).First(&seq, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = models.OrderSequence{ID: 1, Next: 1}
		if err := tx.WithContext(ctx).Create(&seq).Error; err != nil {
			return "", fmt.Errorf("order: init sequence: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("order: read sequence: %w", err)
	}

	res := tx.WithContext(ctx).
		Model(&models.OrderSequence{}).
		Where("id = ? AND next = ?", seq.ID, seq.Next).
		Update("next", seq.Next+1)
	if res.Error != nil {
		return "", fmt.Errorf("order: advance sequence: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", apperr.ErrIdentityCollision
	}

	return fmt.Sprintf("%s%05d", codePrefix, seq.Next), nil
}
