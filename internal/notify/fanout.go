// Package notify converts ledger events into role-targeted persisted
// notifications, a push channel for live admin views, and ephemeral
// session toasts.
package notify

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/models"
)

type Fanout struct {
	DB  *gorm.DB
	Bus *Bus
}

// Emit persists one notification row per target role. A broadcast is
// always multiple rows, never one shared row, so read-marking and
// clearing stay role-scoped.
func (f *Fanout) Emit(ctx context.Context, title, message, typ string, roles ...string) ([]models.Notification, error) {
	now := time.Now()
	rows := make([]models.Notification, 0, len(roles))
	for _, role := range roles {
		rows = append(rows, models.Notification{
			Title:      title,
			Message:    message,
			Type:       typ,
			TargetRole: role,
			CreatedAt:  now,
		})
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := f.DB.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("notify: emit: %w", err)
	}
	if f.Bus != nil {
		for _, row := range rows {
			f.Bus.Publish(row)
		}
	}
	return rows, nil
}

// List returns a role's notifications, newest first.
func (f *Fanout) List(ctx context.Context, role string) ([]models.Notification, error) {
	var rows []models.Notification
	err := f.DB.WithContext(ctx).
		Where("target_role = ?", role).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("notify: list: %w", err)
	}
	return rows, nil
}

// MarkAllRead flips every row belonging to the requesting role.
func (f *Fanout) MarkAllRead(ctx context.Context, role string) error {
	err := f.DB.WithContext(ctx).
		Model(&models.Notification{}).
		Where("target_role = ? AND is_read = ?", role, false).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("notify: mark all read: %w", err)
	}
	return nil
}

// ClearAll deletes every row belonging to the requesting role. Other
// roles' rows are untouched.
func (f *Fanout) ClearAll(ctx context.Context, role string) error {
	err := f.DB.WithContext(ctx).
		Where("target_role = ?", role).
		Delete(&models.Notification{}).Error
	if err != nil {
		return fmt.Errorf("notify: clear all: %w", err)
	}
	return nil
}
