// Package order is the authoritative, append-mostly order collection.
// It owns identity assignment, the fulfillment state machine, and
// timeline stamping; creation runs the checkout pipeline end to end.
package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/cache"
	"github.com/dkrylov/fashion_store/internal/cart"
	"github.com/dkrylov/fashion_store/internal/checkout"
	"github.com/dkrylov/fashion_store/internal/inventory"
	"github.com/dkrylov/fashion_store/internal/logging"
	"github.com/dkrylov/fashion_store/internal/mailer"
	"github.com/dkrylov/fashion_store/internal/models"
	"github.com/dkrylov/fashion_store/internal/mykafka"
	"github.com/dkrylov/fashion_store/internal/notify"
	"github.com/dkrylov/fashion_store/internal/util"
)

// totalTolerance absorbs currency rounding when cross-checking a
// client-supplied total against the computed one.
const totalTolerance = 0.005

type Ledger struct {
	DB        *gorm.DB
	Inventory *inventory.Ledger
	Validator *checkout.Validator
	Cart      *cart.Store
	Cache     *cache.ProductCache
	Notify    *notify.Fanout
	Mailer    mailer.Dispatcher
	Producer  *mykafka.Producer
}

type CreateInput struct {
	Identity cart.Identity
	Customer models.CustomerSnapshot
	// ClaimedTotal is what the client believes it is paying. It is
	// verified against the validator's total, never trusted.
	ClaimedTotal float64
	// IdempotencyKey deduplicates client retries. Empty disables the
	// guard.
	IdempotencyKey string
}

// Create converts the identity's mutable cart into an immutable order
// under stock constraints. Validation, total cross-check, sequence
// allocation, per-line reservation, frozen snapshots, guest aggregate
// upsert and cart clearing run in one transaction; notifications and
// the confirmation email follow after commit.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (*models.Order, error) {
	log := logging.FromContext(ctx)

	if in.IdempotencyKey != "" {
		var existing models.Order
		err := l.DB.WithContext(ctx).
			Preload("Items").
			Where("idempotency_key = ?", in.IdempotencyKey).
			First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order: idempotency lookup: %w", err)
		}
	}

	lines, err := l.Cart.Lines(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	result, err := l.Validator.Validate(ctx, lines)
	if err != nil {
		return nil, err
	}

	if math.Abs(result.Total-in.ClaimedTotal) > totalTolerance {
		log.Error("order total mismatch",
			"claimed", in.ClaimedTotal, "computed", result.Total)
		return nil, fmt.Errorf("%w: claimed %.2f, computed %.2f",
			apperr.ErrTotalMismatch, in.ClaimedTotal, result.Total)
	}

	if in.Customer.Email == "" || in.Customer.Name == "" {
		return nil, fmt.Errorf("%w: customer name and email required", apperr.ErrValidation)
	}

	var order models.Order
	txErr := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := nextCode(ctx, tx)
		if err != nil {
			return err
		}

		for _, line := range result.Lines {
			if err := l.Inventory.ReserveTx(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		items := make([]models.OrderItem, 0, len(result.Lines))
		for _, line := range result.Lines {
			var p models.Product
			if err := tx.First(&p, line.ProductID).Error; err != nil {
				return fmt.Errorf("order: snapshot product %d: %w", line.ProductID, err)
			}
			items = append(items, models.OrderItem{
				ProductID: p.ID,
				Name:      p.Name,
				ImageURL:  p.ImageURL,
				Price:     line.UnitPrice,
				Quantity:  line.Quantity,
				Size:      line.Size,
				Color:     line.Color,
				Code:      p.Code,
				Category:  p.Category,
			})
		}

		order = models.Order{
			Code:     code,
			Customer: in.Customer,
			Items:    items,
			Total:    result.Total,
			Status:   models.StatusPending,
		}
		if !in.Identity.IsGuest() {
			uid := in.Identity.UserID
			order.UserID = &uid
		}
		if in.IdempotencyKey != "" {
			key := in.IdempotencyKey
			order.IdempotencyKey = &key
		}
		if err := tx.Create(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.ErrIdentityCollision
			}
			return fmt.Errorf("order: persist: %w", err)
		}

		if in.Identity.IsGuest() {
			if err := upsertGuestCustomer(tx, in.Customer, result.Total); err != nil {
				return err
			}
		}

		return l.Cart.ClearTx(ctx, tx, in.Identity)
	})
	if txErr != nil {
		if errors.Is(txErr, apperr.ErrIdentityCollision) {
			log.Error("order code allocation collided", "error", txErr)
		}
		return nil, txErr
	}

	if l.Cache != nil {
		for _, line := range result.Lines {
			l.Cache.Invalidate(ctx, line.ProductID)
		}
	}

	if _, err := l.Notify.Emit(ctx,
		"New order "+order.Code,
		fmt.Sprintf("%s placed an order of %.2f", order.Customer.Name, order.Total),
		models.NotificationTypeOrder,
		models.StaffRoles...,
	); err != nil {
		log.Error("order notification fan-out failed", "code", order.Code, "error", err)
	}

	l.publish(ctx, order.Code, map[string]any{
		"type":  "order_created",
		"code":  order.Code,
		"total": order.Total,
	})

	// Fire-and-forget: mail failure never fails the order.
	go l.sendMail(ctx, mailer.TemplateOrderConfirmed, &order)

	return &order, nil
}

// UpdateStatus advances the state machine. Requesting the current
// status is an idempotent no-op: the order is returned unchanged and
// no timeline field is re-stamped.
func (l *Ledger) UpdateStatus(ctx context.Context, code, newStatus string) (*models.Order, error) {
	if statusIndex(newStatus) < 0 && newStatus != models.StatusCancelled {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, newStatus)
	}

	order, err := l.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if order.Status == newStatus {
		return order, nil
	}
	if err := checkTransition(order.Status, newStatus); err != nil {
		return nil, err
	}

	now := time.Now()
	stampTimeline(&order.Timeline, newStatus, now)
	order.Status = newStatus
	if err := l.DB.WithContext(ctx).Save(order).Error; err != nil {
		return nil, fmt.Errorf("order: update status: %w", err)
	}

	if newStatus == models.StatusDelivered {
		if _, err := l.Notify.Emit(ctx,
			"Order "+order.Code+" delivered",
			fmt.Sprintf("Order %s reached the customer", order.Code),
			models.NotificationTypeStatus,
			models.StaffRoles...,
		); err != nil {
			logging.FromContext(ctx).Error("status notification fan-out failed",
				"code", order.Code, "error", err)
		}
		go l.sendMail(ctx, mailer.TemplateOrderDelivered, order)
	}

	l.publish(ctx, order.Code, map[string]any{
		"type":   "order_status_changed",
		"code":   order.Code,
		"status": newStatus,
	})

	return order, nil
}

// SetCourier assigns the courier name; one of the few fields mutable
// after creation.
func (l *Ledger) SetCourier(ctx context.Context, code, courier string) (*models.Order, error) {
	order, err := l.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	order.Courier = courier
	if err := l.DB.WithContext(ctx).Save(order).Error; err != nil {
		return nil, fmt.Errorf("order: set courier: %w", err)
	}
	return order, nil
}

func (l *Ledger) MarkLabelPrinted(ctx context.Context, code string) (*models.Order, error) {
	order, err := l.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	order.IsLabelPrinted = true
	if err := l.DB.WithContext(ctx).Save(order).Error; err != nil {
		return nil, fmt.Errorf("order: mark label printed: %w", err)
	}
	return order, nil
}

func (l *Ledger) ByCode(ctx context.Context, code string) (*models.Order, error) {
	var order models.Order
	err := l.DB.WithContext(ctx).
		Preload("Items").
		Where("code = ?", code).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, code)
		}
		return nil, fmt.Errorf("order: load %s: %w", code, err)
	}
	return &order, nil
}

func (l *Ledger) ListByUser(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := l.DB.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("order: list by user: %w", err)
	}
	return orders, nil
}

func (l *Ledger) List(ctx context.Context, page, size int) ([]models.Order, int64, error) {
	var total int64
	if err := l.DB.WithContext(ctx).Model(&models.Order{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("order: count: %w", err)
	}
	offset, limit := util.Calculate(page, size)
	var orders []models.Order
	err := l.DB.WithContext(ctx).
		Preload("Items").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("order: list: %w", err)
	}
	return orders, total, nil
}

// upsertGuestCustomer keeps the running aggregate for non-registered
// purchasers, keyed by email.
func upsertGuestCustomer(tx *gorm.DB, snap models.CustomerSnapshot, total float64) error {
	now := time.Now()
	var gc models.GuestCustomer
	err := tx.Where("email = ?", snap.Email).First(&gc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		gc = models.GuestCustomer{
			Email:        snap.Email,
			Name:         snap.Name,
			Phone:        snap.Phone,
			Address:      snap.Address,
			City:         snap.City,
			Zip:          snap.Zip,
			FirstOrderAt: now,
			LastOrderAt:  now,
			TotalOrders:  1,
			TotalSpent:   total,
		}
		if err := tx.Create(&gc).Error; err != nil {
			return fmt.Errorf("order: create guest customer: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("order: load guest customer: %w", err)
	}

	gc.Name = snap.Name
	gc.Phone = snap.Phone
	gc.Address = snap.Address
	gc.City = snap.City
	gc.Zip = snap.Zip
	gc.LastOrderAt = now
	gc.TotalOrders++
	gc.TotalSpent += total
	if err := tx.Save(&gc).Error; err != nil {
		return fmt.Errorf("order: update guest customer: %w", err)
	}
	return nil
}

func (l *Ledger) sendMail(ctx context.Context, template string, order *models.Order) {
	if l.Mailer == nil {
		return
	}
	// Collaborator errors are already logged by the dispatcher and
	// never escalate past this point.
	_ = l.Mailer.Send(context.WithoutCancel(ctx), template, map[string]string{
		"email": order.Customer.Email,
		"name":  order.Customer.Name,
		"code":  order.Code,
		"total": fmt.Sprintf("%.2f", order.Total),
	})
}

func (l *Ledger) publish(ctx context.Context, key string, event map[string]any) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.Producer.PublishEvent(pubCtx, mykafka.TopicOrderEvents, key, event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error",
			"topic", mykafka.TopicOrderEvents, "error", err)
	}
}
