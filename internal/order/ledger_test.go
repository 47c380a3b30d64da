package order

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/cart"
	"github.com/dkrylov/fashion_store/internal/checkout"
	"github.com/dkrylov/fashion_store/internal/inventory"
	"github.com/dkrylov/fashion_store/internal/models"
	"github.com/dkrylov/fashion_store/internal/notify"
)

func newTestLedger(t *testing.T) *Ledger {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Product{}, &models.CartLine{}, &models.Order{}, &models.OrderItem{},
		&models.GuestCustomer{}, &models.Notification{}, &models.OrderSequence{},
	)
	if err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	return &Ledger{
		DB:        db,
		Inventory: &inventory.Ledger{DB: db},
		Validator: &checkout.Validator{DB: db},
		Cart:      &cart.Store{DB: db},
		Notify:    &notify.Fanout{DB: db},
	}
}

var productCount int

func seedProduct(t *testing.T, db *gorm.DB, price float64, stock int) models.Product {
	t.Helper()
	productCount++
	p := models.Product{
		Code:     fmt.Sprintf("TS-%02d", productCount),
		Name:     "basic tee",
		ImageURL: "/img/tee.jpg",
		Price:    price,
		Stock:    stock,
		Category: "tops",
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func guestSnapshot() models.CustomerSnapshot {
	return models.CustomerSnapshot{
		Name:    "Maya Petrova",
		Email:   "maya@example.com",
		Phone:   "+15550101",
		Address: "12 Elm St",
		City:    "Springfield",
		Zip:     "49007",
	}
}

func fillCart(t *testing.T, l *Ledger, id cart.Identity, p models.Product, size string, qty int) {
	t.Helper()
	_, err := l.Cart.AddLine(context.Background(), id, p.ID, size, "", qty)
	require.NoError(t, err)
}

func TestCreateOrderHappyPath(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id := cart.GuestIdentity("g1")
	p1 := seedProduct(t, l.DB, 25, 10)
	p2 := seedProduct(t, l.DB, 40, 10)
	fillCart(t, l, id, p1, "M", 2)
	fillCart(t, l, id, p2, "L", 1)

	ord, err := l.Create(ctx, CreateInput{
		Identity:     id,
		Customer:     guestSnapshot(),
		ClaimedTotal: 90,
	})
	require.NoError(t, err)

	require.Equal(t, "F00001", ord.Code)
	require.Equal(t, models.StatusPending, ord.Status)
	require.InDelta(t, 90.0, ord.Total, 0.001)
	require.Nil(t, ord.UserID)
	require.Len(t, ord.Items, 2)
	require.Equal(t, "basic tee", ord.Items[0].Name)
	require.Equal(t, p1.Code, ord.Items[0].Code)
	require.Equal(t, 2, ord.Items[0].Quantity)

	// Stock was reserved line by line.
	var got models.Product
	require.NoError(t, l.DB.First(&got, p1.ID).Error)
	require.Equal(t, 8, got.Stock)
	require.Equal(t, 2, got.Purchased)

	// Cart is emptied, not deleted conceptually: next read is just empty.
	lines, err := l.Cart.Lines(ctx, id)
	require.NoError(t, err)
	require.Empty(t, lines)

	// Fan-out: one row per staff role.
	var rows []models.Notification
	require.NoError(t, l.DB.Find(&rows).Error)
	require.Len(t, rows, 2)
	roles := []string{rows[0].TargetRole, rows[1].TargetRole}
	require.ElementsMatch(t, models.StaffRoles, roles)
	require.Equal(t, models.NotificationTypeOrder, rows[0].Type)

	// Guest aggregate created.
	var gc models.GuestCustomer
	require.NoError(t, l.DB.Where("email = ?", "maya@example.com").First(&gc).Error)
	require.Equal(t, 1, gc.TotalOrders)
	require.InDelta(t, 90.0, gc.TotalSpent, 0.001)
}

func TestCreateOrderSequenceCodesAreMonotonic(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, l.DB, 10, 100)

	for i, want := range []string{"F00001", "F00002", "F00003"} {
		id := cart.GuestIdentity(fmt.Sprintf("g%d", i))
		fillCart(t, l, id, p, "M", 1)
		ord, err := l.Create(ctx, CreateInput{
			Identity: id, Customer: guestSnapshot(), ClaimedTotal: 10,
		})
		require.NoError(t, err)
		require.Equal(t, want, ord.Code)
	}
}

func TestCreateOrderTotalMismatchRejectsEverything(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id := cart.GuestIdentity("g1")
	p1 := seedProduct(t, l.DB, 25, 10)
	p2 := seedProduct(t, l.DB, 40, 10)
	fillCart(t, l, id, p1, "M", 2)
	fillCart(t, l, id, p2, "L", 1)

	// Correct total is 90; the claimed 100 is tampering or a stale
	// price and must reject the order with nothing persisted.
	_, err := l.Create(ctx, CreateInput{
		Identity: id, Customer: guestSnapshot(), ClaimedTotal: 100,
	})
	require.True(t, errors.Is(err, apperr.ErrTotalMismatch))

	var orderCount int64
	require.NoError(t, l.DB.Model(&models.Order{}).Count(&orderCount).Error)
	require.Zero(t, orderCount)

	var got models.Product
	require.NoError(t, l.DB.First(&got, p1.ID).Error)
	require.Equal(t, 10, got.Stock)

	lines, err := l.Cart.Lines(ctx, id)
	require.NoError(t, err)
	require.Len(t, lines, 2)
}

func TestCreateOrderInsufficientStockAbortsWholeCheckout(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id := cart.GuestIdentity("g1")
	ok := seedProduct(t, l.DB, 10, 10)
	short := seedProduct(t, l.DB, 10, 1)
	fillCart(t, l, id, ok, "M", 1)
	fillCart(t, l, id, short, "M", 3)

	_, err := l.Create(ctx, CreateInput{
		Identity: id, Customer: guestSnapshot(), ClaimedTotal: 40,
	})

	var stockErr *apperr.InsufficientStock
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, short.ID, stockErr.ProductID)

	// Nothing was decremented for either product.
	var got models.Product
	require.NoError(t, l.DB.First(&got, ok.ID).Error)
	require.Equal(t, 10, got.Stock)
}

func TestCreateOrderCodeCollisionIsFatal(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id := cart.GuestIdentity("g1")
	p := seedProduct(t, l.DB, 10, 10)
	fillCart(t, l, id, p, "M", 1)

	// Occupy the code the sequence is about to hand out.
	taken := models.Order{
		Code:     "F00001",
		Status:   models.StatusPending,
		Customer: guestSnapshot(),
		Total:    10,
	}
	require.NoError(t, l.DB.Create(&taken).Error)

	_, err := l.Create(ctx, CreateInput{
		Identity: id, Customer: guestSnapshot(), ClaimedTotal: 10,
	})
	require.True(t, errors.Is(err, apperr.ErrIdentityCollision))

	// The aborted transaction rolled the reservation back.
	var got models.Product
	require.NoError(t, l.DB.First(&got, p.ID).Error)
	require.Equal(t, 10, got.Stock)

	lines, err := l.Cart.Lines(ctx, id)
	require.NoError(t, err)
	require.Len(t, lines, 1)
}

func TestCreateOrderIdempotencyKeyReplay(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id := cart.GuestIdentity("g1")
	p := seedProduct(t, l.DB, 10, 10)
	fillCart(t, l, id, p, "M", 1)

	in := CreateInput{
		Identity:       id,
		Customer:       guestSnapshot(),
		ClaimedTotal:   10,
		IdempotencyKey: "retry-123",
	}
	first, err := l.Create(ctx, in)
	require.NoError(t, err)

	// The client retry after a timeout must not create a duplicate;
	// the cart is already empty and the stored order comes back.
	second, err := l.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, first.Code, second.Code)

	var orderCount int64
	require.NoError(t, l.DB.Model(&models.Order{}).Count(&orderCount).Error)
	require.EqualValues(t, 1, orderCount)
}

func TestCreateOrderLinksRegisteredUser(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id := cart.UserIdentity(7)
	p := seedProduct(t, l.DB, 10, 10)
	fillCart(t, l, id, p, "M", 1)

	ord, err := l.Create(ctx, CreateInput{
		Identity: id, Customer: guestSnapshot(), ClaimedTotal: 10,
	})
	require.NoError(t, err)
	require.NotNil(t, ord.UserID)
	require.EqualValues(t, 7, *ord.UserID)

	// Registered purchasers do not feed the guest aggregate.
	var gcCount int64
	require.NoError(t, l.DB.Model(&models.GuestCustomer{}).Count(&gcCount).Error)
	require.Zero(t, gcCount)
}

func TestGuestCustomerAggregateAccumulates(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	p := seedProduct(t, l.DB, 10, 100)

	for i := 0; i < 2; i++ {
		id := cart.GuestIdentity(fmt.Sprintf("g%d", i))
		fillCart(t, l, id, p, "M", 1)
		_, err := l.Create(ctx, CreateInput{
			Identity: id, Customer: guestSnapshot(), ClaimedTotal: 10,
		})
		require.NoError(t, err)
	}

	var gc models.GuestCustomer
	require.NoError(t, l.DB.Where("email = ?", "maya@example.com").First(&gc).Error)
	require.Equal(t, 2, gc.TotalOrders)
	require.InDelta(t, 20.0, gc.TotalSpent, 0.001)
	require.False(t, gc.LastOrderAt.Before(gc.FirstOrderAt))
}

func placeOrder(t *testing.T, l *Ledger) *models.Order {
	t.Helper()
	ctx := context.Background()
	id := cart.GuestIdentity("flow")
	p := seedProduct(t, l.DB, 10, 100)
	fillCart(t, l, id, p, "M", 1)
	ord, err := l.Create(ctx, CreateInput{
		Identity: id, Customer: guestSnapshot(), ClaimedTotal: 10,
	})
	require.NoError(t, err)
	return ord
}

func TestUpdateStatusForwardChain(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	ord := placeOrder(t, l)

	ord2, err := l.UpdateStatus(ctx, ord.Code, models.StatusProcessing)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, ord2.Status)
	require.NotNil(t, ord2.Timeline.ProcessingAt)

	// Shipping straight from Processing skips the courier handoff,
	// which is allowed; the skipped stamp stays empty.
	ord3, err := l.UpdateStatus(ctx, ord.Code, models.StatusShipped)
	require.NoError(t, err)
	require.Equal(t, models.StatusShipped, ord3.Status)
	require.NotNil(t, ord3.Timeline.ShippedAt)
	require.Nil(t, ord3.Timeline.HandedToCourierAt)

	ord4, err := l.UpdateStatus(ctx, ord.Code, models.StatusDelivered)
	require.NoError(t, err)
	require.Equal(t, models.StatusDelivered, ord4.Status)
	require.NotNil(t, ord4.Timeline.DeliveredAt)
}

func TestUpdateStatusRejectsJumpToDelivered(t *testing.T) {
	l := newTestLedger(t)
	ord := placeOrder(t, l)

	_, err := l.UpdateStatus(context.Background(), ord.Code, models.StatusDelivered)

	var trans *apperr.IllegalTransition
	require.ErrorAs(t, err, &trans)
	require.Equal(t, models.StatusPending, trans.From)
	require.Equal(t, models.StatusDelivered, trans.To)
}

func TestUpdateStatusRejectsBackward(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	ord := placeOrder(t, l)

	_, err := l.UpdateStatus(ctx, ord.Code, models.StatusProcessing)
	require.NoError(t, err)

	_, err = l.UpdateStatus(ctx, ord.Code, models.StatusPending)
	var trans *apperr.IllegalTransition
	require.ErrorAs(t, err, &trans)
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	ord := placeOrder(t, l)

	first, err := l.UpdateStatus(ctx, ord.Code, models.StatusProcessing)
	require.NoError(t, err)
	stamp := first.Timeline.ProcessingAt

	second, err := l.UpdateStatus(ctx, ord.Code, models.StatusProcessing)
	require.NoError(t, err)
	require.NotNil(t, second.Timeline.ProcessingAt)
	require.WithinDuration(t, *stamp, *second.Timeline.ProcessingAt, time.Second)
}

func TestCancelledIsReachableAndTerminal(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	ord := placeOrder(t, l)

	_, err := l.UpdateStatus(ctx, ord.Code, models.StatusProcessing)
	require.NoError(t, err)

	cancelled, err := l.UpdateStatus(ctx, ord.Code, models.StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Timeline.CancelledAt)

	for _, target := range []string{
		models.StatusProcessing, models.StatusShipped, models.StatusDelivered,
	} {
		_, err := l.UpdateStatus(ctx, ord.Code, target)
		var trans *apperr.IllegalTransition
		require.ErrorAs(t, err, &trans, "cancelled must be terminal, got through to %s", target)
	}
}

func TestDeliveredIsTerminal(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	ord := placeOrder(t, l)

	for _, step := range []string{
		models.StatusProcessing, models.StatusHandOnCourier,
		models.StatusShipped, models.StatusDelivered,
	} {
		_, err := l.UpdateStatus(ctx, ord.Code, step)
		require.NoError(t, err)
	}

	_, err := l.UpdateStatus(ctx, ord.Code, models.StatusCancelled)
	var trans *apperr.IllegalTransition
	require.ErrorAs(t, err, &trans)
}

func TestDeliveredEmitsStatusFanout(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	ord := placeOrder(t, l)

	require.NoError(t, l.DB.Where("1 = 1").Delete(&models.Notification{}).Error)

	for _, step := range []string{
		models.StatusProcessing, models.StatusShipped, models.StatusDelivered,
	} {
		_, err := l.UpdateStatus(ctx, ord.Code, step)
		require.NoError(t, err)
	}

	var rows []models.Notification
	require.NoError(t, l.DB.Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, models.NotificationTypeStatus, rows[0].Type)
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	l := newTestLedger(t)
	ord := placeOrder(t, l)

	_, err := l.UpdateStatus(context.Background(), ord.Code, "Lost")
	require.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestMutableFulfillmentFields(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	ord := placeOrder(t, l)

	withCourier, err := l.SetCourier(ctx, ord.Code, "DHL")
	require.NoError(t, err)
	require.Equal(t, "DHL", withCourier.Courier)

	printed, err := l.MarkLabelPrinted(ctx, ord.Code)
	require.NoError(t, err)
	require.True(t, printed.IsLabelPrinted)
}

func TestOrderItemsAreFrozenSnapshots(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id := cart.GuestIdentity("g1")
	p := seedProduct(t, l.DB, 10, 10)
	fillCart(t, l, id, p, "M", 1)

	ord, err := l.Create(ctx, CreateInput{
		Identity: id, Customer: guestSnapshot(), ClaimedTotal: 10,
	})
	require.NoError(t, err)

	// Mutate the live product after the order exists.
	p.Name = "renamed"
	p.Price = 999
	require.NoError(t, l.DB.Save(&p).Error)

	reloaded, err := l.ByCode(ctx, ord.Code)
	require.NoError(t, err)
	require.Equal(t, "basic tee", reloaded.Items[0].Name)
	require.InDelta(t, 10.0, reloaded.Items[0].Price, 0.001)
}
