package models

import (
	"strings"
	"time"
)

const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleOwner    = "owner"
)

// StaffRoles are the roles allowed on the admin surface and the
// default targets of order notification fan-out.
var StaffRoles = []string{RoleOwner, RoleSeller}

type Product struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"  json:"id"`
	Code        string  `gorm:"uniqueIndex;not null"      json:"code"`
	Name        string  `gorm:"not null"                  json:"name"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url"`
	Price       float64 `gorm:"not null"                  json:"price"`
	Stock       int     `gorm:"not null;check:stock >= 0" json:"stock"`
	Purchased   int     `gorm:"not null;default:0"        json:"purchased"`
	OnSale      bool    `gorm:"default:false"             json:"on_sale"`
	DiscountPct int     `gorm:"default:0"                 json:"discount_pct"`
	Colors      string  `json:"colors"`
	Gender      string  `json:"gender"`
	Category    string  `json:"category"`
}

// EffectivePrice is the unit price frozen onto cart lines at add time.
func (p *Product) EffectivePrice() float64 {
	if p.OnSale && p.DiscountPct > 0 {
		return p.Price * float64(100-p.DiscountPct) / 100
	}
	return p.Price
}

func (p *Product) ColorList() []string {
	if p.Colors == "" {
		return nil
	}
	parts := strings.Split(p.Colors, ",")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *Product) HasColors() bool { return len(p.ColorList()) > 0 }

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null;default:customer" json:"role"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Zip          string `json:"zip"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"       json:"id"`
	Token     string `gorm:"unique;not null"  json:"token"`
	UserID    uint   `gorm:"index;not null"   json:"user_id"`
	ExpiresAt int64  `gorm:"not null"         json:"expires_at"`
	Revoked   bool   `gorm:"default:false"    json:"revoked"`
}

// CartLine is one (product, size, color) selection. OwnerKey scopes the
// line to a registered user or a guest device identity; the identity
// tuple is unique within one owner's cart.
type CartLine struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	OwnerKey  string  `gorm:"index:idx_cart_tuple,unique;not null" json:"-"`
	ProductID uint    `gorm:"index:idx_cart_tuple,unique;not null" json:"product_id"`
	Size      string  `gorm:"index:idx_cart_tuple,unique"          json:"size"`
	Color     string  `gorm:"index:idx_cart_tuple,unique"          json:"color"`
	Quantity  int     `gorm:"not null;check:quantity > 0"          json:"quantity"`
	UnitPrice float64 `gorm:"not null"                             json:"unit_price"`
}

const (
	StatusPending       = "Pending"
	StatusProcessing    = "Processing"
	StatusHandOnCourier = "Hand on Courier"
	StatusShipped       = "Shipped"
	StatusDelivered     = "Delivered"
	StatusCancelled     = "Cancelled"
)

// CustomerSnapshot is the contact copy frozen onto an order at creation.
// Guest orders have no backing user row, so this is a value, never a
// reference.
type CustomerSnapshot struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
}

// Timeline records when an order entered each forward status. A nil
// field means the status was never reached.
type Timeline struct {
	ProcessingAt      *time.Time `json:"processing_at"`
	HandedToCourierAt *time.Time `json:"handed_to_courier_at"`
	ShippedAt         *time.Time `json:"shipped_at"`
	DeliveredAt       *time.Time `json:"delivered_at"`
	CancelledAt       *time.Time `json:"cancelled_at"`
}

type Order struct {
	ID             uint             `gorm:"primaryKey"           json:"id"`
	Code           string           `gorm:"uniqueIndex;not null" json:"code"`
	UserID         *uint            `gorm:"index"                json:"user_id"`
	IdempotencyKey *string          `gorm:"uniqueIndex"          json:"-"`
	Customer       CustomerSnapshot `gorm:"embedded;embeddedPrefix:customer_" json:"customer"`
	Items          []OrderItem      `gorm:"foreignKey:OrderID"   json:"items"`
	Total          float64          `gorm:"not null"             json:"total"`
	Status         string           `gorm:"not null"             json:"status"`
	Timeline       Timeline         `gorm:"embedded"             json:"timeline"`
	IsLabelPrinted bool             `gorm:"default:false"        json:"is_label_printed"`
	Courier        string           `json:"courier"`
	CreatedAt      time.Time        `json:"created_at"`
}

// OrderItem is a frozen line snapshot, independent of later product
// mutation.
type OrderItem struct {
	ID        uint    `gorm:"primaryKey"     json:"id"`
	OrderID   uint    `gorm:"index;not null" json:"order_id"`
	ProductID uint    `gorm:"not null"       json:"product_id"`
	Name      string  `json:"name"`
	ImageURL  string  `json:"image_url"`
	Price     float64 `json:"price"`
	Quantity  int     `gorm:"not null;check:quantity > 0" json:"quantity"`
	Size      string  `json:"size"`
	Color     string  `json:"color"`
	Code      string  `json:"product_code"`
	Category  string  `json:"category"`
}

// GuestCustomer is the running aggregate for non-registered purchasers,
// keyed by email.
type GuestCustomer struct {
	ID           uint      `gorm:"primaryKey"           json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	Zip          string    `json:"zip"`
	FirstOrderAt time.Time `json:"first_order_at"`
	LastOrderAt  time.Time `json:"last_order_at"`
	TotalOrders  int       `gorm:"not null;default:0" json:"total_orders"`
	TotalSpent   float64   `gorm:"not null;default:0" json:"total_spent"`
}

const (
	NotificationTypeOrder  = "order"
	NotificationTypeStatus = "status"
)

// Notification is one persisted row per target role; a broadcast is
// always multiple rows.
type Notification struct {
	ID         uint      `gorm:"primaryKey"     json:"id"`
	Title      string    `gorm:"not null"       json:"title"`
	Message    string    `gorm:"not null"       json:"message"`
	Type       string    `gorm:"not null"       json:"type"`
	TargetRole string    `gorm:"index;not null" json:"target_role"`
	IsRead     bool      `gorm:"default:false"  json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderSequence is the single counter row behind order code allocation.
type OrderSequence struct {
	ID   uint `gorm:"primaryKey"`
	Next uint `gorm:"not null"`
}
