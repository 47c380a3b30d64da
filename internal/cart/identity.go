package cart

import (
	"fmt"

	"github.com/google/uuid"
)

// Identity is the explicit cart owner passed into every operation.
// There is no ambient session state; handlers resolve the identity from
// the request and thread it through.
type Identity struct {
	UserID     uint
	GuestToken string
}

func UserIdentity(userID uint) Identity { return Identity{UserID: userID} }

func GuestIdentity(token string) Identity { return Identity{GuestToken: token} }

// NewGuestIdentity mints a device-scoped identity for a first-time
// anonymous visitor.
func NewGuestIdentity() Identity {
	return Identity{GuestToken: uuid.NewString()}
}

func (id Identity) IsGuest() bool { return id.UserID == 0 }

// OwnerKey is the storage key scoping cart lines to one identity.
func (id Identity) OwnerKey() string {
	if id.IsGuest() {
		return "guest:" + id.GuestToken
	}
	return fmt.Sprintf("user:%d", id.UserID)
}
