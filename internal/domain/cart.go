package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CartSnapshot is produced by the external cart service and read once, at checkout
// session creation. The core never mutates it; the checkout session supersedes it.
type CartSnapshot struct {
	ID        string
	Items     []CartItem
	CreatedAt time.Time
}

type CartItem struct {
	ProductID int64
	SellerID  int64
	Quantity  int
	// UnitPrice is the price observed when the item was added. Informational only:
	// the checkout snapshot is always priced from the catalog at creation time.
	UnitPrice decimal.Decimal
}

type CartRepository interface {
	GetById(ctx context.Context, cartID string) (*CartSnapshot, error)
}
