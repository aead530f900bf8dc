package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is owned by the catalog subsystem. The fulfillment core reads it to build
// price snapshots and only ever writes the denormalized key counters, which are kept
// in step with the license key pool inside the same transaction as each claim.
type Product struct {
	ID            int64
	SellerID      int64
	Name          string
	Price         decimal.Decimal
	DiscountPct   decimal.Decimal
	Currency      string
	TotalKeys     int
	AvailableKeys int
}

type ProductRepository interface {
	GetByIds(ctx context.Context, ids []int64) (map[int64]*Product, error)
	// SyncKeyCounters recomputes total/available counters from the key pool.
	// The counters are display-only; allocation correctness never depends on them.
	SyncKeyCounters(ctx context.Context, productID int64) error
}
