package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LicenseKey is an indivisible, single-use credential. A key moves unused -> assigned
// exactly once and never back; a refunded key is terminally retired because its payload
// may already have been revealed to the buyer.
type LicenseKey struct {
	ID                uuid.UUID
	ProductID         int64
	PayloadCiphertext []byte
	IsUsed            bool
	IsRefunded        bool
	AssignedOrderID   uuid.UUID
	AssignedAt        time.Time
	CreatedAt         time.Time
}

type KeyPoolRepository interface {
	// Allocate atomically claims quantity unused keys for the order and decrements the
	// product's denormalized available counter in the same transaction. Returns
	// ErrOutOfStock (and leaves nothing claimed) when the pool cannot cover the request.
	// Concurrent allocations never receive the same key.
	Allocate(ctx context.Context, productID int64, quantity int, orderID uuid.UUID) ([]uuid.UUID, error)
	GetByOrderId(ctx context.Context, orderID uuid.UUID) ([]LicenseKey, error)
	// Add inserts fresh unused keys and bumps the product counters. Used by the seller
	// restock path and by tests seeding pools.
	Add(ctx context.Context, productID int64, payloads [][]byte) ([]uuid.UUID, error)
}
