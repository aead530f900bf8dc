package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountNone         DiscountType = "none"
	DiscountFlashDeal    DiscountType = "flash_deal"
	DiscountTrendingOffer DiscountType = "trending_offer"
	DiscountProduct      DiscountType = "product"
)

// FlashDeal is a time-boxed percentage discount on a single product.
type FlashDeal struct {
	ID          int64
	ProductID   int64
	DiscountPct decimal.Decimal
	StartsAt    time.Time
	EndsAt      time.Time
}

func (d FlashDeal) ActiveAt(t time.Time) bool {
	return !t.Before(d.StartsAt) && t.Before(d.EndsAt)
}

// TrendingOffer is a time-boxed percentage discount spanning a curated product set.
type TrendingOffer struct {
	ID          int64
	DiscountPct decimal.Decimal
	StartsAt    time.Time
	EndsAt      time.Time
}

func (o TrendingOffer) ActiveAt(t time.Time) bool {
	return !t.Before(o.StartsAt) && t.Before(o.EndsAt)
}

// BundleDeal unlocks a percentage discount when both of its products co-occur in a cart.
type BundleDeal struct {
	ID          int64
	ProductA    int64
	ProductB    int64
	DiscountPct decimal.Decimal
	Active      bool
}

type Coupon struct {
	ID          int64
	Code        string
	DiscountPct decimal.Decimal
	MaxUses     int
	UsedCount   int
	MinSubtotal decimal.Decimal
	// Scope restrictions; zero means unrestricted.
	SellerID  int64
	ProductID int64
	ExpiresAt time.Time
}

// Subscription grants its holder a percentage discount on every cart while active.
type Subscription struct {
	UserID      int64
	DiscountPct decimal.Decimal
	ExpiresAt   time.Time
}

type FlashDealRepository interface {
	GetActiveByProduct(ctx context.Context, productID int64, at time.Time) (*FlashDeal, error)
}

type TrendingOfferRepository interface {
	GetActiveByProduct(ctx context.Context, productID int64, at time.Time) (*TrendingOffer, error)
}

type BundleDealRepository interface {
	// GetActiveForProducts returns the first active bundle whose product pair is fully
	// contained in the given product set, or ErrRecordNotFound.
	GetActiveForProducts(ctx context.Context, productIDs []int64) (*BundleDeal, error)
}

type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
}

type SubscriptionRepository interface {
	GetActiveByUser(ctx context.Context, userID int64, at time.Time) (*Subscription, error)
}
