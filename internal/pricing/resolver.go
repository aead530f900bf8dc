package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keymint/keymint/internal/cache"
	"github.com/keymint/keymint/internal/domain"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// FeePolicy is the buyer handling fee: a percentage of the discounted total plus a
// flat amount, added after the whole discount chain. Never itself discountable.
type FeePolicy struct {
	Percent decimal.Decimal
	Flat    decimal.Decimal
}

// Resolver computes effective prices. Promotional discounts are mutually exclusive and
// resolved in a strict precedence: an active flash deal beats an active trending offer,
// which beats the product's static discount. Cart-level discounts then stack in a fixed
// order (bundle, subscription, coupon), each computed on the subtotal remaining after
// the previous one and clamped so the total never goes negative.
type Resolver struct {
	flashDeals     domain.FlashDealRepository
	trendingOffers domain.TrendingOfferRepository
	bundles        domain.BundleDealRepository
	coupons        domain.CouponRepository
	subscriptions  domain.SubscriptionRepository
	cache          cache.Cache
	fees           FeePolicy
	now            func() time.Time
}

func NewResolver(
	flashDeals domain.FlashDealRepository,
	trendingOffers domain.TrendingOfferRepository,
	bundles domain.BundleDealRepository,
	coupons domain.CouponRepository,
	subscriptions domain.SubscriptionRepository,
	c cache.Cache,
	fees FeePolicy) *Resolver {

	return &Resolver{
		flashDeals:     flashDeals,
		trendingOffers: trendingOffers,
		bundles:        bundles,
		coupons:        coupons,
		subscriptions:  subscriptions,
		cache:          c,
		fees:           fees,
		now:            time.Now,
	}
}

// UnitPrice is the resolved per-unit price of a product, with the provenance of the
// promotional discount that produced it.
type UnitPrice struct {
	OriginalPrice    decimal.Decimal
	DiscountedPrice  decimal.Decimal
	DiscountAmount   decimal.Decimal
	DiscountType     domain.DiscountType
	DiscountSourceID int64
}

type CartInput struct {
	UserID     int64 // zero for guests; guests never get subscription discounts
	Items      []domain.CartItem
	Products   map[int64]*domain.Product
	CouponCode string
}

type Line struct {
	Item      domain.CartItem
	Product   *domain.Product
	Unit      UnitPrice
	LineTotal decimal.Decimal
}

type CartPricing struct {
	Lines                []Line
	Subtotal             decimal.Decimal
	BundleDiscount       decimal.Decimal
	SubscriptionDiscount decimal.Decimal
	CouponDiscount       decimal.Decimal
	Coupon               *domain.Coupon
	TotalAmount          decimal.Decimal
	HandlingFee          decimal.Decimal
	GrandTotal           decimal.Decimal
}

// ResolveUnit applies the promotional precedence for a single product. First match
// wins; promotional discounts never stack with each other.
func (r *Resolver) ResolveUnit(ctx context.Context, product *domain.Product) (UnitPrice, error) {
	now := r.now()

	unit := UnitPrice{
		OriginalPrice:   product.Price,
		DiscountedPrice: product.Price,
		DiscountAmount:  decimal.Zero,
		DiscountType:    domain.DiscountNone,
	}

	deal, err := r.activeFlashDeal(ctx, product.ID, now)
	if err != nil {
		return UnitPrice{}, err
	}

	if deal != nil {
		return applyUnitDiscount(unit, deal.DiscountPct, domain.DiscountFlashDeal, deal.ID), nil
	}

	offer, err := r.activeTrendingOffer(ctx, product.ID, now)
	if err != nil {
		return UnitPrice{}, err
	}

	if offer != nil {
		return applyUnitDiscount(unit, offer.DiscountPct, domain.DiscountTrendingOffer, offer.ID), nil
	}

	if product.DiscountPct.IsPositive() {
		return applyUnitDiscount(unit, product.DiscountPct, domain.DiscountProduct, product.ID), nil
	}

	return unit, nil
}

// PriceCart prices the whole cart: per-line promotional prices, then the bundle,
// subscription and coupon chain on the summed line subtotal, then the handling fee.
// An invalid or inapplicable coupon fails the whole pricing pass with ErrCouponInvalid
// rather than being silently ignored.
func (r *Resolver) PriceCart(ctx context.Context, input CartInput) (*CartPricing, error) {
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("cannot price an empty cart")
	}

	pricing := &CartPricing{
		Lines: make([]Line, 0, len(input.Items)),
	}

	subtotal := decimal.Zero
	productIDs := make([]int64, 0, len(input.Items))

	for _, item := range input.Items {
		product, ok := input.Products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d missing from catalog snapshot", item.ProductID)
		}

		unit, err := r.ResolveUnit(ctx, product)
		if err != nil {
			return nil, err
		}

		lineTotal := unit.DiscountedPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)

		pricing.Lines = append(pricing.Lines, Line{
			Item:      item,
			Product:   product,
			Unit:      unit,
			LineTotal: lineTotal,
		})

		subtotal = subtotal.Add(lineTotal)
		productIDs = append(productIDs, item.ProductID)
	}

	pricing.Subtotal = subtotal
	remaining := subtotal

	bundleDiscount, err := r.bundleDiscount(ctx, productIDs, remaining)
	if err != nil {
		return nil, err
	}

	pricing.BundleDiscount = bundleDiscount
	remaining = remaining.Sub(bundleDiscount)

	subscriptionDiscount, err := r.subscriptionDiscount(ctx, input.UserID, remaining)
	if err != nil {
		return nil, err
	}

	pricing.SubscriptionDiscount = subscriptionDiscount
	remaining = remaining.Sub(subscriptionDiscount)

	if input.CouponCode != "" {
		coupon, couponDiscount, err := r.couponDiscount(ctx, input, remaining)
		if err != nil {
			return nil, err
		}

		pricing.Coupon = coupon
		pricing.CouponDiscount = couponDiscount
		remaining = remaining.Sub(couponDiscount)
	}

	pricing.TotalAmount = remaining
	pricing.HandlingFee = percentOf(remaining, r.fees.Percent).Add(r.fees.Flat).Round(2)
	pricing.GrandTotal = pricing.TotalAmount.Add(pricing.HandlingFee)

	return pricing, nil
}

func (r *Resolver) bundleDiscount(ctx context.Context, productIDs []int64, remaining decimal.Decimal) (decimal.Decimal, error) {
	bundle, err := r.bundles.GetActiveForProducts(ctx, productIDs)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}

	return clamp(percentOf(remaining, bundle.DiscountPct), remaining), nil
}

func (r *Resolver) subscriptionDiscount(ctx context.Context, userID int64, remaining decimal.Decimal) (decimal.Decimal, error) {
	if userID == 0 {
		return decimal.Zero, nil
	}

	subscription, err := r.subscriptions.GetActiveByUser(ctx, userID, r.now())
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}

	return clamp(percentOf(remaining, subscription.DiscountPct), remaining), nil
}

func (r *Resolver) couponDiscount(
	ctx context.Context,
	input CartInput,
	remaining decimal.Decimal) (*domain.Coupon, decimal.Decimal, error) {

	coupon, err := r.coupons.GetByCode(ctx, input.CouponCode)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, decimal.Zero, fmt.Errorf("%w: unknown code", domain.ErrCouponInvalid)
		}
		return nil, decimal.Zero, err
	}

	err = validateCoupon(coupon, input, remaining, r.now())
	if err != nil {
		return nil, decimal.Zero, err
	}

	return coupon, clamp(percentOf(remaining, coupon.DiscountPct), remaining), nil
}

func validateCoupon(coupon *domain.Coupon, input CartInput, remaining decimal.Decimal, now time.Time) error {
	if !coupon.ExpiresAt.IsZero() && now.After(coupon.ExpiresAt) {
		return fmt.Errorf("%w: expired", domain.ErrCouponInvalid)
	}

	if coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses {
		return fmt.Errorf("%w: usage limit reached", domain.ErrCouponInvalid)
	}

	if remaining.LessThan(coupon.MinSubtotal) {
		return fmt.Errorf("%w: cart subtotal below minimum of %s", domain.ErrCouponInvalid, coupon.MinSubtotal)
	}

	if coupon.ProductID != 0 && !cartContainsProduct(input.Items, coupon.ProductID) {
		return fmt.Errorf("%w: not applicable to these products", domain.ErrCouponInvalid)
	}

	if coupon.SellerID != 0 && !cartContainsSeller(input.Items, coupon.SellerID) {
		return fmt.Errorf("%w: not applicable to this seller", domain.ErrCouponInvalid)
	}

	return nil
}

func cartContainsProduct(items []domain.CartItem, productID int64) bool {
	for _, item := range items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

func cartContainsSeller(items []domain.CartItem, sellerID int64) bool {
	for _, item := range items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

func (r *Resolver) activeFlashDeal(ctx context.Context, productID int64, now time.Time) (*domain.FlashDeal, error) {
	var cached domain.FlashDeal

	hit, err := r.cache.Get(ctx, flashDealCacheKey(productID), &cached)
	if err == nil && hit && cached.ActiveAt(now) {
		return &cached, nil
	}

	deal, err := r.flashDeals.GetActiveByProduct(ctx, productID, now)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// Cache failures only cost us a repository round trip next time.
	_ = r.cache.Set(ctx, flashDealCacheKey(productID), deal)

	return deal, nil
}

func (r *Resolver) activeTrendingOffer(ctx context.Context, productID int64, now time.Time) (*domain.TrendingOffer, error) {
	var cached domain.TrendingOffer

	hit, err := r.cache.Get(ctx, trendingOfferCacheKey(productID), &cached)
	if err == nil && hit && cached.ActiveAt(now) {
		return &cached, nil
	}

	offer, err := r.trendingOffers.GetActiveByProduct(ctx, productID, now)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	_ = r.cache.Set(ctx, trendingOfferCacheKey(productID), offer)

	return offer, nil
}

func applyUnitDiscount(unit UnitPrice, pct decimal.Decimal, discountType domain.DiscountType, sourceID int64) UnitPrice {
	discount := clamp(percentOf(unit.OriginalPrice, pct), unit.OriginalPrice)

	unit.DiscountAmount = discount
	unit.DiscountedPrice = unit.OriginalPrice.Sub(discount)
	unit.DiscountType = discountType
	unit.DiscountSourceID = sourceID

	return unit
}

func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(oneHundred).Round(2)
}

func clamp(discount, remaining decimal.Decimal) decimal.Decimal {
	if discount.GreaterThan(remaining) {
		return remaining
	}
	return discount
}

func flashDealCacheKey(productID int64) string {
	return fmt.Sprintf("pricing:flash_deal:%d", productID)
}

func trendingOfferCacheKey(productID int64) string {
	return fmt.Sprintf("pricing:trending_offer:%d", productID)
}
