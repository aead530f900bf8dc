package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keymint/keymint/internal/domain"
)

type PostgresFlashDealRepository struct {
	db *pgxpool.Pool
}

func NewPostgresFlashDealRepository(db *pgxpool.Pool) *PostgresFlashDealRepository {
	return &PostgresFlashDealRepository{
		db: db,
	}
}

func (p *PostgresFlashDealRepository) GetActiveByProduct(
	ctx context.Context,
	productID int64,
	at time.Time) (*domain.FlashDeal, error) {

	query := `
		SELECT id, product_id, discount_pct, starts_at, ends_at
		FROM flash_deals
		WHERE product_id = $1 AND starts_at <= $2 AND ends_at > $2
		ORDER BY starts_at DESC
		LIMIT 1
	`

	var deal domain.FlashDeal

	err := p.db.QueryRow(ctx, query, productID, at).Scan(
		&deal.ID,
		&deal.ProductID,
		&deal.DiscountPct,
		&deal.StartsAt,
		&deal.EndsAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &deal, nil
}

type PostgresTrendingOfferRepository struct {
	db *pgxpool.Pool
}

func NewPostgresTrendingOfferRepository(db *pgxpool.Pool) *PostgresTrendingOfferRepository {
	return &PostgresTrendingOfferRepository{
		db: db,
	}
}

func (p *PostgresTrendingOfferRepository) GetActiveByProduct(
	ctx context.Context,
	productID int64,
	at time.Time) (*domain.TrendingOffer, error) {

	query := `
		SELECT o.id, o.discount_pct, o.starts_at, o.ends_at
		FROM trending_offers o
		JOIN trending_offer_products op ON op.offer_id = o.id
		WHERE op.product_id = $1 AND o.starts_at <= $2 AND o.ends_at > $2
		ORDER BY o.starts_at DESC
		LIMIT 1
	`

	var offer domain.TrendingOffer

	err := p.db.QueryRow(ctx, query, productID, at).Scan(
		&offer.ID,
		&offer.DiscountPct,
		&offer.StartsAt,
		&offer.EndsAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &offer, nil
}

type PostgresBundleDealRepository struct {
	db *pgxpool.Pool
}

func NewPostgresBundleDealRepository(db *pgxpool.Pool) *PostgresBundleDealRepository {
	return &PostgresBundleDealRepository{
		db: db,
	}
}

func (p *PostgresBundleDealRepository) GetActiveForProducts(
	ctx context.Context,
	productIDs []int64) (*domain.BundleDeal, error) {

	query := `
		SELECT id, product_a, product_b, discount_pct, is_active
		FROM bundle_deals
		WHERE is_active AND product_a = ANY($1) AND product_b = ANY($1)
		ORDER BY id
		LIMIT 1
	`

	var deal domain.BundleDeal

	err := p.db.QueryRow(ctx, query, productIDs).Scan(
		&deal.ID,
		&deal.ProductA,
		&deal.ProductB,
		&deal.DiscountPct,
		&deal.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &deal, nil
}

type PostgresCouponRepository struct {
	db *pgxpool.Pool
}

func NewPostgresCouponRepository(db *pgxpool.Pool) *PostgresCouponRepository {
	return &PostgresCouponRepository{
		db: db,
	}
}

func (p *PostgresCouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `
		SELECT id, code, discount_pct, max_uses, used_count, min_subtotal,
			COALESCE(seller_id, 0), COALESCE(product_id, 0), expires_at
		FROM coupons
		WHERE code = $1
	`

	var coupon domain.Coupon

	err := p.db.QueryRow(ctx, query, code).Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.DiscountPct,
		&coupon.MaxUses,
		&coupon.UsedCount,
		&coupon.MinSubtotal,
		&coupon.SellerID,
		&coupon.ProductID,
		&coupon.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &coupon, nil
}

type PostgresSubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewPostgresSubscriptionRepository(db *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{
		db: db,
	}
}

func (p *PostgresSubscriptionRepository) GetActiveByUser(
	ctx context.Context,
	userID int64,
	at time.Time) (*domain.Subscription, error) {

	query := `
		SELECT user_id, discount_pct, expires_at
		FROM subscriptions
		WHERE user_id = $1 AND expires_at > $2
	`

	var subscription domain.Subscription

	err := p.db.QueryRow(ctx, query, userID, at).Scan(
		&subscription.UserID,
		&subscription.DiscountPct,
		&subscription.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &subscription, nil
}
