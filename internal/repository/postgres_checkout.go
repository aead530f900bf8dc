package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keymint/keymint/internal/domain"
)

type PostgresCheckoutRepository struct {
	db *pgxpool.Pool
}

func NewPostgresCheckoutRepository(db *pgxpool.Pool) *PostgresCheckoutRepository {
	return &PostgresCheckoutRepository{
		db: db,
	}
}

func (p *PostgresCheckoutRepository) Create(ctx context.Context, session *domain.CheckoutSession) error {
	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO checkout_sessions (
				id, user_id, contact_email, currency,
				subtotal, bundle_discount, subscription_discount, coupon_discount,
				coupon_id, coupon_code, handling_fee, total_amount, grand_total,
				wallet_amount, card_amount, payment_method, status, gateway, expires_at
			)
			VALUES ($1, NULLIF($2, 0), NULLIF($3, ''), $4, $5, $6, $7, $8, NULLIF($9, 0), NULLIF($10, ''), $11, $12, $13, $14, $15, $16, $17, NULLIF($18, ''), $19)
			RETURNING created_at, updated_at
		`

		err := tx.QueryRow(
			ctx,
			query,
			session.ID,
			session.UserID,
			session.Email,
			session.Currency,
			session.Subtotal,
			session.BundleDiscount,
			session.SubscriptionDiscount,
			session.CouponDiscount,
			session.CouponID,
			session.CouponCode,
			session.HandlingFee,
			session.TotalAmount,
			session.GrandTotal,
			session.WalletAmount,
			session.CardAmount,
			session.PaymentMethod,
			session.Status,
			string(session.Gateway),
			session.ExpiresAt,
		).Scan(&session.CreatedAt, &session.UpdatedAt)
		if err != nil {
			return err
		}

		rows := make([][]any, 0, len(session.Items))
		for _, item := range session.Items {
			rows = append(rows, []any{
				session.ID,
				item.ProductID,
				item.ProductName,
				item.SellerID,
				item.Quantity,
				item.UnitPrice,
				item.DiscountedPrice,
				item.DiscountAmount,
				string(item.DiscountType),
				item.DiscountSourceID,
			})
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"checkout_items"},
			[]string{
				"checkout_session_id", "product_id", "product_name", "seller_id", "quantity",
				"unit_price", "discounted_price", "discount_amount", "discount_type", "discount_source_id",
			},
			pgx.CopyFromRows(rows),
		)

		return err
	})
}

const checkoutSessionColumns = `
	id, COALESCE(user_id, 0), COALESCE(contact_email, ''), currency,
	subtotal, bundle_discount, subscription_discount, coupon_discount,
	COALESCE(coupon_id, 0), COALESCE(coupon_code, ''), handling_fee, total_amount, grand_total,
	wallet_amount, card_amount, payment_method, status,
	COALESCE(gateway, ''), COALESCE(gateway_order_id, ''), COALESCE(gateway_capture_id, ''),
	expires_at, created_at, updated_at
`

func (p *PostgresCheckoutRepository) GetById(ctx context.Context, id uuid.UUID) (*domain.CheckoutSession, error) {
	query := `SELECT ` + checkoutSessionColumns + ` FROM checkout_sessions WHERE id = $1`

	return p.getOne(ctx, query, id)
}

func (p *PostgresCheckoutRepository) GetByGatewayOrderId(
	ctx context.Context,
	gateway domain.Gateway,
	gatewayOrderID string) (*domain.CheckoutSession, error) {

	query := `SELECT ` + checkoutSessionColumns + ` FROM checkout_sessions WHERE gateway = $1 AND gateway_order_id = $2`

	return p.getOne(ctx, query, gateway, gatewayOrderID)
}

func (p *PostgresCheckoutRepository) getOne(ctx context.Context, query string, args ...any) (*domain.CheckoutSession, error) {
	var session domain.CheckoutSession

	err := p.db.QueryRow(ctx, query, args...).Scan(
		&session.ID,
		&session.UserID,
		&session.Email,
		&session.Currency,
		&session.Subtotal,
		&session.BundleDiscount,
		&session.SubscriptionDiscount,
		&session.CouponDiscount,
		&session.CouponID,
		&session.CouponCode,
		&session.HandlingFee,
		&session.TotalAmount,
		&session.GrandTotal,
		&session.WalletAmount,
		&session.CardAmount,
		&session.PaymentMethod,
		&session.Status,
		&session.Gateway,
		&session.GatewayOrderID,
		&session.GatewayCaptureID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	items, err := p.getItems(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	session.Items = items

	return &session, nil
}

func (p *PostgresCheckoutRepository) getItems(ctx context.Context, sessionID uuid.UUID) ([]domain.CheckoutItem, error) {
	query := `
		SELECT product_id, product_name, seller_id, quantity,
			unit_price, discounted_price, discount_amount, discount_type, discount_source_id
		FROM checkout_items
		WHERE checkout_session_id = $1
		ORDER BY product_id
	`

	rows, err := p.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CheckoutItem, 0)

	for rows.Next() {
		var item domain.CheckoutItem

		err = rows.Scan(
			&item.ProductID,
			&item.ProductName,
			&item.SellerID,
			&item.Quantity,
			&item.UnitPrice,
			&item.DiscountedPrice,
			&item.DiscountAmount,
			&item.DiscountType,
			&item.DiscountSourceID,
		)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// ExpireIfDue applies the lazy TTL: a pending session past its deadline flips to
// expired in a single conditional update, then the effective status is read back.
func (p *PostgresCheckoutRepository) ExpireIfDue(ctx context.Context, id uuid.UUID) (domain.CheckoutStatus, error) {
	_, err := p.db.Exec(
		ctx,
		`UPDATE checkout_sessions
		 SET status = 'expired', updated_at = now()
		 WHERE id = $1 AND status = 'pending' AND expires_at <= now()`,
		id,
	)
	if err != nil {
		return "", err
	}

	var status domain.CheckoutStatus

	err = p.db.QueryRow(ctx, `SELECT status FROM checkout_sessions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrRecordNotFound
		}
		return "", err
	}

	return status, nil
}

func (p *PostgresCheckoutRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(
		ctx,
		`UPDATE checkout_sessions
		 SET status = 'cancelled', updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotPayable
	}

	return nil
}

func (p *PostgresCheckoutRepository) AttachGatewayOrder(
	ctx context.Context,
	id uuid.UUID,
	gateway domain.Gateway,
	gatewayOrderID string) error {

	tag, err := p.db.Exec(
		ctx,
		`UPDATE checkout_sessions
		 SET gateway = $2, gateway_order_id = $3, updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		id,
		gateway,
		gatewayOrderID,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotPayable
	}

	return nil
}
