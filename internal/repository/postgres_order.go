package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keymint/keymint/internal/domain"
)

type PostgresOrderRepository struct {
	db *pgxpool.Pool
}

func NewPostgresOrderRepository(db *pgxpool.Pool) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db: db,
	}
}

// Settle is the convergence point of the wallet and webhook payment paths. Everything
// happens in one transaction: the conditional pending -> paid session flip, the wallet
// debit with its balance guard, the coupon redemption counter, and the order insert.
// Whichever path loses the race fails the very first conditional update and rolls back
// having changed nothing, so money is only ever moved once per session.
func (p *PostgresOrderRepository) Settle(ctx context.Context, params domain.SettleParams) (*domain.Order, error) {
	session := params.Session

	order := &domain.Order{
		ID:                uuid.New(),
		CheckoutSessionID: session.ID,
		UserID:            session.UserID,
		Email:             session.Email,
		Currency:          session.Currency,
		Amount:            session.GrandTotal,
		WalletAmount:      session.WalletAmount,
		CardAmount:        session.CardAmount,
		PaymentStatus:     domain.OrderPaymentPaid,
		OrderStatus:       domain.OrderStatusPending,
		Gateway:           session.Gateway,
		GatewayOrderID:    params.GatewayOrderID,
		GatewayCaptureID:  params.GatewayCaptureID,
	}

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(
			ctx,
			`UPDATE checkout_sessions
			 SET status = 'paid',
				 gateway = COALESCE(NULLIF($2, ''), gateway),
				 gateway_order_id = COALESCE(NULLIF($3, ''), gateway_order_id),
				 gateway_capture_id = NULLIF($4, ''),
				 updated_at = now()
			 WHERE id = $1 AND status = 'pending'`,
			session.ID,
			string(session.Gateway),
			params.GatewayOrderID,
			params.GatewayCaptureID,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return domain.ErrSessionNotPayable
		}

		if session.WalletAmount.IsPositive() {
			err = debitInTx(ctx, tx, session.UserID, session.WalletAmount, order.ID)
			if err != nil {
				return err
			}
		}

		if session.CouponID != 0 {
			tag, err = tx.Exec(
				ctx,
				`UPDATE coupons
				 SET used_count = used_count + 1
				 WHERE id = $1 AND (max_uses = 0 OR used_count < max_uses)`,
				session.CouponID,
			)
			if err != nil {
				return err
			}

			if tag.RowsAffected() == 0 {
				return domain.ErrCouponInvalid
			}
		}

		query := `
			INSERT INTO orders (
				id, checkout_session_id, user_id, contact_email, currency,
				amount, wallet_amount, card_amount, payment_status, order_status,
				gateway, gateway_order_id, gateway_capture_id
			)
			VALUES ($1, $2, NULLIF($3, 0), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''))
			RETURNING created_at, updated_at
		`

		err = tx.QueryRow(
			ctx,
			query,
			order.ID,
			order.CheckoutSessionID,
			order.UserID,
			order.Email,
			order.Currency,
			order.Amount,
			order.WalletAmount,
			order.CardAmount,
			order.PaymentStatus,
			order.OrderStatus,
			string(order.Gateway),
			order.GatewayOrderID,
			order.GatewayCaptureID,
		).Scan(&order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			if pgErrCode(err) == pgerrcode.UniqueViolation {
				return domain.ErrDuplicateOrder
			}
			return err
		}

		rows := make([][]any, 0, len(session.Items))
		for _, item := range session.Items {
			order.Items = append(order.Items, domain.OrderItem{
				ProductID:       item.ProductID,
				ProductName:     item.ProductName,
				SellerID:        item.SellerID,
				Quantity:        item.Quantity,
				UnitPrice:       item.UnitPrice,
				DiscountedPrice: item.DiscountedPrice,
			})

			rows = append(rows, []any{
				order.ID,
				item.ProductID,
				item.ProductName,
				item.SellerID,
				item.Quantity,
				item.UnitPrice,
				item.DiscountedPrice,
			})
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"order_items"},
			[]string{"order_id", "product_id", "product_name", "seller_id", "quantity", "unit_price", "discounted_price"},
			pgx.CopyFromRows(rows),
		)

		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

const orderColumns = `
	id, checkout_session_id, COALESCE(user_id, 0), COALESCE(contact_email, ''), currency,
	amount, wallet_amount, card_amount, payment_status, order_status,
	COALESCE(gateway, ''), COALESCE(gateway_order_id, ''), COALESCE(gateway_capture_id, ''),
	created_at, updated_at
`

func (p *PostgresOrderRepository) GetById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	return p.getOne(ctx, query, id)
}

func (p *PostgresOrderRepository) GetByGatewayIds(
	ctx context.Context,
	gateway domain.Gateway,
	gatewayOrderID, gatewayCaptureID string) (*domain.Order, error) {

	query := `SELECT ` + orderColumns + ` FROM orders WHERE gateway = $1 AND (gateway_order_id = $2 OR gateway_capture_id = $3)`

	return p.getOne(ctx, query, gateway, gatewayOrderID, gatewayCaptureID)
}

func (p *PostgresOrderRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var order domain.Order

	err := p.db.QueryRow(ctx, query, args...).Scan(
		&order.ID,
		&order.CheckoutSessionID,
		&order.UserID,
		&order.Email,
		&order.Currency,
		&order.Amount,
		&order.WalletAmount,
		&order.CardAmount,
		&order.PaymentStatus,
		&order.OrderStatus,
		&order.Gateway,
		&order.GatewayOrderID,
		&order.GatewayCaptureID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	items, err := p.getItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	order.Items = items

	return &order, nil
}

func (p *PostgresOrderRepository) getItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `
		SELECT oi.product_id, oi.product_name, oi.seller_id, oi.quantity,
			oi.unit_price, oi.discounted_price, oi.refunded_qty,
			COALESCE(
				(SELECT array_agg(k.id ORDER BY k.assigned_at)
				 FROM license_keys k
				 WHERE k.assigned_order_id = oi.order_id AND k.product_id = oi.product_id),
				'{}'
			)
		FROM order_items oi
		WHERE oi.order_id = $1
		ORDER BY oi.product_id
	`

	rows, err := p.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)

	for rows.Next() {
		var item domain.OrderItem

		err = rows.Scan(
			&item.ProductID,
			&item.ProductName,
			&item.SellerID,
			&item.Quantity,
			&item.UnitPrice,
			&item.DiscountedPrice,
			&item.RefundedQty,
			&item.KeyIDs,
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

func (p *PostgresOrderRepository) GetByUserId(
	ctx context.Context,
	userID int64,
	pagination domain.Pagination) ([]domain.Order, *domain.Metadata, error) {

	query := `SELECT COUNT(*) OVER(), ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := p.db.Query(ctx, query, userID, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	totalRecords := 0

	for rows.Next() {
		var order domain.Order

		err = rows.Scan(
			&totalRecords,
			&order.ID,
			&order.CheckoutSessionID,
			&order.UserID,
			&order.Email,
			&order.Currency,
			&order.Amount,
			&order.WalletAmount,
			&order.CardAmount,
			&order.PaymentStatus,
			&order.OrderStatus,
			&order.Gateway,
			&order.GatewayOrderID,
			&order.GatewayCaptureID,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, nil, err
		}

		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, err
	}

	for i := range orders {
		items, err := p.getItems(ctx, orders[i].ID)
		if err != nil {
			return nil, nil, err
		}
		orders[i].Items = items
	}

	metadata := domain.NewMetadata(totalRecords, pagination.Page, pagination.PageSize)

	return orders, metadata, nil
}

// ClaimFulfillment gates key assignment: the conditional pending -> processing update
// succeeds for exactly one caller per order.
func (p *PostgresOrderRepository) ClaimFulfillment(ctx context.Context, orderID uuid.UUID) error {
	tag, err := p.db.Exec(
		ctx,
		`UPDATE orders
		 SET order_status = 'processing', updated_at = now()
		 WHERE id = $1 AND order_status = 'pending'`,
		orderID,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyFulfilled
	}

	return nil
}

func (p *PostgresOrderRepository) Complete(ctx context.Context, orderID uuid.UUID) error {
	_, err := p.db.Exec(
		ctx,
		`UPDATE orders
		 SET order_status = 'completed', updated_at = now()
		 WHERE id = $1 AND order_status = 'processing'`,
		orderID,
	)
	return err
}

// Refund undoes a paid order in one transaction: the payment status flip, the
// per-item refund counters, the terminal key retirement, and the wallet credit.
// A failure on any leg rolls the whole refund back, so a refund that did not
// credit the buyer never reports the order as refunded and can be retried.
func (p *PostgresOrderRepository) Refund(ctx context.Context, params domain.RefundParams) error {
	order := params.Order

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(
			ctx,
			`UPDATE orders
			 SET payment_status = 'refunded', order_status = 'cancelled', updated_at = now()
			 WHERE id = $1 AND payment_status = 'paid'`,
			order.ID,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return domain.ErrOrderNotRefundable
		}

		_, err = tx.Exec(
			ctx,
			`UPDATE order_items SET refunded_qty = quantity WHERE order_id = $1`,
			order.ID,
		)
		if err != nil {
			return err
		}

		// The keys never return to the unused pool: their payloads may already
		// have been revealed to the buyer. Restocking happens by adding fresh keys.
		_, err = tx.Exec(
			ctx,
			`UPDATE license_keys
			 SET is_refunded = TRUE
			 WHERE assigned_order_id = $1 AND is_used AND NOT is_refunded`,
			order.ID,
		)
		if err != nil {
			return err
		}

		// Guests hold no wallet; their card capture is reversed out of band.
		if order.UserID != 0 {
			return creditInTx(ctx, tx, order.UserID, order.Amount, order.ID, params.RefundRef)
		}

		return nil
	})
}
