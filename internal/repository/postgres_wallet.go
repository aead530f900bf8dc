package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keymint/keymint/internal/domain"
	"github.com/shopspring/decimal"
)

type PostgresWalletRepository struct {
	db *pgxpool.Pool
}

func NewPostgresWalletRepository(db *pgxpool.Pool) *PostgresWalletRepository {
	return &PostgresWalletRepository{
		db: db,
	}
}

func (p *PostgresWalletRepository) GetByUserId(ctx context.Context, userID int64) (*domain.Wallet, error) {
	query := `
		SELECT user_id, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`

	var wallet domain.Wallet

	err := p.db.QueryRow(ctx, query, userID).Scan(
		&wallet.UserID,
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}

	return &wallet, nil
}

// Debit fails closed: the balance guard lives inside the UPDATE so concurrent debits
// serialize on the row and can never take the balance negative. The ledger row is
// appended in the same transaction.
func (p *PostgresWalletRepository) Debit(
	ctx context.Context,
	userID int64,
	amount decimal.Decimal,
	orderID uuid.UUID) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		return debitInTx(ctx, tx, userID, amount, orderID)
	})
}

func debitInTx(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal, orderID uuid.UUID) error {
	tag, err := tx.Exec(
		ctx,
		`UPDATE wallets
		 SET balance = balance - $2, updated_at = now()
		 WHERE user_id = $1 AND balance >= $2`,
		userID,
		amount,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}

	_, err = tx.Exec(
		ctx,
		`INSERT INTO wallet_transactions (id, user_id, type, amount, order_id)
		 VALUES ($1, $2, 'debit', $3, $4)`,
		uuid.New(),
		userID,
		amount,
		orderID,
	)

	return err
}

// Credit always succeeds; a missing wallet row is created on the fly so refunds can
// land even for users who never held a balance.
func (p *PostgresWalletRepository) Credit(
	ctx context.Context,
	userID int64,
	amount decimal.Decimal,
	orderID uuid.UUID,
	refundRef string) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		return creditInTx(ctx, tx, userID, amount, orderID, refundRef)
	})
}

func creditInTx(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal, orderID uuid.UUID, refundRef string) error {
	_, err := tx.Exec(
		ctx,
		`INSERT INTO wallets (user_id, balance)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id)
		 DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()`,
		userID,
		amount,
	)
	if err != nil {
		return err
	}

	var orderRef any
	if orderID != uuid.Nil {
		orderRef = orderID
	}

	_, err = tx.Exec(
		ctx,
		`INSERT INTO wallet_transactions (id, user_id, type, amount, order_id, refund_ref)
		 VALUES ($1, $2, 'credit', $3, $4, NULLIF($5, ''))`,
		uuid.New(),
		userID,
		amount,
		orderRef,
		refundRef,
	)

	return err
}

func (p *PostgresWalletRepository) GetTransactions(
	ctx context.Context,
	userID int64,
	pagination domain.Pagination) ([]domain.WalletTransaction, *domain.Metadata, error) {

	query := `
		SELECT COUNT(*) OVER(), id, user_id, type, amount, COALESCE(order_id, '00000000-0000-0000-0000-000000000000'), COALESCE(refund_ref, ''), created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := p.db.Query(ctx, query, userID, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	transactions := make([]domain.WalletTransaction, 0)
	totalRecords := 0

	for rows.Next() {
		var transaction domain.WalletTransaction

		err = rows.Scan(
			&totalRecords,
			&transaction.ID,
			&transaction.UserID,
			&transaction.Type,
			&transaction.Amount,
			&transaction.OrderID,
			&transaction.RefundRef,
			&transaction.CreatedAt,
		)
		if err != nil {
			return nil, nil, err
		}

		transactions = append(transactions, transaction)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, err
	}

	metadata := domain.NewMetadata(totalRecords, pagination.Page, pagination.PageSize)

	return transactions, metadata, nil
}
