package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keymint/keymint/internal/domain"
)

type PostgresKeyPoolRepository struct {
	db *pgxpool.Pool
}

func NewPostgresKeyPoolRepository(db *pgxpool.Pool) *PostgresKeyPoolRepository {
	return &PostgresKeyPoolRepository{
		db: db,
	}
}

// Allocate claims quantity unused keys in a single conditional update. SKIP LOCKED
// keeps concurrent allocations for the same product from ever selecting the same row;
// a short pool rolls the whole claim back and surfaces ErrOutOfStock. The denormalized
// product counter moves in the same transaction.
func (p *PostgresKeyPoolRepository) Allocate(
	ctx context.Context,
	productID int64,
	quantity int,
	orderID uuid.UUID) ([]uuid.UUID, error) {

	keyIDs := make([]uuid.UUID, 0, quantity)

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			WITH picked AS (
				SELECT id
				FROM license_keys
				WHERE product_id = $1 AND NOT is_used AND NOT is_refunded
				ORDER BY created_at, id
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			UPDATE license_keys k
			SET is_used = TRUE, assigned_order_id = $3, assigned_at = now()
			FROM picked
			WHERE k.id = picked.id
			RETURNING k.id
		`

		rows, err := tx.Query(ctx, query, productID, quantity, orderID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID

			err = rows.Scan(&id)
			if err != nil {
				return err
			}

			keyIDs = append(keyIDs, id)
		}

		if err = rows.Err(); err != nil {
			return err
		}

		if len(keyIDs) < quantity {
			return domain.ErrOutOfStock
		}

		_, err = tx.Exec(
			ctx,
			`UPDATE products SET available_keys = available_keys - $2 WHERE id = $1`,
			productID,
			quantity,
		)

		return err
	})

	if err != nil {
		return nil, err
	}

	return keyIDs, nil
}

func (p *PostgresKeyPoolRepository) GetByOrderId(ctx context.Context, orderID uuid.UUID) ([]domain.LicenseKey, error) {
	query := `
		SELECT id, product_id, payload_ciphertext, is_used, is_refunded, assigned_order_id, assigned_at, created_at
		FROM license_keys
		WHERE assigned_order_id = $1
		ORDER BY product_id, assigned_at
	`

	rows, err := p.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]domain.LicenseKey, 0)

	for rows.Next() {
		var key domain.LicenseKey

		err = rows.Scan(
			&key.ID,
			&key.ProductID,
			&key.PayloadCiphertext,
			&key.IsUsed,
			&key.IsRefunded,
			&key.AssignedOrderID,
			&key.AssignedAt,
			&key.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		keys = append(keys, key)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

func (p *PostgresKeyPoolRepository) Add(ctx context.Context, productID int64, payloads [][]byte) ([]uuid.UUID, error) {
	keyIDs := make([]uuid.UUID, 0, len(payloads))

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		rows := make([][]any, 0, len(payloads))

		for _, payload := range payloads {
			id := uuid.New()
			keyIDs = append(keyIDs, id)
			rows = append(rows, []any{id, productID, payload})
		}

		_, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"license_keys"},
			[]string{"id", "product_id", "payload_ciphertext"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(
			ctx,
			`UPDATE products
			 SET total_keys = total_keys + $2, available_keys = available_keys + $2
			 WHERE id = $1`,
			productID,
			len(payloads),
		)

		return err
	})

	if err != nil {
		return nil, err
	}

	return keyIDs, nil
}
