package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keymint/keymint/internal/domain"
)

type PostgresProductRepository struct {
	db *pgxpool.Pool
}

func NewPostgresProductRepository(db *pgxpool.Pool) *PostgresProductRepository {
	return &PostgresProductRepository{
		db: db,
	}
}

func (p *PostgresProductRepository) GetByIds(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	query := `
		SELECT id, seller_id, name, price, discount_pct, currency, total_keys, available_keys
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := p.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[int64]*domain.Product, len(ids))

	for rows.Next() {
		var product domain.Product

		err = rows.Scan(
			&product.ID,
			&product.SellerID,
			&product.Name,
			&product.Price,
			&product.DiscountPct,
			&product.Currency,
			&product.TotalKeys,
			&product.AvailableKeys,
		)
		if err != nil {
			return nil, err
		}

		products[product.ID] = &product
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (p *PostgresProductRepository) SyncKeyCounters(ctx context.Context, productID int64) error {
	query := `
		UPDATE products p
		SET total_keys = counts.total, available_keys = counts.available
		FROM (
			SELECT
				COUNT(*) AS total,
				COUNT(*) FILTER (WHERE NOT is_used AND NOT is_refunded) AS available
			FROM license_keys
			WHERE product_id = $1
		) counts
		WHERE p.id = $1
	`

	_, err := p.db.Exec(ctx, query, productID)
	return err
}
