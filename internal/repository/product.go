package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/pricedrop/internal/model"
)

// ProductRepository persists normalized products per session. It implements
// pipeline.ProductSink.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository constructs a repository.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// SaveBatch inserts one batch inside a transaction so a retried batch never
// half-applies.
func (r *ProductRepository) SaveBatch(ctx context.Context, sessionID string, batch []model.NormalizedProduct) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, p := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO pricelist_products
				(id, session_id, brand, product_code, price_excl_vat, price_incl_vat, retail_price, currency, priceable, row_index, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (session_id, brand, product_code, row_index) DO UPDATE
			SET price_excl_vat=EXCLUDED.price_excl_vat,
			    price_incl_vat=EXCLUDED.price_incl_vat,
			    retail_price=EXCLUDED.retail_price,
			    currency=EXCLUDED.currency,
			    priceable=EXCLUDED.priceable
		`, uuid.NewString(), sessionID, p.Brand, p.ProductCode,
			decimalOrNil(p.PriceExclVAT), decimalOrNil(p.PriceInclVAT), decimalOrNil(p.RetailPrice),
			p.Currency, p.Priceable, p.RowIndex, now)
		if err != nil {
			return fmt.Errorf("insert product %s/%s: %w", p.Brand, p.ProductCode, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// ListBySession returns all saved products for one session ordered by their
// source row, feeding the CSV export.
func (r *ProductRepository) ListBySession(ctx context.Context, sessionID string) ([]model.NormalizedProduct, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT brand, product_code, price_excl_vat, price_incl_vat, retail_price, currency, priceable, row_index
		FROM pricelist_products WHERE session_id=$1 ORDER BY row_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var out []model.NormalizedProduct
	for rows.Next() {
		var (
			p      model.NormalizedProduct
			excl   decimal.NullDecimal
			incl   decimal.NullDecimal
			retail decimal.NullDecimal
		)
		if err := rows.Scan(&p.Brand, &p.ProductCode, &excl, &incl, &retail, &p.Currency, &p.Priceable, &p.RowIndex); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if excl.Valid {
			p.PriceExclVAT = &excl.Decimal
		}
		if incl.Valid {
			p.PriceInclVAT = &incl.Decimal
		}
		if retail.Valid {
			p.RetailPrice = &retail.Decimal
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// CountBySession returns how many products a session persisted.
func (r *ProductRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pricelist_products WHERE session_id=$1`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return count, nil
}

func decimalOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
