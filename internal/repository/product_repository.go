package repository

import (
	"context"
	"errors"
	"fmt"

	"stockguard/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// productRepository implements the ProductRepository interface using PostgreSQL.
type productRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

// GetByID retrieves a single product with its variants.
func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	products, err := r.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		r.logger.Debug().Str("product_id", id).Msg("product not found")
		return nil, nil
	}
	return &products[0], nil
}

// GetByIDs retrieves multiple products with their variants.
func (r *productRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	query := `
		SELECT id, name, price, stock, created_at
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to query products by IDs")
		return nil, fmt.Errorf("failed to query products by IDs: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	index := make(map[string]int, len(ids))
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan product row")
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating product rows")
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	if len(products) == 0 {
		return []model.Product{}, nil
	}

	variantQuery := `
		SELECT id, product_id, name, price, stock
		FROM variants
		WHERE product_id = ANY($1)
		ORDER BY product_id, id
	`

	vrows, err := r.pool.Query(ctx, variantQuery, ids)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query variants")
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var v model.Variant
		if err := vrows.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.Stock); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan variant row")
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		if i, ok := index[v.ProductID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}

	if err := vrows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating variant rows")
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}

	return products, nil
}

// LockStock reads a stock counter with SELECT ... FOR UPDATE.
func (r *productRepository) LockStock(ctx context.Context, tx pgx.Tx, productID string, variantID *string) (int, error) {
	var stock int

	if variantID != nil {
		query := `
			SELECT stock
			FROM variants
			WHERE id = $1 AND product_id = $2
			FOR UPDATE
		`
		err := tx.QueryRow(ctx, query, *variantID, productID).Scan(&stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				r.logger.Warn().Str("product_id", productID).Str("variant_id", *variantID).Msg("variant not found")
				return 0, model.ErrProductNotFound
			}
			r.logger.Error().Err(err).Str("product_id", productID).Msg("failed to lock variant stock")
			return 0, fmt.Errorf("failed to lock variant stock: %w", err)
		}
		return stock, nil
	}

	query := `
		SELECT p.stock, EXISTS (SELECT 1 FROM variants v WHERE v.product_id = p.id)
		FROM products p
		WHERE p.id = $1
		FOR UPDATE OF p
	`

	var hasVariants bool
	err := tx.QueryRow(ctx, query, productID).Scan(&stock, &hasVariants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn().Str("product_id", productID).Msg("product not found")
			return 0, model.ErrProductNotFound
		}
		r.logger.Error().Err(err).Str("product_id", productID).Msg("failed to lock product stock")
		return 0, fmt.Errorf("failed to lock product stock: %w", err)
	}

	if hasVariants {
		return 0, model.ErrVariantRequired
	}

	return stock, nil
}

// SetStock writes a stock counter within tx.
func (r *productRepository) SetStock(ctx context.Context, tx pgx.Tx, productID string, variantID *string, stock int) error {
	var (
		tag pgconn.CommandTag
		err error
	)

	if variantID != nil {
		tag, err = tx.Exec(ctx, `UPDATE variants SET stock = $3 WHERE id = $1 AND product_id = $2`, *variantID, productID, stock)
	} else {
		tag, err = tx.Exec(ctx, `UPDATE products SET stock = $2 WHERE id = $1`, productID, stock)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", productID).Int("stock", stock).Msg("failed to update stock")
		return fmt.Errorf("failed to update stock: %w", err)
	}

	if tag.RowsAffected() != 1 {
		return model.ErrProductNotFound
	}

	return nil
}

// GetStock reads a stock counter without locking.
func (r *productRepository) GetStock(ctx context.Context, productID string, variantID *string) (int, error) {
	var (
		stock int
		err   error
	)

	if variantID != nil {
		err = r.pool.QueryRow(ctx, `SELECT stock FROM variants WHERE id = $1 AND product_id = $2`, *variantID, productID).Scan(&stock)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrProductNotFound
		}
		r.logger.Error().Err(err).Str("product_id", productID).Msg("failed to query stock")
		return 0, fmt.Errorf("failed to query stock: %w", err)
	}

	return stock, nil
}
