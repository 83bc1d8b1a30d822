package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/johnrirwin/ordo/internal/models"
)

// CartStore holds each office's pending cart
type CartStore struct {
	db *DB
}

// NewCartStore creates a new cart store
func NewCartStore(db *DB) *CartStore {
	return &CartStore{db: db}
}

// ListCart returns every cart line for the office, grouped by vendor
func (s *CartStore) ListCart(ctx context.Context, officeID string) ([]models.CartProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, office_id, vendor, product_id, COALESCE(name, ''), quantity, unit_price
		FROM cart_products
		WHERE office_id = $1
		ORDER BY vendor, created_at, id
	`, officeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart: %w", err)
	}
	defer rows.Close()

	var items []models.CartProduct
	for rows.Next() {
		var item models.CartProduct
		if err := rows.Scan(
			&item.ID, &item.OfficeID, &item.Vendor, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AddCartItem appends a line to the office's cart
func (s *CartStore) AddCartItem(ctx context.Context, item *models.CartProduct) error {
	if item.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", models.ErrInvalidInput)
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cart_products (office_id, vendor, product_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, item.OfficeID, item.Vendor, item.ProductID, nullString(item.Name), item.Quantity, item.UnitPrice,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

// RemoveCartItems deletes the given lines. Ids belonging to another office are ignored.
func (s *CartStore) RemoveCartItems(ctx context.Context, officeID string, ids []string) error {
	return removeCartItems(ctx, s.db, officeID, ids)
}

// execer is satisfied by both *DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func removeCartItems(ctx context.Context, ex execer, officeID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := ex.ExecContext(ctx,
		`DELETE FROM cart_products WHERE office_id = $1 AND id::TEXT = ANY($2)`,
		officeID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to remove cart items: %w", err)
	}
	return nil
}
