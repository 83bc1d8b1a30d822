package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/johnrirwin/ordo/internal/models"
)

// ProductStore persists the per-vendor catalog
type ProductStore struct {
	db *DB
}

// NewProductStore creates a new product store
func NewProductStore(db *DB) *ProductStore {
	return &ProductStore{db: db}
}

// LocalProducts returns the reconciliation view of every stored product for vendor
func (s *ProductStore) LocalProducts(ctx context.Context, vendor models.VendorSlug) ([]models.LocalProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, price, available, last_price_updated
		FROM products
		WHERE vendor = $1
		ORDER BY product_id
	`, vendor)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.LocalProduct
	for rows.Next() {
		var (
			p       models.LocalProduct
			updated pq.NullTime
		)
		if err := rows.Scan(&p.ProductID, &p.Price, &p.Available, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if updated.Valid {
			t := updated.Time
			p.LastPriceUpdated = &t
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// GetProduct retrieves one product. Returns nil, nil when it does not exist.
func (s *ProductStore) GetProduct(ctx context.Context, vendor models.VendorSlug, productID string) (*models.Product, error) {
	query := `
		SELECT vendor, product_id, name, COALESCE(description, ''), COALESCE(url, ''), images,
			   price, COALESCE(manufacturer_number, ''), COALESCE(category, ''), available, last_price_updated
		FROM products
		WHERE vendor = $1 AND product_id = $2
	`
	var (
		p       models.Product
		images  pq.StringArray
		updated pq.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, vendor, productID).Scan(
		&p.Vendor, &p.ProductID, &p.Name, &p.Description, &p.URL, &images,
		&p.Price, &p.ManufacturerNumber, &p.Category, &p.Available, &updated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.Images = []string(images)
	if updated.Valid {
		t := updated.Time
		p.LastPriceUpdated = &t
	}
	return &p, nil
}

// SetAvailability flips the available flag on the given products
func (s *ProductStore) SetAvailability(ctx context.Context, vendor models.VendorSlug, ids []string, available bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET available = $3, updated_at = NOW()
		WHERE vendor = $1 AND product_id = ANY($2)
	`, vendor, pq.Array(ids), available)
	if err != nil {
		return fmt.Errorf("failed to set availability for %d products: %w", len(ids), err)
	}
	return nil
}

// CreateProducts inserts products in one transaction. An existing row with
// the same vendor and product id is overwritten.
func (s *ProductStore) CreateProducts(ctx context.Context, vendor models.VendorSlug, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (
			vendor, product_id, name, description, url, images,
			price, manufacturer_number, category, available, last_price_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (vendor, product_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			images = EXCLUDED.images,
			price = EXCLUDED.price,
			manufacturer_number = EXCLUDED.manufacturer_number,
			category = EXCLUDED.category,
			available = EXCLUDED.available,
			last_price_updated = COALESCE(EXCLUDED.last_price_updated, products.last_price_updated),
			updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		images := p.Images
		if images == nil {
			images = []string{}
		}
		var updated pq.NullTime
		if p.LastPriceUpdated != nil {
			updated = pq.NullTime{Time: *p.LastPriceUpdated, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			vendor,
			p.ProductID,
			p.Name,
			nullString(p.Description),
			nullString(p.URL),
			pq.Array(images),
			p.Price,
			nullString(p.ManufacturerNumber),
			nullString(p.Category),
			p.Available,
			updated,
		); err != nil {
			return fmt.Errorf("upsert product %s/%s: %w", vendor, p.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdatePrices writes new prices and stamps them with at, all in one statement
func (s *ProductStore) UpdatePrices(ctx context.Context, vendor models.VendorSlug, updates []models.PriceUpdate, at time.Time) error {
	if len(updates) == 0 {
		return nil
	}

	ids := make([]string, len(updates))
	prices := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.ProductID
		prices[i] = u.Price.StringFixed(4)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE products AS p
		SET price = u.price::NUMERIC, last_price_updated = $4, updated_at = NOW()
		FROM unnest($2::TEXT[], $3::TEXT[]) AS u(product_id, price)
		WHERE p.vendor = $1 AND p.product_id = u.product_id
	`, vendor, pq.Array(ids), pq.Array(prices), at)
	if err != nil {
		return fmt.Errorf("failed to update %d prices: %w", len(updates), err)
	}
	return nil
}
