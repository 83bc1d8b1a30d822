package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/johnrirwin/ordo/internal/models"
)

// OrderStore handles order database operations
type OrderStore struct {
	db *DB
}

// NewOrderStore creates a new order store
func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

// CreateOrder writes an order and all of its vendor orders, and deletes the
// office's cart lines listed in cartItemIDs, in one transaction
func (s *OrderStore) CreateOrder(ctx context.Context, order *models.Order, cartItemIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (id, office_id, order_date, total_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, order.ID, order.OfficeID, order.OrderDate, order.TotalAmount).Scan(&order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	w, err := prepareVendorOrderWriter(ctx, tx, "")
	if err != nil {
		return err
	}
	defer w.Close()

	for i := range order.VendorOrders {
		vo := &order.VendorOrders[i]
		vo.OrderID = order.ID
		if _, err := w.write(ctx, vo); err != nil {
			return err
		}
	}

	if err := removeCartItems(ctx, tx, order.OfficeID, cartItemIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CreateVendorOrders inserts imported vendor orders. Orders already stored
// for the same office, vendor and vendor order id are skipped.
func (s *OrderStore) CreateVendorOrders(ctx context.Context, orders []models.VendorOrder) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	w, err := prepareVendorOrderWriter(ctx, tx, "ON CONFLICT (office_id, vendor, vendor_order_id) DO NOTHING")
	if err != nil {
		return err
	}
	defer w.Close()

	for i := range orders {
		if _, err := w.write(ctx, &orders[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// KnownVendorOrderIDs reports which of ids are already stored for the office and vendor
func (s *OrderStore) KnownVendorOrderIDs(ctx context.Context, officeID string, vendor models.VendorSlug, ids []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(ids) == 0 {
		return known, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT vendor_order_id FROM vendor_orders
		WHERE office_id = $1 AND vendor = $2 AND vendor_order_id = ANY($3)
	`, officeID, vendor, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to look up vendor orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vendor order id: %w", err)
		}
		known[id] = true
	}
	return known, rows.Err()
}

// ListVendorOrders returns the office's vendor orders, newest first, without items
func (s *OrderStore) ListVendorOrders(ctx context.Context, officeID string, limit int) ([]models.VendorOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(order_id::TEXT, ''), office_id, vendor, vendor_order_id, order_date,
			   status, total_amount, shipping_address, created_at, updated_at
		FROM vendor_orders
		WHERE office_id = $1
		ORDER BY order_date DESC, vendor
		LIMIT $2
	`, officeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor orders: %w", err)
	}
	defer rows.Close()

	var orders []models.VendorOrder
	for rows.Next() {
		var (
			vo      models.VendorOrder
			address []byte
		)
		if err := rows.Scan(
			&vo.ID, &vo.OrderID, &vo.OfficeID, &vo.Vendor, &vo.VendorOrderID, &vo.OrderDate,
			&vo.Status, &vo.TotalAmount, &address, &vo.CreatedAt, &vo.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vendor order: %w", err)
		}
		if len(address) > 0 {
			vo.ShippingAddress = &models.ShippingAddress{}
			if err := json.Unmarshal(address, vo.ShippingAddress); err != nil {
				return nil, fmt.Errorf("failed to decode shipping address for %s: %w", vo.ID, err)
			}
		}
		orders = append(orders, vo)
	}
	return orders, rows.Err()
}

type vendorOrderWriter struct {
	order *sql.Stmt
	item  *sql.Stmt
}

func prepareVendorOrderWriter(ctx context.Context, tx *sql.Tx, onConflict string) (*vendorOrderWriter, error) {
	order, err := tx.PrepareContext(ctx, `
		INSERT INTO vendor_orders (
			id, order_id, office_id, vendor, vendor_order_id, order_date,
			status, total_amount, shipping_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`+onConflict+`
		RETURNING created_at, updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare vendor order insert: %w", err)
	}
	item, err := tx.PrepareContext(ctx, `
		INSERT INTO vendor_order_products (vendor_order_id, product_id, name, quantity, unit_price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		order.Close()
		return nil, fmt.Errorf("prepare vendor order item insert: %w", err)
	}
	return &vendorOrderWriter{order: order, item: item}, nil
}

// write inserts vo and its items. It reports false when the insert was
// skipped by the conflict clause.
func (w *vendorOrderWriter) write(ctx context.Context, vo *models.VendorOrder) (bool, error) {
	var address sql.NullString
	if vo.ShippingAddress != nil {
		b, err := json.Marshal(vo.ShippingAddress)
		if err != nil {
			return false, fmt.Errorf("encode shipping address: %w", err)
		}
		address = sql.NullString{String: string(b), Valid: true}
	}
	status := vo.Status
	if status == "" {
		status = models.OrderStatusUnknown
	}

	err := w.order.QueryRowContext(ctx,
		vo.ID, nullString(vo.OrderID), vo.OfficeID, vo.Vendor, vo.VendorOrderID, vo.OrderDate,
		status, vo.TotalAmount, address,
	).Scan(&vo.CreatedAt, &vo.UpdatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert vendor order %s/%s: %w", vo.Vendor, vo.VendorOrderID, err)
	}

	for _, item := range vo.Items {
		itemStatus := item.Status
		if itemStatus == "" {
			itemStatus = status
		}
		if _, err := w.item.ExecContext(ctx,
			vo.ID, item.ProductID, nullString(item.Name), item.Quantity, item.UnitPrice, itemStatus,
		); err != nil {
			return false, fmt.Errorf("insert item %s of vendor order %s: %w", item.ProductID, vo.VendorOrderID, err)
		}
	}
	return true, nil
}

func (w *vendorOrderWriter) Close() {
	w.order.Close()
	w.item.Close()
}
