package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at, updated_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, category.ID, category.Name, nullIfEmpty(category.Description), category.CreatedAt, category.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context, includeUnavailable bool) ([]domain.Product, error) {
	query := `
		SELECT id, title, COALESCE(description, ''), size_ml, product_cost, selling_price,
		       COALESCE(category_id, ''), available, created_at, updated_at
		FROM products
	`
	if !includeUnavailable {
		query += ` WHERE available = true`
	}
	query += ` ORDER BY title`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.SizeML, &p.ProductCost, &p.SellingPrice,
			&p.CategoryID, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(description, ''), size_ml, product_cost, selling_price,
		       COALESCE(category_id, ''), available, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &p.Description, &p.SizeML, &p.ProductCost, &p.SellingPrice,
		&p.CategoryID, &p.Available, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Title == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, title, description, size_ml, product_cost, selling_price, category_id, available, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Title, nullIfEmpty(product.Description), product.SizeML, product.ProductCost,
		product.SellingPrice, nullIfEmpty(product.CategoryID), product.Available, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET title = $2, description = $3, size_ml = $4, product_cost = $5, selling_price = $6,
		    category_id = $7, available = $8, updated_at = $9
		WHERE id = $1
	`, product.ID, product.Title, nullIfEmpty(product.Description), product.SizeML, product.ProductCost,
		product.SellingPrice, nullIfEmpty(product.CategoryID), product.Available, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, COALESCE(address, ''), COALESCE(notes, ''),
		       total_purchases, total_spent, last_purchase_at, created_at, updated_at
		FROM customers
		ORDER BY name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		var lastPurchase sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Notes,
			&c.TotalPurchases, &c.TotalSpent, &lastPurchase, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if lastPurchase.Valid {
			t := lastPurchase.Time.UTC()
			c.LastPurchaseAt = &t
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	var lastPurchase sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, COALESCE(address, ''), COALESCE(notes, ''),
		       total_purchases, total_spent, last_purchase_at, created_at, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Notes,
		&c.TotalPurchases, &c.TotalSpent, &lastPurchase, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if lastPurchase.Valid {
		t := lastPurchase.Time.UTC()
		c.LastPurchaseAt = &t
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, address, notes, total_purchases, total_spent, last_purchase_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.Address), nullIfEmpty(customer.Notes),
		customer.TotalPurchases, customer.TotalSpent, nullTime(customer.LastPurchaseAt), customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) RecordCustomerPurchase(ctx context.Context, customerID string, amount float64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET total_purchases = total_purchases + 1,
		    total_spent = total_spent + $2,
		    last_purchase_at = $3,
		    updated_at = $3
		WHERE id = $1
	`, customerID, amount, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecipesByProduct(ctx context.Context, productID string) ([]domain.ProductRecipe, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, inventory_id, quantity_per_unit, created_at, updated_at
		FROM product_recipes
		WHERE product_id = $1
		ORDER BY inventory_id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipes := make([]domain.ProductRecipe, 0, 8)
	for rows.Next() {
		var r domain.ProductRecipe
		if err := rows.Scan(&r.ID, &r.ProductID, &r.InventoryID, &r.QuantityPerUnit, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recipes, nil
}

func (s *Store) UpsertRecipe(ctx context.Context, recipe domain.ProductRecipe) (*domain.ProductRecipe, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO product_recipes (id, product_id, inventory_id, quantity_per_unit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (product_id, inventory_id)
		DO UPDATE SET quantity_per_unit = EXCLUDED.quantity_per_unit, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, recipe.ID, recipe.ProductID, recipe.InventoryID, recipe.QuantityPerUnit, recipe.CreatedAt, recipe.UpdatedAt).
		Scan(&recipe.ID, &recipe.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	upserted := recipe
	return &upserted, nil
}

func (s *Store) DeleteRecipe(ctx context.Context, productID string, inventoryID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM product_recipes WHERE product_id = $1 AND inventory_id = $2
	`, productID, inventoryID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) HasRecipesForItem(ctx context.Context, inventoryID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM product_recipes WHERE inventory_id = $1)
	`, inventoryID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit, current_stock, minimum_stock, last_restock_at, created_at, updated_at
		FROM inventory_items
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 64)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventoryItem(row rowScanner) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	var lastRestock sql.NullTime
	if err := row.Scan(&item.ID, &item.Name, &item.Unit, &item.CurrentStock, &item.MinimumStock,
		&lastRestock, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if lastRestock.Valid {
		t := lastRestock.Time.UTC()
		item.LastRestockAt = &t
	}
	return &item, nil
}

func (s *Store) GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, unit, current_stock, minimum_stock, last_restock_at, created_at, updated_at
		FROM inventory_items
		WHERE id = $1
	`, id)
	item, err := scanInventoryItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.Name == "" || item.Unit == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (id, name, unit, current_stock, minimum_stock, last_restock_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, item.ID, item.Name, item.Unit, item.CurrentStock, item.MinimumStock,
		nullTime(item.LastRestockAt), item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := item
	return &created, nil
}

func (s *Store) UpdateInventoryItemMeta(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET name = $2, unit = $3, minimum_stock = $4, updated_at = $5
		WHERE id = $1
		RETURNING id, name, unit, current_stock, minimum_stock, last_restock_at, created_at, updated_at
	`, item.ID, item.Name, item.Unit, item.MinimumStock, item.UpdatedAt)
	updated, err := scanInventoryItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteInventoryItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ApplyMovement locks the item row, moves the cached balance, and records
// the movement in one transaction. Concurrent movements against the same
// item serialize on the row lock.
func (s *Store) ApplyMovement(ctx context.Context, movement domain.StockMovement, clampZero bool) (*domain.StockMovement, float64, error) {
	if movement.Quantity <= 0 {
		return nil, 0, store.ErrInvalidInput
	}

	var delta float64
	switch movement.Kind {
	case domain.MovementOut:
		delta = -movement.Quantity
	case domain.MovementIn, domain.MovementAdjustment:
		delta = movement.Quantity
	default:
		return nil, 0, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var currentStock float64
	err = tx.QueryRowContext(ctx, `
		SELECT current_stock FROM inventory_items WHERE id = $1 FOR UPDATE
	`, movement.InventoryID).Scan(&currentStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, store.ErrNotFound
		}
		return nil, 0, err
	}

	newStock := currentStock + delta
	if newStock < 0 {
		if !clampZero {
			return nil, 0, store.ErrInsufficientStock
		}
		newStock = 0
	}

	if movement.Kind == domain.MovementIn {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_items SET current_stock = $2, last_restock_at = $3, updated_at = $3 WHERE id = $1
		`, movement.InventoryID, newStock, movement.CreatedAt)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_items SET current_stock = $2, updated_at = $3 WHERE id = $1
		`, movement.InventoryID, newStock, movement.CreatedAt)
	}
	if err != nil {
		return nil, 0, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, inventory_id, kind, quantity, reason, transaction_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, movement.ID, movement.InventoryID, movement.Kind, movement.Quantity, movement.Reason,
		nullIfEmpty(movement.TransactionID), movement.CreatedBy, movement.CreatedAt)
	if err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}

	applied := movement
	return &applied, newStock, nil
}

func (s *Store) ListStockMovements(ctx context.Context, inventoryID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, inventory_id, kind, quantity, COALESCE(reason, ''), COALESCE(transaction_id, ''), created_by, created_at
		FROM stock_movements
	`
	args := []any{limit}
	if inventoryID != "" {
		query += ` WHERE inventory_id = $2`
		args = append(args, inventoryID)
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.InventoryID, &m.Kind, &m.Quantity, &m.Reason, &m.TransactionID, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateTransaction(ctx context.Context, transaction domain.Transaction) (*domain.Transaction, error) {
	if transaction.Number == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, transaction_number, customer_id, cashier_id, channel, payment_method,
		                          total_amount, total_cost, notes, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, transaction.ID, transaction.Number, nullIfEmpty(transaction.CustomerID), transaction.CashierID,
		transaction.Channel, transaction.PaymentMethod, transaction.TotalAmount, transaction.TotalCost,
		nullIfEmpty(transaction.Notes), transaction.Status, transaction.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateNumber
		}
		return nil, err
	}
	created := transaction
	created.Items = nil
	return &created, nil
}

func (s *Store) ListTransactionNumbers(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_number
		FROM transactions
		WHERE transaction_number LIKE $1
		ORDER BY transaction_number
	`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	numbers := make([]string, 0, 64)
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, err
		}
		numbers = append(numbers, number)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return numbers, nil
}

func (s *Store) CreateTransactionItem(ctx context.Context, item domain.TransactionItem) (*domain.TransactionItem, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_items (id, transaction_id, product_id, quantity, unit_price, unit_cost, subtotal, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, item.ID, item.TransactionID, item.ProductID, item.Quantity, item.UnitPrice, item.UnitCost, item.Subtotal, item.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := item
	return &created, nil
}

func (s *Store) SetTransactionTotalCost(ctx context.Context, transactionID string, totalCost float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET total_cost = $2 WHERE id = $1
	`, transactionID, totalCost)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteTransaction removes the header and its items. The sale recorder
// uses it to compensate a partial write.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	transaction, err := s.scanTransaction(ctx, `WHERE t.id = $1`, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, quantity, unit_price, unit_cost, subtotal, created_at
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.UnitCost, &item.Subtotal, &item.CreatedAt); err != nil {
			return nil, err
		}
		transaction.Items = append(transaction.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transaction, nil
}

func (s *Store) scanTransaction(ctx context.Context, where string, args ...any) (*domain.Transaction, error) {
	var t domain.Transaction
	var voidedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.transaction_number, COALESCE(t.customer_id, ''), t.cashier_id, t.channel, t.payment_method,
		       t.total_amount, t.total_cost, COALESCE(t.notes, ''), t.status,
		       COALESCE(t.void_reason, ''), COALESCE(t.voided_by, ''), t.voided_at, t.created_at
		FROM transactions t
	`+where, args...).Scan(&t.ID, &t.Number, &t.CustomerID, &t.CashierID, &t.Channel, &t.PaymentMethod,
		&t.TotalAmount, &t.TotalCost, &t.Notes, &t.Status, &t.VoidReason, &t.VoidedBy, &voidedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		t.VoidedAt = &at
	}
	return &t, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_number, COALESCE(customer_id, ''), cashier_id, channel, payment_method,
		       total_amount, total_cost, COALESCE(notes, ''), status,
		       COALESCE(void_reason, ''), COALESCE(voided_by, ''), voided_at, created_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		var t domain.Transaction
		var voidedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Number, &t.CustomerID, &t.CashierID, &t.Channel, &t.PaymentMethod,
			&t.TotalAmount, &t.TotalCost, &t.Notes, &t.Status, &t.VoidReason, &t.VoidedBy, &voidedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		if voidedAt.Valid {
			at := voidedAt.Time.UTC()
			t.VoidedAt = &at
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (s *Store) VoidTransaction(ctx context.Context, id string, reason string, voidedBy string, at time.Time) (*domain.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, void_reason = $3, voided_by = $4, voided_at = $5
		WHERE id = $1 AND status = $6
	`, id, domain.TxStatusVoid, reason, voidedBy, at, domain.TxStatusCompleted)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.scanTransaction(ctx, `WHERE t.id = $1`, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrAlreadyVoid
	}
	return s.GetTransactionByID(ctx, id)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType,
		nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, COALESCE(entity_id, ''), COALESCE(detail, ''), created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
