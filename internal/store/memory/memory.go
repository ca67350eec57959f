package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

type Store struct {
	mu               sync.RWMutex
	categoriesByID   map[string]domain.Category
	productsByID     map[string]domain.Product
	customersByID    map[string]domain.Customer
	recipesByID      map[string]domain.ProductRecipe
	inventoryByID    map[string]domain.InventoryItem
	movements        []domain.StockMovement
	transactionsByID map[string]*domain.Transaction
	numbersTaken     map[string]string
	itemsByTx        map[string][]domain.TransactionItem
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		categoriesByID:   make(map[string]domain.Category),
		productsByID:     make(map[string]domain.Product),
		customersByID:    make(map[string]domain.Customer),
		recipesByID:      make(map[string]domain.ProductRecipe),
		inventoryByID:    make(map[string]domain.InventoryItem),
		movements:        make([]domain.StockMovement, 0, 128),
		transactionsByID: make(map[string]*domain.Transaction),
		numbersTaken:     make(map[string]string),
		itemsByTx:        make(map[string][]domain.TransactionItem),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small beverage-shop dataset
// so the API is usable out of the box in dev/demo mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	coffee := domain.Category{ID: uuid.NewString(), Name: "Coffee", CreatedAt: now, UpdatedAt: now}
	tea := domain.Category{ID: uuid.NewString(), Name: "Tea", CreatedAt: now, UpdatedAt: now}
	s.categoriesByID[coffee.ID] = coffee
	s.categoriesByID[tea.ID] = tea

	items := []domain.InventoryItem{
		{ID: uuid.NewString(), Name: "Arabica Beans", Unit: domain.UnitGram, CurrentStock: 5000, MinimumStock: 500},
		{ID: uuid.NewString(), Name: "Fresh Milk", Unit: domain.UnitMilliliter, CurrentStock: 12000, MinimumStock: 2000},
		{ID: uuid.NewString(), Name: "Palm Sugar Syrup", Unit: domain.UnitMilliliter, CurrentStock: 3000, MinimumStock: 500},
		{ID: uuid.NewString(), Name: "Matcha Powder", Unit: domain.UnitGram, CurrentStock: 800, MinimumStock: 100},
		{ID: uuid.NewString(), Name: "Cup 16oz", Unit: domain.UnitPiece, CurrentStock: 400, MinimumStock: 50},
	}
	for _, it := range items {
		it.CreatedAt = now
		it.UpdatedAt = now
		restock := now
		it.LastRestockAt = &restock
		s.inventoryByID[it.ID] = it
		s.movements = append(s.movements, domain.StockMovement{
			ID:          uuid.NewString(),
			InventoryID: it.ID,
			Kind:        domain.MovementIn,
			Quantity:    it.CurrentStock,
			Reason:      "Initial stock",
			CreatedBy:   "seed",
			CreatedAt:   now,
		})
	}

	products := []domain.Product{
		{ID: uuid.NewString(), Title: "Es Kopi Susu", SizeML: 250, ProductCost: 8500, SellingPrice: 22000, CategoryID: coffee.ID, Available: true},
		{ID: uuid.NewString(), Title: "Americano", SizeML: 300, ProductCost: 6000, SellingPrice: 18000, CategoryID: coffee.ID, Available: true},
		{ID: uuid.NewString(), Title: "Matcha Latte", SizeML: 250, ProductCost: 9500, SellingPrice: 25000, CategoryID: tea.ID, Available: true},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.productsByID[p.ID] = p
	}

	recipes := []struct {
		product  int
		item     int
		quantity float64
	}{
		{0, 0, 18}, {0, 1, 150}, {0, 2, 30}, {0, 4, 1},
		{1, 0, 18}, {1, 4, 1},
		{2, 3, 5}, {2, 1, 200}, {2, 4, 1},
	}
	for _, r := range recipes {
		rec := domain.ProductRecipe{
			ID:              uuid.NewString(),
			ProductID:       products[r.product].ID,
			InventoryID:     items[r.item].ID,
			QuantityPerUnit: r.quantity,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		s.recipesByID[rec.ID] = rec
	}

	return s
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoriesByID))
	for _, c := range s.categoriesByID {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.categoriesByID {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrInvalidInput
		}
	}
	s.categoriesByID[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context, includeUnavailable bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if !includeUnavailable && !p.Available {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Title, b.Title)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Title == "" {
		return nil, store.ErrInvalidInput
	}
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.productsByID, id)
	for recipeID, r := range s.recipesByID {
		if r.ProductID == id {
			delete(s.recipesByID, recipeID)
		}
	}
	return nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) RecordCustomerPurchase(_ context.Context, customerID string, amount float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[customerID]
	if !exists {
		return store.ErrNotFound
	}
	customer.TotalPurchases++
	customer.TotalSpent += amount
	purchasedAt := at
	customer.LastPurchaseAt = &purchasedAt
	customer.UpdatedAt = at
	s.customersByID[customerID] = customer
	return nil
}

func (s *Store) ListRecipesByProduct(_ context.Context, productID string) ([]domain.ProductRecipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recipes := make([]domain.ProductRecipe, 0, 4)
	for _, r := range s.recipesByID {
		if r.ProductID == productID {
			recipes = append(recipes, r)
		}
	}
	slices.SortFunc(recipes, func(a, b domain.ProductRecipe) int {
		return cmpString(a.InventoryID, b.InventoryID)
	})
	return recipes, nil
}

func (s *Store) UpsertRecipe(_ context.Context, recipe domain.ProductRecipe) (*domain.ProductRecipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[recipe.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.inventoryByID[recipe.InventoryID]; !exists {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.recipesByID {
		if existing.ProductID == recipe.ProductID && existing.InventoryID == recipe.InventoryID {
			existing.QuantityPerUnit = recipe.QuantityPerUnit
			existing.UpdatedAt = recipe.UpdatedAt
			s.recipesByID[id] = existing
			updated := existing
			return &updated, nil
		}
	}
	s.recipesByID[recipe.ID] = recipe
	created := recipe
	return &created, nil
}

func (s *Store) DeleteRecipe(_ context.Context, productID string, inventoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.recipesByID {
		if existing.ProductID == productID && existing.InventoryID == inventoryID {
			delete(s.recipesByID, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) HasRecipesForItem(_ context.Context, inventoryID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.recipesByID {
		if r.InventoryID == inventoryID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListInventoryItems(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(s.inventoryByID))
	for _, it := range s.inventoryByID {
		items = append(items, it)
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		return cmpString(a.Name, b.Name)
	})
	return items, nil
}

func (s *Store) GetInventoryItem(_ context.Context, id string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.inventoryByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := item
	return &copied, nil
}

func (s *Store) CreateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Name == "" || item.Unit == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.inventoryByID {
		if strings.EqualFold(existing.Name, item.Name) {
			return nil, store.ErrInvalidInput
		}
	}
	s.inventoryByID[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) UpdateInventoryItemMeta(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.inventoryByID[item.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	existing.Name = item.Name
	existing.Unit = item.Unit
	existing.MinimumStock = item.MinimumStock
	existing.UpdatedAt = item.UpdatedAt
	s.inventoryByID[item.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteInventoryItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.inventoryByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.inventoryByID, id)
	return nil
}

// ApplyMovement records the movement and updates the cached balance under
// one lock acquisition. The balance never changes through any other path.
func (s *Store) ApplyMovement(_ context.Context, movement domain.StockMovement, clampZero bool) (*domain.StockMovement, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.Quantity <= 0 {
		return nil, 0, store.ErrInvalidInput
	}
	item, exists := s.inventoryByID[movement.InventoryID]
	if !exists {
		return nil, 0, store.ErrNotFound
	}

	delta := movement.Quantity
	switch movement.Kind {
	case domain.MovementOut:
		delta = -movement.Quantity
	case domain.MovementIn, domain.MovementAdjustment:
	default:
		return nil, 0, store.ErrInvalidInput
	}

	newStock := item.CurrentStock + delta
	if newStock < 0 {
		if !clampZero {
			return nil, 0, store.ErrInsufficientStock
		}
		newStock = 0
	}

	item.CurrentStock = newStock
	item.UpdatedAt = movement.CreatedAt
	if movement.Kind == domain.MovementIn {
		restockedAt := movement.CreatedAt
		item.LastRestockAt = &restockedAt
	}
	s.inventoryByID[movement.InventoryID] = item
	s.movements = append(s.movements, movement)

	applied := movement
	return &applied, newStock, nil
}

func (s *Store) ListStockMovements(_ context.Context, inventoryID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if inventoryID != "" && m.InventoryID != inventoryID {
			continue
		}
		movements = append(movements, m)
		if limit > 0 && len(movements) >= limit {
			break
		}
	}
	return movements, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Number == "" {
		return nil, store.ErrInvalidInput
	}
	if _, taken := s.numbersTaken[tx.Number]; taken {
		return nil, store.ErrDuplicateNumber
	}
	stored := tx
	stored.Items = nil
	s.transactionsByID[tx.ID] = &stored
	s.numbersTaken[tx.Number] = tx.ID
	created := stored
	return &created, nil
}

func (s *Store) ListTransactionNumbers(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	numbers := make([]string, 0, 16)
	for number := range s.numbersTaken {
		if strings.HasPrefix(number, prefix) {
			numbers = append(numbers, number)
		}
	}
	slices.Sort(numbers)
	return numbers, nil
}

func (s *Store) CreateTransactionItem(_ context.Context, item domain.TransactionItem) (*domain.TransactionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionsByID[item.TransactionID]; !exists {
		return nil, store.ErrNotFound
	}
	s.itemsByTx[item.TransactionID] = append(s.itemsByTx[item.TransactionID], item)
	created := item
	return &created, nil
}

func (s *Store) SetTransactionTotalCost(_ context.Context, transactionID string, totalCost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[transactionID]
	if !exists {
		return store.ErrNotFound
	}
	tx.TotalCost = totalCost
	return nil
}

// DeleteTransaction removes the header, its items, and releases the
// transaction number. Used by the sale recorder to compensate a partial
// write; never exposed over HTTP.
func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.numbersTaken, tx.Number)
	delete(s.transactionsByID, id)
	delete(s.itemsByTx, id)
	return nil
}

func (s *Store) GetTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := *tx
	copied.Items = slices.Clone(s.itemsByTx[id])
	return &copied, nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transactions := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		transactions = append(transactions, *tx)
	}
	slices.SortFunc(transactions, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.Number, a.Number)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions, nil
}

func (s *Store) VoidTransaction(_ context.Context, id string, reason string, voidedBy string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if tx.Status == domain.TxStatusVoid {
		return nil, store.ErrAlreadyVoid
	}
	tx.Status = domain.TxStatusVoid
	tx.VoidReason = reason
	tx.VoidedBy = voidedBy
	voidedAt := at
	tx.VoidedAt = &voidedAt

	copied := *tx
	copied.Items = slices.Clone(s.itemsByTx[id])
	return &copied, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		logs = append(logs, s.auditLogs[i])
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
