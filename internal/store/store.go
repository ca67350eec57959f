package store

import (
	"context"
	"errors"
	"time"

	"kedaipos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateNumber   = errors.New("duplicate transaction number")
	ErrAlreadyVoid       = errors.New("transaction already void")
)

// Repository is the persistence contract shared by the postgres and
// in-memory implementations. ApplyMovement is the only write path for
// stock balances: it records the movement and moves the cached balance in
// one atomic step, with clampZero deciding whether an overdraw is clamped
// at zero or rejected with ErrInsufficientStock.
type Repository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)

	ListProducts(ctx context.Context, includeUnavailable bool) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	RecordCustomerPurchase(ctx context.Context, customerID string, amount float64, at time.Time) error

	ListRecipesByProduct(ctx context.Context, productID string) ([]domain.ProductRecipe, error)
	UpsertRecipe(ctx context.Context, recipe domain.ProductRecipe) (*domain.ProductRecipe, error)
	DeleteRecipe(ctx context.Context, productID string, inventoryID string) error
	HasRecipesForItem(ctx context.Context, inventoryID string) (bool, error)

	ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error)
	CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	UpdateInventoryItemMeta(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	DeleteInventoryItem(ctx context.Context, id string) error

	ApplyMovement(ctx context.Context, movement domain.StockMovement, clampZero bool) (*domain.StockMovement, float64, error)
	ListStockMovements(ctx context.Context, inventoryID string, limit int) ([]domain.StockMovement, error)

	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	ListTransactionNumbers(ctx context.Context, prefix string) ([]string, error)
	CreateTransactionItem(ctx context.Context, item domain.TransactionItem) (*domain.TransactionItem, error)
	SetTransactionTotalCost(ctx context.Context, transactionID string, totalCost float64) error
	DeleteTransaction(ctx context.Context, id string) error
	GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	VoidTransaction(ctx context.Context, id string, reason string, voidedBy string, at time.Time) (*domain.Transaction, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
