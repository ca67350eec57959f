package domain

import "time"

// Unit values for inventory items. The closed set mirrors what the
// dashboard accepts; anything else is rejected before a write happens.
const (
	UnitMilliliter = "ml"
	UnitGram       = "g"
	UnitPiece      = "pcs"
	UnitKilogram   = "kg"
	UnitLiter      = "l"
)

const (
	MovementIn         = "in"
	MovementOut        = "out"
	MovementAdjustment = "adjustment"
)

const (
	ChannelStore      = "store"
	ChannelGrabfood   = "grabfood"
	ChannelGofood     = "gofood"
	ChannelShopeefood = "shopeefood"
	ChannelUbereats   = "ubereats"
)

const (
	TxStatusCompleted = "completed"
	TxStatusVoid      = "void"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

func IsValidUnit(unit string) bool {
	switch unit {
	case UnitMilliliter, UnitGram, UnitPiece, UnitKilogram, UnitLiter:
		return true
	}
	return false
}

func IsValidChannel(channel string) bool {
	switch channel {
	case ChannelStore, ChannelGrabfood, ChannelGofood, ChannelShopeefood, ChannelUbereats:
		return true
	}
	return false
}

func IsValidPaymentMethod(method string) bool {
	switch method {
	case "cash", "qris", "debit_card", "credit_card",
		ChannelGrabfood, ChannelGofood, ChannelShopeefood, ChannelUbereats:
		return true
	}
	return false
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	SizeML       int       `json:"size_ml"`
	ProductCost  float64   `json:"product_cost"`
	SellingPrice float64   `json:"selling_price"`
	CategoryID   string    `json:"category_id,omitempty"`
	Available    bool      `json:"available"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Redacted strips cost figures from a product before it is shown to a
// cashier. Cost data is admin-only throughout the API.
func (p Product) Redacted() Product {
	p.ProductCost = 0
	return p
}

type ProductCreateRequest struct {
	Title        string  `json:"title" validate:"required,min=2"`
	Description  string  `json:"description"`
	SizeML       int     `json:"size_ml" validate:"min=0"`
	ProductCost  float64 `json:"product_cost" validate:"min=0"`
	SellingPrice float64 `json:"selling_price" validate:"min=0"`
	CategoryID   string  `json:"category_id"`
}

type ProductUpdateRequest struct {
	Title        *string  `json:"title,omitempty"`
	Description  *string  `json:"description,omitempty"`
	SizeML       *int     `json:"size_ml,omitempty"`
	ProductCost  *float64 `json:"product_cost,omitempty"`
	SellingPrice *float64 `json:"selling_price,omitempty"`
	CategoryID   *string  `json:"category_id,omitempty"`
	Available    *bool    `json:"available,omitempty"`
}

type Customer struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Address        string     `json:"address,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	TotalPurchases int        `json:"total_purchases"`
	TotalSpent     float64    `json:"total_spent"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name" validate:"required,min=2"`
	Phone   string `json:"phone" validate:"required,min=6"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// InventoryItem carries a cached balance alongside its movement history.
// The balance is owned by the stock ledger: it changes only when a
// movement is applied, never by a direct field edit.
type InventoryItem struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Unit          string     `json:"unit"`
	CurrentStock  float64    `json:"current_stock"`
	MinimumStock  float64    `json:"minimum_stock"`
	LastRestockAt *time.Time `json:"last_restock_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (i InventoryItem) LowStock() bool {
	return i.CurrentStock <= i.MinimumStock
}

type InventoryCreateRequest struct {
	Name         string  `json:"name" validate:"required,min=2"`
	Unit         string  `json:"unit" validate:"required"`
	MinimumStock float64 `json:"minimum_stock" validate:"min=0"`
	CurrentStock float64 `json:"current_stock" validate:"min=0"`
}

type InventoryUpdateRequest struct {
	Name         *string  `json:"name,omitempty"`
	Unit         *string  `json:"unit,omitempty"`
	MinimumStock *float64 `json:"minimum_stock,omitempty"`
}

// StockMovement is an append-only ledger fact. Quantity is always
// positive; Kind carries the direction. The "adjustment" kind exists for
// imported data and counts as an increase when a balance is recomputed.
type StockMovement struct {
	ID            string    `json:"id"`
	InventoryID   string    `json:"inventory_id"`
	Kind          string    `json:"kind"`
	Quantity      float64   `json:"quantity"`
	Reason        string    `json:"reason"`
	TransactionID string    `json:"transaction_id,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type StockAdjustRequest struct {
	InventoryID string  `json:"inventory_id" validate:"required"`
	Quantity    float64 `json:"quantity"`
	Reason      string  `json:"reason" validate:"required,min=3"`
}

type ProductRecipe struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	InventoryID     string    `json:"inventory_id"`
	QuantityPerUnit float64   `json:"quantity_per_unit"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RecipeUpsertRequest struct {
	ProductID       string  `json:"product_id" validate:"required"`
	InventoryID     string  `json:"inventory_id" validate:"required"`
	QuantityPerUnit float64 `json:"quantity_per_unit" validate:"required,gt=0"`
}

// RecipeLine is the resolver's view of one recipe row: how much of one
// inventory item a single unit of the product consumes.
type RecipeLine struct {
	InventoryID     string  `json:"inventory_id"`
	QuantityPerUnit float64 `json:"quantity_per_unit"`
}

// ProductSnapshot is the cacheable read model the sale path needs per
// product: the cost to snapshot onto the line item and the recipe to
// deplete against.
type ProductSnapshot struct {
	ProductID string       `json:"product_id"`
	UnitCost  float64      `json:"unit_cost"`
	Recipe    []RecipeLine `json:"recipe"`
}

type Transaction struct {
	ID            string            `json:"id"`
	Number        string            `json:"transaction_number"`
	CustomerID    string            `json:"customer_id,omitempty"`
	CashierID     string            `json:"cashier_id"`
	Channel       string            `json:"channel"`
	PaymentMethod string            `json:"payment_method"`
	TotalAmount   float64           `json:"total_amount"`
	TotalCost     float64           `json:"total_cost"`
	Notes         string            `json:"notes,omitempty"`
	Status        string            `json:"status"`
	VoidReason    string            `json:"void_reason,omitempty"`
	VoidedBy      string            `json:"voided_by,omitempty"`
	VoidedAt      *time.Time        `json:"voided_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []TransactionItem `json:"items,omitempty"`
}

// Redacted strips cost figures from a transaction and its items before it
// is shown to a cashier.
func (t Transaction) Redacted() Transaction {
	t.TotalCost = 0
	items := make([]TransactionItem, len(t.Items))
	for i, item := range t.Items {
		item.UnitCost = 0
		items[i] = item
	}
	t.Items = items
	return t
}

type TransactionItem struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	ProductID     string    `json:"product_id"`
	Quantity      int       `json:"quantity"`
	UnitPrice     float64   `json:"unit_price"`
	UnitCost      float64   `json:"unit_cost"`
	Subtotal      float64   `json:"subtotal"`
	CreatedAt     time.Time `json:"created_at"`
}

type SaleItemInput struct {
	ProductID string  `json:"product_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	UnitPrice float64 `json:"unit_price" validate:"min=0"`
	Subtotal  float64 `json:"subtotal" validate:"min=0"`
}

type RecordSaleRequest struct {
	Items         []SaleItemInput `json:"items" validate:"required,min=1,dive"`
	Channel       string          `json:"channel" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

// RecordSaleResponse carries the committed transaction plus any stock
// depletion warnings. Warnings never mean the sale failed; they flag
// inventory that needs manual reconciliation.
type RecordSaleResponse struct {
	Transaction   Transaction `json:"transaction"`
	StockWarnings []string    `json:"stock_warnings,omitempty"`
}

type VoidTransactionRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username" validate:"required,min=4"`
	Password string `json:"password" validate:"required,min=6"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
