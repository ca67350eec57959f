package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kedaipos/backend/internal/cache"
	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/store/memory"
)

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func newTestService(repo store.Repository) *Service {
	return New(repo, cache.NoopSnapshotCache{}, nil, nil, Options{SnapshotTTL: time.Minute})
}

// saleFixture is a product costing 15000 to make and selling for 25000,
// built from 2 units of ingredient A and 0.5 units of ingredient B.
type saleFixture struct {
	productID string
	itemA     string
	itemB     string
}

func seedSaleFixture(t *testing.T, repo store.Repository) saleFixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	product, err := repo.CreateProduct(ctx, domain.Product{
		ID:           uuid.NewString(),
		Title:        "Es Kopi Susu",
		ProductCost:  15000,
		SellingPrice: 25000,
		Available:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	itemA, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{
		ID: uuid.NewString(), Name: "Arabica Beans", Unit: "g",
		CurrentStock: 100, MinimumStock: 10, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create item A: %v", err)
	}
	itemB, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{
		ID: uuid.NewString(), Name: "Palm Sugar Syrup", Unit: "ml",
		CurrentStock: 50, MinimumStock: 5, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create item B: %v", err)
	}

	for _, line := range []struct {
		itemID string
		qty    float64
	}{{itemA.ID, 2}, {itemB.ID, 0.5}} {
		_, err := repo.UpsertRecipe(ctx, domain.ProductRecipe{
			ID: uuid.NewString(), ProductID: product.ID, InventoryID: line.itemID,
			QuantityPerUnit: line.qty, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("upsert recipe: %v", err)
		}
	}

	return saleFixture{productID: product.ID, itemA: itemA.ID, itemB: itemB.ID}
}

func saleRequest(fix saleFixture, qty int) domain.RecordSaleRequest {
	return domain.RecordSaleRequest{
		Items: []domain.SaleItemInput{{
			ProductID: fix.productID,
			Quantity:  qty,
			UnitPrice: 25000,
			Subtotal:  25000 * float64(qty),
		}},
		Channel:       "store",
		PaymentMethod: "cash",
	}
}

func TestRecordSaleTotals(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	resp, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 2))
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	tx := resp.Transaction
	if tx.TotalAmount != 50000 {
		t.Fatalf("expected total amount 50000, got %.2f", tx.TotalAmount)
	}
	if tx.TotalCost != 30000 {
		t.Fatalf("expected total cost 30000, got %.2f", tx.TotalCost)
	}
	if tx.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed status, got %s", tx.Status)
	}
	if len(tx.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(tx.Items))
	}
	if tx.Items[0].UnitCost != 15000 {
		t.Fatalf("expected snapshotted unit cost 15000, got %.2f", tx.Items[0].UnitCost)
	}
	if len(resp.StockWarnings) != 0 {
		t.Fatalf("expected no stock warnings, got %v", resp.StockWarnings)
	}

	prefix := time.Now().UTC().Format("20060102") + "-"
	if !strings.HasPrefix(tx.Number, prefix) {
		t.Fatalf("expected number with prefix %s, got %s", prefix, tx.Number)
	}
}

func TestRecordSaleDepletesRecipeIngredients(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	resp, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 3))
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	balanceA, err := svc.CurrentBalance(context.Background(), fix.itemA)
	if err != nil {
		t.Fatalf("balance A: %v", err)
	}
	if balanceA != 94 {
		t.Fatalf("expected item A balance 94, got %.2f", balanceA)
	}

	balanceB, err := svc.CurrentBalance(context.Background(), fix.itemB)
	if err != nil {
		t.Fatalf("balance B: %v", err)
	}
	if balanceB != 48.5 {
		t.Fatalf("expected item B balance 48.5, got %.2f", balanceB)
	}

	movements, err := repo.ListStockMovements(context.Background(), fix.itemA, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected 1 movement for item A, got %d", len(movements))
	}
	m := movements[0]
	if m.Kind != domain.MovementOut || m.Quantity != 6 {
		t.Fatalf("expected out movement of 6, got %s %.2f", m.Kind, m.Quantity)
	}
	wantReason := "Transaction #" + resp.Transaction.Number
	if m.Reason != wantReason {
		t.Fatalf("expected reason %q, got %q", wantReason, m.Reason)
	}
	if m.TransactionID != resp.Transaction.ID {
		t.Fatalf("expected movement linked to transaction %s, got %s", resp.Transaction.ID, m.TransactionID)
	}
}

func TestRecordSaleRejectsSubtotalMismatch(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	req := saleRequest(fix, 2)
	req.Items[0].Subtotal = 49000

	_, err := svc.RecordSale(cashierCtx(), req)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	transactions, _ := repo.ListTransactions(context.Background(), 10)
	if len(transactions) != 0 {
		t.Fatalf("expected no transactions after rejected sale, got %d", len(transactions))
	}
}

func TestRecordSaleUnknownCustomerFails(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	req := saleRequest(fix, 1)
	req.CustomerID = uuid.NewString()

	_, err := svc.RecordSale(cashierCtx(), req)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	balance, _ := svc.CurrentBalance(context.Background(), fix.itemA)
	if balance != 100 {
		t.Fatalf("expected stock untouched, got %.2f", balance)
	}
}

func TestRecordSaleUpdatesCustomerStats(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	now := time.Now().UTC()
	customer, err := repo.CreateCustomer(context.Background(), domain.Customer{
		ID: uuid.NewString(), Name: "Budi", Phone: "0812000111", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	req := saleRequest(fix, 2)
	req.CustomerID = customer.ID
	if _, err := svc.RecordSale(cashierCtx(), req); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	updated, err := repo.GetCustomerByID(context.Background(), customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if updated.TotalPurchases != 1 || updated.TotalSpent != 50000 {
		t.Fatalf("expected 1 purchase totaling 50000, got %d/%.2f", updated.TotalPurchases, updated.TotalSpent)
	}
	if updated.LastPurchaseAt == nil {
		t.Fatalf("expected last purchase timestamp to be set")
	}
}

// failingRepo wraps the in-memory store and fails a chosen write so the
// compensating-delete path can be exercised.
type failingRepo struct {
	*memory.Store
	failTotalCost bool
	failItems     bool
}

func (f *failingRepo) SetTransactionTotalCost(ctx context.Context, transactionID string, totalCost float64) error {
	if f.failTotalCost {
		return errors.New("injected write failure")
	}
	return f.Store.SetTransactionTotalCost(ctx, transactionID, totalCost)
}

func (f *failingRepo) CreateTransactionItem(ctx context.Context, item domain.TransactionItem) (*domain.TransactionItem, error) {
	if f.failItems {
		return nil, errors.New("injected write failure")
	}
	return f.Store.CreateTransactionItem(ctx, item)
}

func TestRecordSaleCompensatesWhenItemWriteFails(t *testing.T) {
	repo := &failingRepo{Store: memory.New(), failItems: true}
	fix := seedSaleFixture(t, repo.Store)
	svc := newTestService(repo)

	_, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 1))
	if err == nil {
		t.Fatalf("expected sale to fail")
	}

	assertNothingRecorded(t, repo.Store, fix)
}

func TestRecordSaleCompensatesWhenCostPatchFails(t *testing.T) {
	repo := &failingRepo{Store: memory.New(), failTotalCost: true}
	fix := seedSaleFixture(t, repo.Store)
	svc := newTestService(repo)

	_, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 1))
	if err == nil {
		t.Fatalf("expected sale to fail")
	}

	assertNothingRecorded(t, repo.Store, fix)
}

func assertNothingRecorded(t *testing.T, repo *memory.Store, fix saleFixture) {
	t.Helper()
	ctx := context.Background()

	transactions, err := repo.ListTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(transactions) != 0 {
		t.Fatalf("expected no transactions after rollback, got %d", len(transactions))
	}

	prefix := time.Now().UTC().Format("20060102") + "-"
	numbers, err := repo.ListTransactionNumbers(ctx, prefix)
	if err != nil {
		t.Fatalf("list numbers: %v", err)
	}
	if len(numbers) != 0 {
		t.Fatalf("expected reserved number to be released, got %v", numbers)
	}

	balance, err := repo.GetInventoryItem(ctx, fix.itemA)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if balance.CurrentStock != 100 {
		t.Fatalf("expected stock untouched after rollback, got %.2f", balance.CurrentStock)
	}
}

func TestDepletionClampVersusAdjustReject(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	// Knock item A down to 5 so a sale of 4 units (needing 8) oversells.
	if _, _, err := svc.AdjustStock(adminCtx(), domain.StockAdjustRequest{
		InventoryID: fix.itemA, Quantity: -95, Reason: "shrinkage count",
	}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	resp, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 4))
	if err != nil {
		t.Fatalf("oversell sale should still commit: %v", err)
	}
	if resp.Transaction.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed sale, got %s", resp.Transaction.Status)
	}

	balance, _ := svc.CurrentBalance(context.Background(), fix.itemA)
	if balance != 0 {
		t.Fatalf("expected balance clamped at zero, got %.2f", balance)
	}

	// The ledger keeps the full quantity sold even though the balance clamped.
	movements, _ := repo.ListStockMovements(context.Background(), fix.itemA, 1)
	if len(movements) != 1 || movements[0].Quantity != 8 {
		t.Fatalf("expected out movement of 8, got %+v", movements)
	}

	// The manual path refuses the same overdraw.
	_, _, err = svc.AdjustStock(adminCtx(), domain.StockAdjustRequest{
		InventoryID: fix.itemB, Quantity: -60, Reason: "bad count",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock from manual adjust, got %v", err)
	}
}

func TestVoidTransactionKeepsStockDepleted(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	resp, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 1))
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	voided, err := svc.VoidTransaction(adminCtx(), resp.Transaction.ID, "customer cancelled")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != domain.TxStatusVoid || voided.VoidedBy != "admin" || voided.VoidedAt == nil {
		t.Fatalf("expected void metadata, got %+v", voided)
	}

	balance, _ := svc.CurrentBalance(context.Background(), fix.itemA)
	if balance != 98 {
		t.Fatalf("expected stock to stay depleted after void, got %.2f", balance)
	}

	if _, err := svc.VoidTransaction(adminCtx(), resp.Transaction.ID, "twice"); !errors.Is(err, store.ErrAlreadyVoid) {
		t.Fatalf("expected second void to fail with ErrAlreadyVoid, got %v", err)
	}

	if _, err := svc.VoidTransaction(cashierCtx(), resp.Transaction.ID, "not allowed"); err == nil {
		t.Fatalf("expected cashier void to be rejected")
	}
}

func TestResolveRecipeEmptyIsValid(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	now := time.Now().UTC()

	product, err := repo.CreateProduct(context.Background(), domain.Product{
		ID: uuid.NewString(), Title: "Bottled Water", SellingPrice: 8000, Available: true,
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	lines, err := svc.ResolveRecipe(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty recipe, got %v", lines)
	}

	resp, err := svc.RecordSale(cashierCtx(), domain.RecordSaleRequest{
		Items:         []domain.SaleItemInput{{ProductID: product.ID, Quantity: 1, UnitPrice: 8000, Subtotal: 8000}},
		Channel:       "gofood",
		PaymentMethod: "gofood",
	})
	if err != nil {
		t.Fatalf("sale of recipe-less product: %v", err)
	}
	if len(resp.StockWarnings) != 0 {
		t.Fatalf("expected no warnings, got %v", resp.StockWarnings)
	}
}

func TestSharedIngredientDepletesPerSoldItem(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	ctx := context.Background()
	now := time.Now().UTC()

	milk, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{
		ID: uuid.NewString(), Name: "Fresh Milk", Unit: "ml",
		CurrentStock: 1000, MinimumStock: 100, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create milk: %v", err)
	}

	var products []domain.Product
	for _, title := range []string{"Latte", "Flat White"} {
		p, err := repo.CreateProduct(ctx, domain.Product{
			ID: uuid.NewString(), Title: title, ProductCost: 5000, SellingPrice: 20000,
			Available: true, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		if _, err := repo.UpsertRecipe(ctx, domain.ProductRecipe{
			ID: uuid.NewString(), ProductID: p.ID, InventoryID: milk.ID,
			QuantityPerUnit: 100, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("recipe for %s: %v", title, err)
		}
		products = append(products, *p)
	}

	_, err = svc.RecordSale(cashierCtx(), domain.RecordSaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: products[0].ID, Quantity: 1, UnitPrice: 20000, Subtotal: 20000},
			{ProductID: products[1].ID, Quantity: 1, UnitPrice: 20000, Subtotal: 20000},
		},
		Channel:       "store",
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	// One movement per sold item, not one merged row for the shared
	// ingredient.
	movements, err := repo.ListStockMovements(ctx, milk.ID, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements for the shared ingredient, got %d", len(movements))
	}
	for _, m := range movements {
		if m.Kind != domain.MovementOut || m.Quantity != 100 {
			t.Fatalf("expected out movement of 100, got %s %.2f", m.Kind, m.Quantity)
		}
	}

	balance, _ := svc.CurrentBalance(ctx, milk.ID)
	if balance != 800 {
		t.Fatalf("expected balance 800, got %.2f", balance)
	}
}

// itemReadFailRepo makes the post-depletion inventory read fail so the
// low-stock check cannot run.
type itemReadFailRepo struct {
	*memory.Store
}

func (r *itemReadFailRepo) GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return nil, errors.New("injected read failure")
}

func TestLowStockCheckFailureIsLoggedNotFatal(t *testing.T) {
	repo := &itemReadFailRepo{Store: memory.New()}
	fix := seedSaleFixture(t, repo.Store)

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	svc := New(repo, cache.NoopSnapshotCache{}, nil, logger, Options{SnapshotTTL: time.Minute})

	resp, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 1))
	if err != nil {
		t.Fatalf("sale should survive a failed low-stock read: %v", err)
	}
	if len(resp.StockWarnings) != 0 {
		t.Fatalf("a low-stock read failure is not a depletion warning, got %v", resp.StockWarnings)
	}
	if !strings.Contains(buf.String(), "low stock check failed") {
		t.Fatalf("expected low-stock read failure to be logged, got %q", buf.String())
	}
}

func TestRecipeUpsertInvalidatesSnapshot(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	// Prime the snapshot, then change the recipe and sell again: the new
	// quantity must take effect, not the cached one.
	if _, err := svc.ResolveRecipe(context.Background(), fix.productID); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := svc.UpsertRecipe(adminCtx(), domain.RecipeUpsertRequest{
		ProductID: fix.productID, InventoryID: fix.itemA, QuantityPerUnit: 4,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 1)); err != nil {
		t.Fatalf("sale: %v", err)
	}

	balance, _ := svc.CurrentBalance(context.Background(), fix.itemA)
	if balance != 96 {
		t.Fatalf("expected updated recipe quantity applied (100-4), got %.2f", balance)
	}
}
