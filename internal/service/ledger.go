package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/validation"
)

func (s *Service) ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.repo.ListInventoryItems(ctx)
}

func (s *Service) GetInventoryItem(ctx context.Context, id string) (domain.InventoryItem, error) {
	item, err := s.repo.GetInventoryItem(ctx, id)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return *item, nil
}

// CurrentBalance reads the cached balance on the item row. The ledger
// guarantees it equals the signed sum of the item's movements.
func (s *Service) CurrentBalance(ctx context.Context, inventoryID string) (float64, error) {
	item, err := s.repo.GetInventoryItem(ctx, inventoryID)
	if err != nil {
		return 0, err
	}
	return item.CurrentStock, nil
}

// CreateInventoryItem registers the item with a zero balance, then seeds
// the opening stock through the ledger so the balance and the movement
// history agree from the first row.
func (s *Service) CreateInventoryItem(ctx context.Context, req domain.InventoryCreateRequest) (domain.InventoryItem, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.InventoryItem{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if !domain.IsValidUnit(req.Unit) {
		return domain.InventoryItem{}, fmt.Errorf("%w: unknown unit %q", store.ErrInvalidInput, req.Unit)
	}

	now := time.Now().UTC()
	created, err := s.repo.CreateInventoryItem(ctx, domain.InventoryItem{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Unit:         req.Unit,
		CurrentStock: 0,
		MinimumStock: req.MinimumStock,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}

	if req.CurrentStock > 0 {
		_, _, err := s.repo.ApplyMovement(ctx, domain.StockMovement{
			ID:          uuid.NewString(),
			InventoryID: created.ID,
			Kind:        domain.MovementIn,
			Quantity:    req.CurrentStock,
			Reason:      "Initial stock",
			CreatedBy:   actor.Username,
			CreatedAt:   now,
		}, false)
		if err != nil {
			if delErr := s.repo.DeleteInventoryItem(ctx, created.ID); delErr != nil {
				s.logger.WithError(delErr).WithField("inventory_id", created.ID).Error("service: cleanup after failed opening stock failed, orphan item left behind")
			}
			return domain.InventoryItem{}, fmt.Errorf("seeding opening stock: %w", err)
		}
	}

	s.logAudit(ctx, "inventory_create", "inventory_item", created.ID,
		fmt.Sprintf("name=%s,unit=%s,initial=%.2f", created.Name, created.Unit, req.CurrentStock))

	final, err := s.repo.GetInventoryItem(ctx, created.ID)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return *final, nil
}

func (s *Service) UpdateInventoryItem(ctx context.Context, id string, req domain.InventoryUpdateRequest) (domain.InventoryItem, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.InventoryItem{}, err
	}

	existing, err := s.repo.GetInventoryItem(ctx, id)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.InventoryItem{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Unit != nil {
		if !domain.IsValidUnit(*req.Unit) {
			return domain.InventoryItem{}, fmt.Errorf("%w: unknown unit %q", store.ErrInvalidInput, *req.Unit)
		}
		updated.Unit = *req.Unit
	}
	if req.MinimumStock != nil {
		if *req.MinimumStock < 0 {
			return domain.InventoryItem{}, store.ErrInvalidInput
		}
		updated.MinimumStock = *req.MinimumStock
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateInventoryItemMeta(ctx, updated)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.logAudit(ctx, "inventory_update", "inventory_item", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeleteInventoryItem(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}

	used, err := s.repo.HasRecipesForItem(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: item is referenced by product recipes", store.ErrInvalidInput)
	}

	if err := s.repo.DeleteInventoryItem(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "inventory_delete", "inventory_item", id, "")
	return nil
}

// AdjustStock is the manual correction path. Unlike automatic depletion
// it refuses to take the balance below zero: a human claiming to remove
// more stock than exists has made a counting mistake.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockMovement, float64, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.StockMovement{}, 0, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.StockMovement{}, 0, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if req.Quantity == 0 {
		return domain.StockMovement{}, 0, fmt.Errorf("%w: quantity must be non-zero", store.ErrInvalidInput)
	}

	kind := domain.MovementIn
	quantity := req.Quantity
	if quantity < 0 {
		kind = domain.MovementOut
		quantity = -quantity
	}

	movement, balance, err := s.repo.ApplyMovement(ctx, domain.StockMovement{
		ID:          uuid.NewString(),
		InventoryID: req.InventoryID,
		Kind:        kind,
		Quantity:    quantity,
		Reason:      strings.TrimSpace(req.Reason),
		CreatedBy:   actor.Username,
		CreatedAt:   time.Now().UTC(),
	}, false)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			return domain.StockMovement{}, 0, fmt.Errorf("%w: cannot adjust stock below zero", store.ErrInsufficientStock)
		}
		return domain.StockMovement{}, 0, err
	}

	s.logAudit(ctx, "stock_adjust", "inventory_item", req.InventoryID,
		fmt.Sprintf("kind=%s,qty=%.2f,reason=%s", kind, quantity, req.Reason))
	return *movement, balance, nil
}

func (s *Service) ListStockMovements(ctx context.Context, inventoryID string, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListStockMovements(ctx, inventoryID, limit)
}

func (s *Service) LowStockItems(ctx context.Context) ([]domain.InventoryItem, error) {
	items, err := s.repo.ListInventoryItems(ctx)
	if err != nil {
		return nil, err
	}

	low := make([]domain.InventoryItem, 0, len(items))
	for _, item := range items {
		if item.LowStock() {
			low = append(low, item)
		}
	}
	return low, nil
}
