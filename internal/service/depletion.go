package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kedaipos/backend/internal/domain"
)

// ResolveRecipe returns the ingredient lines one unit of the product
// consumes. A product with no recipe resolves to an empty slice; that is
// a valid configuration (bought-in goods), not an error.
func (s *Service) ResolveRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error) {
	snapshot, err := s.productSnapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	return snapshot.Recipe, nil
}

// productSnapshot reads the per-product sale model through the cache.
// Cache failures degrade to a repository read, never to a failed sale.
func (s *Service) productSnapshot(ctx context.Context, productID string) (*domain.ProductSnapshot, error) {
	cached, hit, err := s.snapshots.Get(ctx, productID)
	if err != nil {
		s.logger.WithError(err).WithField("product_id", productID).Warn("service: snapshot cache read failed")
	} else if hit {
		return cached, nil
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	recipes, err := s.repo.ListRecipesByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.RecipeLine, 0, len(recipes))
	for _, r := range recipes {
		lines = append(lines, domain.RecipeLine{
			InventoryID:     r.InventoryID,
			QuantityPerUnit: r.QuantityPerUnit,
		})
	}

	snapshot := &domain.ProductSnapshot{
		ProductID: productID,
		UnitCost:  product.ProductCost,
		Recipe:    lines,
	}

	if err := s.snapshots.Set(ctx, productID, snapshot, s.snapshotTTL); err != nil {
		s.logger.WithError(err).WithField("product_id", productID).Warn("service: snapshot cache write failed")
	}
	return snapshot, nil
}

// depleteForSale posts the outbound movements a committed sale implies,
// one per sold item per recipe line, so the movement history shows which
// line consumed what even when two products share an ingredient. It runs
// after the transaction is fully written and never rolls it back: each
// failed ingredient is logged and reported as a warning so staff can
// reconcile by hand. Oversell clamps the balance at zero; the ledger
// keeps the full quantity sold so the shortfall stays visible in the
// movement history.
func (s *Service) depleteForSale(ctx context.Context, tx *domain.Transaction, snapshots map[string]*domain.ProductSnapshot) []string {
	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()

	warnings := make([]string, 0)
	notified := make(map[string]bool)
	for _, sold := range tx.Items {
		snapshot, ok := snapshots[sold.ProductID]
		if !ok {
			continue
		}
		for _, line := range snapshot.Recipe {
			quantity := line.QuantityPerUnit * float64(sold.Quantity)
			movement := domain.StockMovement{
				ID:            uuid.NewString(),
				InventoryID:   line.InventoryID,
				Kind:          domain.MovementOut,
				Quantity:      quantity,
				Reason:        fmt.Sprintf("Transaction #%s", tx.Number),
				TransactionID: tx.ID,
				CreatedBy:     actor.Username,
				CreatedAt:     now,
			}

			_, balance, err := s.repo.ApplyMovement(ctx, movement, true)
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"transaction_id": tx.ID,
					"inventory_id":   line.InventoryID,
					"quantity":       quantity,
				}).Warn("service: stock depletion failed")
				warnings = append(warnings, fmt.Sprintf("failed to deplete %s by %.2f", line.InventoryID, quantity))
				continue
			}

			if notified[line.InventoryID] {
				continue
			}
			item, err := s.repo.GetInventoryItem(ctx, line.InventoryID)
			if err != nil {
				s.logger.WithError(err).WithField("inventory_id", line.InventoryID).Warn("service: low stock check failed")
				continue
			}
			if balance <= item.MinimumStock {
				notified[line.InventoryID] = true
				go s.notifier.LowStock(context.WithoutCancel(ctx), *item)
			}
		}
	}
	return warnings
}
