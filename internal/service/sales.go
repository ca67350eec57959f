package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/validation"
)

// RecordSale writes a transaction in the order the data model demands:
// header first (zero cost), then the line items with their cost
// snapshots, then the total-cost patch. Any failure after the header
// exists triggers a compensating delete of everything written so far,
// so a client never observes a half-recorded sale. Stock depletion runs
// only after the sale is fully committed.
func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.RecordSaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RecordSaleResponse{}, fmt.Errorf("authentication required")
	}

	if err := validation.Struct(req); err != nil {
		return domain.RecordSaleResponse{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if !domain.IsValidChannel(req.Channel) {
		return domain.RecordSaleResponse{}, fmt.Errorf("%w: unknown channel %q", store.ErrInvalidInput, req.Channel)
	}
	if !domain.IsValidPaymentMethod(req.PaymentMethod) {
		return domain.RecordSaleResponse{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}

	var totalAmount float64
	quantities := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		if math.Abs(item.Subtotal-item.UnitPrice*float64(item.Quantity)) > 0.01 {
			return domain.RecordSaleResponse{}, fmt.Errorf("%w: subtotal mismatch for product %s", store.ErrInvalidInput, item.ProductID)
		}
		totalAmount += item.Subtotal
		quantities[item.ProductID] += item.Quantity
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomerByID(ctx, req.CustomerID); err != nil {
			return domain.RecordSaleResponse{}, fmt.Errorf("customer %s: %w", req.CustomerID, err)
		}
	}

	snapshots := make(map[string]*domain.ProductSnapshot, len(quantities))
	for productID := range quantities {
		snapshot, err := s.productSnapshot(ctx, productID)
		if err != nil {
			return domain.RecordSaleResponse{}, fmt.Errorf("product %s: %w", productID, err)
		}
		snapshots[productID] = snapshot
	}

	now := time.Now().UTC()
	header, err := s.reserveTransaction(ctx, domain.Transaction{
		CustomerID:    req.CustomerID,
		CashierID:     actor.Username,
		Channel:       req.Channel,
		PaymentMethod: req.PaymentMethod,
		TotalAmount:   totalAmount,
		TotalCost:     0,
		Notes:         strings.TrimSpace(req.Notes),
		Status:        domain.TxStatusCompleted,
		CreatedAt:     now,
	})
	if err != nil {
		return domain.RecordSaleResponse{}, err
	}

	compensate := func(cause error) error {
		if delErr := s.repo.DeleteTransaction(ctx, header.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("transaction_id", header.ID).Error("service: compensating delete failed, orphan transaction left behind")
		} else {
			s.logger.WithError(cause).WithField("transaction_id", header.ID).Warn("service: sale rolled back after partial write")
		}
		return fmt.Errorf("recording sale %s: %w", header.Number, cause)
	}

	var totalCost float64
	for _, item := range req.Items {
		unitCost := snapshots[item.ProductID].UnitCost
		if _, err := s.repo.CreateTransactionItem(ctx, domain.TransactionItem{
			ID:            uuid.NewString(),
			TransactionID: header.ID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			UnitCost:      unitCost,
			Subtotal:      item.Subtotal,
			CreatedAt:     now,
		}); err != nil {
			return domain.RecordSaleResponse{}, compensate(err)
		}
		totalCost += unitCost * float64(item.Quantity)
	}

	if err := s.repo.SetTransactionTotalCost(ctx, header.ID, totalCost); err != nil {
		return domain.RecordSaleResponse{}, compensate(err)
	}

	committed, err := s.repo.GetTransactionByID(ctx, header.ID)
	if err != nil {
		return domain.RecordSaleResponse{}, compensate(err)
	}

	warnings := s.depleteForSale(ctx, committed, snapshots)

	if req.CustomerID != "" {
		if err := s.repo.RecordCustomerPurchase(ctx, req.CustomerID, totalAmount, now); err != nil {
			s.logger.WithError(err).WithField("customer_id", req.CustomerID).Warn("service: failed to update customer stats")
		}
	}

	if s.highValueThreshold > 0 && totalAmount >= s.highValueThreshold {
		go s.notifier.HighValueSale(context.WithoutCancel(ctx), *committed)
	}

	s.logAudit(ctx, "sale_record", "transaction", committed.ID,
		fmt.Sprintf("number=%s,total=%.2f,items=%d", committed.Number, committed.TotalAmount, len(committed.Items)))

	s.logger.WithFields(logrus.Fields{
		"transaction_id": committed.ID,
		"number":         committed.Number,
		"total":          committed.TotalAmount,
		"warnings":       len(warnings),
	}).Info("service: sale recorded")

	return domain.RecordSaleResponse{Transaction: *committed, StockWarnings: warnings}, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, limit)
}

// VoidTransaction marks a completed sale void. Stock already depleted
// stays depleted; a void is bookkeeping, not a return.
func (s *Service) VoidTransaction(ctx context.Context, id string, reason string) (domain.Transaction, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}

	reason = strings.TrimSpace(reason)
	if len(reason) < 3 {
		return domain.Transaction{}, fmt.Errorf("%w: void reason required", store.ErrInvalidInput)
	}

	voided, err := s.repo.VoidTransaction(ctx, id, reason, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "sale_void", "transaction", voided.ID, "reason="+reason)
	return *voided, nil
}
