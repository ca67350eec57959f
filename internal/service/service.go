package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"kedaipos/backend/internal/cache"
	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/notify"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/validation"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	SnapshotTTL        time.Duration
	HighValueThreshold float64
}

type Service struct {
	repo               store.Repository
	snapshots          cache.SnapshotCache
	notifier           notify.Notifier
	logger             *logrus.Logger
	snapshotTTL        time.Duration
	highValueThreshold float64
}

func New(repo store.Repository, snapshots cache.SnapshotCache, notifier notify.Notifier, logger *logrus.Logger, opts Options) *Service {
	if snapshots == nil {
		snapshots = cache.NoopSnapshotCache{}
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = 5 * time.Minute
	}

	return &Service{
		repo:               repo,
		snapshots:          snapshots,
		notifier:           notifier,
		logger:             logger,
		snapshotTTL:        opts.SnapshotTTL,
		highValueThreshold: opts.HighValueThreshold,
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("admin role required")
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:            uuid.NewString(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", action).Warn("service: failed to write audit log")
	}
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, name string, description string) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	created, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListProducts(ctx context.Context, includeUnavailable bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeUnavailable)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		SizeML:       req.SizeML,
		ProductCost:  req.ProductCost,
		SellingPrice: req.SellingPrice,
		CategoryID:   req.CategoryID,
		Available:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("title=%s,price=%.2f", created.Title, created.SellingPrice))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Title = title
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.SizeML != nil {
		if *req.SizeML < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SizeML = *req.SizeML
	}
	if req.ProductCost != nil {
		if *req.ProductCost < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.ProductCost = *req.ProductCost
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.CategoryID != nil {
		updated.CategoryID = *req.CategoryID
	}
	if req.Available != nil {
		updated.Available = *req.Available
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if err := s.snapshots.Invalidate(ctx, saved.ID); err != nil {
		s.logger.WithError(err).WithField("product_id", saved.ID).Warn("service: failed to invalidate product snapshot")
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("available=%t,price=%.2f", saved.Available, saved.SellingPrice))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	if err := s.snapshots.Invalidate(ctx, id); err != nil {
		s.logger.WithError(err).WithField("product_id", id).Warn("service: failed to invalidate product snapshot")
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Customer{}, fmt.Errorf("authentication required")
	}
	if err := validation.Struct(req); err != nil {
		return domain.Customer{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListRecipes(ctx context.Context, productID string) ([]domain.ProductRecipe, error) {
	if productID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListRecipesByProduct(ctx, productID)
}

func (s *Service) UpsertRecipe(ctx context.Context, req domain.RecipeUpsertRequest) (domain.ProductRecipe, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ProductRecipe{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.ProductRecipe{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	upserted, err := s.repo.UpsertRecipe(ctx, domain.ProductRecipe{
		ID:              uuid.NewString(),
		ProductID:       req.ProductID,
		InventoryID:     req.InventoryID,
		QuantityPerUnit: req.QuantityPerUnit,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return domain.ProductRecipe{}, err
	}

	if err := s.snapshots.Invalidate(ctx, req.ProductID); err != nil {
		s.logger.WithError(err).WithField("product_id", req.ProductID).Warn("service: failed to invalidate product snapshot")
	}

	s.logAudit(ctx, "recipe_upsert", "recipe", upserted.ID,
		fmt.Sprintf("product=%s,item=%s,qty=%.3f", upserted.ProductID, upserted.InventoryID, upserted.QuantityPerUnit))
	return *upserted, nil
}

func (s *Service) DeleteRecipe(ctx context.Context, productID string, inventoryID string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if productID == "" || inventoryID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteRecipe(ctx, productID, inventoryID); err != nil {
		return err
	}
	if err := s.snapshots.Invalidate(ctx, productID); err != nil {
		s.logger.WithError(err).WithField("product_id", productID).Warn("service: failed to invalidate product snapshot")
	}
	s.logAudit(ctx, "recipe_delete", "recipe", "", fmt.Sprintf("product=%s,item=%s", productID, inventoryID))
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.CashierUser{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.CashierUser{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, err
	}

	account := domain.UserAccount{
		Username:  strings.ToLower(strings.TrimSpace(req.Username)),
		Password:  string(hash),
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.CashierUser{}, err
	}

	s.logAudit(ctx, "cashier_create", "user", account.Username, "")
	return domain.CashierUser{
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (s *Service) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]domain.CashierUser, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, domain.CashierUser{
			Username:  account.Username,
			Role:      account.Role,
			Active:    account.Active,
			CreatedAt: account.CreatedAt,
		})
	}
	return users, nil
}
