package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/playden/playden/internal/catalog/domain"
	"github.com/playden/playden/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	store repository.Repository[domain.CatalogService]
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		store: repository.ProvideStore[domain.CatalogService](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateServiceRequest) (*domain.CatalogService, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Kind != domain.KindTime && req.Kind != domain.KindUnit {
		return nil, domain.ErrInvalidKind
	}
	if req.UnitPrice < 0 {
		return nil, domain.ErrInvalidPrice
	}

	now := time.Now().UTC()
	svc := &domain.CatalogService{
		ID:        s.genID.Generate(),
		Name:      name,
		Kind:      req.Kind,
		UnitPrice: req.UnitPrice,
		Category:  strings.TrimSpace(req.Category),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) List(ctx context.Context) ([]domain.CatalogService, error) {
	items, err := s.store.Find(ctx, &domain.CatalogService{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.CatalogService, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.CatalogService, error) {
	parsed, err := parseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.store.FindOne(ctx, &domain.CatalogService{ID: parsed})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateServiceRequest) (*domain.CatalogService, error) {
	item, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		updates["name"] = name
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice < 0 {
			return nil, domain.ErrInvalidPrice
		}
		updates["unit_price"] = *req.UnitPrice
	}
	if req.Category != nil {
		updates["category"] = strings.TrimSpace(*req.Category)
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if err := s.store.Update(ctx, item.ID.String(), updates); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, req.ID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, item.ID.String())
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
