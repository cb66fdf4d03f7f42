package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/playden/playden/internal/audit/domain"
	"github.com/playden/playden/pkg/db/option"
	"github.com/playden/playden/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
	store repository.Repository[domain.Entry]
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		store: repository.ProvideStore[domain.Entry](p.DB),
	}
}

func (s *Service) Record(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	entry := &domain.Entry{
		ID:         s.genID.Generate(),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Create(ctx, entry); err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", action),
			zap.String("target_id", targetID),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, targetID string, limit int) ([]domain.Entry, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	items, err := s.store.Find(ctx, &domain.Entry{TargetID: targetID},
		option.WithOrder("created_at desc"),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}
