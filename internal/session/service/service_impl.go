package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/playden/playden/internal/catalog/domain"
	"github.com/playden/playden/internal/clock"
	customerdomain "github.com/playden/playden/internal/customer/domain"
	obsmetrics "github.com/playden/playden/internal/observability/metrics"
	"github.com/playden/playden/internal/session/domain"
	"github.com/playden/playden/internal/sessionlock"
	"github.com/playden/playden/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxConflictRetries bounds how often a mutation is re-applied after a
// version conflict before the conflict surfaces to the caller.
const maxConflictRetries = 3

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	CustomerSvc customerdomain.Service
	CatalogSvc  catalogdomain.Service
	Locker      *sessionlock.Locker `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	customerSvc customerdomain.Service
	catalogSvc  catalogdomain.Service
	locker      *sessionlock.Locker
	metrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("session.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		customerSvc: p.CustomerSvc,
		catalogSvc:  p.CatalogSvc,
		locker:      p.Locker,
		metrics:     p.Metrics,
	}
}

func (s *Service) Start(ctx context.Context, req domain.StartSessionRequest) (*domain.Session, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, domain.ErrInvalidCustomer
	}
	customer, err := s.customerSvc.GetByID(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, customerdomain.ErrNotFound) || errors.Is(err, customerdomain.ErrInvalidID) {
			return nil, domain.ErrInvalidCustomer
		}
		return nil, err
	}

	now := s.clock.Now().UTC()
	session := &domain.Session{
		ID:            s.genID.Generate(),
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		CustomerPhone: customer.Phone,
		Status:        domain.SessionActive,
		StartTime:     now,
		TotalCost:     0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, session); err != nil {
		return nil, err
	}

	s.metrics.RecordSessionStarted(ctx)
	return session, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	session, err := s.repo.FindByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSessionRequest) (domain.ListSessionResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListSessionFilter{Status: req.Status}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListSessionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(session *domain.Session) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        session.ID.String(),
			CreatedAt: session.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	sessions := make([]domain.Session, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		sessions = append(sessions, *item)
	}

	resp := domain.ListSessionResponse{Sessions: sessions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// LiveView computes the as-of-now projection. It is a pure read: no
// lock is taken and nothing is persisted.
func (s *Service) LiveView(ctx context.Context, id string) (*domain.LiveSessionView, error) {
	session, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	services := make([]domain.LiveService, 0, len(session.Services))
	for i := range session.Services {
		m := session.Services[i]
		services = append(services, domain.LiveService{
			MeteredService: m,
			LiveMinutes:    m.LiveMinutes(now),
			LiveCost:       m.LiveCost(now),
		})
	}

	return &domain.LiveSessionView{
		Session:       *session,
		Status:        session.EffectiveStatus(),
		AsOf:          now,
		Services:      services,
		LiveTotalCost: session.LiveTotalCost(now),
	}, nil
}

func (s *Service) AddService(ctx context.Context, req domain.AddServiceRequest) (*domain.Session, error) {
	catalogSvc, err := s.catalogSvc.GetByID(ctx, req.CatalogServiceID)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrNotFound) || errors.Is(err, catalogdomain.ErrInvalidID) {
			return nil, domain.ErrServiceNotFound
		}
		return nil, err
	}
	if !catalogSvc.Active {
		return nil, catalogdomain.ErrInactive
	}

	quantity := int64(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if catalogSvc.Kind == catalogdomain.KindUnit && quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	return s.mutate(ctx, "session.add_service", req.SessionID, func(session *domain.Session, now time.Time) error {
		entry := domain.MeteredService{
			ID:               s.genID.Generate(),
			SessionID:        session.ID,
			CatalogServiceID: catalogSvc.ID,
			Name:             catalogSvc.Name,
			UnitPrice:        catalogSvc.UnitPrice,
			Quantity:         1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		switch catalogSvc.Kind {
		case catalogdomain.KindTime:
			start := now
			entry.Kind = domain.KindTime
			entry.State = domain.StateRunning
			entry.StartTime = &start
			// Duration and cost stay live until the first freeze.
		default:
			entry.Kind = domain.KindUnit
			entry.State = domain.StateFixed
			entry.Quantity = quantity
			entry.TotalCost = quantity * catalogSvc.UnitPrice
		}
		session.Services = append(session.Services, entry)
		return nil
	})
}

func (s *Service) PauseService(ctx context.Context, req domain.ServiceOpRequest) (*domain.Session, error) {
	serviceID, err := parseID(req.ServiceID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "session.pause_service", req.SessionID, func(session *domain.Session, now time.Time) error {
		entry := session.FindService(serviceID)
		if entry == nil {
			return domain.ErrServiceNotFound
		}
		entry.UpdatedAt = now
		return entry.Pause(now)
	})
}

func (s *Service) ResumeService(ctx context.Context, req domain.ServiceOpRequest) (*domain.Session, error) {
	serviceID, err := parseID(req.ServiceID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "session.resume_service", req.SessionID, func(session *domain.Session, now time.Time) error {
		entry := session.FindService(serviceID)
		if entry == nil {
			return domain.ErrServiceNotFound
		}
		entry.UpdatedAt = now
		return entry.Resume(now)
	})
}

func (s *Service) EditService(ctx context.Context, req domain.EditServiceRequest) (*domain.Session, error) {
	serviceID, err := parseID(req.ServiceID)
	if err != nil {
		return nil, err
	}
	edit := domain.ServiceEdit{
		Quantity:  req.Quantity,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	return s.mutate(ctx, "session.edit_service", req.SessionID, func(session *domain.Session, now time.Time) error {
		entry := session.FindService(serviceID)
		if entry == nil {
			return domain.ErrServiceNotFound
		}
		entry.UpdatedAt = now
		return entry.ApplyEdit(edit, now)
	})
}

func (s *Service) RemoveService(ctx context.Context, req domain.ServiceOpRequest) (*domain.Session, error) {
	serviceID, err := parseID(req.ServiceID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "session.remove_service", req.SessionID, func(session *domain.Session, _ time.Time) error {
		if !session.RemoveService(serviceID) {
			return domain.ErrServiceNotFound
		}
		return nil
	})
}

// End completes the session: one consistent instant freezes every
// unfinished entry and the final total.
func (s *Service) End(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.mutate(ctx, "session.end", id, func(session *domain.Session, now time.Time) error {
		return session.End(now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSessionCompleted(ctx, session.TotalCost)
	s.log.Info("session completed",
		zap.String("session_id", session.ID.String()),
		zap.Int64("total_cost", session.TotalCost),
		zap.Int("services", len(session.Services)),
	)
	return session, nil
}

// Cancel deletes the session and its entries; no cost is retained.
func (s *Service) Cancel(ctx context.Context, id string) error {
	sessionID, err := parseID(id)
	if err != nil {
		return err
	}

	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	session, err := s.repo.FindByID(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return domain.ErrSessionNotFound
	}
	if err := s.repo.Delete(ctx, s.db, session); err != nil {
		return err
	}

	s.metrics.RecordSessionCanceled(ctx)
	return nil
}

func (s *Service) Revenue(ctx context.Context, req domain.RevenueRequest) ([]domain.DailyRevenue, error) {
	from := req.From
	to := req.To
	if to.IsZero() {
		to = s.clock.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !to.After(from) {
		return nil, domain.ErrInvalidTimeRange
	}
	return s.repo.DailyRevenue(ctx, s.db, from, to)
}

// mutate runs one read-modify-write cycle against the session
// aggregate: load, apply the transition, re-aggregate the total,
// compare-and-swap persist. On a version conflict the whole cycle is
// retried against a fresh load, a bounded number of times.
func (s *Service) mutate(ctx context.Context, operation, id string, op func(*domain.Session, time.Time) error) (*domain.Session, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		session, err := s.repo.FindByID(ctx, s.db, sessionID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, domain.ErrSessionNotFound
		}
		if session.Status == domain.SessionCompleted && operation != "session.end" {
			return nil, domain.ErrSessionCompleted
		}

		now := s.clock.Now().UTC()
		if err := op(session, now); err != nil {
			return nil, err
		}
		session.Recalculate()
		session.UpdatedAt = now

		err = s.repo.Save(ctx, s.db, session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}

		s.metrics.RecordSaveConflict(ctx, operation)
		s.log.Warn("session save conflict, retrying",
			zap.String("operation", operation),
			zap.String("session_id", sessionID.String()),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, domain.ErrConflict
}

func (s *Service) acquire(ctx context.Context, sessionID snowflake.ID) (func(), error) {
	return s.locker.Acquire(ctx, sessionID.String())
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
