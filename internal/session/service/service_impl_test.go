package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/playden/playden/internal/catalog/domain"
	catalogservice "github.com/playden/playden/internal/catalog/service"
	"github.com/playden/playden/internal/clock"
	customerdomain "github.com/playden/playden/internal/customer/domain"
	customerrepository "github.com/playden/playden/internal/customer/repository"
	customerservice "github.com/playden/playden/internal/customer/service"
	"github.com/playden/playden/internal/session/domain"
	"github.com/playden/playden/internal/session/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc      domain.Service
	db       *gorm.DB
	clock    *clock.FakeClock
	node     *snowflake.Node
	catalog  catalogdomain.Service
	customer customerdomain.Customer
}

func setupSessionService(t *testing.T) *harness {
	t.Helper()

	node := mustNode(t)
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(
		&customerdomain.Customer{},
		&catalogdomain.CatalogService{},
		&domain.Session{},
		&domain.MeteredService{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := zap.NewNop()
	customerSvc := customerservice.New(customerservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  customerrepository.Provide(),
	})
	catalogSvc := catalogservice.New(catalogservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
	})

	customer, err := customerSvc.Create(context.Background(), customerdomain.CreateCustomerRequest{
		Name:  "Walk-in",
		Phone: "555-0100",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fc,
		Repo:        repository.Provide(),
		CustomerSvc: customerSvc,
		CatalogSvc:  catalogSvc,
	})

	return &harness{
		svc:      svc,
		db:       db,
		clock:    fc,
		node:     node,
		catalog:  catalogSvc,
		customer: customer,
	}
}

func (h *harness) catalogEntry(t *testing.T, name string, kind catalogdomain.ServiceKind, price int64) *catalogdomain.CatalogService {
	t.Helper()
	svc, err := h.catalog.Create(context.Background(), catalogdomain.CreateServiceRequest{
		Name:      name,
		Kind:      kind,
		UnitPrice: price,
	})
	if err != nil {
		t.Fatalf("create catalog service %q: %v", name, err)
	}
	return svc
}

func (h *harness) startSession(t *testing.T) *domain.Session {
	t.Helper()
	session, err := h.svc.Start(context.Background(), domain.StartSessionRequest{
		CustomerID: h.customer.ID.String(),
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return session
}

func (h *harness) addService(t *testing.T, sessionID string, catalogID string, quantity *int64) *domain.Session {
	t.Helper()
	session, err := h.svc.AddService(context.Background(), domain.AddServiceRequest{
		SessionID:        sessionID,
		CatalogServiceID: catalogID,
		Quantity:         quantity,
	})
	if err != nil {
		t.Fatalf("add service: %v", err)
	}
	return session
}

func int64Ptr(v int64) *int64 { return &v }

func TestSessionPauseResumeBilling(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	table := h.catalogEntry(t, "Billiard Table", catalogdomain.KindTime, 100)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), table.ID.String(), nil)
	entryID := session.Services[0].ID.String()

	h.clock.Advance(5 * time.Minute)
	session, err := h.svc.PauseService(ctx, domain.ServiceOpRequest{
		SessionID: session.ID.String(),
		ServiceID: entryID,
	})
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	entry := session.Services[0]
	if entry.DurationMinutes == nil || *entry.DurationMinutes != 5 {
		t.Fatalf("expected 5 frozen minutes at pause, got %v", entry.DurationMinutes)
	}
	if entry.TotalCost != 500 {
		t.Fatalf("expected cost 500 at pause, got %d", entry.TotalCost)
	}
	if session.TotalCost != 500 {
		t.Fatalf("expected session total 500 at pause, got %d", session.TotalCost)
	}

	// Paused time is free: the frozen figures do not move.
	h.clock.Advance(10 * time.Minute)
	view, err := h.svc.LiveView(ctx, session.ID.String())
	if err != nil {
		t.Fatalf("live view: %v", err)
	}
	if view.LiveTotalCost != 500 {
		t.Fatalf("expected live total 500 while paused, got %d", view.LiveTotalCost)
	}
	if view.Status != domain.SessionPaused {
		t.Fatalf("expected derived status paused, got %s", view.Status)
	}

	session, err = h.svc.ResumeService(ctx, domain.ServiceOpRequest{
		SessionID: session.ID.String(),
		ServiceID: entryID,
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := session.Services[0].PausedMinutes; got != 10 {
		t.Fatalf("expected 10 paused minutes after resume, got %d", got)
	}

	h.clock.Advance(5 * time.Minute)
	session, err = h.svc.End(ctx, session.ID.String())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	entry = session.Services[0]
	if entry.DurationMinutes == nil || *entry.DurationMinutes != 10 {
		t.Fatalf("expected 10 billable minutes at end, got %v", entry.DurationMinutes)
	}
	if entry.TotalCost != 1000 {
		t.Fatalf("expected entry cost 1000, got %d", entry.TotalCost)
	}
	if session.TotalCost != 1000 {
		t.Fatalf("expected session total 1000, got %d", session.TotalCost)
	}
	if session.Status != domain.SessionCompleted {
		t.Fatalf("expected completed, got %s", session.Status)
	}
}

func TestEndWhilePausedKeepsFrozenCost(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	table := h.catalogEntry(t, "PS5 Station", catalogdomain.KindTime, 200)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), table.ID.String(), nil)
	entryID := session.Services[0].ID.String()

	h.clock.Advance(3 * time.Minute)
	if _, err := h.svc.PauseService(ctx, domain.ServiceOpRequest{
		SessionID: session.ID.String(),
		ServiceID: entryID,
	}); err != nil {
		t.Fatalf("pause: %v", err)
	}

	h.clock.Advance(30 * time.Minute)
	session, err := h.svc.End(ctx, session.ID.String())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	entry := session.Services[0]
	if entry.DurationMinutes == nil || *entry.DurationMinutes != 3 {
		t.Fatalf("expected frozen 3 minutes, got %v", entry.DurationMinutes)
	}
	if session.TotalCost != 600 {
		t.Fatalf("expected total 600, got %d", session.TotalCost)
	}
	if entry.State != domain.StateEnded {
		t.Fatalf("expected ended state, got %s", entry.State)
	}
	if entry.PausedAt != nil {
		t.Fatalf("expected pause window closed at end")
	}
}

func TestImmediateResumeKeepsFrozenValues(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	table := h.catalogEntry(t, "Foosball", catalogdomain.KindTime, 100)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), table.ID.String(), nil)
	entryID := session.Services[0].ID.String()

	h.clock.Advance(4 * time.Minute)
	session, err := h.svc.PauseService(ctx, domain.ServiceOpRequest{
		SessionID: session.ID.String(),
		ServiceID: entryID,
	})
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	frozen := *session.Services[0].DurationMinutes
	frozenCost := session.Services[0].TotalCost

	// Resume in the same instant: nothing may move.
	session, err = h.svc.ResumeService(ctx, domain.ServiceOpRequest{
		SessionID: session.ID.String(),
		ServiceID: entryID,
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	entry := session.Services[0]
	if entry.DurationMinutes == nil || *entry.DurationMinutes != frozen {
		t.Fatalf("expected duration %d unchanged, got %v", frozen, entry.DurationMinutes)
	}
	if entry.TotalCost != frozenCost {
		t.Fatalf("expected cost %d unchanged, got %d", frozenCost, entry.TotalCost)
	}
	if entry.PausedMinutes != 0 {
		t.Fatalf("expected no paused minutes accrued, got %d", entry.PausedMinutes)
	}
}

func TestEndFinalizesAllServices(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	table := h.catalogEntry(t, "Pool Table", catalogdomain.KindTime, 100)
	console := h.catalogEntry(t, "Console", catalogdomain.KindTime, 200)
	soda := h.catalogEntry(t, "Soda", catalogdomain.KindUnit, 250)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), table.ID.String(), nil)
	runningID := session.Services[0].ID
	session = h.addService(t, session.ID.String(), console.ID.String(), nil)
	pausedID := session.Services[1].ID
	h.addService(t, session.ID.String(), soda.ID.String(), int64Ptr(2))

	h.clock.Advance(3 * time.Minute)
	if _, err := h.svc.PauseService(ctx, domain.ServiceOpRequest{
		SessionID: session.ID.String(),
		ServiceID: pausedID.String(),
	}); err != nil {
		t.Fatalf("pause: %v", err)
	}

	h.clock.Advance(7 * time.Minute)
	session, err := h.svc.End(ctx, session.ID.String())
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	var running, paused, unit *domain.MeteredService
	for i := range session.Services {
		switch session.Services[i].ID {
		case runningID:
			running = &session.Services[i]
		case pausedID:
			paused = &session.Services[i]
		default:
			unit = &session.Services[i]
		}
	}
	if running == nil || paused == nil || unit == nil {
		t.Fatalf("expected all three entries present, got %d", len(session.Services))
	}

	// Running entry billed for the full 10 minutes.
	if running.State != domain.StateEnded || running.EndTime == nil {
		t.Fatalf("expected running entry ended, got %+v", running)
	}
	if running.TotalCost != 1000 {
		t.Fatalf("expected running entry cost 1000, got %d", running.TotalCost)
	}

	// Paused entry keeps its 3 frozen minutes.
	if paused.State != domain.StateEnded || paused.EndTime == nil {
		t.Fatalf("expected paused entry ended, got %+v", paused)
	}
	if paused.TotalCost != 600 {
		t.Fatalf("expected paused entry cost 600, got %d", paused.TotalCost)
	}

	// Unit entry untouched beyond the state tag.
	if unit.TotalCost != 500 {
		t.Fatalf("expected unit entry cost 500, got %d", unit.TotalCost)
	}

	if session.TotalCost != 2100 {
		t.Fatalf("expected session total 2100, got %d", session.TotalCost)
	}
	if session.EndTime == nil {
		t.Fatalf("expected session end time set")
	}
}

func TestSubMinuteSessionIsFree(t *testing.T) {
	h := setupSessionService(t)
	table := h.catalogEntry(t, "Snooker", catalogdomain.KindTime, 150)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), table.ID.String(), nil)

	h.clock.Advance(30 * time.Second)
	session, err := h.svc.End(context.Background(), session.ID.String())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if session.TotalCost != 0 {
		t.Fatalf("expected zero cost under one minute, got %d", session.TotalCost)
	}
	if got := session.Services[0].DurationMinutes; got == nil || *got != 0 {
		t.Fatalf("expected zero minutes, got %v", got)
	}
}

func TestEndCompletedSessionRejected(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()

	session := h.startSession(t)
	if _, err := h.svc.End(ctx, session.ID.String()); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := h.svc.End(ctx, session.ID.String()); !errors.Is(err, domain.ErrSessionCompleted) {
		t.Fatalf("expected ErrSessionCompleted on second end, got %v", err)
	}
}

func TestMutationRejectedAfterCompletion(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	table := h.catalogEntry(t, "Darts", catalogdomain.KindTime, 50)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), table.ID.String(), nil)
	entryID := session.Services[0].ID.String()

	if _, err := h.svc.End(ctx, session.ID.String()); err != nil {
		t.Fatalf("end: %v", err)
	}
	_, err := h.svc.PauseService(ctx, domain.ServiceOpRequest{
		SessionID: session.ID.String(),
		ServiceID: entryID,
	})
	if !errors.Is(err, domain.ErrSessionCompleted) {
		t.Fatalf("expected ErrSessionCompleted, got %v", err)
	}
}

func TestUnitServiceBilling(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	soda := h.catalogEntry(t, "Soda", catalogdomain.KindUnit, 250)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), soda.ID.String(), int64Ptr(3))
	entry := session.Services[0]
	if entry.TotalCost != 750 {
		t.Fatalf("expected 750 for three units, got %d", entry.TotalCost)
	}
	if entry.State != domain.StateFixed {
		t.Fatalf("expected fixed state for unit entry, got %s", entry.State)
	}
	if session.TotalCost != 750 {
		t.Fatalf("expected session total 750, got %d", session.TotalCost)
	}

	session, err := h.svc.EditService(ctx, domain.EditServiceRequest{
		SessionID: session.ID.String(),
		ServiceID: entry.ID.String(),
		Quantity:  int64Ptr(5),
	})
	if err != nil {
		t.Fatalf("edit quantity: %v", err)
	}
	if session.Services[0].TotalCost != 1250 {
		t.Fatalf("expected 1250 after edit, got %d", session.Services[0].TotalCost)
	}

	_, err = h.svc.EditService(ctx, domain.EditServiceRequest{
		SessionID: session.ID.String(),
		ServiceID: entry.ID.String(),
		Quantity:  int64Ptr(0),
	})
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	// Unit entries have no clock lifecycle.
	_, err = h.svc.PauseService(ctx, domain.ServiceOpRequest{
		SessionID: session.ID.String(),
		ServiceID: entry.ID.String(),
	})
	if !errors.Is(err, domain.ErrNotTimeBased) {
		t.Fatalf("expected ErrNotTimeBased, got %v", err)
	}
}

func TestRemoveServiceRecomputesTotal(t *testing.T) {
	h := setupSessionService(t)
	soda := h.catalogEntry(t, "Soda", catalogdomain.KindUnit, 250)
	chips := h.catalogEntry(t, "Chips", catalogdomain.KindUnit, 200)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), soda.ID.String(), int64Ptr(3))
	h.addService(t, session.ID.String(), chips.ID.String(), nil)

	session, err := h.svc.GetByID(context.Background(), session.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.TotalCost != 950 {
		t.Fatalf("expected 950 before removal, got %d", session.TotalCost)
	}

	session, err = h.svc.RemoveService(context.Background(), domain.ServiceOpRequest{
		SessionID: session.ID.String(),
		ServiceID: session.Services[0].ID.String(),
	})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(session.Services) != 1 {
		t.Fatalf("expected one remaining entry, got %d", len(session.Services))
	}
	if session.TotalCost != 200 {
		t.Fatalf("expected total 200 after removal, got %d", session.TotalCost)
	}
}

func TestLiveViewDoesNotPersist(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	table := h.catalogEntry(t, "Pool Table", catalogdomain.KindTime, 100)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), table.ID.String(), nil)

	h.clock.Advance(7 * time.Minute)
	view, err := h.svc.LiveView(ctx, session.ID.String())
	if err != nil {
		t.Fatalf("live view: %v", err)
	}
	if view.LiveTotalCost != 700 {
		t.Fatalf("expected live total 700, got %d", view.LiveTotalCost)
	}
	if view.Services[0].LiveMinutes != 7 {
		t.Fatalf("expected 7 live minutes, got %d", view.Services[0].LiveMinutes)
	}

	// The projection must not leak into storage: the persisted total
	// only ever reflects frozen figures.
	stored, err := h.svc.GetByID(ctx, session.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.TotalCost != 0 {
		t.Fatalf("expected stored total 0 with entry still running, got %d", stored.TotalCost)
	}
}

func TestEditTimeServiceWithExplicitBoundary(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	table := h.catalogEntry(t, "Table Tennis", catalogdomain.KindTime, 100)

	session := h.startSession(t)
	session = h.addService(t, session.ID.String(), table.ID.String(), nil)
	entry := session.Services[0]

	// The customer actually sat down 10 minutes before the operator
	// recorded it; the edit backfills with explicit boundaries.
	start := entry.StartTime.Add(-10 * time.Minute)
	end := entry.StartTime.Add(5 * time.Minute)
	session, err := h.svc.EditService(ctx, domain.EditServiceRequest{
		SessionID: session.ID.String(),
		ServiceID: entry.ID.String(),
		StartTime: &start,
		EndTime:   &end,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	edited := session.Services[0]
	if edited.DurationMinutes == nil || *edited.DurationMinutes != 15 {
		t.Fatalf("expected 15 minutes after edit, got %v", edited.DurationMinutes)
	}
	if edited.TotalCost != 1500 {
		t.Fatalf("expected cost 1500, got %d", edited.TotalCost)
	}
	if edited.State != domain.StateRunning {
		t.Fatalf("edit must not change lifecycle state, got %s", edited.State)
	}

	bad := entry.StartTime.Add(-time.Hour)
	_, err = h.svc.EditService(ctx, domain.EditServiceRequest{
		SessionID: session.ID.String(),
		ServiceID: entry.ID.String(),
		EndTime:   &bad,
	})
	if !errors.Is(err, domain.ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
}

func TestStartRejectsUnknownCustomer(t *testing.T) {
	h := setupSessionService(t)

	_, err := h.svc.Start(context.Background(), domain.StartSessionRequest{
		CustomerID: h.node.Generate().String(),
	})
	if !errors.Is(err, domain.ErrInvalidCustomer) {
		t.Fatalf("expected ErrInvalidCustomer, got %v", err)
	}

	_, err = h.svc.Start(context.Background(), domain.StartSessionRequest{})
	if !errors.Is(err, domain.ErrInvalidCustomer) {
		t.Fatalf("expected ErrInvalidCustomer for empty id, got %v", err)
	}
}

func TestAddInactiveCatalogServiceRejected(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	table := h.catalogEntry(t, "Retired Table", catalogdomain.KindTime, 100)

	inactive := false
	if _, err := h.catalog.Update(ctx, catalogdomain.UpdateServiceRequest{
		ID:     table.ID.String(),
		Active: &inactive,
	}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	session := h.startSession(t)
	_, err := h.svc.AddService(ctx, domain.AddServiceRequest{
		SessionID:        session.ID.String(),
		CatalogServiceID: table.ID.String(),
	})
	if !errors.Is(err, catalogdomain.ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestCancelRemovesSession(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	soda := h.catalogEntry(t, "Soda", catalogdomain.KindUnit, 250)

	session := h.startSession(t)
	h.addService(t, session.ID.String(), soda.ID.String(), nil)

	if err := h.svc.Cancel(ctx, session.ID.String()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := h.svc.GetByID(ctx, session.ID.String()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after cancel, got %v", err)
	}

	var count int64
	if err := h.db.Model(&domain.MeteredService{}).Where("session_id = ?", session.ID).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected orphaned entries removed, found %d", count)
	}
}

// conflictRepo fails Save with a version conflict a fixed number of
// times before delegating to the real repository.
type conflictRepo struct {
	domain.Repository
	remaining int
}

func (r *conflictRepo) Save(ctx context.Context, db *gorm.DB, session *domain.Session) error {
	if r.remaining > 0 {
		r.remaining--
		return domain.ErrVersionConflict
	}
	return r.Repository.Save(ctx, db, session)
}

func TestMutateRetriesOnVersionConflict(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	soda := h.catalogEntry(t, "Soda", catalogdomain.KindUnit, 250)

	session := h.startSession(t)

	svc := h.svc.(*Service)
	svc.repo = &conflictRepo{Repository: repository.Provide(), remaining: 2}

	updated, err := h.svc.AddService(ctx, domain.AddServiceRequest{
		SessionID:        session.ID.String(),
		CatalogServiceID: soda.ID.String(),
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(updated.Services) != 1 {
		t.Fatalf("expected one entry after retried mutation, got %d", len(updated.Services))
	}
}

func TestMutateSurfacesConflictWhenRetriesExhausted(t *testing.T) {
	h := setupSessionService(t)
	ctx := context.Background()
	soda := h.catalogEntry(t, "Soda", catalogdomain.KindUnit, 250)

	session := h.startSession(t)

	svc := h.svc.(*Service)
	svc.repo = &conflictRepo{Repository: repository.Provide(), remaining: 100}

	_, err := h.svc.AddService(ctx, domain.AddServiceRequest{
		SessionID:        session.ID.String(),
		CatalogServiceID: soda.ID.String(),
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
