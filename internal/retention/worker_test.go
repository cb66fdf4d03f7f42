package retention

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/playden/playden/internal/clock"
	"github.com/playden/playden/internal/config"
	"github.com/playden/playden/internal/session/domain"
	"github.com/playden/playden/internal/session/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestRunOncePurgesOnlyExpiredCompletedSessions(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

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
	if err := db.AutoMigrate(&domain.Session{}, &domain.MeteredService{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fc := clock.NewFakeClock(now)
	repo := repository.Provide()
	ctx := context.Background()

	seed := func(status domain.SessionStatus, endedAgo time.Duration) snowflake.ID {
		session := &domain.Session{
			ID:           node.Generate(),
			CustomerID:   node.Generate(),
			CustomerName: "Walk-in",
			Status:       status,
			StartTime:    now.Add(-endedAgo - time.Hour),
			CreatedAt:    now.Add(-endedAgo - time.Hour),
			UpdatedAt:    now,
		}
		if status == domain.SessionCompleted {
			end := now.Add(-endedAgo)
			session.EndTime = &end
		}
		session.Services = []domain.MeteredService{{
			ID:        node.Generate(),
			SessionID: session.ID,
			Name:      "Soda",
			Kind:      domain.KindUnit,
			UnitPrice: 250,
			Quantity:  1,
			State:     domain.StateFixed,
			TotalCost: 250,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.CreatedAt,
		}}
		if err := repo.Insert(ctx, db, session); err != nil {
			t.Fatalf("seed session: %v", err)
		}
		return session.ID
	}

	expired := seed(domain.SessionCompleted, 100*24*time.Hour)
	recent := seed(domain.SessionCompleted, 24*time.Hour)
	active := seed(domain.SessionActive, 200*24*time.Hour)

	worker := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fc,
		Repo:  repo,
		Config: config.Config{
			RetentionMaxAge:   90 * 24 * time.Hour,
			RetentionInterval: time.Hour,
		},
	})

	purged, err := worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged session, got %d", purged)
	}

	if got, _ := repo.FindByID(ctx, db, expired); got != nil {
		t.Fatalf("expected expired session removed")
	}
	if got, _ := repo.FindByID(ctx, db, recent); got == nil {
		t.Fatalf("expected recent completed session retained")
	}
	if got, _ := repo.FindByID(ctx, db, active); got == nil {
		t.Fatalf("expected active session retained")
	}

	var orphans int64
	if err := db.Model(&domain.MeteredService{}).Where("session_id = ?", expired).Count(&orphans).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected purged session entries removed, found %d", orphans)
	}

	// A second sweep finds nothing left to purge.
	purged, err = worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if purged != 0 {
		t.Fatalf("expected idempotent sweep, purged %d", purged)
	}
}
