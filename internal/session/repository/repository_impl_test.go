package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/playden/playden/internal/session/domain"
	"gorm.io/gorm"
)

func setupRepo(t *testing.T) (*gorm.DB, domain.Repository, *snowflake.Node) {
	t.Helper()

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

	return db, Provide(), node
}

func TestSaveIsGuardedByVersion(t *testing.T) {
	db, repo, node := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	session := &domain.Session{
		ID:           node.Generate(),
		CustomerID:   node.Generate(),
		CustomerName: "Walk-in",
		Status:       domain.SessionActive,
		StartTime:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Insert(ctx, db, session); err != nil {
		t.Fatalf("insert: %v", err)
	}

	first, err := repo.FindByID(ctx, db, session.ID)
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	second, err := repo.FindByID(ctx, db, session.ID)
	if err != nil {
		t.Fatalf("load second: %v", err)
	}

	first.TotalCost = 500
	if err := repo.Save(ctx, db, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected version bumped to 1, got %d", first.Version)
	}

	// The stale copy lost the race.
	second.TotalCost = 900
	if err := repo.Save(ctx, db, second); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	stored, err := repo.FindByID(ctx, db, session.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.TotalCost != 500 {
		t.Fatalf("expected winning write retained, got %d", stored.TotalCost)
	}
}

func TestSaveReplacesServiceRows(t *testing.T) {
	db, repo, node := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	session := &domain.Session{
		ID:           node.Generate(),
		CustomerID:   node.Generate(),
		CustomerName: "Walk-in",
		Status:       domain.SessionActive,
		StartTime:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
		Services: []domain.MeteredService{{
			ID:        node.Generate(),
			Name:      "Soda",
			Kind:      domain.KindUnit,
			UnitPrice: 250,
			Quantity:  2,
			State:     domain.StateFixed,
			TotalCost: 500,
			CreatedAt: now,
			UpdatedAt: now,
		}},
	}
	session.Services[0].SessionID = session.ID
	if err := repo.Insert(ctx, db, session); err != nil {
		t.Fatalf("insert: %v", err)
	}

	loaded, err := repo.FindByID(ctx, db, session.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded.Services = loaded.Services[:0]
	loaded.TotalCost = 0
	if err := repo.Save(ctx, db, loaded); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := repo.FindByID(ctx, db, session.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Services) != 0 {
		t.Fatalf("expected no service rows after save, got %d", len(reloaded.Services))
	}
}

func TestDailyRevenueGroupsCompletedSessions(t *testing.T) {
	db, repo, node := setupRepo(t)
	ctx := context.Background()

	day1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	seed := func(status domain.SessionStatus, end time.Time, cost int64) {
		session := &domain.Session{
			ID:           node.Generate(),
			CustomerID:   node.Generate(),
			CustomerName: "Walk-in",
			Status:       status,
			StartTime:    end.Add(-time.Hour),
			TotalCost:    cost,
			CreatedAt:    end.Add(-time.Hour),
			UpdatedAt:    end,
		}
		if status == domain.SessionCompleted {
			session.EndTime = &end
		}
		if err := repo.Insert(ctx, db, session); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	seed(domain.SessionCompleted, day1.Add(14*time.Hour), 1000)
	seed(domain.SessionCompleted, day1.Add(20*time.Hour), 500)
	seed(domain.SessionCompleted, day2.Add(10*time.Hour), 700)
	// Active sessions never count toward revenue.
	seed(domain.SessionActive, day2.Add(11*time.Hour), 999)

	rows, err := repo.DailyRevenue(ctx, db, day1, day2.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("daily revenue: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two revenue days, got %d: %+v", len(rows), rows)
	}
	if rows[0].Day != "2025-06-01" || rows[0].Sessions != 2 || rows[0].TotalCost != 1500 {
		t.Fatalf("unexpected first day: %+v", rows[0])
	}
	if rows[1].Day != "2025-06-02" || rows[1].Sessions != 1 || rows[1].TotalCost != 700 {
		t.Fatalf("unexpected second day: %+v", rows[1])
	}
}
