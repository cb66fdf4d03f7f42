package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/playden/playden/pkg/db/pagination"
	"gorm.io/gorm"
)

// ErrVersionConflict reports a compare-and-swap failure on Save: the
// session changed between load and persist.
var ErrVersionConflict = errors.New("version_conflict")

type ListSessionFilter struct {
	Status SessionStatus
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, session *Session) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Session, error)
	List(ctx context.Context, db *gorm.DB, filter ListSessionFilter, page pagination.Pagination) ([]*Session, error)

	// Save persists the whole aggregate guarded by the version the
	// session was loaded with; ErrVersionConflict on a lost race.
	Save(ctx context.Context, db *gorm.DB, session *Session) error

	Delete(ctx context.Context, db *gorm.DB, session *Session) error
	DailyRevenue(ctx context.Context, db *gorm.DB, from, to time.Time) ([]DailyRevenue, error)
	PurgeCompletedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
