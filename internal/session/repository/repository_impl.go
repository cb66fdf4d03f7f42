package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/playden/playden/internal/session/domain"
	"github.com/playden/playden/pkg/db/option"
	"github.com/playden/playden/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, session *domain.Session) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Session, error) {
	var session domain.Session
	err := db.WithContext(ctx).
		Preload("Services", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at asc, id asc")
		}).
		First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListSessionFilter, page pagination.Pagination) ([]*domain.Session, error) {
	var sessions []*domain.Session
	stmt := db.WithContext(ctx).
		Model(&domain.Session{}).
		Preload("Services")
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Save writes the aggregate in one transaction. The session row is a
// compare-and-swap on Version; the service rows are replaced wholesale,
// which matches the load-mutate-store document model.
func (r *repo) Save(ctx context.Context, db *gorm.DB, session *domain.Session) error {
	loadedVersion := session.Version
	nextVersion := loadedVersion + 1

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Session{}).
			Where("id = ? AND version = ?", session.ID, loadedVersion).
			Updates(map[string]any{
				"customer_name":  session.CustomerName,
				"customer_phone": session.CustomerPhone,
				"status":         session.Status,
				"end_time":       session.EndTime,
				"total_cost":     session.TotalCost,
				"version":        nextVersion,
				"updated_at":     session.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrVersionConflict
		}

		if err := tx.Where("session_id = ?", session.ID).Delete(&domain.MeteredService{}).Error; err != nil {
			return err
		}
		if len(session.Services) > 0 {
			if err := tx.Create(&session.Services).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	session.Version = nextVersion
	return nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, session *domain.Session) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", session.ID).Delete(&domain.MeteredService{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Session{}, "id = ?", session.ID).Error
	})
}

func (r *repo) DailyRevenue(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.DailyRevenue, error) {
	var rows []domain.DailyRevenue
	err := db.WithContext(ctx).Raw(
		`SELECT DATE(end_time) AS day,
		        COUNT(*) AS sessions,
		        COALESCE(SUM(total_cost), 0) AS total_cost
		 FROM sessions
		 WHERE status = ? AND end_time >= ? AND end_time < ?
		 GROUP BY DATE(end_time)
		 ORDER BY day ASC`,
		domain.SessionCompleted,
		from,
		to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) PurgeCompletedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	var purged int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []snowflake.ID
		if err := tx.Model(&domain.Session{}).
			Where("status = ? AND end_time < ?", domain.SessionCompleted, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("session_id IN ?", ids).Delete(&domain.MeteredService{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&domain.Session{})
		if res.Error != nil {
			return res.Error
		}
		purged = res.RowsAffected
		return nil
	})
	return purged, err
}
