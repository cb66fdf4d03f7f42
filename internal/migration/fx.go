package migration

import (
	auditdomain "github.com/playden/playden/internal/audit/domain"
	catalogdomain "github.com/playden/playden/internal/catalog/domain"
	"github.com/playden/playden/internal/config"
	customerdomain "github.com/playden/playden/internal/customer/domain"
	sessiondomain "github.com/playden/playden/internal/session/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres deployments (sqlite, mysql) fall back to the
		// model-derived schema.
		return conn.AutoMigrate(
			&customerdomain.Customer{},
			&catalogdomain.CatalogService{},
			&sessiondomain.Session{},
			&sessiondomain.MeteredService{},
			&auditdomain.Entry{},
		)
	}),
)
