package migration

import (
	"context"
	"strings"

	"github.com/smallbiznis/learnboard/internal/config"
	learningrepo "github.com/smallbiznis/learnboard/internal/learning/repository"
	"github.com/smallbiznis/learnboard/internal/learningstats/refresh"
	"github.com/smallbiznis/learnboard/internal/learningstats/store"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	"github.com/smallbiznis/learnboard/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if err := Apply(conn, log); err != nil {
			return err
		}

		if cfg.Bootstrap.AdminEmployeeID != "" {
			if err := seed.EnsureAdmin(context.Background(), conn, cfg.Bootstrap.AdminEmployeeID, cfg.Bootstrap.AdminName); err != nil {
				return err
			}
			log.Info("bootstrap admin ensured", zap.String("employee_id", cfg.Bootstrap.AdminEmployeeID))
		}
		return nil
	}),
)

// Apply brings the schema up to date. Postgres runs the embedded SQL
// migrations; other dialects are auto-migrated from the record models.
func Apply(conn *gorm.DB, log *zap.Logger) error {
	if strings.EqualFold(conn.Dialector.Name(), "postgres") {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB, log)
	}

	return conn.AutoMigrate(
		&membershipdomain.Team{},
		&membershipdomain.Employee{},
		&learningrepo.EventRecord{},
		&store.ProjectionRecord{},
		&refresh.RequestRecord{},
	)
}
