package checks

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/shopapp/internal/monitoring"
)

// Database probes the primary database. Losing it takes the service down.
func Database(db *gorm.DB) monitoring.Check {
	return monitoring.Check{
		Name: "database",
		Probe: func(ctx context.Context) error {
			if db == nil {
				return errors.New("database not configured")
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}
