package migrate

import (
	"context"
	"fmt"

	"github.com/paymall/paymall-backend/pkg/config"
	"github.com/paymall/paymall-backend/pkg/db"
	"github.com/paymall/paymall-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date when running in dev with the
// auto-migrate flag set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"driver": cfg.DB.Driver,
		"dir":    DefaultDir,
	})
	logg.Info(ctx, "dev auto-migrate starting")
	if err := Apply(ctx, client, cfg.DB.Driver, DefaultDir, CommandUp, ""); err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	logg.Info(ctx, "dev auto-migrate completed")
	return nil
}
