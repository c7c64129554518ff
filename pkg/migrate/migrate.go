package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/paymall/paymall-backend/pkg/config"
	"github.com/paymall/paymall-backend/pkg/db"
	"github.com/paymall/paymall-backend/pkg/db/models"
)

const DefaultDir = "pkg/migrate/migrations"

const gooseDialect = "postgres"

// Command is a migration command that needs a live database.
type Command string

const (
	CommandUp      Command = "up"
	CommandDown    Command = "down"
	CommandStatus  Command = "status"
	CommandVersion Command = "version"
)

var ErrUnsupported = errors.New("unsupported migration command")

// Apply runs command against client. The goose files are postgres SQL, so
// sqlite only supports CommandUp, which builds the schema from the models.
// target is the YYYYMMDDHHMMSS version used by CommandVersion.
func Apply(ctx context.Context, client *db.Client, driver, dir string, command Command, target string) error {
	if client == nil || client.DB() == nil {
		return errors.New("db client is required")
	}

	if driver == config.DriverSQLite {
		if command != CommandUp {
			return fmt.Errorf("%w on sqlite: %s", ErrUnsupported, command)
		}
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto-migrate sqlite: %w", err)
		}
		return nil
	}

	if dir == "" {
		return errors.New("migrations dir is required")
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	switch command {
	case CommandUp, CommandDown, CommandStatus:
		// status output goes to stdout through goose's own logger
		if err := goose.RunContext(ctx, string(command), sqlDB, dir); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	case CommandVersion:
		version, err := ParseVersion(target)
		if err != nil {
			return err
		}
		return migrateTo(ctx, sqlDB, dir, version)
	}
	return fmt.Errorf("%w: %q", ErrUnsupported, command)
}

// ParseVersion validates a goose timestamp version.
func ParseVersion(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if len(value) != 14 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", value)
	}
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", value)
	}
	return version, nil
}

func migrateTo(ctx context.Context, sqlDB *sql.DB, dir string, target int64) error {
	current, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		err = goose.UpToContext(ctx, sqlDB, dir, target)
	default:
		err = goose.DownToContext(ctx, sqlDB, dir, target)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}
