package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	pgstore "github.com/dwarvesf/custody-backend/internal/store/postgres"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

func newMigrate(db *gorm.DB, dir string) (*migrate.Migrate, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get database connection")
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "create postgres driver")
	}

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", dir), "postgres", driver)
	if err != nil {
		return nil, errors.Wrap(err, "create migrate instance")
	}
	return m, nil
}

// run applies every pending migration, or rolls back steps migrations when
// down is set.
func run(m *migrate.Migrate, down bool, steps int) error {
	var err error
	switch {
	case down:
		err = m.Steps(-steps)
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func main() {
	down := flag.Bool("down", false, "roll back instead of applying")
	steps := flag.Int("steps", 1, "migrations to roll back with -down")
	dir := flag.String("dir", filepath.Join("migrations", "schema"), "migration files")
	flag.Parse()

	appConfig := config.New()
	logger := logger.New(appConfig.Environment)

	db := pgstore.New(appConfig, logger)

	m, err := newMigrate(db, *dir)
	if err != nil {
		logger.Error("[main][newMigrate] failed to prepare migrations", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	if err := run(m, *down, *steps); err != nil {
		logger.Error("[main][run] migration failed", map[string]string{
			"error": err.Error(),
			"down":  fmt.Sprint(*down),
		})
		os.Exit(1)
	}

	version, dirty, _ := m.Version()
	logger.Info("[main] migrations completed", map[string]string{
		"version": fmt.Sprint(version),
		"dirty":   fmt.Sprint(dirty),
	})
}
