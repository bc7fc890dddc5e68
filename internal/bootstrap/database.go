package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mohammadpnp/lead-import/internal/infrastructure/db/models"
)

// OpenDatabase opens the configured gorm database.
func OpenDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres:
		db, err := gorm.Open(postgres.Open(cfg.URL), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	case DriverSQLite, "sqlite3":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		db, err := gorm.Open(gormsqlite.Open(cfg.SQLitePath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}
