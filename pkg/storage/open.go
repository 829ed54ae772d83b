package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens a GORM connection for the given driver name. Supported
// drivers: sqlite (default, file path or ":memory:"), postgres, mysql.
func Open(dbType, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	switch dbType {
	case "", "sqlite":
		if dsn == "" {
			dsn = "skillsmith.db"
		}
		db, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		return db, nil
	case "postgres":
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		return db, nil
	case "mysql":
		db, err := gorm.Open(mysql.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected sqlite, postgres, or mysql)", dbType)
	}
}
