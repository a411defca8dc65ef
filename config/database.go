package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDB opens the freshness database. The scheme prefix of DBURL picks
// the driver: "sqlite://path" (default) or "mysql://dsn". A bare DSN with no
// scheme is treated as a MySQL DSN.
func ConnectDB(cfg *Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.New(
			log.New(LogWriter, "\r\n", log.LstdFlags),
			logger.Config{LogLevel: logger.Warn},
		),
	}

	var dialector gorm.Dialector
	dbURL := cfg.DBURL
	switch {
	case strings.HasPrefix(dbURL, "sqlite://"):
		dialector = sqlite.Open(strings.TrimPrefix(dbURL, "sqlite://"))
	case strings.HasSuffix(dbURL, ".db"):
		dialector = sqlite.Open(dbURL)
	case strings.HasPrefix(dbURL, "mysql://"):
		dialector = mysql.Open(strings.TrimPrefix(dbURL, "mysql://"))
	default:
		dialector = mysql.Open(dbURL)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to freshness database: %w", err)
	}
	log.Printf("Database connected (%s)", dialector.Name())
	return db, nil
}

// CloseDB releases the underlying connection pool.
func CloseDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
