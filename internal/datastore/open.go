package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

// New opens the database selected in settings. It returns nil, nil when no
// output is enabled.
func New(settings *conf.OutputSettings, metrics OperationRecorder) (*DataStore, error) {
	switch {
	case settings.SQLite.Enabled:
		return OpenSQLite(settings.SQLite.Path, metrics)
	case settings.MySQL.Enabled:
		return OpenMySQL(&settings.MySQL, metrics)
	default:
		return nil, nil
	}
}

// OpenSQLite opens or creates the SQLite database at path.
func OpenSQLite(path string, metrics OperationRecorder) (*DataStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_busy_timeout=5000"), gormConfig())
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open SQLite database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}
	// SQLite allows one writer; a single connection avoids "database is locked".
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return migrate(db, "SQLite", path, metrics)
}

// OpenMySQL connects to the configured MySQL server.
func OpenMySQL(s *conf.MySQLSettings, metrics OperationRecorder) (*DataStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.Username, s.Password, s.Host, s.Port, s.Database)

	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open MySQL database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("host", s.Host).
			Context("database", s.Database).
			Build()
	}
	return migrate(db, "MySQL", s.Host+"/"+s.Database, metrics)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger(), DefaultSlowQueryThreshold),
	}
}

func migrate(db *gorm.DB, dbType, connectionInfo string, metrics OperationRecorder) (*DataStore, error) {
	if err := db.AutoMigrate(&EpisodeRecord{}); err != nil {
		return nil, errors.New(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	GetLogger().Info("database ready",
		logger.String("db_type", dbType),
		logger.String("location", connectionInfo))
	return newDataStore(db, metrics), nil
}
