package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/types"
	"github.com/onyxchat/relay-backend/internal/utils"
)

type StoreService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewStoreService connects to the relational store. DB_DRIVER selects
// postgres (default) or sqlite; sqlite exists for local development and the
// test suite, the production deployment runs on Postgres.
func NewStoreService(log *logger.Logger) (*StoreService, error) {
	serviceLog := log.With("service", "StoreService")

	driver := strings.ToLower(utils.GetEnv("DB_DRIVER", "postgres", log))

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		path := utils.GetEnv("SQLITE_PATH", "relay.db", log)
		dialector = sqlite.Open(path)
	default:
		host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
		port := utils.GetEnv("POSTGRES_PORT", "5432", log)
		user := utils.GetEnv("POSTGRES_USER", "postgres", log)
		password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
		name := utils.GetEnv("POSTGRES_NAME", "relay", log)
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		dialector = postgres.Open(dsn)
	}

	log.Info("Connecting to store...", "driver", driver)
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		// Driver errors are normalized to gorm's sentinel errors so duplicate
		// key detection works the same on Postgres and SQLite.
		TranslateError: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to store", "error", err)
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	return &StoreService{db: gdb, log: serviceLog}, nil
}

// NewStoreServiceWithDB wraps an already-open gorm handle. Used by tests.
func NewStoreServiceWithDB(gdb *gorm.DB, log *logger.Logger) *StoreService {
	return &StoreService{db: gdb, log: log.With("service", "StoreService")}
}

func (s *StoreService) AutoMigrateAll() error {
	s.log.Info("Auto migrating store tables...")
	if err := s.db.AutoMigrate(
		&types.User{},
		&types.Session{},
		&types.Message{},
	); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}

	// One open session per user, enforced by the store so the invariant holds
	// even with several relay processes writing concurrently. Partial indexes
	// are supported by both Postgres and SQLite.
	if err := s.db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_sessions_open_per_user
		 ON sessions (user_id) WHERE status = 'open'`,
	).Error; err != nil {
		s.log.Error("Failed to create open-session unique index", "error", err)
		return fmt.Errorf("create uniq_sessions_open_per_user: %w", err)
	}
	return nil
}

func (s *StoreService) DB() *gorm.DB {
	return s.db
}
