package database

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/emilythestrangee/thumbsup/internal/config"
	"github.com/emilythestrangee/thumbsup/internal/logger"
	"github.com/emilythestrangee/thumbsup/internal/models"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health(ctx context.Context) map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error
	GetDB() *gorm.DB
}

const healthTimeout = 10 * time.Second

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	closeOnce sync.Once
}

// New opens the postgres connection described by cfg and configures the pool.
func New(cfg config.Database, log *zap.Logger) (Service, error) {
	db, err := gorm.Open(postgres.Open(cfg.ConnString()), &gorm.Config{
		Logger: logger.Gorm(log),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("database connected", zap.String("database", cfg.Name))
	return &service{db: db, log: log}, nil
}

// Migrate creates or updates the tables of the ledger and the voteable models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Vote{},
	); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

// Health pings postgres and checks that the ledger table answers queries.
// status is "up" only when both succeed; pool statistics are always reported.
func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err != nil {
		return s.down(map[string]string{}, "pool", err)
	}
	pool := sqlDB.Stats()
	stats := map[string]string{
		"open_connections": strconv.Itoa(pool.OpenConnections),
		"in_use":           strconv.Itoa(pool.InUse),
		"idle":             strconv.Itoa(pool.Idle),
		"wait_count":       strconv.FormatInt(pool.WaitCount, 10),
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return s.down(stats, "ping", err)
	}
	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1 FROM votes LIMIT 1").Scan(&one).Error; err != nil {
		return s.down(stats, "ledger", err)
	}

	stats["status"] = "up"
	return stats
}

func (s *service) down(stats map[string]string, check string, err error) map[string]string {
	stats["status"] = "down"
	stats["failed_check"] = check
	stats["error"] = err.Error()
	s.log.Warn("database health check failed", zap.String("check", check), zap.Error(err))
	return stats
}

// Close releases the connection pool. Closing twice is a no-op.
func (s *service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	var closeErr error
	s.closeOnce.Do(func() {
		closeErr = sqlDB.Close()
		s.log.Info("database connection closed", zap.Error(closeErr))
	})
	return closeErr
}
