// Package store persists users, chats, messages and read receipts with GORM
// on SQLite. It satisfies the persistence contract of the realtime core.
package store

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/roomchat/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = domain.ErrNotFound
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidParticipants is returned when a chat would have fewer than two
	// distinct participants or references unknown users.
	ErrInvalidParticipants = errors.New("invalid chat participants")
)

// Config configures the database connection.
type Config struct {
	Path  string `env:"DATABASE_PATH" envDefault:"roomchat.db"`
	Debug bool   `env:"DB_DEBUG" envDefault:"false"`
}

// Store provides access to chat storage.
type Store struct {
	db *gorm.DB
}

// Open connects to the database at cfg.Path and runs migrations.
func Open(cfg Config) (*Store, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	dsn, inMemory := dataSource(cfg.Path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// An in-memory database exists per connection, so its pool is pinned to
	// one. File databases run in WAL mode and share the pool.
	if inMemory {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&User{}, &Chat{}, &ChatParticipant{}, &Message{}, &MessageRead{}, &PresenceSession{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Printf("[store] Database ready at %s", cfg.Path)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	log.Println("[store] Closing database connection...")
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// dataSource builds the driver DSN for path. File databases get WAL
// journaling, a busy timeout and immediate write transactions.
func dataSource(path string) (string, bool) {
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		return path, true
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", false
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
