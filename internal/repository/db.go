package repository

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nidhi752/pacepilot-os/internal/model"
)

// queryLogOutput receives gorm's slow query and error lines. It stays off
// stdout so CLI json and yaml output remains parseable.
var queryLogOutput io.Writer = os.Stderr

// NewDB opens the task store and runs migrations. postgres:// URLs select the
// hosted store, anything else is a SQLite DSN.
func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "pacepilot.db"
	}

	dbLogger := logger.New(
		log.New(queryLogOutput, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		if err := ensureDirForSQLite(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Course{}, &model.Task{}, &model.StudyProfile{}, &model.OccurrenceCompletion{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return db, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	// Ignore DSNs with explicit mode=memory or network.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// Repositories bundles every repository over one connection or transaction.
type Repositories struct {
	db          *gorm.DB
	Users       *UserRepository
	Courses     *CourseRepository
	Tasks       *TaskRepository
	Profiles    *ProfileRepository
	Completions *CompletionRepository
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Users:       NewUserRepository(db),
		Courses:     NewCourseRepository(db),
		Tasks:       NewTaskRepository(db),
		Profiles:    NewProfileRepository(db),
		Completions: NewCompletionRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single transaction.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// Close releases the underlying connection pool.
func (r *Repositories) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
