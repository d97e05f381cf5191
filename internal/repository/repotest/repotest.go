// Package repotest opens throwaway in-memory stores for tests.
package repotest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/nidhi752/pacepilot-os/internal/repository"
)

// DB returns a migrated in-memory SQLite database private to the calling test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.NewDB(dsn)
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	db.Logger = gormLogger.Default.LogMode(gormLogger.Silent)
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Repos wraps DB in the repository bundle.
func Repos(tb testing.TB) *repository.Repositories {
	tb.Helper()
	return repository.New(DB(tb))
}

// ConflictProfileSaves makes the next n study profile updates on db see a
// version bumped by another writer in between; n < 0 affects every update.
// The returned func reports how many updates were interfered with.
func ConflictProfileSaves(tb testing.TB, db *gorm.DB, n int) func() int {
	tb.Helper()
	var forced int
	err := db.Callback().Update().Before("gorm:update").Register("repotest:profile_conflict", func(tx *gorm.DB) {
		if tx.Statement.Table != "study_profiles" || (n >= 0 && forced >= n) {
			return
		}
		forced++
		if err := tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE study_profiles SET version = version + 1").Error; err != nil {
			_ = tx.AddError(err)
		}
	})
	if err != nil {
		tb.Fatalf("failed to register profile conflict callback: %v", err)
	}
	return func() int { return forced }
}
