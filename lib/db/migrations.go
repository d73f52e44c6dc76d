package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/icco/cinerec/models"
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	// Enable SQLite optimizations
	enableSQLiteOptimizations(ctx, db, logger)

	if err := db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Create additional indexes and constraints
	if err := createAdditionalIndexes(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to create additional indexes: %w", err)
	}

	return nil
}

// enableSQLiteOptimizations enables SQLite-specific optimizations. Failures
// are logged and otherwise ignored.
func enableSQLiteOptimizations(ctx context.Context, db *gorm.DB, logger *slog.Logger) {
	optimizations := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=1000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA optimize",
	}

	for _, pragma := range optimizations {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			logger.Warn("Failed to execute pragma", slog.String("pragma", pragma), slog.Any("error", err))
		} else {
			logger.Debug("Executed pragma", slog.String("pragma", pragma))
		}
	}
}

// createAdditionalIndexes creates indexes AutoMigrate cannot express.
func createAdditionalIndexes(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	additionalIndexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_search_entries_user_time ON search_entries(user_id, searched_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_liked_movies_user_time ON liked_movies(user_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_disliked_movies_user_time ON disliked_movies(user_id, created_at)",
	}

	for _, indexSQL := range additionalIndexes {
		if err := db.WithContext(ctx).Exec(indexSQL).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		logger.Debug("Created index", slog.String("sql", indexSQL))
	}

	return nil
}
