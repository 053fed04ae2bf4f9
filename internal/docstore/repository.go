package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/roach88/growth/internal/progress"
	"github.com/roach88/growth/internal/remote"
)

// Open connects to the document database and migrates it. DSNs starting with
// postgres:// or postgresql:// use PostgreSQL; anything else is a SQLite
// file path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open document database: %w", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate document database: %w", err)
	}
	return db, nil
}

// Repository stores progress documents in a gorm database. It implements
// remote.Store.
type Repository struct {
	db *gorm.DB
}

var _ remote.Store = (*Repository)(nil)

// NewRepository wraps an open database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the stored document with its modification time, or nil.
func (r *Repository) Get(ctx context.Context, userID string) (*remote.Document, error) {
	var doc Document
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w: %w", userID, remote.ErrUnavailable, err)
	}
	wire, err := doc.wire()
	if err != nil {
		return nil, err
	}
	return &wire, nil
}

// Fetch implements remote.Store.
func (r *Repository) Fetch(ctx context.Context, userID string) (*progress.UserProgress, error) {
	doc, err := r.Get(ctx, userID)
	if err != nil || doc == nil {
		return nil, err
	}
	p := doc.UserProgress
	return &p, nil
}

// Upsert implements remote.Store. An absent record is created from defaults
// with the patch applied; an existing one has only the patched columns
// rewritten.
func (r *Repository) Upsert(ctx context.Context, userID string, patch remote.Patch) error {
	doc := documentFor(patch.Apply(progress.Empty(userID)))

	cols := patchedColumns(patch)
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(append(cols, "updated_at")),
	}
	if err := r.db.WithContext(ctx).Clauses(onConflict).Create(&doc).Error; err != nil {
		return fmt.Errorf("upsert %s: %w: %w", userID, remote.ErrUnavailable, err)
	}
	return nil
}

func patchedColumns(p remote.Patch) []string {
	var cols []string
	if p.Experience != nil {
		cols = append(cols, "experience")
	}
	if p.Level != nil {
		cols = append(cols, "level")
	}
	if p.StreakCount != nil {
		cols = append(cols, "streak_count")
	}
	if p.LastActiveDate != nil {
		cols = append(cols, "last_active_date")
	}
	if p.TasksCompletedCount != nil {
		cols = append(cols, "tasks_completed_count")
	}
	if p.PerTaskCompletionCounts != nil {
		cols = append(cols, "per_task_completion_counts")
	}
	return cols
}
