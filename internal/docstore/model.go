// Package docstore is the progress document service: a gorm-backed
// repository that implements remote.Store directly, and a fiber HTTP server
// exposing it to remote.Client.
package docstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/progress"
	"github.com/roach88/growth/internal/remote"
)

// Document is one user's stored progress row.
type Document struct {
	ID                      uint   `gorm:"primaryKey"`
	UserID                  string `gorm:"uniqueIndex;not null"`
	Experience              int    `gorm:"not null"`
	Level                   int    `gorm:"not null"`
	StreakCount             int    `gorm:"not null"`
	LastActiveDate          string `gorm:"size:10"`
	TasksCompletedCount     int    `gorm:"not null"`
	PerTaskCompletionCounts Counts `gorm:"type:text"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// TableName pins the table name independent of the struct name.
func (Document) TableName() string { return "progress_documents" }

func (d Document) progress() (progress.UserProgress, error) {
	var last date.Date
	if d.LastActiveDate != "" {
		var err error
		if last, err = date.Parse(d.LastActiveDate); err != nil {
			return progress.UserProgress{}, fmt.Errorf("document %s: %w", d.UserID, err)
		}
	}
	return progress.UserProgress{
		UserID:                  d.UserID,
		Experience:              d.Experience,
		Level:                   d.Level,
		StreakCount:             d.StreakCount,
		LastActiveDate:          last,
		TasksCompletedCount:     d.TasksCompletedCount,
		PerTaskCompletionCounts: map[string]int(d.PerTaskCompletionCounts),
	}, nil
}

func (d Document) wire() (remote.Document, error) {
	p, err := d.progress()
	if err != nil {
		return remote.Document{}, err
	}
	return remote.Document{UserProgress: p, UpdatedAt: d.UpdatedAt.UTC()}, nil
}

func documentFor(p progress.UserProgress) Document {
	return Document{
		UserID:                  p.UserID,
		Experience:              p.Experience,
		Level:                   p.Level,
		StreakCount:             p.StreakCount,
		LastActiveDate:          p.LastActiveDate.String(),
		TasksCompletedCount:     p.TasksCompletedCount,
		PerTaskCompletionCounts: Counts(p.PerTaskCompletionCounts),
	}
}

// Counts is a per-source completion map stored as a JSON text column.
type Counts map[string]int

// Value implements driver.Valuer.
func (c Counts) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]int(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *Counts) Scan(v any) error {
	var raw []byte
	switch x := v.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		raw = x
	case string:
		raw = []byte(x)
	default:
		return fmt.Errorf("counts: unsupported column type %T", v)
	}
	out := make(map[string]int)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("counts: %w", err)
		}
	}
	if len(out) == 0 {
		*c = nil
		return nil
	}
	*c = out
	return nil
}
