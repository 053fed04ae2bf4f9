package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/growth/internal/progress"
)

// marshalRecord converts a UserProgress to the persisted JSON TEXT shape.
func marshalRecord(p progress.UserProgress) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// unmarshalRecord parses a persisted record and checks its invariants.
// userID is the row key; a record claiming a different user is rejected.
func unmarshalRecord(userID, data string) (progress.UserProgress, error) {
	var p progress.UserProgress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return progress.UserProgress{}, fmt.Errorf("unmarshal record: %w", err)
	}
	// Records cached before userId was part of the shape carry no id.
	if p.UserID == "" {
		p.UserID = userID
	}
	if p.UserID != userID {
		return progress.UserProgress{}, fmt.Errorf("record for %q stored under %q", p.UserID, userID)
	}
	if p.Level == 0 {
		p.Level = 1
	}
	if err := p.Validate(); err != nil {
		return progress.UserProgress{}, err
	}
	return p, nil
}
