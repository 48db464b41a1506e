package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// stamp fills the identifier and timestamps that every persisted record carries.
func stamp(query bun.Query, id *string, createdAt, updatedAt *time.Time) error {
	switch query.(type) {
	case *bun.InsertQuery:
		return StampNew(id, createdAt, updatedAt)
	case *bun.UpdateQuery:
		*updatedAt = time.Now().UTC()
	}
	return nil
}

// StampNew assigns an ID when missing and fills zero timestamps, for backends
// that write records without bun.
func StampNew(id *string, createdAt, updatedAt *time.Time) error {
	if *id == "" {
		newID, err := NewID()
		if err != nil {
			return err
		}
		*id = newID
	}
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = now
	}
	return nil
}

// NewID returns a time-ordered UUID string.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
