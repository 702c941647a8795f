package model

import (
	"time"

	"github.com/gofrs/uuid"
)

type (
	// A Model is a record persisted in the metadata database.
	Model interface {
		GetID() string
		SetID(id string)
		SetCreatedAt(t time.Time)
		SetUpdatedAt(t time.Time)
	}

	// Base holds the fields shared by all the models.
	Base struct {
		ID        string     `json:"id"         storm:"id"`
		CreatedAt *time.Time `json:"created_at"`
		UpdatedAt *time.Time `json:"updated_at"`
	}
)

// GetID returns the model's identifier.
func (m *Base) GetID() string {
	return m.ID
}

// SetID sets the model's identifier.
func (m *Base) SetID(id string) {
	m.ID = id
}

// SetCreatedAt sets the creation time if it is not already set.
func (m *Base) SetCreatedAt(t time.Time) {
	if m.CreatedAt == nil {
		m.CreatedAt = &t
	}
}

// SetUpdatedAt sets the last update time.
func (m *Base) SetUpdatedAt(t time.Time) {
	m.UpdatedAt = &t
}

// NewID returns a new random identifier.
func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// IsID returns true if s is a syntactically valid identifier.
func IsID(s string) bool {
	_, err := uuid.FromString(s)
	return err == nil
}
