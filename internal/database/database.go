package database

import (
	"github.com/mdouchement/depot/internal/model"
)

type (
	// A Client can interacts with the database.
	Client interface {
		// Save inserts or updates the entry in database with the given model.
		Save(m model.Model) error
		// Delete deletes the entry in database with the given model.
		Delete(m model.Model) error
		// Close the database.
		Close() error
		// IsNotFound returns true if err is a not found error.
		IsNotFound(err error) bool

		ObjectInteraction
	}

	// A ObjectInteraction defines all the methods used to interact with a object record.
	ObjectInteraction interface {
		AllObjects() ([]*model.Object, error)
		ListContainers() ([]string, error)
		FindObjectsByContainer(container string) ([]*model.Object, error)
		FindObjectsByCorrelationID(container, cid string) ([]*model.Object, error)
		FindObject(container, id string) (*model.Object, error)
		FindObjectByFilename(container, filename string) (*model.Object, error)
		DeleteObject(id string) error
	}
)
