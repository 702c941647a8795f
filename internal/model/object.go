package model

import (
	"github.com/mdouchement/depot/internal/xpath"
)

// An Object represents the meta data of a blob stored in a container.
type Object struct {
	Base `json:",inline" storm:"inline"`

	Container     string            `json:"container"      storm:"index"`
	Filename      string            `json:"filename"       storm:"index"`
	ContentType   string            `json:"content_type"`
	Size          int64             `json:"size"`
	Checksum      string            `json:"checksum"`
	CorrelationID string            `json:"correlation_id" storm:"index"`
	Metadata      map[string]string `json:"metadata"`
}

// NewObject returns a new Object with a fresh identifier.
// The filename is reduced to its base name and the content type is derived from its extension.
func NewObject(container, filename string) *Object {
	filename = xpath.Base(filename)

	return &Object{
		Base:        Base{ID: NewID()},
		Container:   container,
		Filename:    filename,
		ContentType: xpath.ContentType(filename),
	}
}
