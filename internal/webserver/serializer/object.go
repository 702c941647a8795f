package serializer

import (
	"strings"

	"github.com/mdouchement/depot/internal/model"
)

// TextObjects returns the text serialized form of the given models.
func TextObjects(objects []*model.Object) string {
	sl := make([]string, 0, len(objects))

	for _, object := range objects {
		sl = append(sl, object.ID+"\t"+object.Filename)
	}

	return strings.Join(sl, "\n")
}

// Objects returns the serialized form of the given models.
func Objects(objects []*model.Object) []map[string]interface{} {
	sl := make([]map[string]interface{}, 0, len(objects))

	for _, object := range objects {
		sl = append(sl, Object(object))
	}

	return sl
}

// Object returns the serialized form of the given model.
func Object(object *model.Object) map[string]interface{} {
	m := map[string]interface{}{
		"id":           object.ID,
		"container":    object.Container,
		"filename":     object.Filename,
		"content_type": object.ContentType,
		"length":       object.Size,
		"hash":         object.Checksum,
		"created_at":   object.CreatedAt,
	}

	if object.CorrelationID != "" {
		m["correlation_id"] = object.CorrelationID
	}
	if len(object.Metadata) > 0 {
		m["metadata"] = object.Metadata
	}

	return m
}
