package xpath

import (
	"mime"
	"path"
	"strings"
)

// MIMEOctetStream is the content type used when the extension is unknown.
const MIMEOctetStream = "application/octet-stream"

// Base returns the last element of name, using both slash and backslash as separators.
func Base(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// ContentType returns the MIME type associated with the extension of name.
func ContentType(name string) string {
	ext := path.Ext(Base(name))
	if ext == "" {
		return MIMEOctetStream
	}

	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return MIMEOctetStream
}

// MediaType returns the content type without its parameters.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
