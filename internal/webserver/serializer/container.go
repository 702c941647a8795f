package serializer

import (
	"strings"
)

// TextContainers returns the text serialized form of the given containers.
func TextContainers(containers []string) string {
	return strings.Join(containers, "\n")
}

// Containers returns the serialized form of the given containers.
func Containers(containers []string) []string {
	if containers == nil {
		return []string{}
	}
	return containers
}
