// Package storage gives read access to deck files under the data directory.
package storage

import (
	"path/filepath"
	"strings"

	"github.com/starford/dailymail/internal/models"
)

// Provider is the interface for deck file access.
type Provider interface {
	// List returns metadata for every deck file under dir (relative to root).
	List(dir string) ([]models.SheetMetadata, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Root returns the absolute data directory.
	Root() string
}

// IsDeckFile reports whether name has an extension the deck loader decodes.
func IsDeckFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".csv" || ext == ".xlsx"
}
