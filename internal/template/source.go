package template

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSource resolves template URIs as paths relative to a root
// directory. It is a narrow stand-in for the "configuration store"
// external collaborator named in spec.md §6 — operators point
// mpps2DoseSrTemplateURI at a filename and this proxy reads it from a
// directory configured at startup.
type FileSource struct {
	Root string
}

func NewFileSource(root string) *FileSource {
	return &FileSource{Root: root}
}

func (s *FileSource) Fetch(_ context.Context, uri string) ([]byte, error) {
	path := filepath.Join(s.Root, filepath.Clean(uri))
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return b, nil
}
