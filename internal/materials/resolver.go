// Package materials locates print-ready documents in the shared materials
// store. Lookups are never cached: materials may be added between scans.
package materials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"scanrouter/internal/identifier"
	"scanrouter/internal/services"
)

// Resolver maps a print identifier to an absolute document path.
type Resolver struct {
	root string
}

// NewResolver constructs a resolver over the shared materials root.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		return nil, errors.New("materials root required")
	}
	return &Resolver{root: root}, nil
}

// Resolve returns the absolute path of the material for id, or an error
// tagged services.ErrNotFound when no such document exists. Existence is
// checked at call time only.
func (r *Resolver) Resolve(id identifier.PrintIdentifier) (string, error) {
	path := filepath.Join(r.root, id.String()+".pdf")
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "", "resolve",
				fmt.Sprintf("print material not found: %s", id), nil)
		}
		return "", fmt.Errorf("stat material %s: %w", path, err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrNotFound, "", "resolve",
			fmt.Sprintf("print material not found: %s", id), nil)
	}
	return path, nil
}
