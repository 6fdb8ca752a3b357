// Package bootstrap loads the operation catalog the registry is built from.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/directive-dispatch/pkg/registry"
)

// ErrInvalidCatalog is returned for catalogs that fail validation.
var ErrInvalidCatalog = errors.New("invalid operation catalog")

// Catalog is the root of an operations file. Operations use the same tool-declaration
// shape the generator is prompted with, so one file serves both.
type Catalog struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	// Extends layers Operations over the built-in catalog instead of replacing it.
	Extends    bool                   `json:"extends,omitempty"`
	Operations []registry.Declaration `json:"operations"`
}

// Validate checks that Version is a semantic version and every declaration converts to a
// schema, with no operation declared twice.
func (c *Catalog) Validate() error {
	if _, err := c.SemVer(); err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrInvalidCatalog, c.Version, err)
	}
	_, err := c.Schemas()
	return err
}

// Schemas converts every declaration into an OperationSchema, in catalog order.
func (c *Catalog) Schemas() ([]registry.OperationSchema, error) {
	seen := make(map[string]bool, len(c.Operations))
	out := make([]registry.OperationSchema, 0, len(c.Operations))
	for _, d := range c.Operations {
		schema, err := registry.SchemaFromDeclaration(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		if seen[schema.Name] {
			return nil, fmt.Errorf("%w: operation %s declared twice", ErrInvalidCatalog, schema.Name)
		}
		seen[schema.Name] = true
		out = append(out, schema)
	}
	return out, nil
}

// SemVer returns the parsed catalog version.
func (c *Catalog) SemVer() (*semver.Version, error) {
	return semver.NewVersion(c.Version)
}
