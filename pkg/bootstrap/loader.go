package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/directive-dispatch/pkg/operations"
	"github.com/morezero/directive-dispatch/pkg/registry"
)

const logPrefix = "bootstrap:loader"

// LoadCatalog loads the operation catalog from file paths or environment.
// It tries paths in order: first any paths passed in, then OPERATIONS_FILE env, then defaults.
// Files that are missing, unparseable or invalid are skipped; when none loads, the built-in
// catalog is returned. A file with "extends": true is merged over the built-in catalog.
func LoadCatalog(paths ...string) (*Catalog, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("OPERATIONS_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/operations.json", "operations.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var c Catalog
		if err := json.Unmarshal(data, &c); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse catalog file %s: %v", logPrefix, p, err))
			continue
		}
		if err := c.Validate(); err != nil {
			slog.Warn(fmt.Sprintf("%s - Ignoring catalog file %s: %v", logPrefix, p, err))
			continue
		}

		loaded := &c
		if c.Extends {
			loaded = MergeCatalogs(DefaultCatalog(), &c)
			if err := loaded.Validate(); err != nil {
				slog.Warn(fmt.Sprintf("%s - Ignoring catalog file %s: merged catalog invalid: %v", logPrefix, p, err))
				continue
			}
		}

		slog.Info(fmt.Sprintf("%s - Loaded catalog %s %s from %s (%d operations)", logPrefix, loaded.Name, loaded.Version, p, len(loaded.Operations)))
		return loaded, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default operation catalog", logPrefix))
	return DefaultCatalog(), nil
}

// DefaultCatalog returns the built-in catalog of the preloaded operations.
func DefaultCatalog() *Catalog {
	schemas := operations.Schemas()
	decls := make([]registry.Declaration, 0, len(schemas))
	for _, s := range schemas {
		decls = append(decls, registry.DeclarationFor(s))
	}
	return &Catalog{
		Name:        "directive-dispatch-operations",
		Version:     "1.0.0",
		Description: "Built-in operations: test runs, deployments and test reports",
		Operations:  decls,
	}
}

// MergeCatalogs merges an override catalog into a base catalog. Operations in override
// replace base operations of the same name and are appended otherwise. The merged version
// is the greater of the two.
func MergeCatalogs(base, override *Catalog) *Catalog {
	merged := *base
	merged.Operations = append([]registry.Declaration(nil), base.Operations...)

	index := make(map[string]int, len(merged.Operations))
	for i, d := range merged.Operations {
		index[d.Function.Name] = i
	}
	for _, d := range override.Operations {
		if i, ok := index[d.Function.Name]; ok {
			merged.Operations[i] = d
			continue
		}
		index[d.Function.Name] = len(merged.Operations)
		merged.Operations = append(merged.Operations, d)
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Description != "" {
		merged.Description = override.Description
	}
	merged.Extends = false
	bv, berr := base.SemVer()
	ov, oerr := override.SemVer()
	switch {
	case oerr != nil:
	case berr != nil || ov.GreaterThan(bv):
		merged.Version = override.Version
	}
	return &merged
}

// BuildRegistry builds a registry from the catalog, binding each operation to the handler
// of the same name. Catalog operations without a handler are skipped with a warning.
func BuildRegistry(c *Catalog, handlers map[string]registry.Handler) (*registry.Registry, error) {
	schemas, err := c.Schemas()
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	b := registry.NewBuilder()
	for _, s := range schemas {
		h, ok := handlers[s.Name]
		if !ok {
			slog.Warn(fmt.Sprintf("%s - No handler for catalog operation %s; skipping", logPrefix, s.Name))
			continue
		}
		b.Register(s, h)
	}
	return b.Build()
}
