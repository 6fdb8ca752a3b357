package bootstrap

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/morezero/directive-dispatch/pkg/directive"
	"github.com/morezero/directive-dispatch/pkg/operations"
	"github.com/morezero/directive-dispatch/pkg/registry"
)

const testPrefix = "bootstrap:loader_test"

const customCatalog = `{
  "name": "release-ops",
  "version": "1.2.0",
  "operations": [
    {
      "type": "function",
      "function": {
        "name": "deploy_app",
        "description": "Deploys a version",
        "parameters": {
          "type": "object",
          "properties": {
            "version": {"type": "string"},
            "environment": {"type": "string", "enum": ["staging", "preprod", "prod"]},
            "canary": {"type": "boolean"}
          },
          "required": ["version", "environment"]
        }
      }
    },
    {
      "type": "function",
      "function": {
        "name": "rollback_app",
        "parameters": {"type": "object", "properties": {}}
      }
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("%s - write %s: %v", testPrefix, p, err)
	}
	return p
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if err := c.Validate(); err != nil {
		t.Fatalf("%s - default catalog invalid: %v", testPrefix, err)
	}
	schemas, err := c.Schemas()
	if err != nil {
		t.Fatalf("%s - Schemas: %v", testPrefix, err)
	}
	if diff := cmp.Diff(operations.Schemas(), schemas); diff != "" {
		t.Errorf("%s - default catalog does not round-trip the built-in schemas (-want +got):\n%s", testPrefix, diff)
	}
}

func TestLoadCatalog_FromPath(t *testing.T) {
	t.Setenv("OPERATIONS_FILE", "")
	p := writeFile(t, t.TempDir(), "ops.json", customCatalog)

	c, err := LoadCatalog(p)
	if err != nil {
		t.Fatalf("%s - LoadCatalog: %v", testPrefix, err)
	}
	if c.Name != "release-ops" || c.Version != "1.2.0" {
		t.Errorf("%s - loaded %s %s", testPrefix, c.Name, c.Version)
	}
	if len(c.Operations) != 2 {
		t.Errorf("%s - expected 2 operations, got %d", testPrefix, len(c.Operations))
	}
}

func TestLoadCatalog_EnvAndFallback(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.json", `{not json`)
	badVersion := writeFile(t, dir, "badversion.json", `{"name":"x","version":"one","operations":[]}`)
	good := writeFile(t, dir, "good.json", customCatalog)

	t.Setenv("OPERATIONS_FILE", good)
	c, err := LoadCatalog(bad, badVersion, filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("%s - LoadCatalog: %v", testPrefix, err)
	}
	if c.Name != "release-ops" {
		t.Errorf("%s - expected catalog from OPERATIONS_FILE, got %s", testPrefix, c.Name)
	}

	t.Setenv("OPERATIONS_FILE", "")
	c, err = LoadCatalog(bad)
	if err != nil {
		t.Fatalf("%s - LoadCatalog: %v", testPrefix, err)
	}
	if c.Name != DefaultCatalog().Name {
		t.Errorf("%s - expected default catalog, got %s", testPrefix, c.Name)
	}
}

func TestCatalog_ValidateErrors(t *testing.T) {
	dup := DefaultCatalog()
	dup.Operations = append(dup.Operations, dup.Operations[0])

	badDecl := DefaultCatalog()
	badDecl.Operations[0].Function.Parameters = map[string]any{"type": "object", "required": []any{"ghost"}}

	for name, c := range map[string]*Catalog{"duplicate": dup, "bad declaration": badDecl} {
		if err := c.Validate(); !errors.Is(err, ErrInvalidCatalog) {
			t.Errorf("%s - %s: error = %v, want ErrInvalidCatalog", testPrefix, name, err)
		}
	}
}

func TestMergeCatalogs(t *testing.T) {
	override, err := LoadCatalog(writeFile(t, t.TempDir(), "ops.json", customCatalog))
	if err != nil {
		t.Fatalf("%s - LoadCatalog: %v", testPrefix, err)
	}

	merged := MergeCatalogs(DefaultCatalog(), override)
	if merged.Version != "1.2.0" {
		t.Errorf("%s - Version = %s, want 1.2.0", testPrefix, merged.Version)
	}
	var names []string
	for _, d := range merged.Operations {
		names = append(names, d.Function.Name)
	}
	if diff := cmp.Diff([]string{"run_tests", "deploy_app", "generate_test_report", "rollback_app"}, names); diff != "" {
		t.Errorf("%s - operation order mismatch (-want +got):\n%s", testPrefix, diff)
	}
	if merged.Operations[1].Function.Description != "Deploys a version" {
		t.Errorf("%s - deploy_app not replaced by override", testPrefix)
	}
	if len(DefaultCatalog().Operations) != 3 {
		t.Errorf("%s - merge mutated the base catalog", testPrefix)
	}

	older := &Catalog{Version: "0.9.0"}
	if got := MergeCatalogs(DefaultCatalog(), older).Version; got != "1.0.0" {
		t.Errorf("%s - older override changed version to %s", testPrefix, got)
	}
}

func TestLoadCatalog_Extends(t *testing.T) {
	t.Setenv("OPERATIONS_FILE", "")
	extending := strings.Replace(customCatalog, `"version": "1.2.0",`, `"version": "1.2.0", "extends": true,`, 1)
	p := writeFile(t, t.TempDir(), "ops.json", extending)

	c, err := LoadCatalog(p)
	if err != nil {
		t.Fatalf("%s - LoadCatalog: %v", testPrefix, err)
	}
	var names []string
	for _, d := range c.Operations {
		names = append(names, d.Function.Name)
	}
	if diff := cmp.Diff([]string{"run_tests", "deploy_app", "generate_test_report", "rollback_app"}, names); diff != "" {
		t.Errorf("%s - extended operations (-want +got):\n%s", testPrefix, diff)
	}
	if c.Name != "release-ops" || c.Version != "1.2.0" || c.Extends {
		t.Errorf("%s - merged header = %s %s extends=%v", testPrefix, c.Name, c.Version, c.Extends)
	}

	reg, err := BuildRegistry(c, operations.NewRunner(io.Discard).Handlers())
	if err != nil {
		t.Fatalf("%s - BuildRegistry: %v", testPrefix, err)
	}
	if _, ok := reg.Lookup("run_tests"); !ok {
		t.Errorf("%s - built-in run_tests missing from extended catalog", testPrefix)
	}
	deploy, _ := reg.Lookup("deploy_app")
	if _, ok := deploy.Parameter("canary"); !ok {
		t.Errorf("%s - deploy_app not replaced by the extending file: %+v", testPrefix, deploy)
	}
}

func TestBuildRegistry_CatalogOverridesSchemas(t *testing.T) {
	c, err := LoadCatalog(writeFile(t, t.TempDir(), "ops.json", customCatalog))
	if err != nil {
		t.Fatalf("%s - LoadCatalog: %v", testPrefix, err)
	}

	var invoked directive.ArgumentMap
	handlers := map[string]registry.Handler{
		"deploy_app": registry.HandlerFunc(func(_ context.Context, args directive.ArgumentMap) error {
			invoked = args
			return nil
		}),
	}
	reg, err := BuildRegistry(c, handlers)
	if err != nil {
		t.Fatalf("%s - BuildRegistry: %v", testPrefix, err)
	}
	if diff := cmp.Diff([]string{"deploy_app"}, reg.Names()); diff != "" {
		t.Errorf("%s - operations without handlers must be skipped (-want +got):\n%s", testPrefix, diff)
	}

	schema, _ := reg.Lookup("deploy_app")
	var order []string
	for _, p := range schema.Parameters {
		order = append(order, p.Name)
	}
	if diff := cmp.Diff([]string{"version", "environment", "canary"}, order); diff != "" {
		t.Errorf("%s - parameter order mismatch (-want +got):\n%s", testPrefix, diff)
	}
	env, _ := schema.Parameter("environment")
	if !env.Allows("prod") {
		t.Errorf("%s - catalog should widen environment to prod", testPrefix)
	}

	h, _ := reg.Handler("deploy_app")
	args := directive.ArgumentMap{"version": directive.String("1.0.0"), "environment": directive.String("prod")}
	if err := h.Invoke(context.Background(), args); err != nil {
		t.Fatalf("%s - Invoke: %v", testPrefix, err)
	}
	if diff := cmp.Diff(args, invoked); diff != "" {
		t.Errorf("%s - handler args mismatch (-want +got):\n%s", testPrefix, diff)
	}
}
