package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/morezero/directive-dispatch/pkg/db"
	"github.com/morezero/directive-dispatch/pkg/directive"
	"github.com/morezero/directive-dispatch/pkg/dispatcher"
	"github.com/morezero/directive-dispatch/pkg/registry"
)

const mainTestPrefix = "cmd/dispatcher:main_test"

func testPipeline(t *testing.T, out *bytes.Buffer) *dispatcher.Pipeline {
	t.Helper()
	os.Unsetenv("OPERATIONS_FILE")
	var w io.Writer = io.Discard
	if out != nil {
		w = out
	}
	p, err := newPipeline("", directive.DefaultSyntax(), w)
	if err != nil {
		t.Fatalf("%s - newPipeline: %v", mainTestPrefix, err)
	}
	return p
}

func TestUsage_NonEmpty(t *testing.T) {
	if len(usage) == 0 {
		t.Fatalf("%s - usage string is empty", mainTestPrefix)
	}
}

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"serve", "run", "parse", "operations", "history", "migrate", "ensure-db", "clear", "DATABASE_URL"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestReadText(t *testing.T) {
	got, err := readText([]string{"call", "me"}, strings.NewReader("ignored"))
	if err != nil || got != "call me" {
		t.Errorf("%s - readText(args) = %q, %v", mainTestPrefix, got, err)
	}
	got, err = readText(nil, strings.NewReader("from stdin\n"))
	if err != nil || got != "from stdin\n" {
		t.Errorf("%s - readText(stdin) = %q, %v", mainTestPrefix, got, err)
	}
}

func TestProcessLines(t *testing.T) {
	var out bytes.Buffer
	p := testPipeline(t, &out)

	input := strings.Join([]string{
		"<start_function_call>call:run_tests{type:<escape>unit<escape>,environment:<escape>dev<escape>}<end_function_call>",
		"",
		"Sure! <start_function_call>call:deploy_app{version:<escape>2.1.0<escape>,environment:<escape>staging<escape>}<end_function_call>",
		"<start_function_call>call:deploy_app{version:<escape>2.1.0<escape>,environment:<escape>prod<escape>}<end_function_call>",
		"no directive here",
	}, "\n")

	if err := processLines(context.Background(), &out, p, strings.NewReader(input)); err != nil {
		t.Fatalf("%s - processLines: %v", mainTestPrefix, err)
	}

	got := out.String()
	wants := []string{
		`Parsed function call: {"name":"run_tests","arguments":{"environment":"dev","type":"unit"}}`,
		"Running 'unit' tests on the 'dev' environment",
		"Deploying version 2.1.0 to staging",
		"Could not interpret the command: INVALID_ENUM_VALUE",
		"Could not interpret the command: NO_DIRECTIVE_FOUND",
		"Raw output:\nno directive here",
	}
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("%s - output missing %q:\n%s", mainTestPrefix, want, got)
		}
	}
	if strings.Contains(got, "to prod") {
		t.Errorf("%s - rejected deploy must not run:\n%s", mainTestPrefix, got)
	}
}

func TestParseText(t *testing.T) {
	var out bytes.Buffer
	p := testPipeline(t, nil)

	text := "<start_function_call>call:generate_test_report{format:<escape>html<escape>}<end_function_call>"
	if err := parseText(&out, p, text); err != nil {
		t.Fatalf("%s - parseText: %v", mainTestPrefix, err)
	}
	var call directive.Call
	if err := json.Unmarshal(out.Bytes(), &call); err != nil {
		t.Fatalf("%s - decode call %s: %v", mainTestPrefix, out.String(), err)
	}
	if call.Name != "generate_test_report" || call.Arguments.StringOf("format") != "html" {
		t.Errorf("%s - call = %+v", mainTestPrefix, call)
	}

	// parse does not validate, so an unknown operation still decodes
	out.Reset()
	if err := parseText(&out, p, "<start_function_call>call:launch{}<end_function_call>"); err != nil {
		t.Fatalf("%s - parseText unknown op: %v", mainTestPrefix, err)
	}
	if !strings.Contains(out.String(), `"name": "launch"`) {
		t.Errorf("%s - output = %s", mainTestPrefix, out.String())
	}

	out.Reset()
	if err := parseText(&out, p, "<start_function_call>call:run_tests{type:}<end_function_call>"); err != nil {
		t.Fatalf("%s - decode failures are printed, not returned: %v", mainTestPrefix, err)
	}
	if !strings.Contains(out.String(), "ARGUMENT_DECODE_ERROR") {
		t.Errorf("%s - output = %s", mainTestPrefix, out.String())
	}
}

func TestPrintFailure_NonDirectiveError(t *testing.T) {
	var out bytes.Buffer
	boom := errors.New("boom")
	if err := printFailure(&out, boom, "text"); !errors.Is(err, boom) {
		t.Errorf("%s - printFailure error = %v, want boom", mainTestPrefix, err)
	}
	if out.Len() != 0 {
		t.Errorf("%s - nothing should be printed for non-directive errors, got %q", mainTestPrefix, out.String())
	}
}

func TestWriteOperations(t *testing.T) {
	var out bytes.Buffer
	if err := writeOperations(&out, testPipeline(t, nil)); err != nil {
		t.Fatalf("%s - writeOperations: %v", mainTestPrefix, err)
	}
	var decls []registry.Declaration
	if err := json.Unmarshal(out.Bytes(), &decls); err != nil {
		t.Fatalf("%s - decode declarations: %v", mainTestPrefix, err)
	}
	if len(decls) != 3 {
		t.Errorf("%s - expected 3 declarations, got %d", mainTestPrefix, len(decls))
	}
}

func TestWriteHistory(t *testing.T) {
	var out bytes.Buffer
	writeHistory(&out, nil)
	if !strings.Contains(out.String(), "No dispatches recorded.") {
		t.Errorf("%s - empty history output = %q", mainTestPrefix, out.String())
	}

	out.Reset()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	writeHistory(&out, []db.DispatchRecord{
		{ID: "a1", Operation: "run_tests", Ok: true, Created: created},
		{ID: "b2", Operation: "deploy_app", Code: "INVALID_ENUM_VALUE", Created: created},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("%s - expected 2 lines, got %q", mainTestPrefix, out.String())
	}
	if !strings.HasPrefix(lines[0], "2025-01-02T03:04:05Z  ok") || !strings.HasSuffix(lines[0], "a1") {
		t.Errorf("%s - line 0 = %q", mainTestPrefix, lines[0])
	}
	if !strings.Contains(lines[1], "INVALID_ENUM_VALUE") || !strings.Contains(lines[1], "deploy_app") {
		t.Errorf("%s - line 1 = %q", mainTestPrefix, lines[1])
	}
}

func TestPruneCutoff(t *testing.T) {
	now := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	got, err := pruneCutoff("720h", now)
	if err != nil {
		t.Fatalf("%s - pruneCutoff: %v", mainTestPrefix, err)
	}
	if want := time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("%s - cutoff = %v, want %v", mainTestPrefix, got, want)
	}
	for _, bad := range []string{"30d", "-1h", "0s"} {
		if _, err := pruneCutoff(bad, now); err == nil {
			t.Errorf("%s - expected error for %q", mainTestPrefix, bad)
		}
	}
}

func TestWriteMigrationStatus(t *testing.T) {
	var out bytes.Buffer
	writeMigrationStatus(&out, db.SchemaStatus{Migrations: []string{"001_dispatch_log.sql"}}, "")
	got := out.String()
	if !strings.Contains(got, "not applied") || !strings.Contains(got, "embedded migrations") || !strings.Contains(got, "  001_dispatch_log.sql") {
		t.Errorf("%s - status output = %q", mainTestPrefix, got)
	}

	out.Reset()
	writeMigrationStatus(&out, db.SchemaStatus{Applied: true}, "/srv/migrations")
	if !strings.HasPrefix(out.String(), "Migration status: applied") || !strings.Contains(out.String(), "/srv/migrations") {
		t.Errorf("%s - status output = %q", mainTestPrefix, out.String())
	}
}
