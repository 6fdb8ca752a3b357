// Package main is the entrypoint for directive-dispatch (binary name "dispatcher").
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/morezero/directive-dispatch/internal/config"
	"github.com/morezero/directive-dispatch/internal/server"
	"github.com/morezero/directive-dispatch/pkg/bootstrap"
	"github.com/morezero/directive-dispatch/pkg/db"
	"github.com/morezero/directive-dispatch/pkg/directive"
	"github.com/morezero/directive-dispatch/pkg/dispatcher"
	"github.com/morezero/directive-dispatch/pkg/operations"
)

const usage = `Usage: dispatcher [command]
       dispatcher serve               Start the dispatcher (NATS request/reply, HTTP health).
       dispatcher run [text]          Dispatch the directive in text; without text, one line per directive from stdin.
       dispatcher parse [text]        Print the decoded call in text (stdin when omitted) without dispatching.
       dispatcher operations          Print the operation catalog as tool declarations.
       dispatcher history [operation] Print recent dispatch attempts from the audit log.
       dispatcher migrate up          Run database migrations.
       dispatcher migrate status      Show migration status.
       dispatcher ensure-db [name]    Create database if missing (default name: dispatch_test). Uses DATABASE_URL host/user.
       dispatcher clear [older-than]  Truncate the dispatch audit log, or prune records older than a duration (e.g. 720h).

Commands:
  serve             (default) Start the directive dispatcher.
  run [text]        Extract, validate and invoke a directive locally.
  parse [text]      Extract and decode only.
  operations        Catalog from OPERATIONS_FILE, config/operations.json, operations.json or built-in.
  history [op]      Last 50 audit records, optionally for one operation.
  migrate up        Run database migrations only.
  migrate status    Show current migration status.
  ensure-db [name]  Create database (e.g. dispatch_test) on same host as DATABASE_URL; then run tests with that URL.
  clear [dur]       Truncate dispatch_log (schema preserved); with a duration, delete only older records.

Environment: COMMS_URL, DIRECTIVE_SUBJECT, OPERATIONS_FILE, DATABASE_URL (optional for serve), MIGRATION_PATH,
DISPATCH_HTTP_ADDR (default :8080), LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "run":
		if err := runDispatch(os.Stdout, os.Stdin, args[1:]); err != nil {
			log.Fatalf("dispatcher run: %v", err)
		}
		return
	case "parse":
		if err := runParse(os.Stdout, os.Stdin, args[1:]); err != nil {
			log.Fatalf("dispatcher parse: %v", err)
		}
		return
	case "operations":
		if err := runOperations(os.Stdout); err != nil {
			log.Fatalf("dispatcher operations: %v", err)
		}
		return
	case "history":
		operation := ""
		if len(args) > 1 {
			operation = args[1]
		}
		if err := runHistory(os.Stdout, operation); err != nil {
			log.Fatalf("dispatcher history: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("dispatcher migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("dispatcher migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("dispatcher migrate status: %v", err)
			}
		default:
			log.Fatalf("dispatcher migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		olderThan := ""
		if len(args) > 1 {
			olderThan = args[1]
		}
		if err := runClear(olderThan, time.Now()); err != nil {
			log.Fatalf("dispatcher clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "dispatch_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("dispatcher ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("dispatcher: %v", err)
	}
}

// loadLocal loads config, points slog at stderr and builds a pipeline over the configured
// catalog whose handlers print to out.
func loadLocal(out io.Writer) (*dispatcher.Pipeline, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	if err := cfg.Syntax().Validate(); err != nil {
		return nil, err
	}
	return newPipeline(cfg.OperationsFile, cfg.Syntax(), out)
}

func newPipeline(operationsFile string, syntax directive.Syntax, out io.Writer) (*dispatcher.Pipeline, error) {
	catalog, err := bootstrap.LoadCatalog(operationsFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	reg, err := bootstrap.BuildRegistry(catalog, operations.NewRunner(out).Handlers())
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	return dispatcher.NewPipeline(dispatcher.NewDispatcher(reg), &dispatcher.PipelineOpts{Syntax: syntax}), nil
}

// readText joins args, or reads all of stdin when args is empty.
func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func runDispatch(out io.Writer, stdin io.Reader, args []string) error {
	p, err := loadLocal(out)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if len(args) > 0 {
		return processText(ctx, out, p, strings.Join(args, " "))
	}
	return processLines(ctx, out, p, stdin)
}

// processLines dispatches each non-blank line of r in turn until r is exhausted.
func processLines(ctx context.Context, out io.Writer, p *dispatcher.Pipeline, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := processText(ctx, out, p, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// processText dispatches the directive in text. Directive failures are printed together with
// the raw text and are not returned; only write and non-directive errors are.
func processText(ctx context.Context, out io.Writer, p *dispatcher.Pipeline, text string) error {
	call, err := p.Parse(text)
	if err != nil {
		return printFailure(out, err, text)
	}
	data, err := json.Marshal(call)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "Parsed function call: %s\n", data); err != nil {
		return err
	}
	if _, err := p.Process(ctx, text); err != nil {
		return printFailure(out, err, text)
	}
	return nil
}

func printFailure(out io.Writer, err error, text string) error {
	var de *directive.DirectiveError
	if !errors.As(err, &de) {
		return err
	}
	_, werr := fmt.Fprintf(out, "Could not interpret the command: %v\nRaw output:\n%s\n", err, text)
	return werr
}

func runParse(out io.Writer, stdin io.Reader, args []string) error {
	p, err := loadLocal(io.Discard)
	if err != nil {
		return err
	}
	text, err := readText(args, stdin)
	if err != nil {
		return err
	}
	return parseText(out, p, text)
}

func parseText(out io.Writer, p *dispatcher.Pipeline, text string) error {
	call, err := p.Parse(text)
	if err != nil {
		return printFailure(out, err, text)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(call)
}

func runOperations(out io.Writer) error {
	p, err := loadLocal(io.Discard)
	if err != nil {
		return err
	}
	return writeOperations(out, p)
}

func writeOperations(out io.Writer, p *dispatcher.Pipeline) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(p.Dispatcher().Registry().Declarations())
}

func runHistory(out io.Writer, operation string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	records, err := db.NewRepository(pool).ListRecent(ctx, operation, db.DefaultListLimit)
	if err != nil {
		return fmt.Errorf("list dispatches: %w", err)
	}
	writeHistory(out, records)
	return nil
}

func writeHistory(out io.Writer, records []db.DispatchRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No dispatches recorded.")
		return
	}
	for _, r := range records {
		status := "ok"
		if !r.Ok {
			status = r.Code
		}
		fmt.Fprintf(out, "%s  %-22s %-20s %s\n", r.Created.UTC().Format("2006-01-02T15:04:05Z"), status, r.Operation, r.ID)
	}
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	status, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	writeMigrationStatus(os.Stdout, status, cfg.MigrationPath)
	return nil
}

func writeMigrationStatus(out io.Writer, status db.SchemaStatus, dir string) {
	source := dir
	if source == "" {
		source = "embedded migrations"
	}
	if status.Applied {
		fmt.Fprintf(out, "Migration status: applied (dispatch_log present, %d migration files in %s)\n", len(status.Migrations), source)
	} else {
		fmt.Fprintf(out, "Migration status: not applied (run 'dispatcher migrate up'). %d migration files in %s\n", len(status.Migrations), source)
	}
	for _, name := range status.Migrations {
		fmt.Fprintf(out, "  %s\n", name)
	}
}

func runClear(olderThan string, now time.Time) error {
	var cutoff time.Time
	if olderThan != "" {
		var err error
		if cutoff, err = pruneCutoff(olderThan, now); err != nil {
			return err
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cutoff.IsZero() {
		if err := db.ClearDispatchLog(ctx, pool); err != nil {
			return fmt.Errorf("clear dispatch log: %w", err)
		}
		return nil
	}
	n, err := db.PruneDispatchLog(ctx, pool, cutoff)
	if err != nil {
		return fmt.Errorf("prune dispatch log: %w", err)
	}
	fmt.Printf("Removed %d dispatch records older than %s.\n", n, olderThan)
	return nil
}

// pruneCutoff turns a retention duration such as 720h into the instant before which records go.
func pruneCutoff(olderThan string, now time.Time) (time.Time, error) {
	d, err := time.ParseDuration(olderThan)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", olderThan, err)
	}
	if d <= 0 {
		return time.Time{}, fmt.Errorf("duration %q must be positive", olderThan)
	}
	return now.Add(-d), nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	// only the server and credentials of DATABASE_URL are reused
	target, err := db.Target{URL: cfg.DatabaseURL}.Rename(dbName)
	if err != nil {
		return err
	}
	created, err := db.EnsureDatabase(context.Background(), target.URL)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Database %q created.\n", target.Name)
	} else {
		fmt.Printf("Database %q already exists.\n", target.Name)
	}
	return nil
}
