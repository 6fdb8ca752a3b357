// Package operations provides the preloaded operations the dispatcher can invoke:
// run_tests, deploy_app and generate_test_report.
package operations

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/directive-dispatch/pkg/directive"
	"github.com/morezero/directive-dispatch/pkg/registry"
)

const logPrefix = "operations:operations"

// Operation names.
const (
	RunTests           = "run_tests"
	DeployApp          = "deploy_app"
	GenerateTestReport = "generate_test_report"
)

// RunTestsArgs are the validated arguments of run_tests.
type RunTestsArgs struct {
	Type        string
	Environment string
}

// DeployArgs are the validated arguments of deploy_app. Semver is nil when
// Version is not a semantic version.
type DeployArgs struct {
	Version     string
	Semver      *semver.Version
	Environment string
}

// ReportArgs are the validated arguments of generate_test_report.
type ReportArgs struct {
	Format string
}

// Schemas returns the schemas of the preloaded operations.
func Schemas() []registry.OperationSchema {
	return []registry.OperationSchema{
		{
			Name:        RunTests,
			Description: "Runs a test suite against an environment",
			Parameters: []registry.ParameterSpec{
				{Name: "type", Type: registry.TypeString, Required: true, Description: "Kind of tests to run", AllowedValues: []string{"unit", "integration", "e2e"}},
				{Name: "environment", Type: registry.TypeString, Required: true, Description: "Target environment", AllowedValues: []string{"dev", "staging", "prod"}},
			},
		},
		{
			Name:        DeployApp,
			Description: "Deploys an application version to an environment",
			Parameters: []registry.ParameterSpec{
				{Name: "version", Required: true, Description: "Version to deploy, e.g. 2.1.0"},
				{Name: "environment", Type: registry.TypeString, Required: true, Description: "Target environment", AllowedValues: []string{"staging", "preprod"}},
			},
		},
		{
			Name:        GenerateTestReport,
			Description: "Generates a report of the latest test results",
			Parameters: []registry.ParameterSpec{
				{Name: "format", Type: registry.TypeString, Required: true, Description: "Report format", AllowedValues: []string{"html", "pdf"}},
			},
		},
	}
}

// Runner executes the preloaded operations, writing one status line per call to out.
type Runner struct {
	out io.Writer
}

// NewRunner creates a Runner. A nil out discards status lines.
func NewRunner(out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{out: out}
}

// RunTests runs the requested test suite.
func (r *Runner) RunTests(ctx context.Context, args RunTestsArgs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - run_tests type=%s environment=%s", logPrefix, args.Type, args.Environment))
	_, err := fmt.Fprintf(r.out, "Running '%s' tests on the '%s' environment\n", args.Type, args.Environment)
	return err
}

// Deploy deploys the requested version.
func (r *Runner) Deploy(ctx context.Context, args DeployArgs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if args.Semver != nil && args.Semver.Prerelease() != "" {
		slog.Warn(fmt.Sprintf("%s - deploying prerelease %s to %s", logPrefix, args.Semver, args.Environment))
	}
	slog.Info(fmt.Sprintf("%s - deploy_app version=%s environment=%s", logPrefix, args.Version, args.Environment))
	_, err := fmt.Fprintf(r.out, "Deploying version %s to %s\n", args.Version, args.Environment)
	return err
}

// GenerateReport generates a test report.
func (r *Runner) GenerateReport(ctx context.Context, args ReportArgs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - generate_test_report format=%s", logPrefix, args.Format))
	_, err := fmt.Fprintf(r.out, "Test report generated in %s format\n", args.Format)
	return err
}

// Handlers returns the typed handlers bound to r, keyed by operation name.
func (r *Runner) Handlers() map[string]registry.Handler {
	return map[string]registry.Handler{
		RunTests:           registry.Bind(bindRunTests, r.RunTests),
		DeployApp:          registry.Bind(bindDeploy, r.Deploy),
		GenerateTestReport: registry.Bind(bindReport, r.GenerateReport),
	}
}

// Register adds every preloaded operation to b.
func (r *Runner) Register(b *registry.Builder) *registry.Builder {
	handlers := r.Handlers()
	for _, schema := range Schemas() {
		b.Register(schema, handlers[schema.Name])
	}
	return b
}

func bindRunTests(args directive.ArgumentMap) (RunTestsArgs, error) {
	return RunTestsArgs{
		Type:        args.StringOf("type"),
		Environment: args.StringOf("environment"),
	}, nil
}

func bindDeploy(args directive.ArgumentMap) (DeployArgs, error) {
	out := DeployArgs{
		Version:     args.StringOf("version"),
		Environment: args.StringOf("environment"),
	}
	if v, err := semver.NewVersion(out.Version); err == nil {
		out.Semver = v
	} else {
		slog.Debug(fmt.Sprintf("%s - version %q is not semantic: %v", logPrefix, out.Version, err))
	}
	return out, nil
}

func bindReport(args directive.ArgumentMap) (ReportArgs, error) {
	return ReportArgs{Format: args.StringOf("format")}, nil
}
