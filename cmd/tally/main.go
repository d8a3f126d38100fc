package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/unbound-force/tally/internal/config"
	"github.com/unbound-force/tally/internal/harness"
	"github.com/unbound-force/tally/internal/metrics"
	"github.com/unbound-force/tally/internal/profile"
	"github.com/unbound-force/tally/internal/report"
	"github.com/unbound-force/tally/internal/scenario"
)

// logger is the application-wide structured logger (writes to stderr).
var logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: false,
})

// Set by build flags.
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "tally",
		Short: "Tally: coverage sessions with statistical falsification",
		Long: `Tally partitions a block universe into superblocks, collects
per-test coverage across parallel workers, halts on data integrity
violations, and gates the result with falsifiable hypotheses.`,
		Version: version,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newProfileCmd())
	root.AddCommand(newSchemaCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// overrides holds CLI values applied over the loaded config. Negative
// values leave the config untouched.
type overrides struct {
	workers       int
	targetSize    int
	maxSize       int
	gateThreshold float64
}

func noOverrides() overrides {
	return overrides{workers: -1, targetSize: -1, maxSize: -1, gateThreshold: -1}
}

func (o *overrides) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.workers, "workers", -1,
		"worker goroutines (0 = GOMAXPROCS, default: from config)")
	cmd.Flags().IntVar(&o.targetSize, "target-size", -1,
		"target blocks per superblock (default: from config)")
	cmd.Flags().IntVar(&o.maxSize, "max-size", -1,
		"maximum blocks per superblock (default: from config)")
	cmd.Flags().Float64Var(&o.gateThreshold, "gate-threshold", -1,
		"minimum falsifiability score in [0, 25] (default: from config)")
}

// loadConfig loads the config file (or defaults) and applies flag
// overrides. File errors and flag errors are reported separately.
func loadConfig(path string, o overrides) (*config.TallyConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o.workers >= 0 {
		cfg.Executor.Workers = o.workers
	}
	if o.targetSize >= 0 {
		cfg.Partition.TargetSize = o.targetSize
	}
	if o.maxSize >= 0 {
		cfg.Partition.MaxSize = o.maxSize
	}
	if o.gateThreshold >= 0 {
		cfg.Gate.Threshold = o.gateThreshold
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flag overrides: %w", err)
	}
	return cfg, nil
}

// outputParams holds the flags shared by every command that runs a plan.
type outputParams struct {
	configPath     string
	format         string
	overrides      overrides
	metricsOut     string
	allSuperblocks bool
	interactive    bool
	stdout         io.Writer
	stderr         io.Writer
}

func (p *outputParams) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.configPath, "config", "",
		"path to config file (default: "+config.DefaultFile+" if present)")
	cmd.Flags().StringVar(&p.format, "format", "text",
		"output format: text or json")
	cmd.Flags().StringVar(&p.metricsOut, "metrics-out", "",
		"write Prometheus metrics in text format to this file")
	cmd.Flags().BoolVar(&p.allSuperblocks, "all-superblocks", false,
		"list every superblock in text output")
	cmd.Flags().BoolVarP(&p.interactive, "interactive", "i", false,
		"launch interactive TUI for browsing the report")
	p.overrides.register(cmd)
}

func validateFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: must be 'text' or 'json'", format)
	}
	return nil
}

// runParams holds the parsed flags for the run command.
type runParams struct {
	outputParams
	planPath string
}

// runRun is the extracted, testable body of the run command.
func runRun(p runParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	cfg, err := loadConfig(p.configPath, p.overrides)
	if err != nil {
		return err
	}
	plan, err := scenario.Load(p.planPath)
	if err != nil {
		return err
	}
	if plan.Name == "" {
		plan.Name = p.planPath
	}
	return execute(p.outputParams, plan, cfg)
}

func newRunCmd() *cobra.Command {
	p := runParams{outputParams: outputParams{overrides: noOverrides()}}

	cmd := &cobra.Command{
		Use:   "run [plan.yaml]",
		Short: "Run a coverage session from a plan",
		Long: `Run every test of a plan through a coverage session: partition
the block universe, execute superblocks on parallel workers, merge
their counters, and evaluate the configured hypotheses.

Exits non-zero when a violation halts the session, the gate fails,
or any hypothesis is falsified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.planPath = args[0]
			p.stdout = os.Stdout
			p.stderr = os.Stderr
			return runRun(p)
		},
	}
	p.register(cmd)
	return cmd
}

// profileParams holds the parsed flags for the profile command.
type profileParams struct {
	outputParams
	profilePath      string
	moduleDir        string
	emitPlan         string
	includeGenerated bool
}

// runProfile is the extracted, testable body of the profile command.
func runProfile(p profileParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	cfg, err := loadConfig(p.configPath, p.overrides)
	if err != nil {
		return err
	}

	logger.Info("reading coverage profile", "path", p.profilePath)
	res, err := profile.Load(p.profilePath, profile.Options{
		ModuleDir:       p.moduleDir,
		IgnoreGenerated: !p.includeGenerated,
	})
	if err != nil {
		return err
	}
	covered, total := res.StatementCoverage()
	logger.Info("profile converted",
		"mode", res.Mode,
		"functions", len(res.Functions),
		"blocks", len(res.Blocks),
		"statements", fmt.Sprintf("%d/%d", covered, total))
	for _, f := range res.Skipped {
		logger.Warn("skipped file", "file", f)
	}

	if p.emitPlan != "" {
		data, err := res.Plan.Marshal()
		if err != nil {
			return fmt.Errorf("encoding plan: %w", err)
		}
		if err := os.WriteFile(p.emitPlan, data, 0o644); err != nil {
			return fmt.Errorf("writing plan: %w", err)
		}
		logger.Info("plan written", "path", p.emitPlan)
	}

	return execute(p.outputParams, res.Plan, cfg)
}

func newProfileCmd() *cobra.Command {
	p := profileParams{outputParams: outputParams{overrides: noOverrides()}}

	cmd := &cobra.Command{
		Use:   "profile [cover.out]",
		Short: "Run a coverage session from a Go coverage profile",
		Long: `Convert a go test -coverprofile file into a plan, one block per
profile block and one function per Go func, weighted by cyclomatic
complexity, then run it like 'tally run'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.profilePath = args[0]
			p.stdout = os.Stdout
			p.stderr = os.Stderr
			return runProfile(p)
		},
	}
	p.register(cmd)
	cmd.Flags().StringVar(&p.moduleDir, "module-dir", "",
		"root of the profiled Go module (default: working directory)")
	cmd.Flags().StringVar(&p.emitPlan, "emit-plan", "",
		"also write the converted plan as YAML to this file")
	cmd.Flags().BoolVar(&p.includeGenerated, "include-generated", false,
		"include generated files")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for tally report output",
		Long: `Print the JSON Schema (Draft 2020-12) that documents the
structure of tally run --format=json output. Useful for
validating output or generating client types.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), report.Schema)
			return err
		},
	}
}

// execute runs plan, writes the report and returns an error for any
// failing result.
func execute(p outputParams, plan *scenario.Plan, cfg *config.TallyConfig) error {
	reg := prometheus.NewRegistry()
	opts := harness.Options{Logger: logger, Recorder: metrics.NewRecorder(reg)}

	out, runErr := harness.Run(context.Background(), plan, cfg, opts)

	if p.metricsOut != "" {
		if err := prometheus.WriteToTextfile(p.metricsOut, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("session halted: %w", runErr)
	}

	logger.Info("run complete",
		"covered", out.Coverage.Covered,
		"total", out.Coverage.Total,
		"steals", out.Steals)

	if p.interactive {
		if err := runInteractive(out); err != nil {
			return err
		}
	} else if err := writeReport(p, out); err != nil {
		return err
	}

	printCISummary(p.stderr, out, cfg.Gate.Threshold)

	return checkOutcome(out)
}

// writeReport outputs the outcome in the requested format.
func writeReport(p outputParams, out *harness.Outcome) error {
	switch p.format {
	case "json":
		return report.WriteJSON(p.stdout, out, version)
	default:
		return report.WriteTextOptions(p.stdout, out, report.TextOptions{AllSuperblocks: p.allSuperblocks})
	}
}

// printCISummary prints a one-line CI summary to stderr.
func printCISummary(w io.Writer, out *harness.Outcome, threshold float64) {
	if w == nil {
		return
	}
	parts := []string{
		fmt.Sprintf("Coverage: %d/%d %s", out.Coverage.Covered, out.Coverage.Total, out.Coverage.Granularity),
	}
	gate := "PASS"
	if !out.Gate.Passed() {
		gate = "FAIL"
	}
	parts = append(parts, fmt.Sprintf("Gate: %.1f/%g (%s)", out.Gate.Score, threshold, gate))
	parts = append(parts, fmt.Sprintf("Falsified: %d/%d", len(out.Falsified()), len(out.Hypotheses)))
	fmt.Fprintln(w, strings.Join(parts, " | "))
}

// checkOutcome returns an error if the gate failed or a hypothesis
// was falsified.
func checkOutcome(out *harness.Outcome) error {
	if !out.Gate.Passed() {
		return fmt.Errorf("falsifiability gate failed for %s: score %.1f",
			out.Gate.HypothesisID, out.Gate.Score)
	}
	if f := out.Falsified(); len(f) > 0 {
		ids := make([]string, len(f))
		for i, h := range f {
			ids[i] = h.ID
		}
		return fmt.Errorf("%d hypothesis(es) falsified: %v", len(f), ids)
	}
	return nil
}
