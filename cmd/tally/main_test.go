package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unbound-force/tally/internal/harness"
	"github.com/unbound-force/tally/internal/jidoka"
	"github.com/unbound-force/tally/internal/scenario"
)

func testParams(format string) (outputParams, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return outputParams{
		format:    format,
		overrides: noOverrides(),
		stdout:    &stdout,
		stderr:    &stderr,
	}, &stdout, &stderr
}

// ---------------------------------------------------------------------------
// runRun tests
// ---------------------------------------------------------------------------

func TestRunRun_InvalidFormat(t *testing.T) {
	p, _, _ := testParams("yaml")
	err := runRun(runParams{outputParams: p, planPath: "testdata/passing.yaml"})
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if !strings.Contains(err.Error(), `invalid format "yaml"`) {
		t.Errorf("unexpected error message: %s", err)
	}
}

func TestRunRun_TextFormat(t *testing.T) {
	p, stdout, stderr := testParams("text")
	if err := runRun(runParams{outputParams: p, planPath: "testdata/passing.yaml"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"twenty", "--- Superblocks ---", "--- Summary ---", "20/20"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if !strings.Contains(stderr.String(), "Coverage: 20/20 basic_block") {
		t.Errorf("expected CI summary on stderr, got: %q", stderr.String())
	}
}

func TestRunRun_JSONFormat(t *testing.T) {
	p, stdout, _ := testParams("json")
	if err := runRun(runParams{outputParams: p, planPath: "testdata/passing.yaml"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput:\n%s", err, stdout.String())
	}
	for _, key := range []string{"session_id", "superblocks", "gate"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("JSON output missing %q key", key)
		}
	}
	if parsed["version"] != version {
		t.Errorf("version = %v, want %q", parsed["version"], version)
	}
}

func TestRunRun_MissingPlan(t *testing.T) {
	p, _, _ := testParams("text")
	err := runRun(runParams{outputParams: p, planPath: "testdata/nope.yaml"})
	if err == nil {
		t.Fatal("expected error for missing plan")
	}
}

func TestRunRun_FalsifiedHypothesisFails(t *testing.T) {
	p, stdout, _ := testParams("text")
	p.configPath = "testdata/coverage.yaml"
	err := runRun(runParams{outputParams: p, planPath: "testdata/partial.yaml"})
	if err == nil {
		t.Fatal("expected error for falsified hypothesis")
	}
	if !strings.Contains(err.Error(), "falsified") || !strings.Contains(err.Error(), "H1") {
		t.Errorf("unexpected error message: %s", err)
	}
	// The report is still written before the failure is returned.
	if !strings.Contains(stdout.String(), "falsified") {
		t.Errorf("expected report with falsified verdict, got:\n%s", stdout.String())
	}
}

func TestRunRun_GateThresholdOverrideFails(t *testing.T) {
	p, _, _ := testParams("text")
	p.configPath = "testdata/coverage.yaml"
	p.overrides.gateThreshold = 25
	err := runRun(runParams{outputParams: p, planPath: "testdata/passing.yaml"})
	if err == nil {
		t.Fatal("expected error for failed gate")
	}
	if !strings.Contains(err.Error(), "falsifiability gate failed for H1") {
		t.Errorf("unexpected error message: %s", err)
	}
}

func TestRunRun_HaltedSession(t *testing.T) {
	p, stdout, _ := testParams("text")
	err := runRun(runParams{outputParams: p, planPath: "testdata/halted.yaml"})
	var stop *jidoka.StopError
	if !errors.As(err, &stop) {
		t.Fatalf("err = %v, want *jidoka.StopError", err)
	}
	if !strings.Contains(err.Error(), "session halted") {
		t.Errorf("unexpected error message: %s", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected no report for a halted session, got:\n%s", stdout.String())
	}
}

func TestRunRun_LogsPlanOnce(t *testing.T) {
	var logs bytes.Buffer
	logger.SetOutput(&logs)
	defer logger.SetOutput(os.Stderr)

	p, _, _ := testParams("text")
	if err := runRun(runParams{outputParams: p, planPath: "testdata/passing.yaml"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(logs.String(), "running plan"); n != 1 {
		t.Errorf("\"running plan\" logged %d times, want 1:\n%s", n, logs.String())
	}
}

func TestRunRun_MetricsOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.prom")
	p, _, _ := testParams("text")
	p.metricsOut = path
	p.overrides.targetSize = 5
	p.overrides.maxSize = 5
	if err := runRun(runParams{outputParams: p, planPath: "testdata/passing.yaml"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading metrics file: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `tally_superblocks_total{result="pass"} 4`) {
		t.Errorf("metrics file missing 4 passing superblocks:\n%s", text)
	}
}

func TestRunRun_MetricsOutWrittenWhenHalted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.prom")
	p, _, _ := testParams("text")
	p.metricsOut = path
	if err := runRun(runParams{outputParams: p, planPath: "testdata/halted.yaml"}); err == nil {
		t.Fatal("expected error for halted session")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading metrics file: %v", err)
	}
	if !strings.Contains(string(data), "tally_violations_total") {
		t.Errorf("metrics file missing violations series:\n%s", data)
	}
}

// ---------------------------------------------------------------------------
// runProfile tests
// ---------------------------------------------------------------------------

func TestRunProfile_TextFormat(t *testing.T) {
	p, stdout, _ := testParams("text")
	err := runProfile(profileParams{
		outputParams: p,
		profilePath:  "../../internal/profile/testdata/cover.out",
		moduleDir:    "../../internal/profile/testdata/src",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout.String(), "cover.out") {
		t.Errorf("expected plan named after the profile, got:\n%s", stdout.String())
	}
}

func TestRunProfile_EmitPlan(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	p, _, _ := testParams("json")
	err := runProfile(profileParams{
		outputParams: p,
		profilePath:  "../../internal/profile/testdata/cover.out",
		moduleDir:    "../../internal/profile/testdata/src",
		emitPlan:     planPath,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plan, err := scenario.Load(planPath)
	if err != nil {
		t.Fatalf("emitted plan does not load: %v", err)
	}
	if plan.Universe() != 7 {
		t.Errorf("Universe() = %d, want 7", plan.Universe())
	}
	if len(plan.Tests) != 1 {
		t.Errorf("len(Tests) = %d, want 1", len(plan.Tests))
	}
}

func TestRunProfile_BadProfile(t *testing.T) {
	p, _, _ := testParams("text")
	err := runProfile(profileParams{outputParams: p, profilePath: "testdata/nope.out"})
	if err == nil {
		t.Fatal("expected error for missing profile")
	}
	if !strings.Contains(err.Error(), "parsing coverage profile") {
		t.Errorf("unexpected error message: %s", err)
	}
}

// ---------------------------------------------------------------------------
// schema command tests
// ---------------------------------------------------------------------------

func TestSchemaCmd_OutputsValidJSON(t *testing.T) {
	cmd := newSchemaCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("schema command failed: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Errorf("schema output is not valid JSON: %v", err)
	}
}

func TestSchemaCmd_ContainsSchemaFields(t *testing.T) {
	cmd := newSchemaCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	output := buf.String()
	for _, field := range []string{
		`"$schema"`, `"title"`, `"Superblock"`,
		`"Violation"`, `"Hypothesis"`, `"GateResult"`,
	} {
		if !strings.Contains(output, field) {
			t.Errorf("schema output missing %s", field)
		}
	}
}

// ---------------------------------------------------------------------------
// loadConfig override tests
// ---------------------------------------------------------------------------

func TestLoadConfig_NoOverride(t *testing.T) {
	cfg, err := loadConfig("", noOverrides())
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.Partition.TargetSize != 64 || cfg.Partition.MaxSize != 128 {
		t.Errorf("partition = %+v, want defaults 64/128", cfg.Partition)
	}
	if cfg.Gate.Threshold != 15 {
		t.Errorf("gate threshold = %v, want 15 (default)", cfg.Gate.Threshold)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	o := noOverrides()
	o.workers = 3
	o.targetSize = 4
	o.maxSize = 8
	o.gateThreshold = 0
	cfg, err := loadConfig("", o)
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.Executor.Workers != 3 {
		t.Errorf("workers = %d, want 3", cfg.Executor.Workers)
	}
	if cfg.Partition.TargetSize != 4 || cfg.Partition.MaxSize != 8 {
		t.Errorf("partition = %+v, want 4/8", cfg.Partition)
	}
	if cfg.Gate.Threshold != 0 {
		t.Errorf("gate threshold = %v, want 0", cfg.Gate.Threshold)
	}
}

func TestLoadConfig_InvertedSizesRejected(t *testing.T) {
	o := noOverrides()
	o.targetSize = 12
	o.maxSize = 10
	_, err := loadConfig("", o)
	if err == nil {
		t.Fatal("expected error for target-size above max-size, got nil")
	}
	if !strings.Contains(err.Error(), "invalid flag overrides") {
		t.Errorf("error should mention flag overrides, got: %s", err)
	}
}

func TestLoadConfig_GateThresholdOutOfRange(t *testing.T) {
	o := noOverrides()
	o.gateThreshold = 30
	if _, err := loadConfig("", o); err == nil {
		t.Fatal("expected error for gate-threshold=30, got nil")
	}
}

func TestLoadConfig_YAMLErrorMentionsConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, ".tally.yaml")
	content := []byte("partition:\n  target_size: 0\n")
	if err := os.WriteFile(cfgPath, content, 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	_, err := loadConfig(cfgPath, noOverrides())
	if err == nil {
		t.Fatal("expected error for invalid YAML config, got nil")
	}
	if !strings.Contains(err.Error(), "config file") {
		t.Errorf("error should mention 'config file', got: %s", err)
	}
}

// ---------------------------------------------------------------------------
// checkOutcome and printCISummary tests
// ---------------------------------------------------------------------------

func outcomeFor(t *testing.T, planPath, cfgPath string, o overrides) *harness.Outcome {
	t.Helper()
	cfg, err := loadConfig(cfgPath, o)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := scenario.Load(planPath)
	if err != nil {
		t.Fatal(err)
	}
	out, err := harness.Run(t.Context(), plan, cfg, harness.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestCheckOutcome(t *testing.T) {
	gateFail := noOverrides()
	gateFail.gateThreshold = 25

	tests := []struct {
		name        string
		plan        string
		config      string
		o           overrides
		wantErr     bool
		errContains string
	}{
		{name: "no_hypotheses", plan: "testdata/partial.yaml", o: noOverrides()},
		{name: "supported", plan: "testdata/passing.yaml", config: "testdata/coverage.yaml", o: noOverrides()},
		{name: "falsified", plan: "testdata/partial.yaml", config: "testdata/coverage.yaml", o: noOverrides(),
			wantErr: true, errContains: "1 hypothesis(es) falsified"},
		{name: "gate_failed", plan: "testdata/passing.yaml", config: "testdata/coverage.yaml", o: gateFail,
			wantErr: true, errContains: "gate failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkOutcome(outcomeFor(t, tt.plan, tt.config, tt.o))
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
			if tt.wantErr && err != nil && tt.errContains != "" {
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got: %v", tt.errContains, err)
				}
			}
		})
	}
}

func TestPrintCISummary(t *testing.T) {
	out := outcomeFor(t, "testdata/partial.yaml", "testdata/coverage.yaml", noOverrides())
	var buf bytes.Buffer
	printCISummary(&buf, out, 15)

	got := buf.String()
	for _, want := range []string{"Coverage: 10/20 basic_block", "Gate: 20.0/15 (PASS)", "Falsified: 1/1"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary %q missing %q", got, want)
		}
	}
}

func TestPrintCISummary_NilWriter(_ *testing.T) {
	printCISummary(nil, &harness.Outcome{}, 15)
}
