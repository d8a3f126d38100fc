// Package config loads and validates tally's .tally.yaml configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/unbound-force/tally/internal/falsify"
	"github.com/unbound-force/tally/internal/superblock"
	"github.com/unbound-force/tally/internal/taxonomy"
)

// DefaultFile is the config file looked up in the working directory
// when no path is given.
const DefaultFile = ".tally.yaml"

// DefaultConfidence is the confidence level used for Wilson intervals.
const DefaultConfidence = 0.95

// TallyConfig is the full configuration.
type TallyConfig struct {
	Coverage   taxonomy.CoverageConfig `yaml:"coverage"`
	Partition  PartitionConfig         `yaml:"partition"`
	Executor   ExecutorConfig          `yaml:"executor"`
	Gate       GateConfig              `yaml:"gate"`
	Hypotheses []HypothesisConfig      `yaml:"hypotheses"`
}

// PartitionConfig controls superblock sizes.
type PartitionConfig struct {
	TargetSize int `yaml:"target_size"`
	MaxSize    int `yaml:"max_size"`
}

// ExecutorConfig controls the worker pool. Workers == 0 means
// GOMAXPROCS.
type ExecutorConfig struct {
	Workers      int  `yaml:"workers"`
	WorkStealing bool `yaml:"work_stealing"`
}

// GateConfig controls the falsifiability gate and interval level.
type GateConfig struct {
	Threshold  float64 `yaml:"threshold"`
	Confidence float64 `yaml:"confidence"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *TallyConfig {
	return &TallyConfig{
		Coverage: taxonomy.DefaultCoverageConfig(),
		Partition: PartitionConfig{
			TargetSize: superblock.DefaultTargetSize,
			MaxSize:    superblock.DefaultMaxSize,
		},
		Executor: ExecutorConfig{
			Workers:      0,
			WorkStealing: true,
		},
		Gate: GateConfig{
			Threshold:  falsify.DefaultGatewayThreshold,
			Confidence: DefaultConfidence,
		},
	}
}

// Load reads the config at path over the defaults. An empty path
// loads DefaultFile from the working directory if it exists and
// returns the defaults otherwise.
func Load(path string) (*TallyConfig, error) {
	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			return DefaultConfig(), nil
		}
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*TallyConfig, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and joins all problems found.
func (c *TallyConfig) Validate() error {
	var errs []error
	if _, err := taxonomy.ParseGranularity(string(c.Coverage.Granularity)); err != nil {
		errs = append(errs, err)
	}
	if c.Partition.TargetSize < 1 {
		errs = append(errs, fmt.Errorf("partition.target_size must be >= 1, got %d", c.Partition.TargetSize))
	}
	if c.Partition.MaxSize < c.Partition.TargetSize {
		errs = append(errs, fmt.Errorf("partition.max_size %d is below target_size %d",
			c.Partition.MaxSize, c.Partition.TargetSize))
	}
	if c.Executor.Workers < 0 {
		errs = append(errs, fmt.Errorf("executor.workers must be >= 0, got %d", c.Executor.Workers))
	}
	if c.Gate.Threshold < 0 || c.Gate.Threshold > falsify.MaxFalsifiabilityScore {
		errs = append(errs, fmt.Errorf("gate.threshold must be in [0, %d], got %g",
			falsify.MaxFalsifiabilityScore, c.Gate.Threshold))
	}
	if !(c.Gate.Confidence > 0 && c.Gate.Confidence < 1) {
		errs = append(errs, fmt.Errorf("gate.confidence must be in (0, 1), got %g", c.Gate.Confidence))
	}
	seen := make(map[string]bool, len(c.Hypotheses))
	for i, h := range c.Hypotheses {
		if h.ID != "" && seen[h.ID] {
			errs = append(errs, fmt.Errorf("hypotheses[%d]: duplicate id %q", i, h.ID))
		}
		seen[h.ID] = true
		if _, err := h.Build(); err != nil {
			errs = append(errs, fmt.Errorf("hypotheses[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// CoverageConfig returns the session configuration with the
// granularity normalized.
func (c *TallyConfig) CoverageConfig() taxonomy.CoverageConfig {
	cc := c.Coverage
	if g, err := taxonomy.ParseGranularity(string(cc.Granularity)); err == nil {
		cc.Granularity = g
	}
	return cc
}

// Builder returns the superblock builder for the partition settings.
func (c *TallyConfig) Builder() superblock.Builder {
	return superblock.NewBuilder(c.Partition.TargetSize, c.Partition.MaxSize)
}

// Workers resolves the worker count: 1 when parallel execution is
// off, GOMAXPROCS when unset.
func (c *TallyConfig) Workers() int {
	if !c.Coverage.Parallel {
		return 1
	}
	if c.Executor.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Executor.Workers
}

// FalsifyGate returns the configured gate.
func (c *TallyConfig) FalsifyGate() falsify.Gate {
	return falsify.NewGate(c.Gate.Threshold)
}

// BuildHypotheses builds every configured hypothesis in order.
func (c *TallyConfig) BuildHypotheses() ([]falsify.Hypothesis, error) {
	out := make([]falsify.Hypothesis, 0, len(c.Hypotheses))
	for i, hc := range c.Hypotheses {
		h, err := hc.Build()
		if err != nil {
			return nil, fmt.Errorf("hypotheses[%d]: %w", i, err)
		}
		out = append(out, h)
	}
	return out, nil
}
