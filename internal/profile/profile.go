// Package profile converts a Go coverage profile into a run plan.
//
// Each profile block becomes a BlockID and each enclosing function a
// FunctionID, so coverage from an ordinary go test run can be checked by
// the same session, gate and hypothesis pipeline as instrumented
// modules. Block cost weights are NumStmt times the enclosing function's
// cyclomatic complexity.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/tools/cover"

	"github.com/unbound-force/tally/internal/scenario"
	"github.com/unbound-force/tally/internal/taxonomy"
)

// DefaultTestName names the single test produced from a profile.
const DefaultTestName = "go test"

// Options configures profile conversion.
type Options struct {
	// ModuleDir is the root of the Go module the profile was produced
	// in. Empty means the working directory.
	ModuleDir string

	// IgnoreGenerated drops files carrying a "Code generated ... DO
	// NOT EDIT." header.
	IgnoreGenerated bool

	// Name is the plan name. Empty uses the profile's base name.
	Name string

	// TestName overrides DefaultTestName.
	TestName string
}

// Block maps one profile block to its BlockID.
type Block struct {
	ID        taxonomy.BlockID `json:"id"`
	File      string           `json:"file"`
	Function  string           `json:"function"`
	StartLine int              `json:"start_line"`
	StartCol  int              `json:"start_col"`
	EndLine   int              `json:"end_line"`
	EndCol    int              `json:"end_col"`
	NumStmt   int              `json:"num_stmt"`
	Count     int              `json:"count"`
}

// Function is one function discovered in the profiled sources.
type Function struct {
	Name       string             `json:"name"`
	File       string             `json:"file"`
	Line       int                `json:"line"`
	Complexity int                `json:"complexity"`
	Blocks     []taxonomy.BlockID `json:"blocks"`
}

// Result is a converted profile.
type Result struct {
	Plan      *scenario.Plan
	Mode      string
	Blocks    []Block
	Functions []Function
	Skipped   []string
}

// Load reads the coverage profile at path and converts it.
func Load(path string, opts Options) (*Result, error) {
	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return nil, fmt.Errorf("parsing coverage profile %s: %w", path, err)
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(path)
	}
	return Convert(profiles, opts)
}

// Convert builds a plan from parsed profiles. Files are visited in
// profile order, functions in source order and blocks in position
// order, so ids are stable for a given profile.
func Convert(profiles []*cover.Profile, opts Options) (*Result, error) {
	moduleDir := opts.ModuleDir
	if moduleDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		moduleDir = wd
	}
	testName := opts.TestName
	if testName == "" {
		testName = DefaultTestName
	}

	res := &Result{}
	plan := &scenario.Plan{Name: opts.Name}
	test := scenario.Test{Name: testName, Counts: make(map[taxonomy.BlockID]uint64)}
	next := taxonomy.BlockID(0)

	for _, p := range profiles {
		if res.Mode == "" {
			res.Mode = p.Mode
		}
		filePath := resolveFilePath(p.FileName, moduleDir)
		if filePath != "" && opts.IgnoreGenerated && isGeneratedFile(filePath) {
			res.Skipped = append(res.Skipped, p.FileName)
			continue
		}

		var src *sourceFile
		if filePath != "" {
			if sf, err := parseSource(filePath); err == nil {
				src = sf
			}
		}

		// One group per function plus a trailing group for blocks no
		// function encloses (or every block when the source is
		// unavailable).
		var funcs []funcExtent
		if src != nil {
			funcs = src.funcs
		}
		groups := make([][]cover.ProfileBlock, len(funcs)+1)
		for _, b := range p.Blocks {
			fi := owningFunc(funcs, b)
			groups[fi] = append(groups[fi], b)
		}

		for fi, blocks := range groups {
			if len(blocks) == 0 {
				continue
			}
			fn := Function{Name: p.FileName, File: p.FileName, Complexity: 1}
			if fi < len(funcs) {
				fn.Name = src.pkgName + "." + funcs[fi].name
				fn.File = filePath
				fn.Line = funcs[fi].startLine
				fn.Complexity = funcs[fi].complexity
			}

			pf := scenario.Function{
				Name:    fn.Name,
				Weights: make(map[taxonomy.BlockID]float64, len(blocks)),
			}
			for _, b := range blocks {
				id := next
				next++
				fn.Blocks = append(fn.Blocks, id)
				pf.BlockIDs = append(pf.BlockIDs, id)
				pf.Weights[id] = float64(b.NumStmt * fn.Complexity)
				if b.Count > 0 {
					test.Counts[id] = uint64(b.Count)
				}
				res.Blocks = append(res.Blocks, Block{
					ID:        id,
					File:      p.FileName,
					Function:  fn.Name,
					StartLine: b.StartLine,
					StartCol:  b.StartCol,
					EndLine:   b.EndLine,
					EndCol:    b.EndCol,
					NumStmt:   b.NumStmt,
					Count:     b.Count,
				})
			}
			res.Functions = append(res.Functions, fn)
			plan.Functions = append(plan.Functions, pf)
		}
	}

	plan.Tests = []scenario.Test{test}
	if err := plan.Resolve(); err != nil {
		return nil, fmt.Errorf("building plan: %w", err)
	}
	res.Plan = plan
	return res, nil
}

// StatementCoverage returns covered and total statements.
func (r *Result) StatementCoverage() (covered, total int) {
	for _, b := range r.Blocks {
		total += b.NumStmt
		if b.Count > 0 {
			covered += b.NumStmt
		}
	}
	return covered, total
}
