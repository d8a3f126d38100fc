package profile

import (
	"bufio"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fzipp/gocyclo"
	"golang.org/x/tools/cover"
)

// sourceFile is a parsed Go source file.
type sourceFile struct {
	pkgName string
	funcs   []funcExtent
}

// funcExtent describes a function's source position and complexity.
type funcExtent struct {
	name       string
	startLine  int
	startCol   int
	endLine    int
	endCol     int
	complexity int
}

// parseSource parses filePath and returns its function extents in
// source order, each annotated with gocyclo complexity.
func parseSource(filePath string) (*sourceFile, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filePath, nil, 0)
	if err != nil {
		return nil, err
	}

	complexity := make(map[int]int)
	for _, st := range gocyclo.AnalyzeASTFile(f, fset, nil) {
		complexity[st.Pos.Line] = st.Complexity
	}

	sf := &sourceFile{pkgName: f.Name.Name}
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		start := fset.Position(fn.Pos())
		end := fset.Position(fn.End())

		name := fn.Name.Name
		if fn.Recv != nil && fn.Recv.NumFields() > 0 {
			name = "(" + recvTypeString(fn.Recv.List[0].Type) + ")." + name
		}
		c := complexity[start.Line]
		if c < 1 {
			c = 1
		}
		sf.funcs = append(sf.funcs, funcExtent{
			name:       name,
			startLine:  start.Line,
			startCol:   start.Column,
			endLine:    end.Line,
			endCol:     end.Column,
			complexity: c,
		})
	}
	return sf, nil
}

// recvTypeString extracts the receiver type as a string.
func recvTypeString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return "*" + recvTypeString(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return recvTypeString(t.X) + "[" + recvTypeString(t.Index) + "]"
	default:
		return "?"
	}
}

// owningFunc returns the index of the first function whose extent
// overlaps b, or len(funcs) when none does.
func owningFunc(funcs []funcExtent, b cover.ProfileBlock) int {
	for i, fn := range funcs {
		if b.StartLine > fn.endLine || (b.StartLine == fn.endLine && b.StartCol >= fn.endCol) {
			continue
		}
		if b.EndLine < fn.startLine || (b.EndLine == fn.startLine && b.EndCol <= fn.startCol) {
			continue
		}
		return i
	}
	return len(funcs)
}

// resolveFilePath maps a profile file name, either absolute or
// import-path relative, to a file on disk. It returns "" when the
// file cannot be found.
func resolveFilePath(profileName string, moduleDir string) string {
	if filepath.IsAbs(profileName) {
		if _, err := os.Stat(profileName); err == nil {
			return profileName
		}
	}

	modulePath := readModulePath(moduleDir)
	if modulePath == "" {
		return ""
	}
	if rel, ok := strings.CutPrefix(profileName, modulePath+"/"); ok {
		p := filepath.Join(moduleDir, rel)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// readModulePath reads the module path from go.mod in dir.
func readModulePath(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module"))
		}
	}
	return ""
}

var generatedRegexp = regexp.MustCompile(`^// Code generated .* DO NOT EDIT\.$`)

// isGeneratedFile reports whether path has a generated-code header
// before its package clause.
func isGeneratedFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		trimmed := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(trimmed, "package ") {
			return false
		}
		if generatedRegexp.MatchString(trimmed) {
			return true
		}
	}
	return false
}
