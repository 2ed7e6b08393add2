// Package testutil holds the import-layering assertions shared by package
// tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// ModulePath is the import path prefix of every package in this module.
const ModulePath = "ecocart"

// Rule names a forbidden import set and why it is forbidden.
type Rule struct {
	Reason    string
	Forbidden func(importPath string) bool
}

// Within matches imports of the module package rel (relative to the module
// root) and anything beneath it.
func Within(rel string) func(string) bool {
	prefix := ModulePath + "/" + strings.Trim(rel, "/")
	return func(p string) bool {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
}

// AnyOf matches when any predicate matches.
func AnyOf(preds ...func(string) bool) func(string) bool {
	return func(p string) bool {
		for _, pred := range preds {
			if pred(p) {
				return true
			}
		}
		return false
	}
}

// Except narrows pred by excluding the allowed paths.
func Except(pred func(string) bool, allowed ...string) func(string) bool {
	return func(p string) bool {
		for _, a := range allowed {
			if p == a {
				return false
			}
		}
		return pred(p)
	}
}

// AssertImports parses the non-test files in dir and fails on any import a
// rule forbids. Build tags are ignored.
func AssertImports(t testing.TB, dir string, rules ...Rule) {
	t.Helper()
	imports, err := directImports(dir)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, "import", imports, rules)
}

// AssertDeps runs `go list -deps` for pattern and fails on any transitive
// dependency a rule forbids.
func AssertDeps(t testing.TB, pattern string, rules ...Rule) {
	t.Helper()
	out, err := goListDeps(pattern)
	if err != nil {
		t.Fatalf("go list %s: %v\n%s", pattern, err, out)
	}
	var deps []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			deps = append(deps, line)
		}
	}
	report(t, "dependency", deps, rules)
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func directImports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			seen[strings.Trim(imp.Path.Value, `"`)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func report(t fatalLogger, kind string, paths []string, rules []Rule) {
	var viols []string
	for _, r := range rules {
		for _, p := range paths {
			if r.Forbidden(p) {
				viols = append(viols, p+" ("+r.Reason+")")
			}
		}
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden %s detected:\n%s", kind, strings.Join(viols, "\n"))
	}
}
