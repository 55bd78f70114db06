// Package goscript executes hotload units: plain Go source files run by the
// yaegi interpreter. Each load gets a fresh interpreter so a reload never
// sees stale definitions, and the unit's exported top-level names are
// defined into the module runtime as pkg.Name symbols.
//
// A unit may pull in other units with a directive comment:
//
//	//hotload:require ../lib/money.go
//
// Required units load first. Their exported functions are importable as
// "hotload/<pkg>".
package goscript

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"hotload/internal/logging"
	"hotload/internal/module"
)

const (
	// RequireDirective marks a sub-unit dependency.
	RequireDirective = "//hotload:require"
	// UnitImportPrefix is the import path root for loaded units.
	UnitImportPrefix = "hotload/"
)

// ImportError reports imports outside the allow-list.
type ImportError struct {
	Path      string
	Forbidden []string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s: forbidden imports %v", e.Path, e.Forbidden)
}

// Loader runs units through yaegi.
type Loader struct {
	allowed  map[string]bool
	allowAll bool
}

var _ module.Loader = (*Loader)(nil)

// NewLoader creates a loader permitting the given stdlib import paths. An
// empty list permits every package yaegi's stdlib exposes.
func NewLoader(allowed []string) *Loader {
	l := &Loader{allowed: make(map[string]bool, len(allowed)), allowAll: len(allowed) == 0}
	for _, pkg := range allowed {
		l.allowed[pkg] = true
	}
	return l
}

// Load parses, validates, and evaluates the unit at path.
func (l *Loader) Load(ctx context.Context, rt *module.Runtime, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", path, r)
		}
	}()

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if err := l.validateImports(path, file); err != nil {
		return err
	}

	for _, sub := range requires(path, file) {
		if err := rt.Require(ctx, sub); err != nil {
			return fmt.Errorf("require %s: %w", sub, err)
		}
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("load stdlib: %w", err)
	}
	if exports := unitExports(rt); len(exports) > 0 {
		if err := i.Use(exports); err != nil {
			return fmt.Errorf("load unit exports: %w", err)
		}
	}
	if _, err := i.EvalWithContext(ctx, string(src)); err != nil {
		return fmt.Errorf("eval: %w", err)
	}

	pkg := file.Name.Name
	defs, err := collect(i, pkg, path, file)
	if err != nil {
		return err
	}
	for _, def := range defs {
		rt.Symbols.Define(def)
	}
	logging.LoaderDebug("evaluated %s: %d symbols in package %s", path, len(defs), pkg)
	return nil
}

func (l *Loader) validateImports(path string, file *ast.File) error {
	var forbidden []string
	for _, spec := range file.Imports {
		pkg, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			pkg = spec.Path.Value
		}
		if l.allowAll || l.allowed[pkg] || strings.HasPrefix(pkg, UnitImportPrefix) {
			continue
		}
		forbidden = append(forbidden, pkg)
	}
	if len(forbidden) > 0 {
		return &ImportError{Path: path, Forbidden: forbidden}
	}
	return nil
}

// requires returns the directive targets, resolved against the unit's
// directory, in source order.
func requires(path string, file *ast.File) []string {
	dir := filepath.Dir(path)
	var out []string
	for _, group := range file.Comments {
		for _, c := range group.List {
			rest, ok := strings.CutPrefix(c.Text, RequireDirective)
			if !ok {
				continue
			}
			target := strings.TrimSpace(rest)
			if target == "" {
				continue
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(dir, target)
			}
			out = append(out, filepath.Clean(target))
		}
	}
	return out
}

// collect resolves every exported top-level name of the unit.
func collect(i *interp.Interpreter, pkg, path string, file *ast.File) ([]module.Definition, error) {
	var defs []module.Definition
	add := func(name string, kind module.Kind) error {
		if !ast.IsExported(name) {
			return nil
		}
		def := module.Definition{ID: module.Join(pkg, name), Kind: kind, Source: path}
		if kind != module.KindType {
			v, err := i.Eval(pkg + "." + name)
			if err != nil {
				return fmt.Errorf("resolve %s.%s: %w", pkg, name, err)
			}
			def.Value = v
		}
		defs = append(defs, def)
		return nil
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv != nil {
				continue
			}
			if err := add(d.Name.Name, module.KindFunc); err != nil {
				return nil, err
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if err := add(s.Name.Name, module.KindType); err != nil {
						return nil, err
					}
				case *ast.ValueSpec:
					kind := module.KindVar
					if d.Tok == token.CONST {
						kind = module.KindConst
					}
					for _, n := range s.Names {
						if err := add(n.Name, kind); err != nil {
							return nil, err
						}
					}
				}
			}
		}
	}
	return defs, nil
}

// unitExports exposes the functions already loaded into rt so a unit can
// import them as hotload/<pkg>.
func unitExports(rt *module.Runtime) interp.Exports {
	byPkg := make(map[string]map[string]reflect.Value)
	ids := rt.Symbols.Symbols().Sorted()
	for _, id := range ids {
		def, ok := rt.Symbols.Lookup(id)
		if !ok || def.Kind != module.KindFunc || !def.Value.IsValid() {
			continue
		}
		owner := string(id.Owner())
		if owner == "" || strings.Contains(owner, module.Separator) {
			continue
		}
		if byPkg[owner] == nil {
			byPkg[owner] = make(map[string]reflect.Value)
		}
		byPkg[owner][id.Name()] = def.Value
	}

	exports := make(interp.Exports, len(byPkg))
	pkgs := make([]string, 0, len(byPkg))
	for pkg := range byPkg {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	for _, pkg := range pkgs {
		exports[UnitImportPrefix+pkg+"/"+pkg] = byPkg[pkg]
	}
	return exports
}
