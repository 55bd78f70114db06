package goscript

import (
	"context"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotload/internal/module"
)

var testAllowed = []string{"fmt", "strings"}

func writeUnit(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadDefinesExportedSymbols(t *testing.T) {
	dir := t.TempDir()
	path := writeUnit(t, dir, "greet.go", `package greet

import "strings"

const Version = "1"

var Greeting = "hello"

type Options struct{ Loud bool }

func Hello(name string) string { return strings.ToUpper(Greeting) + " " + name }

func helper() {}
`)
	rt := module.NewRuntime(NewLoader(testAllowed))
	require.NoError(t, rt.Require(context.Background(), path))

	assert.Equal(t, []module.SymbolID{
		"greet.Greeting", "greet.Hello", "greet.Options", "greet.Version",
	}, rt.Symbols.Symbols().Sorted())

	def, ok := rt.Symbols.Lookup("greet.Hello")
	require.True(t, ok)
	assert.Equal(t, module.KindFunc, def.Kind)
	assert.Equal(t, path, def.Source)
	hello, ok := def.Interface().(func(string) string)
	require.True(t, ok)
	assert.Equal(t, "HELLO gopher", hello("gopher"))

	typ, ok := rt.Symbols.Lookup("greet.Options")
	require.True(t, ok)
	assert.Equal(t, module.KindType, typ.Kind)
	assert.Nil(t, typ.Interface())
}

func TestLoadRejectsForbiddenImports(t *testing.T) {
	dir := t.TempDir()
	path := writeUnit(t, dir, "bad.go", `package bad

import (
	"fmt"
	"os/exec"
)

func Run() { fmt.Println(exec.Command("true")) }
`)
	rt := module.NewRuntime(NewLoader(testAllowed))
	err := rt.Require(context.Background(), path)

	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, []string{"os/exec"}, ie.Forbidden)
	assert.Zero(t, rt.Symbols.Len())
}

func TestLoadReportsSyntaxErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeUnit(t, dir, "broken.go", "package broken\n\nfunc Oops( {\n")
	rt := module.NewRuntime(NewLoader(testAllowed))

	err := rt.Require(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse:")
	assert.False(t, rt.Features.Has(path))
}

func TestLoadMissingFile(t *testing.T) {
	rt := module.NewRuntime(NewLoader(testAllowed))
	err := rt.Require(context.Background(), filepath.Join(t.TempDir(), "nope.go"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRequireDirectiveLoadsSubUnits(t *testing.T) {
	dir := t.TempDir()
	money := writeUnit(t, dir, "money.go", `package money

func Cents(dollars int) int { return dollars * 100 }
`)
	shop := writeUnit(t, dir, "shop.go", `//hotload:require money.go

package shop

import "hotload/money"

func Price() int { return money.Cents(3) }
`)
	rt := module.NewRuntime(NewLoader(testAllowed))
	require.NoError(t, rt.Require(context.Background(), shop))

	assert.True(t, rt.Features.Has(money))
	def, ok := rt.Symbols.Lookup("shop.Price")
	require.True(t, ok)
	price, ok := def.Interface().(func() int)
	require.True(t, ok)
	assert.Equal(t, 300, price())
}

func TestRequiresResolvesRelativeToUnit(t *testing.T) {
	src := `//hotload:require ../lib/b.go
//hotload:require
//hotload:require /abs/c.go
package a
`
	path := "/proj/app/a.go"
	file, err := parser.ParseFile(token.NewFileSet(), path, src, parser.ParseComments)
	require.NoError(t, err)

	assert.Equal(t, []string{"/proj/lib/b.go", "/abs/c.go"}, requires(path, file))
}
