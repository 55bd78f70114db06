// Package module is the engine-owned symbol table that loaded units define
// their exported names into. It replaces a reflective language namespace:
// every definition is recorded explicitly with the unit that produced it, so
// unloading a unit means dropping entries from this table.
package module

import (
	"reflect"
	"strings"
)

// Separator splits hierarchical symbol names (pkg.Outer.Inner).
const Separator = "."

// SymbolID names a top-level definition in the global symbol space.
type SymbolID string

// Owner returns the enclosing scope of the symbol, or "" for a root symbol.
func (id SymbolID) Owner() SymbolID {
	i := strings.LastIndex(string(id), Separator)
	if i < 0 {
		return ""
	}
	return id[:i]
}

// Name returns the last segment of the symbol.
func (id SymbolID) Name() string {
	i := strings.LastIndex(string(id), Separator)
	if i < 0 {
		return string(id)
	}
	return string(id[i+len(Separator):])
}

// HasPrefix reports whether the symbol name starts with prefix.
func (id SymbolID) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(id), prefix)
}

func (id SymbolID) String() string { return string(id) }

// Join builds a SymbolID from its segments.
func Join(parts ...string) SymbolID {
	return SymbolID(strings.Join(parts, Separator))
}

// Kind classifies a definition.
type Kind string

const (
	KindFunc  Kind = "func"
	KindVar   Kind = "var"
	KindConst Kind = "const"
	KindType  Kind = "type"
)

// Definition is one entry in the symbol space.
type Definition struct {
	ID     SymbolID
	Kind   Kind
	Source string        // absolute path of the unit that defined it
	Value  reflect.Value // zero for types or unresolved values
}

// Interface returns the definition's value, or nil when it has none.
func (d Definition) Interface() interface{} {
	if !d.Value.IsValid() || !d.Value.CanInterface() {
		return nil
	}
	return d.Value.Interface()
}

// SymbolSet is an unordered set of symbol ids.
type SymbolSet map[SymbolID]struct{}

// NewSymbolSet returns a set holding ids.
func NewSymbolSet(ids ...SymbolID) SymbolSet {
	s := make(SymbolSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s SymbolSet) Has(id SymbolID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s SymbolSet) Add(id SymbolID) { s[id] = struct{}{} }

// Sorted returns the members in lexical order.
func (s SymbolSet) Sorted() []SymbolID {
	out := make([]SymbolID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// Difference returns the members of s that are not in other.
func (s SymbolSet) Difference(other SymbolSet) SymbolSet {
	out := make(SymbolSet)
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}
