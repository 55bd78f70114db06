package module

import (
	"sort"
	"sync"
)

// Space is the global symbol space. It is safe for concurrent use so request
// handlers can resolve symbols while a reload pass rewrites the table.
type Space struct {
	mu   sync.RWMutex
	defs map[SymbolID]Definition
}

// NewSpace creates an empty symbol space.
func NewSpace() *Space {
	return &Space{defs: make(map[SymbolID]Definition)}
}

// Define adds or replaces a definition.
func (s *Space) Define(def Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def
}

// Lookup returns the definition for id.
func (s *Space) Lookup(id SymbolID) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	return def, ok
}

// Remove deletes id and reports whether it existed. Removing a missing
// symbol is a no-op.
func (s *Space) Remove(id SymbolID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return false
	}
	delete(s.defs, id)
	return true
}

// Symbols returns a snapshot of every defined id.
func (s *Space) Symbols() SymbolSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(SymbolSet, len(s.defs))
	for id := range s.defs {
		out[id] = struct{}{}
	}
	return out
}

// DefinedBy returns the ids whose definition came from source, in lexical
// order.
func (s *Space) DefinedBy(source string) []SymbolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SymbolID
	for id, def := range s.defs {
		if def.Source == source {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

// Len returns the number of definitions.
func (s *Space) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.defs)
}

func sortIDs(ids []SymbolID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
