package reload

import (
	"os"
	"path/filepath"
	"strings"

	"hotload/internal/module"
)

// ExclusionPolicy exempts path prefixes from scanning and symbol name
// prefixes from removal. It is read-only once built.
type ExclusionPolicy struct {
	paths   []string
	symbols []string
	include []string
}

// NewExclusionPolicy builds a policy. Relative paths resolve against the
// working directory. A path ending in a separator matches as a raw prefix;
// otherwise it matches itself and everything below it.
func NewExclusionPolicy(paths, symbols, include []string) *ExclusionPolicy {
	p := &ExclusionPolicy{
		symbols: nonEmpty(symbols),
		include: nonEmpty(include),
	}
	for _, raw := range nonEmpty(paths) {
		trailing := strings.HasSuffix(raw, "/") || strings.HasSuffix(raw, string(os.PathSeparator))
		abs, err := filepath.Abs(raw)
		if err != nil {
			abs = filepath.Clean(raw)
		}
		if trailing {
			abs += string(os.PathSeparator)
		}
		p.paths = append(p.paths, abs)
	}
	return p
}

// IsPathExcluded reports whether path lies under an excluded prefix.
func (p *ExclusionPolicy) IsPathExcluded(path string) bool {
	if p == nil || path == "" {
		return false
	}
	for _, base := range p.paths {
		if strings.HasSuffix(base, string(os.PathSeparator)) {
			if strings.HasPrefix(path, base) {
				return true
			}
			continue
		}
		if path == base || strings.HasPrefix(path, base+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// IsSymbolRemovable is true unless id matches an excluded prefix and no
// include override.
func (p *ExclusionPolicy) IsSymbolRemovable(id module.SymbolID) bool {
	if p == nil {
		return true
	}
	if !matchesAny(id, p.symbols) {
		return true
	}
	return matchesAny(id, p.include)
}

func matchesAny(id module.SymbolID, prefixes []string) bool {
	for _, prefix := range prefixes {
		if id.HasPrefix(prefix) {
			return true
		}
	}
	return false
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
