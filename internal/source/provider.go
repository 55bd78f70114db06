// Package source enumerates the candidate unit files of a workspace from
// glob patterns.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// Provider expands Patterns under Root, dropping paths matched by Ignore.
type Provider struct {
	Root     string
	Patterns []string
	Ignore   []string
}

// Files returns absolute matches in pattern order, each pattern's matches
// sorted, with duplicates removed.
func (p *Provider) Files() ([]string, error) {
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", p.Root, err)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range p.Patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(root, pattern)
		}
		matches, err := doublestar.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			if p.ignored(root, m) {
				continue
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func (p *Provider) ignored(root, path string) bool {
	if len(p.Ignore) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return isIgnoredRel(rel, filepath.Base(path), p.Ignore)
}

func normalizePattern(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimSuffix(p, "/")
	p = strings.TrimSuffix(p, string(os.PathSeparator))
	return filepath.ToSlash(p)
}

// isIgnoredRel reports whether a root-relative path is ignored. Glob
// patterns match the whole relative path or the base name; plain names
// match a leading path or any single segment.
func isIgnoredRel(rel, name string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, raw := range patterns {
		pat := normalizePattern(raw)
		if pat == "" {
			continue
		}
		if strings.ContainsAny(pat, "*?[]{") {
			if ok, _ := doublestar.Match(pat, rel); ok {
				return true
			}
			if ok, _ := doublestar.Match(pat, name); ok && !strings.Contains(pat, "/") {
				return true
			}
			if dir, ok := strings.CutSuffix(pat, "/*"); ok && strings.HasPrefix(rel, dir+"/") {
				return true
			}
			continue
		}
		if name == pat || rel == pat || strings.HasPrefix(rel, pat+"/") {
			return true
		}
		if !strings.Contains(pat, "/") {
			for _, seg := range strings.Split(rel, "/") {
				if seg == pat {
					return true
				}
			}
		}
	}
	return false
}
