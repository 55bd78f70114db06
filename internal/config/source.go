package config

// DefaultIgnorePatterns returns directories skipped while expanding roots.
func DefaultIgnorePatterns() []string {
	return []string{
		".git",
		".hotload",
		"node_modules",
		"vendor",
		"testdata",
		"dist",
		"build",
		".cache",
	}
}

// DefaultAllowedPackages lists the stdlib packages units may import.
func DefaultAllowedPackages() []string {
	return []string{
		"bytes",
		"encoding/base64",
		"encoding/json",
		"errors",
		"fmt",
		"html/template",
		"io",
		"math",
		"net/http",
		"path",
		"path/filepath",
		"regexp",
		"sort",
		"strconv",
		"strings",
		"sync",
		"time",
	}
}
