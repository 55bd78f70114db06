package config

// ExclusionConfig exempts paths from scanning and symbols from removal.
type ExclusionConfig struct {
	// Paths are directory prefixes (relative to the workspace or absolute)
	// that are never scanned. Units under them load without symbol tracking.
	Paths []string `yaml:"paths"`
	// Symbols are name prefixes that are never removed on unload.
	Symbols []string `yaml:"symbols"`
	// IncludeSymbols are name prefixes removed even when Symbols matches.
	IncludeSymbols []string `yaml:"include_symbols"`
}
