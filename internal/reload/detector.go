package reload

import (
	"os"
	"time"

	"hotload/internal/logging"
)

// StatFunc returns file metadata. os.Stat in production; tests count calls.
type StatFunc func(path string) (os.FileInfo, error)

// Status classifies a scanned file.
type Status int

const (
	StatusUnchanged Status = iota
	StatusModified
	StatusNew
)

func (s Status) String() string {
	switch s {
	case StatusModified:
		return "modified"
	case StatusNew:
		return "new"
	default:
		return "unchanged"
	}
}

// Change is one observation from a scan.
type Change struct {
	Path    string
	ModTime time.Time
	Status  Status
}

// IsNew reports whether the file was never committed before.
func (c Change) IsNew() bool { return c.Status == StatusNew }

// Pending reports whether the file needs loading.
func (c Change) Pending() bool { return c.Status != StatusUnchanged }

// ChangeDetector tracks the last committed modification time per file.
type ChangeDetector struct {
	stat   StatFunc
	mtimes map[string]time.Time
}

// NewChangeDetector creates a detector. A nil stat uses os.Stat.
func NewChangeDetector(stat StatFunc) *ChangeDetector {
	if stat == nil {
		stat = os.Stat
	}
	return &ChangeDetector{stat: stat, mtimes: make(map[string]time.Time)}
}

// Scan stats every file exactly once and classifies it. Files that vanished
// or are not regular files are skipped. Scan never updates the table.
func (d *ChangeDetector) Scan(files []string) []Change {
	out := make([]Change, 0, len(files))
	for _, path := range files {
		info, err := d.stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logging.ReloadDebug("stat %s failed, skipping: %v", path, err)
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		out = append(out, d.classify(path, info.ModTime()))
	}
	return out
}

func (d *ChangeDetector) classify(path string, mtime time.Time) Change {
	c := Change{Path: path, ModTime: mtime}
	stored, ok := d.mtimes[path]
	switch {
	case !ok:
		c.Status = StatusNew
	case mtime.After(stored):
		c.Status = StatusModified
	default:
		c.Status = StatusUnchanged
	}
	return c
}

// Changed reports whether mtime is new information for path.
func (d *ChangeDetector) Changed(path string, mtime time.Time) bool {
	return d.classify(path, mtime).Pending()
}

// Record commits mtime as the baseline for path.
func (d *ChangeDetector) Record(path string, mtime time.Time) {
	d.mtimes[path] = mtime
}

// ModTime returns the committed baseline for path.
func (d *ChangeDetector) ModTime(path string) (time.Time, bool) {
	t, ok := d.mtimes[path]
	return t, ok
}

// Tracked returns a copy of the table.
func (d *ChangeDetector) Tracked() map[string]time.Time {
	out := make(map[string]time.Time, len(d.mtimes))
	for k, v := range d.mtimes {
		out[k] = v
	}
	return out
}

// Clear empties the table.
func (d *ChangeDetector) Clear() {
	d.mtimes = make(map[string]time.Time)
}
