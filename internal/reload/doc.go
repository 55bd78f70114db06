// Package reload is the incremental hot-reload engine.
//
// A pass visits the project's candidate files once, classifies each as new,
// modified, or unchanged by modification time, and reloads what changed:
//
//   - ChangeDetector owns the path -> last committed mtime table.
//   - Registry records, per top-level file, the symbols and sub-units its
//     load introduced, computed by snapshot-diffing the module runtime.
//   - Transaction loads one file atomically: prepare, execute, then commit
//     or roll back so a failed load never leaves partial definitions behind.
//   - Reloader drives passes, delegates application entry files to their
//     application, and cascades reloads into applications depending on a
//     changed file.
//   - ExclusionPolicy exempts path prefixes from scanning and symbol name
//     prefixes from removal.
//
// The engine has no internal concurrency. Reloader serializes passes behind a
// single coarse lock unless it is configured for a single-threaded host.
package reload
