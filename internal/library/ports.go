package library

import (
	"io/fs"
	"time"
)

// Logger is the structured logging surface the store writes to.
// Arguments after msg are alternating key/value pairs, as with log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Filesystem performs the physical side of every store operation.
// All paths are absolute.
type Filesystem interface {
	// MkdirAll creates path and any missing parents.
	MkdirAll(path string) error

	// Mkdir creates a single directory. It fails if path already exists.
	Mkdir(path string) error

	// Rename renames oldPath to newPath within the same parent directory.
	Rename(oldPath, newPath string) error

	// Move relocates a file, falling back to copy and remove when a plain
	// rename is not possible (e.g. across devices).
	Move(src, dst string) error

	// CopyFile copies the regular file src to dst and returns the bytes written.
	// dst must not exist; a partially written dst is never left behind.
	CopyFile(src, dst string) (int64, error)

	// Remove deletes a single file.
	Remove(path string) error

	// RemoveAll deletes path and everything below it.
	RemoveAll(path string) error

	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)

	// ReadDir lists the entries of a directory.
	ReadDir(path string) ([]fs.DirEntry, error)

	// Scan walks root and returns every indexable entry below it, ordered so that
	// a directory always precedes its contents. Entries that cannot be read are
	// reported to skip and left out. An error is returned only if root itself
	// cannot be walked.
	Scan(root string, skip func(path string, err error)) ([]ScanEntry, error)

	// DetectType sniffs the content type of a file.
	DetectType(path string) (string, error)

	// Ignored reports whether Scan would leave out the entry at relPath,
	// given relative to the library root.
	Ignored(relPath string) bool
}

// ScanEntry is one physical entry found by Filesystem.Scan.
type ScanEntry struct {
	RelPath string // relative to the scanned root, OS separators
	IsDir   bool
	Size    int64
	ModTime time.Time
}
