package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"shelf/internal/fs"
	"shelf/internal/library"
)

// TestLibrary bundles a Store over a temporary directory with the stubs it was built from.
type TestLibrary struct {
	*library.Store
	Dir    string
	FS     *FaultyFilesystem
	Logger *TestLogger
	Clock  *StubClock
	IDs    *StubIDGenerator
}

// NewTestLibrary creates and loads a Store rooted in a fresh temp directory.
// The filesystem is real but wrapped so faults can be injected.
func NewTestLibrary(t *testing.T, opts ...library.Option) *TestLibrary {
	t.Helper()
	root := filepath.Join(t.TempDir(), "library")
	return newTestLibrary(t, root, NewStubIDGenerator(), opts...)
}

// LoadTestLibrary creates a Store over an existing root and loads it.
func LoadTestLibrary(t *testing.T, root string, ids *StubIDGenerator, opts ...library.Option) *TestLibrary {
	t.Helper()
	if ids == nil {
		ids = NewStubIDGenerator()
	}
	return newTestLibrary(t, root, ids, opts...)
}

func newTestLibrary(t *testing.T, root string, ids *StubIDGenerator, opts ...library.Option) *TestLibrary {
	t.Helper()
	lib := &TestLibrary{
		Dir:    root,
		FS:     NewFaultyFilesystem(fs.NewOSFilesystem(nil)),
		Logger: NewTestLogger(t),
		Clock:  FixedClock(),
		IDs:    ids,
	}
	lib.Store = library.NewStore(root, lib.FS, lib.Logger, lib.Clock, lib.IDs, opts...)
	if err := lib.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return lib
}

// WriteFile creates a file with content, creating parent directories as needed,
// and returns its path.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// SourceFile writes a file named name with content into a fresh temp directory
// outside any library and returns its path.
func SourceFile(t *testing.T, name, content string) string {
	t.Helper()
	return WriteFile(t, filepath.Join(t.TempDir(), name), content)
}
