package library_test

import (
	"path/filepath"
	"testing"

	shelffs "shelf/internal/fs"
	"shelf/internal/library"
	"shelf/internal/testutil"
)

// newIgnoringLibrary loads a store over root whose filesystem ignores patterns
// in addition to the defaults.
func newIgnoringLibrary(t *testing.T, root string, patterns ...string) *library.Store {
	t.Helper()
	s := library.NewStore(root, shelffs.NewOSFilesystem(patterns), testutil.NewTestLogger(t),
		testutil.FixedClock(), testutil.NewStubIDGenerator())
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func TestStore_IgnoredNames(t *testing.T) {
	t.Run("default patterns are rejected and the rest survives a reload", func(t *testing.T) {
		lib := testutil.NewTestLibrary(t)
		books := mustCreateFolder(t, lib, "Books", library.RootFolderID)
		guide := mustImport(t, lib, testutil.SourceFile(t, "guide.pdf", "guide"), books)

		_, err := lib.CreateFolder(".shelfignore", books)
		assertKind(t, err, library.ErrInvalidName)
		_, err = lib.ImportFile(testutil.SourceFile(t, ".shelf-x.tmp", "tmp"), books)
		assertKind(t, err, library.ErrInvalidName)
		_, err = lib.ImportFile(testutil.SourceFile(t, ".shelfignore", "*.pdf"), library.RootFolderID)
		assertKind(t, err, library.ErrInvalidName)
		assertKind(t, lib.RenameFile(guide.ID, ".shelf-guide.tmp"), library.ErrInvalidName)
		assertKind(t, lib.RenameFolder(books, ".shelfignore"), library.ErrInvalidName)

		assertMissing(t, filepath.Join(lib.Dir, ".shelfignore"))
		assertMissing(t, filepath.Join(lib.Dir, "Books", ".shelfignore"))
		assertMissing(t, filepath.Join(lib.Dir, "Books", ".shelf-x.tmp"))
		assertExists(t, guide.Path)

		before := lib.Stats()
		reloaded := testutil.LoadTestLibrary(t, lib.Dir, nil)
		if after := reloaded.Stats(); after != before {
			t.Errorf("Stats() after reload = %+v, before = %+v", after, before)
		}
		if _, err := reloaded.LookupFile("Books/guide.pdf"); err != nil {
			t.Errorf("LookupFile(guide.pdf) after reload error = %v", err)
		}
	})

	t.Run("configured patterns are rejected", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "library")
		s := newIgnoringLibrary(t, root, "*.bak", "Private/*")

		_, err := s.ImportFile(testutil.SourceFile(t, "old.bak", "old"), library.RootFolderID)
		assertKind(t, err, library.ErrInvalidName)
		_, err = s.CreateFolder("Private", library.RootFolderID)
		if err != nil {
			t.Fatalf("CreateFolder(Private) error = %v", err)
		}

		inbox, err := s.CreateFolder("Inbox", library.RootFolderID)
		if err != nil {
			t.Fatalf("CreateFolder(Inbox) error = %v", err)
		}
		id, err := s.ImportFile(testutil.SourceFile(t, "a.pdf", "a"), inbox)
		if err != nil {
			t.Fatalf("ImportFile() error = %v", err)
		}
		private, _ := s.LookupFolder("Private")
		assertKind(t, s.MoveFile(id, private), library.ErrInvalidName)
		assertKind(t, s.RenameFolder(inbox, "Private"), library.ErrNameConflict)

		before := s.Stats()
		after := newIgnoringLibrary(t, root, "*.bak", "Private/*").Stats()
		if after != before {
			t.Errorf("Stats() after reload = %+v, before = %+v", after, before)
		}
	})

	t.Run("renaming a folder checks what lies below it", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "library")
		s := newIgnoringLibrary(t, root, "Hidden/*.pdf")
		inbox, err := s.CreateFolder("Inbox", library.RootFolderID)
		if err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
		if _, err := s.ImportFile(testutil.SourceFile(t, "a.pdf", "a"), inbox); err != nil {
			t.Fatalf("ImportFile() error = %v", err)
		}

		assertKind(t, s.RenameFolder(inbox, "Hidden"), library.ErrInvalidName)
		assertExists(t, filepath.Join(root, "Inbox", "a.pdf"))
		if n, _ := s.Folder(inbox); n.Name != "Inbox" {
			t.Errorf("folder name = %q, want Inbox", n.Name)
		}
	})

	t.Run("directory import skips ignored entries", func(t *testing.T) {
		lib := testutil.NewTestLibrary(t)
		dir := filepath.Join(t.TempDir(), "Scans")
		testutil.WriteFile(t, filepath.Join(dir, "a.pdf"), "a")
		testutil.WriteFile(t, filepath.Join(dir, ".shelfignore"), "*.pdf")
		testutil.WriteFile(t, filepath.Join(dir, ".shelf-1.tmp"), "tmp")
		testutil.WriteFile(t, filepath.Join(dir, "sub", ".shelfignore"), "*")

		res, err := lib.ImportDirectory(dir, library.RootFolderID, library.ImportOptions{}, nil)
		if err != nil {
			t.Fatalf("ImportDirectory() error = %v", err)
		}
		if res.Files != 1 || res.Folders != 2 || res.Skipped != 3 || res.Failed() {
			t.Errorf("result = %+v", res)
		}
		assertMissing(t, filepath.Join(lib.Dir, "Scans", ".shelfignore"))

		before := lib.Stats()
		if after := testutil.LoadTestLibrary(t, lib.Dir, nil).Stats(); after != before {
			t.Errorf("Stats() after reload = %+v, before = %+v", after, before)
		}
	})
}
