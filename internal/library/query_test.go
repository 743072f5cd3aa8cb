package library_test

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shelf/internal/library"
	"shelf/internal/testutil"
)

func TestStore_OpenPath(t *testing.T) {
	lib := testutil.NewTestLibrary(t)
	n := mustImport(t, lib, testutil.SourceFile(t, "a.pdf", "a"), library.RootFolderID)

	got, err := lib.OpenPath(n.ID)
	if err != nil {
		t.Fatalf("OpenPath() error = %v", err)
	}
	if got != n.Path {
		t.Errorf("OpenPath() = %q, want %q", got, n.Path)
	}

	if err := os.Remove(n.Path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	_, err = lib.OpenPath(n.ID)
	assertKind(t, err, library.ErrNotFound)

	_, err = lib.OpenPath("nope")
	assertKind(t, err, library.ErrNotFound)
}

func TestStore_Describe(t *testing.T) {
	lib := testutil.NewTestLibrary(t)
	books := mustCreateFolder(t, lib, "Books", library.RootFolderID)
	n := mustImport(t, lib, testutil.SourceFile(t, "doc.pdf", "%PDF-1.7\n"), books)

	d, err := lib.Describe(n.ID)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if d.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q, want application/pdf", d.ContentType)
	}
	if d.Location != "Home > Books" {
		t.Errorf("Location = %q", d.Location)
	}
	if d.Name != "doc.pdf" {
		t.Errorf("Name = %q", d.Name)
	}

	lib.FS.Fail(testutil.OpDetect, "", errors.New("unreadable"))
	d, err = lib.Describe(n.ID)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if d.ContentType != "" {
		t.Errorf("ContentType = %q, want empty when detection fails", d.ContentType)
	}

	_, err = lib.Describe("nope")
	assertKind(t, err, library.ErrNotFound)
}

func TestStore_FavoritesAndThumbnails(t *testing.T) {
	lib := testutil.NewTestLibrary(t)
	a := mustImport(t, lib, testutil.SourceFile(t, "b.pdf", "b"), library.RootFolderID)
	b := mustImport(t, lib, testutil.SourceFile(t, "a.pdf", "a"), library.RootFolderID)
	mustImport(t, lib, testutil.SourceFile(t, "c.pdf", "c"), library.RootFolderID)

	for _, id := range []library.FileID{a.ID, b.ID} {
		if err := lib.SetFavorite(id, true); err != nil {
			t.Fatalf("SetFavorite() error = %v", err)
		}
	}
	favs := lib.Favorites()
	if len(favs) != 2 || favs[0].Name != "a.pdf" || favs[1].Name != "b.pdf" {
		t.Errorf("Favorites() = %+v", favs)
	}
	if err := lib.SetFavorite(a.ID, false); err != nil {
		t.Fatalf("SetFavorite() error = %v", err)
	}
	if favs := lib.Favorites(); len(favs) != 1 {
		t.Errorf("Favorites() after unset = %+v", favs)
	}
	assertKind(t, lib.SetFavorite("nope", true), library.ErrNotFound)

	if err := lib.SetThumbnail(b.ID, "/thumbs/a.png"); err != nil {
		t.Fatalf("SetThumbnail() error = %v", err)
	}
	got, _ := lib.File(b.ID)
	if !got.HasThumbnail() || got.ThumbnailPath != "/thumbs/a.png" {
		t.Errorf("thumbnail = %q", got.ThumbnailPath)
	}
	assertKind(t, lib.SetThumbnail("nope", "x"), library.ErrNotFound)

	// Favorites live in memory only.
	if err := lib.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if favs := lib.Favorites(); len(favs) != 0 {
		t.Errorf("Favorites() after reload = %+v", favs)
	}
}

func TestStore_Navigation(t *testing.T) {
	lib := testutil.NewTestLibrary(t, library.WithRootLabel("Library"))
	books := mustCreateFolder(t, lib, "Books", library.RootFolderID)
	fiction := mustCreateFolder(t, lib, "Fiction", books)

	if p, err := lib.Parent(fiction); err != nil || p != books {
		t.Errorf("Parent(fiction) = %q, %v", p, err)
	}
	if p, err := lib.Parent(books); err != nil || p != library.RootFolderID {
		t.Errorf("Parent(books) = %q, %v", p, err)
	}
	_, err := lib.Parent("nope")
	assertKind(t, err, library.ErrNotFound)

	if got := lib.LogicalPath(fiction); got != "Library > Books > Fiction" {
		t.Errorf("LogicalPath() = %q", got)
	}
	if got := lib.RelativePath(fiction); got != "Books/Fiction" {
		t.Errorf("RelativePath() = %q", got)
	}
	if got, _ := lib.PhysicalPath(fiction); got != filepath.Join(lib.Dir, "Books", "Fiction") {
		t.Errorf("PhysicalPath() = %q", got)
	}
	if n, _ := lib.CountEntries(books); n != 1 {
		t.Errorf("CountEntries(books) = %d", n)
	}
	_, err = lib.LookupFolder("Books/Nope")
	assertKind(t, err, library.ErrNotFound)
	_, err = lib.LookupFile("Books/none.pdf")
	assertKind(t, err, library.ErrNotFound)
}

func TestStore_Search(t *testing.T) {
	lib := testutil.NewTestLibrary(t)
	books := mustCreateFolder(t, lib, "Books", library.RootFolderID)
	history := mustCreateFolder(t, lib, "History of Rome", books)
	mustImport(t, lib, testutil.SourceFile(t, "rome.pdf", "x"), history)
	mustImport(t, lib, testutil.SourceFile(t, "ROMEO.epub", "x"), library.RootFolderID)
	mustImport(t, lib, testutil.SourceFile(t, "other.txt", "x"), books)

	tests := []struct {
		name    string
		query   string
		opts    library.SearchOptions
		folders int
		files   int
	}{
		{"recursive case-insensitive", "rome", library.SearchOptions{Recursive: true}, 1, 2},
		{"case-sensitive", "rome", library.SearchOptions{Recursive: true, CaseSensitive: true}, 0, 1},
		{"direct children only", "rome", library.SearchOptions{}, 0, 1},
		{"within a folder", "rome", library.SearchOptions{Within: books, Recursive: true}, 1, 1},
		{"no match", "zzz", library.SearchOptions{Recursive: true}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := lib.Search(tt.query, tt.opts)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(res.Folders) != tt.folders || len(res.Files) != tt.files {
				t.Errorf("Search(%q) = %d folders, %d files; want %d, %d",
					tt.query, len(res.Folders), len(res.Files), tt.folders, tt.files)
			}
		})
	}

	_, err := lib.Search("x", library.SearchOptions{Within: "nope"})
	assertKind(t, err, library.ErrNotFound)
}

func TestSortFiles(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	files := func() []library.FileNode {
		return []library.FileNode{
			{Name: "b", Size: 10, ModifiedAt: base.Add(2 * time.Hour)},
			{Name: "a", Size: 30, ModifiedAt: base},
			{Name: "c", Size: 20, ModifiedAt: base.Add(time.Hour)},
		}
	}

	tests := []struct {
		order library.SortOrder
		want  string
	}{
		{library.SortNameAsc, "abc"},
		{library.SortNameDesc, "cba"},
		{library.SortNewest, "bca"},
		{library.SortOldest, "acb"},
		{library.SortSize, "acb"},
	}
	for _, tt := range tests {
		fs := files()
		library.SortFiles(fs, tt.order)
		got := fs[0].Name + fs[1].Name + fs[2].Name
		if got != tt.want {
			t.Errorf("SortFiles(%s) = %s, want %s", tt.order, got, tt.want)
		}
	}
}

func TestSortFolders(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	folders := []library.FolderNode{
		{Name: "b", CreatedAt: base},
		{Name: "a", CreatedAt: base.Add(time.Hour)},
	}
	library.SortFolders(folders, library.SortOldest)
	if folders[0].Name != "b" {
		t.Errorf("SortFolders(oldest) first = %s, want b", folders[0].Name)
	}
	library.SortFolders(folders, library.SortSize)
	if folders[0].Name != "a" {
		t.Errorf("SortFolders(size) first = %s, want a", folders[0].Name)
	}
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    library.SortOrder
		wantErr bool
	}{
		{"", library.SortNameAsc, false},
		{"name-desc", library.SortNameDesc, false},
		{" Newest ", library.SortNewest, false},
		{"size", library.SortSize, false},
		{"random", "", true},
	}
	for _, tt := range tests {
		got, err := library.ParseSortOrder(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSortOrder(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSortOrder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Random sequences of operations must keep sibling names unique and every
// file path in step with its folder chain, both in memory and after a reload.
func TestStore_RandomOperationsKeepTreeConsistent(t *testing.T) {
	lib := testutil.NewTestLibrary(t)
	rng := rand.New(rand.NewPCG(1, 2))
	srcDir := t.TempDir()
	sources := []string{
		testutil.WriteFile(t, filepath.Join(srcDir, "a.pdf"), "a"),
		testutil.WriteFile(t, filepath.Join(srcDir, "b.epub"), "bb"),
		testutil.WriteFile(t, filepath.Join(srcDir, "c"), "ccc"),
	}
	names := []string{"A", "B", "a.pdf", "b.epub", "c", "C (1)"}

	folders := []library.FolderID{library.RootFolderID}
	var files []library.FileID
	pickFolder := func() library.FolderID { return folders[rng.IntN(len(folders))] }

	for step := 0; step < 300; step++ {
		switch rng.IntN(7) {
		case 0:
			if id, err := lib.CreateFolder(names[rng.IntN(len(names))], pickFolder()); err == nil {
				folders = append(folders, id)
			}
		case 1:
			if len(folders) > 1 {
				lib.RenameFolder(folders[1+rng.IntN(len(folders)-1)], names[rng.IntN(len(names))])
			}
		case 2, 3:
			if id, err := lib.ImportFile(sources[rng.IntN(len(sources))], pickFolder()); err == nil {
				files = append(files, id)
			}
		case 4:
			if len(files) > 0 {
				lib.RenameFile(files[rng.IntN(len(files))], names[rng.IntN(len(names))])
			}
		case 5:
			if len(files) > 0 {
				lib.MoveFile(files[rng.IntN(len(files))], pickFolder())
			}
		case 6:
			if rng.IntN(4) == 0 && len(folders) > 1 {
				lib.DeleteFolder(folders[1+rng.IntN(len(folders)-1)])
			} else if len(files) > 0 {
				lib.DeleteFile(files[rng.IntN(len(files))])
			}
		}
	}

	assertNoDangling(t, lib)
	for _, f := range lib.Files() {
		assertExists(t, f.Path)
	}

	before := lib.Stats()
	reloaded := testutil.LoadTestLibrary(t, lib.Dir, nil)
	if after := reloaded.Stats(); after != before {
		t.Errorf("reload Stats() = %+v, want %+v", after, before)
	}
	assertNoDangling(t, reloaded)
}

func TestStore_ConcurrentReadsDuringImport(t *testing.T) {
	lib := testutil.NewTestLibrary(t)
	srcDir := t.TempDir()
	var sources []string
	for _, n := range []string{"1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf"} {
		sources = append(sources, testutil.WriteFile(t, filepath.Join(srcDir, n), n))
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				lib.ChildFiles(library.RootFolderID)
				lib.Stats()
			}
		}
	}()

	res, err := lib.ImportFiles(sources, library.RootFolderID, nil)
	close(done)
	wg.Wait()
	if err != nil {
		t.Fatalf("ImportFiles() error = %v", err)
	}
	if res.Files != 5 {
		t.Errorf("Files = %d, want 5", res.Files)
	}
}
