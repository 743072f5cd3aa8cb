package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/otiai10/copy"

	"shelf/internal/library"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// OSFilesystem is the real filesystem implementation of library.Filesystem.
// It performs actual filesystem operations using the os package.
type OSFilesystem struct {
	ignore *IgnoreMatcher
}

// NewOSFilesystem creates a filesystem whose Scan leaves out entries matching
// ignorePatterns (in addition to the default patterns).
func NewOSFilesystem(ignorePatterns []string) *OSFilesystem {
	return &OSFilesystem{ignore: NewIgnoreMatcher(ignorePatterns)}
}

// Resolve validates a raw path given on the command line and returns it in
// absolute form. Symlinks and special files are rejected.
func (m *OSFilesystem) Resolve(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return "", fmt.Errorf("symlinks not supported: %s", absPath)
	}
	if mode&(os.ModeDevice|os.ModeNamedPipe|os.ModeSocket) != 0 {
		return "", fmt.Errorf("special files not supported: %s", absPath)
	}
	return absPath, nil
}

// Open opens a file for reading.
func (m *OSFilesystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (m *OSFilesystem) MkdirAll(path string) error {
	return os.MkdirAll(path, dirPerm)
}

func (m *OSFilesystem) Mkdir(path string) error {
	return os.Mkdir(path, dirPerm)
}

// Rename renames oldPath to newPath. It refuses to replace an existing entry,
// except oldPath itself seen through a name differing only in case.
func (m *OSFilesystem) Rename(oldPath, newPath string) error {
	if err := ensureAbsent(newPath); err != nil && !caseAlias(oldPath, newPath) {
		return err
	}
	return os.Rename(oldPath, newPath)
}

// caseAlias reports whether a and b differ only in the case of their last
// element and resolve to the same file, as on case-insensitive filesystems.
func caseAlias(a, b string) bool {
	if filepath.Dir(a) != filepath.Dir(b) || !strings.EqualFold(filepath.Base(a), filepath.Base(b)) {
		return false
	}
	ai, err := os.Lstat(a)
	if err != nil {
		return false
	}
	bi, err := os.Lstat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// Move relocates src to dst. When src and dst are on different devices the
// file is copied and the source removed afterwards.
func (m *OSFilesystem) Move(src, dst string) error {
	if err := ensureAbsent(dst); err != nil {
		return err
	}
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	return moveByCopy(src, dst, os.Remove)
}

// moveByCopy copies src to dst and removes src with removeSrc. If either step
// fails dst is removed again, so src stays the only copy.
func moveByCopy(src, dst string, removeSrc func(string) error) error {
	if err := copy.Copy(src, dst, copy.Options{Sync: true}); err != nil {
		os.Remove(dst)
		return fmt.Errorf("copying across devices: %w", err)
	}
	if err := removeSrc(src); err != nil {
		os.Remove(dst)
		return fmt.Errorf("removing source after copy: %w", err)
	}
	return nil
}

// CopyFile copies src into a temporary file next to dst and renames it into
// place, so dst either appears complete or not at all.
func (m *OSFilesystem) CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	if err := ensureAbsent(dst); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), TempPattern)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, in)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, filePerm)
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing %s: %w", dst, err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return n, nil
}

func (m *OSFilesystem) Remove(path string) error {
	return os.Remove(path)
}

func (m *OSFilesystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (m *OSFilesystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (m *OSFilesystem) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

// Scan walks root concurrently and returns its directories and regular files,
// parents before children. Ignored entries, symlinks and special files are
// left out. Unreadable entries are passed to skip.
func (m *OSFilesystem) Scan(root string, skip func(path string, err error)) ([]library.ScanEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat library root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root is not a directory: %s", root)
	}

	var (
		mu      sync.Mutex
		entries []library.ScanEntry
	)
	report := func(path string, err error) {
		if skip == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		skip(path, err)
	}

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			report(path, err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if m.Ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			report(path, err)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		mu.Lock()
		entries = append(entries, library.ScanEntry{
			RelPath: rel,
			IsDir:   d.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking library: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		di, dj := depth(entries[i].RelPath), depth(entries[j].RelPath)
		if di != dj {
			return di < dj
		}
		return entries[i].RelPath < entries[j].RelPath
	})
	return entries, nil
}

// Ignored reports whether relPath matches an ignore pattern.
func (m *OSFilesystem) Ignored(relPath string) bool {
	return m.ignore.Match(relPath)
}

// DetectType sniffs the MIME type of the file at path from its content.
func (m *OSFilesystem) DetectType(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detecting content type: %w", err)
	}
	return mtype.String(), nil
}

func depth(rel string) int {
	return strings.Count(rel, string(filepath.Separator))
}

func ensureAbsent(path string) error {
	_, err := os.Lstat(path)
	if err == nil {
		return &fs.PathError{Op: "create", Path: path, Err: fs.ErrExist}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Compile-time check that OSFilesystem implements library.Filesystem interface
var _ library.Filesystem = (*OSFilesystem)(nil)
