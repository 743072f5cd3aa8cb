package testutil

import (
	"io/fs"
	"strings"
	"sync"

	"shelf/internal/library"
)

// FSOp names a Filesystem method for fault injection.
type FSOp string

const (
	OpMkdirAll  FSOp = "MkdirAll"
	OpMkdir     FSOp = "Mkdir"
	OpRename    FSOp = "Rename"
	OpMove      FSOp = "Move"
	OpCopyFile  FSOp = "CopyFile"
	OpRemove    FSOp = "Remove"
	OpRemoveAll FSOp = "RemoveAll"
	OpStat      FSOp = "Stat"
	OpReadDir   FSOp = "ReadDir"
	OpScan      FSOp = "Scan"
	OpDetect    FSOp = "DetectType"
)

type intercept struct {
	match string
	fn    func(path string) error
}

// FaultyFilesystem wraps a real library.Filesystem and lets tests replace
// individual calls with failures. It also counts calls per operation.
type FaultyFilesystem struct {
	library.Filesystem

	mu         sync.Mutex
	intercepts map[FSOp][]intercept
	calls      map[FSOp]int
}

// NewFaultyFilesystem wraps inner. With no faults registered it behaves exactly like inner.
func NewFaultyFilesystem(inner library.Filesystem) *FaultyFilesystem {
	return &FaultyFilesystem{
		Filesystem: inner,
		intercepts: make(map[FSOp][]intercept),
		calls:      make(map[FSOp]int),
	}
}

// Fail makes calls of op whose path contains match return err.
// An empty match applies to every path.
func (f *FaultyFilesystem) Fail(op FSOp, match string, err error) {
	f.Intercept(op, match, func(string) error { return err })
}

// Intercept runs fn instead of the real operation for calls of op whose path
// contains match. fn may perform part of the work itself before failing.
func (f *FaultyFilesystem) Intercept(op FSOp, match string, fn func(path string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intercepts[op] = append(f.intercepts[op], intercept{match: match, fn: fn})
}

// Reset removes every registered fault and clears the call counts.
func (f *FaultyFilesystem) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intercepts = make(map[FSOp][]intercept)
	f.calls = make(map[FSOp]int)
}

// Calls returns how many times op was invoked.
func (f *FaultyFilesystem) Calls(op FSOp) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// fault records the call and returns the intercept for it, if any.
func (f *FaultyFilesystem) fault(op FSOp, path string) func(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	for _, ic := range f.intercepts[op] {
		if strings.Contains(path, ic.match) {
			return ic.fn
		}
	}
	return nil
}

func (f *FaultyFilesystem) MkdirAll(path string) error {
	if fn := f.fault(OpMkdirAll, path); fn != nil {
		return fn(path)
	}
	return f.Filesystem.MkdirAll(path)
}

func (f *FaultyFilesystem) Mkdir(path string) error {
	if fn := f.fault(OpMkdir, path); fn != nil {
		return fn(path)
	}
	return f.Filesystem.Mkdir(path)
}

func (f *FaultyFilesystem) Rename(oldPath, newPath string) error {
	if fn := f.fault(OpRename, oldPath); fn != nil {
		return fn(oldPath)
	}
	return f.Filesystem.Rename(oldPath, newPath)
}

func (f *FaultyFilesystem) Move(src, dst string) error {
	if fn := f.fault(OpMove, src); fn != nil {
		return fn(src)
	}
	return f.Filesystem.Move(src, dst)
}

func (f *FaultyFilesystem) CopyFile(src, dst string) (int64, error) {
	if fn := f.fault(OpCopyFile, src); fn != nil {
		return 0, fn(src)
	}
	return f.Filesystem.CopyFile(src, dst)
}

func (f *FaultyFilesystem) Remove(path string) error {
	if fn := f.fault(OpRemove, path); fn != nil {
		return fn(path)
	}
	return f.Filesystem.Remove(path)
}

func (f *FaultyFilesystem) RemoveAll(path string) error {
	if fn := f.fault(OpRemoveAll, path); fn != nil {
		return fn(path)
	}
	return f.Filesystem.RemoveAll(path)
}

func (f *FaultyFilesystem) Stat(path string) (fs.FileInfo, error) {
	if fn := f.fault(OpStat, path); fn != nil {
		return nil, fn(path)
	}
	return f.Filesystem.Stat(path)
}

func (f *FaultyFilesystem) ReadDir(path string) ([]fs.DirEntry, error) {
	if fn := f.fault(OpReadDir, path); fn != nil {
		return nil, fn(path)
	}
	return f.Filesystem.ReadDir(path)
}

func (f *FaultyFilesystem) Scan(root string, skip func(string, error)) ([]library.ScanEntry, error) {
	if fn := f.fault(OpScan, root); fn != nil {
		return nil, fn(root)
	}
	return f.Filesystem.Scan(root, skip)
}

func (f *FaultyFilesystem) DetectType(path string) (string, error) {
	if fn := f.fault(OpDetect, path); fn != nil {
		return "", fn(path)
	}
	return f.Filesystem.DetectType(path)
}

// Compile-time check
var _ library.Filesystem = (*FaultyFilesystem)(nil)
