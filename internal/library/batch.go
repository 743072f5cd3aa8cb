package library

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ImportProgress is reported once per file after it has been imported or has failed.
type ImportProgress struct {
	Index  int // 1-based
	Total  int
	Source string
	FileID FileID // empty on failure
	Name   string // name given in the library, empty on failure
	Err    error
}

// ProgressFunc receives import progress. It is never called with the store lock held.
type ProgressFunc func(ImportProgress)

// ImportOptions restricts a directory import.
type ImportOptions struct {
	// Extensions lists the lower-case extensions, without the dot, that are
	// imported. Other files are skipped. Empty means every file.
	Extensions []string
}

func (o ImportOptions) accepts(name string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := Extension(name)
	for _, e := range o.Extensions {
		if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
			return true
		}
	}
	return false
}

// ImportResult counts the outcome of a batch import. Individual failures do not
// stop the batch; they are counted and kept in Errors.
type ImportResult struct {
	Folder        FolderID // folder created by ImportDirectory
	Files         int
	Folders       int
	FailedFiles   int
	FailedFolders int
	Skipped       int
	Errors        []error
}

// Failed reports whether any entry failed.
func (r ImportResult) Failed() bool {
	return r.FailedFiles > 0 || r.FailedFolders > 0
}

func (r *ImportResult) fileDone(err error) {
	if err != nil {
		r.FailedFiles++
		r.Errors = append(r.Errors, err)
		return
	}
	r.Files++
}

func (r *ImportResult) folderDone(err error) {
	if err != nil {
		r.FailedFolders++
		r.Errors = append(r.Errors, err)
		return
	}
	r.Folders++
}

// ImportFiles imports each source into folderID in order. The store lock is
// taken per file, so queries can run between files.
func (s *Store) ImportFiles(sources []string, folderID FolderID, progress ProgressFunc) (ImportResult, error) {
	if _, err := s.ChildFolders(folderID); err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	s.importEach(sources, folderID, progress, &res)
	s.logger.Info("batch import finished", "folder_id", string(folderID),
		"files", res.Files, "failed", res.FailedFiles)
	return res, nil
}

func (s *Store) importEach(sources []string, folderID FolderID, progress ProgressFunc, res *ImportResult) {
	for i, src := range sources {
		s.mu.Lock()
		n, err := s.importFile(src, folderID)
		s.mu.Unlock()

		res.fileDone(err)
		report(progress, ImportProgress{Index: i + 1, Total: len(sources), Source: src, FileID: n.ID, Name: n.Name, Err: err})
	}
}

// FileType routes files with one of its extensions into a folder of its own
// directly below the root.
type FileType struct {
	Name       string
	Folder     string
	Extensions []string // lower-case, without the dot
}

// FileTypes are the types known to ImportByType.
var FileTypes = []FileType{
	{Name: "pdf", Folder: "PDF Documents", Extensions: []string{"pdf"}},
	{Name: "epub", Folder: "E-books", Extensions: []string{"epub"}},
	{Name: "images", Folder: "Images", Extensions: []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp"}},
}

// LookupFileType finds a FileType by name, ignoring case.
func LookupFileType(name string) (FileType, bool) {
	for _, ft := range FileTypes {
		if strings.EqualFold(ft.Name, name) {
			return ft, true
		}
	}
	return FileType{}, false
}

// ImportByType imports the sources that carry one of ft's extensions into the
// root-level folder ft.Folder, creating it if needed. Other sources are counted
// as skipped. The returned error is non-nil only when the folder cannot be
// found or created.
func (s *Store) ImportByType(sources []string, ft FileType, progress ProgressFunc) (ImportResult, error) {
	folderID, err := s.typeFolder(ft)
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Folder: folderID}
	opts := ImportOptions{Extensions: ft.Extensions}
	var accepted []string
	for _, src := range sources {
		if !opts.accepts(filepath.Base(src)) {
			res.Skipped++
			s.logger.Debug("skipping file of another type", "path", src, "type", ft.Name)
			continue
		}
		accepted = append(accepted, src)
	}

	s.importEach(accepted, folderID, progress, &res)
	s.logger.Info("typed import finished", "type", ft.Name, "folder_id", string(folderID),
		"files", res.Files, "skipped", res.Skipped, "failed", res.FailedFiles)
	return res, nil
}

// typeFolder returns the root-level folder named ft.Folder, creating it if missing.
func (s *Store) typeFolder(ft FileType) (FolderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.index.ChildFolders(RootFolderID) {
		if f.Name == ft.Folder {
			return f.ID, nil
		}
	}
	return s.createFolder(ft.Folder, RootFolderID)
}

// importStep is one entry of a directory import plan, in parent-first order.
type importStep struct {
	source string
	dir    bool
	parent int   // index of the containing dir step, -1 for the top directory
	err    error // set when the directory could not be listed
}

// ImportDirectory recreates sourceDir below parentID: a folder named after
// sourceDir (suffixed if the name is taken), then every subdirectory and file
// inside it. The returned error is non-nil only when nothing could be imported.
func (s *Store) ImportDirectory(sourceDir string, parentID FolderID, opts ImportOptions, progress ProgressFunc) (ImportResult, error) {
	const op = "import directory"
	if _, err := s.ChildFolders(parentID); err != nil {
		return ImportResult{}, err
	}
	info, err := s.fs.Stat(sourceDir)
	if err != nil {
		return ImportResult{}, opError(op, sourceDir, ErrIO, err)
	}
	if !info.IsDir() {
		return ImportResult{}, opError(op, sourceDir, ErrIO, errors.New("not a directory"))
	}

	s.mu.RLock()
	dest := s.resolver.PhysicalPath(parentID)
	s.mu.RUnlock()

	var res ImportResult
	steps := s.planImport(filepath.Clean(sourceDir), dest, opts, &res)
	total := 0
	for _, st := range steps {
		if !st.dir {
			total++
		}
	}

	folders := make([]FolderID, len(steps))
	done := 0
	for i, st := range steps {
		target := parentID
		if st.parent >= 0 {
			target = folders[st.parent]
		}

		if st.dir {
			id, err := s.importFolder(st, target)
			if i == 0 && err != nil {
				return res, err
			}
			res.folderDone(err)
			folders[i] = id
			if i == 0 {
				res.Folder = id
			}
			continue
		}

		var n FileNode
		if target == "" {
			err = opError(opImportFile, st.source, ErrIO, errors.New("containing folder was not created"))
		} else {
			s.mu.Lock()
			n, err = s.importFile(st.source, target)
			s.mu.Unlock()
		}
		res.fileDone(err)
		done++
		report(progress, ImportProgress{Index: done, Total: total, Source: st.source, FileID: n.ID, Name: n.Name, Err: err})
	}

	s.logger.Info("directory import finished", "source", sourceDir, "folder_id", string(res.Folder),
		"folders", res.Folders, "files", res.Files, "skipped", res.Skipped,
		"failed_folders", res.FailedFolders, "failed_files", res.FailedFiles)
	return res, nil
}

func (s *Store) importFolder(st importStep, target FolderID) (FolderID, error) {
	if target == "" {
		return "", opError(opCreateFolder, st.source, ErrIO, errors.New("containing folder was not created"))
	}
	if st.err != nil {
		return "", opError(opCreateFolder, st.source, ErrIO, st.err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name, err := s.freeName(target, filepath.Base(st.source))
	if err != nil {
		return "", opError(opCreateFolder, st.source, ErrIO, err)
	}
	return s.createFolder(name, target)
}

// planImport lists dir recursively. Files rejected by opts, entries that would
// be ignored once copied below dest, symlinks and special files are counted as
// skipped.
func (s *Store) planImport(dir, dest string, opts ImportOptions, res *ImportResult) []importStep {
	base := filepath.Dir(dir)
	steps := []importStep{{source: dir, dir: true, parent: -1}}
	for i := 0; i < len(steps); i++ {
		if !steps[i].dir {
			continue
		}
		entries, err := s.fs.ReadDir(steps[i].source)
		if err != nil {
			steps[i].err = fmt.Errorf("listing directory: %w", err)
			s.logger.Warn("skipping unreadable directory", "path", steps[i].source, "error", err)
			continue
		}
		for _, e := range entries {
			path := filepath.Join(steps[i].source, e.Name())
			rel, _ := filepath.Rel(base, path)
			switch {
			case s.ignored(filepath.Join(dest, rel)):
				res.Skipped++
				s.logger.Debug("skipping ignored entry", "path", path)
			case e.IsDir():
				steps = append(steps, importStep{source: path, dir: true, parent: i})
			case e.Type().IsRegular() && opts.accepts(e.Name()):
				steps = append(steps, importStep{source: path, parent: i})
			default:
				res.Skipped++
				s.logger.Debug("skipping entry", "path", path)
			}
		}
	}
	return steps
}

func report(progress ProgressFunc, p ImportProgress) {
	if progress != nil {
		progress(p)
	}
}
