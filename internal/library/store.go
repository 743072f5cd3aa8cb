package library

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
)

const (
	opLoad         = "load"
	opCreateFolder = "create folder"
	opRenameFolder = "rename folder"
	opDeleteFolder = "delete folder"
	opImportFile   = "import file"
	opRenameFile   = "rename file"
	opMoveFile     = "move file"
	opDeleteFile   = "delete file"
)

// Store is the library: a logical folder/file tree kept consistent with a
// physical directory tree below root. Every mutation applies the physical
// change first and only then updates the index.
//
// A single coarse lock serialises mutations; queries take the read lock.
type Store struct {
	mu sync.RWMutex

	root     string
	label    string
	fs       Filesystem
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	index    *TreeIndex
	resolver *PathResolver

	// issued holds every id handed out by this store so none is reused.
	issued map[string]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithRootLabel sets the breadcrumb label used for the library root.
func WithRootLabel(label string) Option {
	return func(s *Store) {
		if label != "" {
			s.label = label
		}
	}
}

// NewStore creates an empty store for the library rooted at root.
// Call Load to index what is already on disk.
func NewStore(root string, fsys Filesystem, logger Logger, clock Clock, idgen IDGenerator, opts ...Option) *Store {
	if logger == nil {
		logger = nopLogger{}
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	s := &Store{
		root:   filepath.Clean(root),
		label:  DefaultRootLabel,
		fs:     fsys,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
		issued: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reset(NewTreeIndex())
	return s
}

func (s *Store) reset(index *TreeIndex) {
	s.index = index
	s.resolver = NewPathResolver(s.root, s.label, index, s.logger)
}

// Root returns the physical library root.
func (s *Store) Root() string {
	return s.root
}

// RootLabel returns the breadcrumb label of the root.
func (s *Store) RootLabel() string {
	return s.label
}

func (s *Store) newID() string {
	for {
		id := s.idgen.New()
		if id == "" || id == string(RootFolderID) {
			continue
		}
		if _, used := s.issued[id]; used {
			s.logger.Warn("regenerating duplicate id", "id", id)
			continue
		}
		s.issued[id] = struct{}{}
		return id
	}
}

// CreateFolder creates a folder named name under parentID.
func (s *Store) CreateFolder(name string, parentID FolderID) (FolderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createFolder(name, parentID)
}

func (s *Store) createFolder(name string, parentID FolderID) (FolderID, error) {
	if err := ValidateName(name); err != nil {
		return "", opError(opCreateFolder, name, ErrInvalidName, err)
	}
	if !s.index.HasFolder(parentID) {
		return "", opError(opCreateFolder, string(parentID), ErrNotFound, nil)
	}
	path := s.resolver.FilePath(parentID, name)
	if err := s.checkIndexable(opCreateFolder, name, path); err != nil {
		return "", err
	}
	if _, taken := s.index.SiblingNames(parentID)[name]; taken {
		return "", opError(opCreateFolder, name, ErrNameConflict, nil)
	}

	if err := s.fs.Mkdir(path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", opError(opCreateFolder, name, ErrNameConflict, err)
		}
		return "", opError(opCreateFolder, name, ErrIO, err)
	}

	id := FolderID(s.newID())
	s.index.InsertFolder(FolderNode{ID: id, Name: name, ParentID: parentID, CreatedAt: s.clock.Now()})
	s.logger.Info("folder created", "folder_id", string(id), "path", path)
	return id, nil
}

// RenameFolder renames folder id. The paths of every file below it follow.
// Renaming a folder to its current name does nothing.
func (s *Store) RenameFolder(id FolderID, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index.Folder(id)
	if !ok {
		return opError(opRenameFolder, string(id), ErrNotFound, nil)
	}
	if err := ValidateName(newName); err != nil {
		return opError(opRenameFolder, newName, ErrInvalidName, err)
	}
	if n.Name == newName {
		return nil
	}
	if _, taken := s.index.SiblingNames(n.ParentID)[newName]; taken {
		return opError(opRenameFolder, newName, ErrNameConflict, nil)
	}

	oldPath := s.resolver.PhysicalPath(id)
	newPath := s.resolver.FilePath(n.ParentID, newName)
	if err := s.checkSubtreeIndexable(opRenameFolder, newName, id, oldPath, newPath); err != nil {
		return err
	}
	if err := s.checkAbsent(opRenameFolder, newName, newPath); err != nil {
		return err
	}
	if err := s.fs.Rename(oldPath, newPath); err != nil {
		return opError(opRenameFolder, string(id), ErrIO, err)
	}

	s.index.RenameFolder(id, newName)
	s.rebaseFiles(id)
	s.logger.Info("folder renamed", "folder_id", string(id), "from", oldPath, "to", newPath)
	return nil
}

// rebaseFiles recomputes Path for every file at or below folderID.
func (s *Store) rebaseFiles(folderID FolderID) {
	for _, f := range append([]FolderID{folderID}, s.index.DescendantFolderIDs(folderID)...) {
		dir := s.resolver.PhysicalPath(f)
		for _, fileID := range s.index.FileIDsIn(f) {
			s.index.UpdateFile(fileID, func(n *FileNode) {
				n.Path = filepath.Join(dir, n.Name)
			})
		}
	}
}

// checkAbsent fails with ErrNameConflict if something the index does not know
// about already occupies path.
func (s *Store) checkAbsent(op, name, path string) error {
	_, err := s.fs.Stat(path)
	switch {
	case err == nil:
		return opError(op, name, ErrNameConflict, fmt.Errorf("%s already exists on disk", path))
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return opError(op, name, ErrIO, err)
	}
}

// ignored reports whether the next Load would leave out the entry at path.
func (s *Store) ignored(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	return s.fs.Ignored(rel)
}

// checkIndexable fails with ErrInvalidName if an entry created at path would
// not be found again by Load.
func (s *Store) checkIndexable(op, name, path string) error {
	if s.ignored(path) {
		return opError(op, name, ErrInvalidName, fmt.Errorf("%s matches an ignore pattern", path))
	}
	return nil
}

// checkSubtreeIndexable is checkIndexable for folder id and everything below
// it, as they would be once the folder moves from oldDir to newDir.
func (s *Store) checkSubtreeIndexable(op, name string, id FolderID, oldDir, newDir string) error {
	if err := s.checkIndexable(op, name, newDir); err != nil {
		return err
	}
	moved := func(path string) string {
		rel, err := filepath.Rel(oldDir, path)
		if err != nil {
			return path
		}
		return filepath.Join(newDir, rel)
	}
	for _, f := range append([]FolderID{id}, s.index.DescendantFolderIDs(id)...) {
		if f != id {
			if err := s.checkIndexable(op, name, moved(s.resolver.PhysicalPath(f))); err != nil {
				return err
			}
		}
		for _, fileID := range s.index.FileIDsIn(f) {
			n, _ := s.index.File(fileID)
			if err := s.checkIndexable(op, name, moved(n.Path)); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteFolder removes folder id and everything below it, on disk and in the index.
//
// If the physical removal fails partway, nodes whose entries are already gone
// are still purged and ErrIO is returned.
func (s *Store) DeleteFolder(id FolderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.Folder(id); !ok {
		return opError(opDeleteFolder, string(id), ErrNotFound, nil)
	}

	// Snapshot before touching anything; parents precede children.
	folders := append([]FolderID{id}, s.index.DescendantFolderIDs(id)...)
	dirs := make(map[FolderID]string, len(folders))
	var files []FileID
	for _, f := range folders {
		dirs[f] = s.resolver.PhysicalPath(f)
		files = append(files, s.index.FileIDsIn(f)...)
	}

	if err := s.fs.RemoveAll(dirs[id]); err != nil {
		folderCount, fileCount := s.purgeRemoved(folders, files, dirs)
		s.logger.Error("folder partially deleted",
			"folder_id", string(id), "path", dirs[id],
			"purged_folders", folderCount, "purged_files", fileCount, "error", err)
		return opError(opDeleteFolder, string(id), ErrIO, err)
	}

	for _, f := range files {
		s.index.RemoveFile(f)
	}
	for i := len(folders) - 1; i >= 0; i-- {
		s.index.RemoveFolder(folders[i])
	}
	s.logger.Info("folder deleted", "folder_id", string(id), "path", dirs[id],
		"folders", len(folders), "files", len(files))
	return nil
}

// purgeRemoved drops the snapshotted nodes whose physical entries no longer
// exist. A folder is dropped only once its directory is gone and nothing
// remains indexed below it.
func (s *Store) purgeRemoved(folders []FolderID, files []FileID, dirs map[FolderID]string) (folderCount, fileCount int) {
	for _, f := range files {
		n, _ := s.index.File(f)
		if s.gone(n.Path) {
			s.index.RemoveFile(f)
			fileCount++
		}
	}
	for i := len(folders) - 1; i >= 0; i-- {
		f := folders[i]
		if s.index.CountEntries(f) == 0 && s.gone(dirs[f]) {
			s.index.RemoveFolder(f)
			folderCount++
		}
	}
	return folderCount, fileCount
}

func (s *Store) gone(path string) bool {
	_, err := s.fs.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

// ImportFile copies the file at sourcePath into folder targetID. If the name is
// taken, a numeric suffix is added before the extension.
func (s *Store) ImportFile(sourcePath string, targetID FolderID) (FileID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.importFile(sourcePath, targetID)
	return n.ID, err
}

func (s *Store) importFile(sourcePath string, targetID FolderID) (FileNode, error) {
	if !s.index.HasFolder(targetID) {
		return FileNode{}, opError(opImportFile, string(targetID), ErrNotFound, nil)
	}
	info, err := s.fs.Stat(sourcePath)
	if err != nil {
		return FileNode{}, opError(opImportFile, sourcePath, ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return FileNode{}, opError(opImportFile, sourcePath, ErrIO, errors.New("not a regular file"))
	}
	desired := filepath.Base(sourcePath)
	if err := ValidateName(desired); err != nil {
		return FileNode{}, opError(opImportFile, sourcePath, ErrInvalidName, err)
	}

	name, err := s.freeName(targetID, desired)
	if err != nil {
		return FileNode{}, opError(opImportFile, sourcePath, ErrIO, err)
	}
	dst := s.resolver.FilePath(targetID, name)
	if err := s.checkIndexable(opImportFile, sourcePath, dst); err != nil {
		return FileNode{}, err
	}
	size, err := s.fs.CopyFile(sourcePath, dst)
	if err != nil {
		return FileNode{}, opError(opImportFile, sourcePath, ErrIO, err)
	}

	node := FileNode{
		ID:         FileID(s.newID()),
		Name:       name,
		Path:       dst,
		Extension:  Extension(name),
		Size:       size,
		ModifiedAt: s.clock.Now(),
		FolderID:   targetID,
	}
	s.index.InsertFile(node)
	s.logger.Info("file imported", "file_id", string(node.ID), "source", sourcePath, "path", dst, "size", size)
	return node, nil
}

// freeName resolves desired against the indexed children of folderID and then
// against what is actually on disk, so an unindexed entry is never overwritten.
func (s *Store) freeName(folderID FolderID, desired string) (string, error) {
	dir := s.resolver.PhysicalPath(folderID)
	taken := s.index.SiblingNames(folderID)
	for {
		name := ResolveName(desired, taken)
		_, err := s.fs.Stat(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
		s.logger.Debug("name taken by unindexed entry", "dir", dir, "name", name)
		taken[name] = struct{}{}
	}
}

// RenameFile renames file id in place. Unlike MoveFile it fails on a conflict.
func (s *Store) RenameFile(id FileID, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index.File(id)
	if !ok {
		return opError(opRenameFile, string(id), ErrNotFound, nil)
	}
	if err := ValidateName(newName); err != nil {
		return opError(opRenameFile, newName, ErrInvalidName, err)
	}
	if n.Name == newName {
		return nil
	}
	if _, taken := s.index.SiblingNames(n.FolderID)[newName]; taken {
		return opError(opRenameFile, newName, ErrNameConflict, nil)
	}

	newPath := s.resolver.FilePath(n.FolderID, newName)
	if err := s.checkIndexable(opRenameFile, newName, newPath); err != nil {
		return err
	}
	if err := s.checkAbsent(opRenameFile, newName, newPath); err != nil {
		return err
	}
	if err := s.fs.Rename(n.Path, newPath); err != nil {
		return opError(opRenameFile, string(id), ErrIO, err)
	}

	s.index.RenameFile(id, newName, newPath)
	s.logger.Info("file renamed", "file_id", string(id), "from", n.Path, "to", newPath)
	return nil
}

// MoveFile moves file id into folder targetID. A name clash in the target is
// resolved with a numeric suffix. Moving a file into its own folder does nothing.
func (s *Store) MoveFile(id FileID, targetID FolderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index.File(id)
	if !ok {
		return opError(opMoveFile, string(id), ErrNotFound, nil)
	}
	if !s.index.HasFolder(targetID) {
		return opError(opMoveFile, string(targetID), ErrNotFound, nil)
	}
	if n.FolderID == targetID {
		return nil
	}

	name, err := s.freeName(targetID, n.Name)
	if err != nil {
		return opError(opMoveFile, string(id), ErrIO, err)
	}
	dst := s.resolver.FilePath(targetID, name)
	if err := s.checkIndexable(opMoveFile, string(id), dst); err != nil {
		return err
	}
	if err := s.fs.Move(n.Path, dst); err != nil {
		return opError(opMoveFile, string(id), ErrIO, err)
	}

	s.index.Reparent(id, targetID)
	s.index.RenameFile(id, name, dst)
	s.logger.Info("file moved", "file_id", string(id), "from", n.Path, "to", dst)
	return nil
}

// DeleteFile deletes file id. A physical file that is already gone is not an error.
func (s *Store) DeleteFile(id FileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index.File(id)
	if !ok {
		return opError(opDeleteFile, string(id), ErrNotFound, nil)
	}
	if err := s.fs.Remove(n.Path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return opError(opDeleteFile, string(id), ErrIO, err)
		}
		s.logger.Warn("file already missing on disk", "file_id", string(id), "path", n.Path)
	}
	s.index.RemoveFile(id)
	s.logger.Info("file deleted", "file_id", string(id), "path", n.Path)
	return nil
}
