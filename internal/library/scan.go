package library

import (
	"path/filepath"
)

// Load rebuilds the index from the library root, creating the root if it is
// missing. Every folder and file gets a fresh id. Entries that cannot be read
// are logged and skipped.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.root); err != nil {
		return opError(opLoad, s.root, ErrIO, err)
	}

	entries, err := s.fs.Scan(s.root, func(path string, err error) {
		s.logger.Warn("skipping unreadable entry", "path", path, "error", err)
	})
	if err != nil {
		return opError(opLoad, s.root, ErrIO, err)
	}

	index := NewTreeIndex()
	dirs := map[string]FolderID{".": RootFolderID}
	for _, e := range entries {
		parentID, ok := dirs[filepath.Dir(e.RelPath)]
		if !ok {
			s.logger.Warn("skipping entry below unindexed directory", "path", e.RelPath)
			continue
		}
		name := filepath.Base(e.RelPath)

		if e.IsDir {
			id := FolderID(s.newID())
			index.InsertFolder(FolderNode{ID: id, Name: name, ParentID: parentID, CreatedAt: e.ModTime})
			dirs[e.RelPath] = id
			continue
		}
		index.InsertFile(FileNode{
			ID:         FileID(s.newID()),
			Name:       name,
			Path:       filepath.Join(s.root, e.RelPath),
			Extension:  Extension(name),
			Size:       e.Size,
			ModifiedAt: e.ModTime,
			FolderID:   parentID,
		})
	}

	s.reset(index)
	folders, files := index.Len()
	s.logger.Info("library loaded", "root", s.root, "folders", folders, "files", files)
	return nil
}
