package library

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Folder returns folder id.
func (s *Store) Folder(id FolderID) (FolderNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.index.Folder(id)
	if !ok {
		return FolderNode{}, opError("get folder", string(id), ErrNotFound, nil)
	}
	return n, nil
}

// File returns file id.
func (s *Store) File(id FileID) (FileNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.index.File(id)
	if !ok {
		return FileNode{}, opError("get file", string(id), ErrNotFound, nil)
	}
	return n, nil
}

// ChildFolders lists the subfolders of parentID ordered by name.
func (s *Store) ChildFolders(parentID FolderID) ([]FolderNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.index.HasFolder(parentID) {
		return nil, opError("list folders", string(parentID), ErrNotFound, nil)
	}
	return s.index.ChildFolders(parentID), nil
}

// ChildFiles lists the files in folderID ordered by name.
func (s *Store) ChildFiles(folderID FolderID) ([]FileNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.index.HasFolder(folderID) {
		return nil, opError("list files", string(folderID), ErrNotFound, nil)
	}
	return s.index.ChildFiles(folderID), nil
}

// CountEntries returns the number of folders and files directly in folderID.
func (s *Store) CountEntries(folderID FolderID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.index.HasFolder(folderID) {
		return 0, opError("count entries", string(folderID), ErrNotFound, nil)
	}
	return s.index.CountEntries(folderID), nil
}

// Parent returns the parent of folder id. Top-level folders have RootFolderID.
func (s *Store) Parent(id FolderID) (FolderID, error) {
	n, err := s.Folder(id)
	if err != nil {
		return "", err
	}
	return n.ParentID, nil
}

// PhysicalPath returns the directory that mirrors folder id.
func (s *Store) PhysicalPath(id FolderID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.index.HasFolder(id) {
		return "", opError("resolve path", string(id), ErrNotFound, nil)
	}
	return s.resolver.PhysicalPath(id), nil
}

// LogicalPath returns the breadcrumb of folder id, e.g. "Home > Books".
func (s *Store) LogicalPath(id FolderID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolver.LogicalPath(id)
}

// RelativePath returns the slash-separated path of folder id below the root.
func (s *Store) RelativePath(id FolderID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolver.RelativePath(id)
}

// LookupFolder resolves a slash-separated path such as "Books/Fiction".
// The empty path and "/" name the root.
func (s *Store) LookupFolder(logicalPath string) (FolderID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.resolver.Lookup(logicalPath)
	if !ok {
		return "", opError("lookup folder", logicalPath, ErrNotFound, nil)
	}
	return id, nil
}

// LookupFile resolves a slash-separated path such as "Books/novel.pdf".
func (s *Store) LookupFile(logicalPath string) (FileID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.resolver.LookupFile(logicalPath)
	if !ok {
		return "", opError("lookup file", logicalPath, ErrNotFound, nil)
	}
	return id, nil
}

// OpenPath returns the absolute path a viewer should open for file id.
// A file that is indexed but missing on disk is reported as ErrNotFound.
func (s *Store) OpenPath(id FileID) (string, error) {
	n, err := s.File(id)
	if err != nil {
		return "", err
	}
	if _, err := s.fs.Stat(n.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", opError("open file", n.Path, ErrNotFound, err)
		}
		return "", opError("open file", n.Path, ErrIO, err)
	}
	return n.Path, nil
}

// FileDetails describes a file for display.
type FileDetails struct {
	FileNode
	ContentType string
	Location    string // breadcrumb of the containing folder
}

// Describe returns file id with its sniffed content type and location.
// A content type that cannot be detected is left empty.
func (s *Store) Describe(id FileID) (FileDetails, error) {
	s.mu.RLock()
	n, ok := s.index.File(id)
	var location string
	if ok {
		location = s.resolver.LogicalPath(n.FolderID)
	}
	s.mu.RUnlock()
	if !ok {
		return FileDetails{}, opError("describe file", string(id), ErrNotFound, nil)
	}

	details := FileDetails{FileNode: n, Location: location}
	contentType, err := s.fs.DetectType(n.Path)
	if err != nil {
		s.logger.Warn("detecting content type", "path", n.Path, "error", err)
	} else {
		details.ContentType = contentType
	}
	return details, nil
}

// SetFavorite marks or unmarks file id as a favorite.
// Favorites are not persisted and reset on Load.
func (s *Store) SetFavorite(id FileID, favorite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.index.UpdateFile(id, func(n *FileNode) { n.Favorite = favorite }) {
		return opError("set favorite", string(id), ErrNotFound, nil)
	}
	return nil
}

// Favorites returns every favorite file ordered by name.
func (s *Store) Favorites() []FileNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FileNode
	for _, n := range s.index.Files() {
		if n.Favorite {
			out = append(out, n)
		}
	}
	SortFiles(out, SortNameAsc)
	return out
}

// SetThumbnail records the thumbnail image path of file id. An empty path clears it.
func (s *Store) SetThumbnail(id FileID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.index.UpdateFile(id, func(n *FileNode) { n.ThumbnailPath = path }) {
		return opError("set thumbnail", string(id), ErrNotFound, nil)
	}
	return nil
}

// Stats summarises the library.
type Stats struct {
	Folders int
	Files   int
	Bytes   int64
}

// Stats returns folder and file counts and the total size of all files.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{}
	st.Folders, st.Files = s.index.Len()
	for _, n := range s.index.Files() {
		st.Bytes += n.Size
	}
	return st
}

// Files returns every indexed file ordered by path.
func (s *Store) Files() []FileNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.index.Files()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SearchOptions narrows a Search.
type SearchOptions struct {
	Within        FolderID // defaults to the root
	Recursive     bool     // include everything below Within, not only direct children
	CaseSensitive bool
}

// SearchResult holds the folders and files whose names matched.
type SearchResult struct {
	Folders []FolderNode
	Files   []FileNode
}

// Search finds folders and files whose name contains query.
func (s *Store) Search(query string, opts SearchOptions) (SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	within := opts.Within
	if within == "" {
		within = RootFolderID
	}
	if !s.index.HasFolder(within) {
		return SearchResult{}, opError("search", string(within), ErrNotFound, nil)
	}

	match := func(name string) bool {
		if opts.CaseSensitive {
			return strings.Contains(name, query)
		}
		return strings.Contains(strings.ToLower(name), strings.ToLower(query))
	}

	scope := []FolderID{within}
	if opts.Recursive {
		scope = append(scope, s.index.DescendantFolderIDs(within)...)
	}

	var res SearchResult
	for _, f := range scope {
		for _, n := range s.index.ChildFolders(f) {
			if match(n.Name) {
				res.Folders = append(res.Folders, n)
			}
		}
		for _, n := range s.index.ChildFiles(f) {
			if match(n.Name) {
				res.Files = append(res.Files, n)
			}
		}
	}
	return res, nil
}

// SortOrder selects how listings are ordered.
type SortOrder string

const (
	SortNameAsc  SortOrder = "name-asc"
	SortNameDesc SortOrder = "name-desc"
	SortNewest   SortOrder = "newest"
	SortOldest   SortOrder = "oldest"
	SortSize     SortOrder = "size" // largest first
)

// ParseSortOrder parses a sort order name. The empty string is SortNameAsc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return SortNameAsc, nil
	case SortNameAsc, SortNameDesc, SortNewest, SortOldest, SortSize:
		return o, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// SortFiles orders files in place. Ties fall back to name.
func SortFiles(files []FileNode, order SortOrder) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		switch order {
		case SortNameDesc:
			return a.Name > b.Name
		case SortNewest:
			if !a.ModifiedAt.Equal(b.ModifiedAt) {
				return a.ModifiedAt.After(b.ModifiedAt)
			}
		case SortOldest:
			if !a.ModifiedAt.Equal(b.ModifiedAt) {
				return a.ModifiedAt.Before(b.ModifiedAt)
			}
		case SortSize:
			if a.Size != b.Size {
				return a.Size > b.Size
			}
		}
		return a.Name < b.Name
	})
}

// SortFolders orders folders in place. Time orders use CreatedAt; SortSize
// falls back to name since folders carry no size.
func SortFolders(folders []FolderNode, order SortOrder) {
	sort.SliceStable(folders, func(i, j int) bool {
		a, b := folders[i], folders[j]
		switch order {
		case SortNameDesc:
			return a.Name > b.Name
		case SortNewest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case SortOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.Name < b.Name
	})
}
