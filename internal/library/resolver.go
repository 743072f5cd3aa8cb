package library

import (
	"path/filepath"
	"strings"
)

// DefaultRootLabel is how the library root is rendered in breadcrumbs.
const DefaultRootLabel = "Home"

// breadcrumbSeparator joins breadcrumb segments.
const breadcrumbSeparator = " > "

// PathResolver turns logical folder ids into physical paths and breadcrumbs
// by walking parent links up to the root.
type PathResolver struct {
	root   string
	label  string
	index  *TreeIndex
	logger Logger
}

// NewPathResolver creates a resolver over index rooted at the physical directory root.
func NewPathResolver(root, label string, index *TreeIndex, logger Logger) *PathResolver {
	if label == "" {
		label = DefaultRootLabel
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &PathResolver{root: root, label: label, index: index, logger: logger}
}

// Root returns the physical library root.
func (r *PathResolver) Root() string {
	return r.root
}

// ancestry returns the folder names from the root down to id.
// ok is false if the chain is broken by a missing node or a cycle; names then
// holds the part of the chain that could be walked.
func (r *PathResolver) ancestry(id FolderID) (names []string, ok bool) {
	folders, _ := r.index.Len()
	cur := id
	ok = true
	for hops := 0; cur != RootFolderID; hops++ {
		n, found := r.index.Folder(cur)
		if !found || hops > folders {
			ok = false
			break
		}
		names = append(names, n.Name)
		cur = n.ParentID
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, ok
}

// PhysicalPath returns the absolute directory mirroring folder id.
// A broken parent chain is an integrity error: it is logged and the library
// root is returned.
func (r *PathResolver) PhysicalPath(id FolderID) string {
	names, ok := r.ancestry(id)
	if !ok {
		r.logger.Error("dangling folder reference", "folder_id", string(id))
		return r.root
	}
	return filepath.Join(append([]string{r.root}, names...)...)
}

// FilePath returns the absolute path a file named name inside folder id has.
func (r *PathResolver) FilePath(id FolderID, name string) string {
	return filepath.Join(r.PhysicalPath(id), name)
}

// LogicalPath renders a breadcrumb such as "Home > Books > Fiction".
// For a broken chain it renders as much of the chain as could be walked.
func (r *PathResolver) LogicalPath(id FolderID) string {
	names, ok := r.ancestry(id)
	if !ok {
		r.logger.Error("dangling folder reference", "folder_id", string(id))
	}
	return strings.Join(append([]string{r.label}, names...), breadcrumbSeparator)
}

// RelativePath returns the slash-separated path of folder id below the root.
// The root itself is "".
func (r *PathResolver) RelativePath(id FolderID) string {
	names, _ := r.ancestry(id)
	return strings.Join(names, "/")
}

// Lookup resolves a slash-separated logical path ("Books/Fiction", "/Books",
// "" for the root) to a folder id by matching child names from the root.
func (r *PathResolver) Lookup(logicalPath string) (FolderID, bool) {
	cur := RootFolderID
	for _, seg := range splitLogical(logicalPath) {
		next, ok := r.childFolderNamed(cur, seg)
		if !ok {
			return "", false
		}
		cur = next
	}
	return cur, true
}

// LookupFile resolves "Books/novel.pdf" to a file id.
func (r *PathResolver) LookupFile(logicalPath string) (FileID, bool) {
	segs := splitLogical(logicalPath)
	if len(segs) == 0 {
		return "", false
	}
	folderID, ok := r.Lookup(strings.Join(segs[:len(segs)-1], "/"))
	if !ok {
		return "", false
	}
	name := segs[len(segs)-1]
	for _, id := range r.index.FileIDsIn(folderID) {
		if n, _ := r.index.File(id); n.Name == name {
			return id, true
		}
	}
	return "", false
}

func (r *PathResolver) childFolderNamed(parent FolderID, name string) (FolderID, bool) {
	for _, n := range r.index.ChildFolders(parent) {
		if n.Name == name {
			return n.ID, true
		}
	}
	return "", false
}

func splitLogical(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			segs = append(segs, s)
		}
	}
	return segs
}
