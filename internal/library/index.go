package library

import (
	"sort"
)

// TreeIndex holds the logical tree as two arenas keyed by id, plus parent→children
// multimaps that are kept in sync on every insert, remove and reparent.
//
// TreeIndex is not safe for concurrent use; Store serialises access to it.
type TreeIndex struct {
	folders map[FolderID]*FolderNode
	files   map[FileID]*FileNode

	childFolders map[FolderID]map[FolderID]struct{}
	childFiles   map[FolderID]map[FileID]struct{}
}

// NewTreeIndex returns an empty index containing only the implicit root.
func NewTreeIndex() *TreeIndex {
	return &TreeIndex{
		folders:      make(map[FolderID]*FolderNode),
		files:        make(map[FileID]*FileNode),
		childFolders: make(map[FolderID]map[FolderID]struct{}),
		childFiles:   make(map[FolderID]map[FileID]struct{}),
	}
}

// HasFolder reports whether id is the root or a known folder.
func (x *TreeIndex) HasFolder(id FolderID) bool {
	if id == RootFolderID {
		return true
	}
	_, ok := x.folders[id]
	return ok
}

// Folder returns a copy of the folder node. The root has no node.
func (x *TreeIndex) Folder(id FolderID) (FolderNode, bool) {
	n, ok := x.folders[id]
	if !ok {
		return FolderNode{}, false
	}
	return *n, true
}

// File returns a copy of the file node.
func (x *TreeIndex) File(id FileID) (FileNode, bool) {
	n, ok := x.files[id]
	if !ok {
		return FileNode{}, false
	}
	return *n, true
}

// ChildFolders returns the direct subfolders of parentID ordered by name.
func (x *TreeIndex) ChildFolders(parentID FolderID) []FolderNode {
	ids := x.childFolders[parentID]
	out := make([]FolderNode, 0, len(ids))
	for id := range ids {
		out = append(out, *x.folders[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ChildFiles returns the files directly inside folderID ordered by name.
func (x *TreeIndex) ChildFiles(folderID FolderID) []FileNode {
	ids := x.childFiles[folderID]
	out := make([]FileNode, 0, len(ids))
	for id := range ids {
		out = append(out, *x.files[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CountEntries returns the number of direct children (folders and files).
func (x *TreeIndex) CountEntries(folderID FolderID) int {
	return len(x.childFolders[folderID]) + len(x.childFiles[folderID])
}

// SiblingNames returns the names of every direct child of folderID.
func (x *TreeIndex) SiblingNames(folderID FolderID) map[string]struct{} {
	names := make(map[string]struct{}, x.CountEntries(folderID))
	for id := range x.childFolders[folderID] {
		names[x.folders[id].Name] = struct{}{}
	}
	for id := range x.childFiles[folderID] {
		names[x.files[id].Name] = struct{}{}
	}
	return names
}

// InsertFolder adds n under n.ParentID.
func (x *TreeIndex) InsertFolder(n FolderNode) {
	node := n
	x.folders[n.ID] = &node
	addChild(x.childFolders, n.ParentID, n.ID)
}

// InsertFile adds n under n.FolderID.
func (x *TreeIndex) InsertFile(n FileNode) {
	node := n
	x.files[n.ID] = &node
	addChild(x.childFiles, n.FolderID, n.ID)
}

// RemoveFolder drops a single folder node. Its children must already be gone.
func (x *TreeIndex) RemoveFolder(id FolderID) {
	n, ok := x.folders[id]
	if !ok {
		return
	}
	removeChild(x.childFolders, n.ParentID, id)
	delete(x.childFolders, id)
	delete(x.childFiles, id)
	delete(x.folders, id)
}

// RemoveFile drops a file node.
func (x *TreeIndex) RemoveFile(id FileID) {
	n, ok := x.files[id]
	if !ok {
		return
	}
	removeChild(x.childFiles, n.FolderID, id)
	delete(x.files, id)
}

// RenameFolder updates a folder's display name in place.
func (x *TreeIndex) RenameFolder(id FolderID, name string) bool {
	n, ok := x.folders[id]
	if ok {
		n.Name = name
	}
	return ok
}

// RenameFile changes a file's name and physical path, re-deriving its extension.
func (x *TreeIndex) RenameFile(id FileID, name, path string) bool {
	return x.UpdateFile(id, func(n *FileNode) {
		n.Name = name
		n.Extension = Extension(name)
		n.Path = path
	})
}

// UpdateFile applies fn to the stored file node in place.
func (x *TreeIndex) UpdateFile(id FileID, fn func(*FileNode)) bool {
	n, ok := x.files[id]
	if ok {
		fn(n)
	}
	return ok
}

// Reparent moves a file under newFolderID, keeping the multimaps in sync.
func (x *TreeIndex) Reparent(id FileID, newFolderID FolderID) bool {
	n, ok := x.files[id]
	if !ok {
		return false
	}
	removeChild(x.childFiles, n.FolderID, id)
	n.FolderID = newFolderID
	addChild(x.childFiles, newFolderID, id)
	return true
}

// DescendantFolderIDs returns every folder below folderID in breadth-first
// order, so a parent always precedes its children. folderID itself is excluded.
func (x *TreeIndex) DescendantFolderIDs(folderID FolderID) []FolderID {
	var out []FolderID
	queue := []FolderID{folderID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for child := range x.childFolders[cur] {
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// FileIDsIn returns the ids of files directly inside folderID.
func (x *TreeIndex) FileIDsIn(folderID FolderID) []FileID {
	out := make([]FileID, 0, len(x.childFiles[folderID]))
	for id := range x.childFiles[folderID] {
		out = append(out, id)
	}
	return out
}

// Folders returns copies of every folder node in no particular order.
func (x *TreeIndex) Folders() []FolderNode {
	out := make([]FolderNode, 0, len(x.folders))
	for _, n := range x.folders {
		out = append(out, *n)
	}
	return out
}

// Files returns copies of every file node in no particular order.
func (x *TreeIndex) Files() []FileNode {
	out := make([]FileNode, 0, len(x.files))
	for _, n := range x.files {
		out = append(out, *n)
	}
	return out
}

// Len returns the number of folder and file nodes.
func (x *TreeIndex) Len() (folders, files int) {
	return len(x.folders), len(x.files)
}

func addChild[P comparable, C comparable](m map[P]map[C]struct{}, parent P, child C) {
	set, ok := m[parent]
	if !ok {
		set = make(map[C]struct{})
		m[parent] = set
	}
	set[child] = struct{}{}
}

func removeChild[P comparable, C comparable](m map[P]map[C]struct{}, parent P, child C) {
	set, ok := m[parent]
	if !ok {
		return
	}
	delete(set, child)
	if len(set) == 0 {
		delete(m, parent)
	}
}
