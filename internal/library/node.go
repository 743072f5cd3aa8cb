package library

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FolderID identifies a folder in the library tree.
// Identifiers are generated fresh on every load and are not stable across restarts.
type FolderID string

// FileID identifies a file in the library tree.
type FileID string

// RootFolderID is the reserved parent of every top-level folder.
// The root itself has no FolderNode; it maps to the library root directory.
const RootFolderID FolderID = "root"

// FolderNode is a logical folder. ParentID is a plain back-reference, never a pointer.
type FolderNode struct {
	ID        FolderID
	Name      string
	ParentID  FolderID
	CreatedAt time.Time
}

// FileNode is a logical file mirrored by exactly one physical file.
// Path always equals the library root joined with the folder chain and Name.
type FileNode struct {
	ID            FileID
	Name          string
	Path          string
	Extension     string // lower-case, without the dot
	Size          int64
	ModifiedAt    time.Time
	FolderID      FolderID
	Favorite      bool
	ThumbnailPath string
}

// HasThumbnail reports whether a thumbnail path has been recorded.
func (f FileNode) HasThumbnail() bool {
	return f.ThumbnailPath != ""
}

// Extension returns the lower-cased extension of name without the dot.
// A leading dot alone (".profile") does not start an extension.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// ValidateName checks that name can be used as a single path element.
// Store operations report a failure here as ErrInvalidName.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("%q is reserved", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%q contains a path separator or NUL", name)
	}
	return nil
}
