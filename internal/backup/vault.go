package backup

import (
	"errors"
	"io"
)

// ErrMissing is wrapped by vault errors for content or metadata that was
// never stored.
var ErrMissing = errors.New("not found in vault")

// Vault is remote storage for library backups. Content is addressed by its
// SHA-256 checksum. Metadata items are named blobs kept per library, each
// carrying a version marker.
type Vault interface {
	// Name identifies the vault in configuration and in the journal.
	Name() string

	// PutContent stores content under checksum. Storing a checksum twice is
	// not an error.
	PutContent(checksum string, r io.Reader, size int64) error

	// GetContent writes the content stored under checksum to w.
	GetContent(checksum string, w io.Writer) error

	// HasContent reports whether checksum is already stored.
	HasContent(checksum string) (bool, error)

	// PutMetadata stores the named metadata item for a library.
	PutMetadata(libraryID, name string, r io.Reader, size int64, version int64) error

	// GetMetadata writes the named metadata item for a library to w.
	GetMetadata(libraryID, name string, w io.Writer) error

	// GetMetadataVersion returns the version of the named item, or 0 if it
	// was never stored.
	GetMetadataVersion(libraryID, name string) (int64, error)

	// ValidateSetup checks that the vault is reachable and writable.
	ValidateSetup() error
}
