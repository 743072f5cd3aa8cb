package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ManifestName is the metadata item holding the newest manifest.
const ManifestName = "manifest"

// Manifest lists every file of one backup.
type Manifest struct {
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Encrypted bool      `json:"encrypted"`
	Entries   []Entry   `json:"entries"`
}

// Entry is one file in a manifest. Path is slash-separated and relative to
// the library root. Content is the vault key; it equals Checksum for
// plaintext backups.
type Entry struct {
	Path       string    `json:"path"`
	Checksum   string    `json:"checksum"`
	Content    string    `json:"content"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// encryptedSuffix keeps ciphertext and plaintext of the same file apart in
// a vault shared by encrypted and plaintext backups.
const encryptedSuffix = ".age"

func contentKey(checksum string, encrypted bool) string {
	if encrypted {
		return checksum + encryptedSuffix
	}
	return checksum
}

// LoadManifest fetches the newest manifest of libraryID from v.
func LoadManifest(v Vault, libraryID string) (*Manifest, error) {
	var buf bytes.Buffer
	if err := v.GetMetadata(libraryID, ManifestName, &buf); err != nil {
		if errors.Is(err, ErrMissing) {
			return nil, fmt.Errorf("no backup found for library %s: %w", libraryID, err)
		}
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}

func storeManifest(v Vault, libraryID string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := v.PutMetadata(libraryID, ManifestName, bytes.NewReader(data), int64(len(data)), m.Version); err != nil {
		return fmt.Errorf("storing manifest: %w", err)
	}
	return nil
}
