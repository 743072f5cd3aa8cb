// Package backup copies a library to a vault and restores it from one.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"shelf/internal/library"
)

// Source is the library being backed up.
type Source interface {
	Root() string
	Files() []library.FileNode
}

// Opener opens library files for reading.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// Progress reports one file of a backup or restore.
type Progress struct {
	Index    int
	Total    int
	Path     string
	Uploaded bool // false when the vault already had the content
	Err      error
}

// ProgressFunc receives a Progress after each file.
type ProgressFunc func(Progress)

// Result summarizes a completed backup.
type Result struct {
	Version  int64
	Files    int
	Uploaded int
	Bytes    int64 // bytes sent to the vault
}

// Service backs a library up to a single vault.
type Service struct {
	libraryID string
	vault     Vault
	encryptor Encryptor
	opener    Opener
	logger    library.Logger
	clock     library.Clock
}

// NewService creates a backup service. A nil encryptor stores plaintext.
func NewService(libraryID string, vault Vault, encryptor Encryptor, opener Opener, logger library.Logger, clock library.Clock) *Service {
	if clock == nil {
		clock = library.RealClock{}
	}
	return &Service{
		libraryID: libraryID,
		vault:     vault,
		encryptor: encryptor,
		opener:    opener,
		logger:    logger,
		clock:     clock,
	}
}

// Vault returns the vault the service writes to.
func (s *Service) Vault() Vault {
	return s.vault
}

// Backup uploads every file of src whose content the vault does not hold yet
// and then stores a new manifest. Any failure aborts the backup before the
// manifest is written, so the previous manifest stays current.
func (s *Service) Backup(src Source, progress ProgressFunc) (Result, error) {
	prev, err := s.vault.GetMetadataVersion(s.libraryID, ManifestName)
	if err != nil {
		return Result{}, fmt.Errorf("reading manifest version: %w", err)
	}

	files := src.Files()
	m := &Manifest{
		Version:   prev + 1,
		CreatedAt: s.clock.Now().UTC(),
		Encrypted: s.encryptor != nil,
		Entries:   make([]Entry, 0, len(files)),
	}
	res := Result{Version: m.Version}

	s.logger.Info("backup started", "vault", s.vault.Name(), "files", len(files))
	for i, f := range files {
		rel, err := filepath.Rel(src.Root(), f.Path)
		if err != nil {
			return res, fmt.Errorf("locating %s: %w", f.Path, err)
		}

		entry, sent, err := s.backupFile(f)
		if progress != nil {
			progress(Progress{Index: i + 1, Total: len(files), Path: filepath.ToSlash(rel), Uploaded: sent > 0, Err: err})
		}
		if err != nil {
			s.logger.Error("backup failed", "path", f.Path, "error", err)
			return res, fmt.Errorf("backing up %s: %w", rel, err)
		}

		entry.Path = filepath.ToSlash(rel)
		m.Entries = append(m.Entries, entry)
		res.Files++
		if sent > 0 {
			res.Uploaded++
			res.Bytes += sent
		}
	}

	if err := storeManifest(s.vault, s.libraryID, m); err != nil {
		return res, err
	}
	s.logger.Info("backup complete", "version", m.Version, "files", res.Files, "uploaded", res.Uploaded)
	return res, nil
}

// backupFile uploads one file unless the vault already has it. It returns
// the entry (without Path) and the number of bytes sent.
func (s *Service) backupFile(f library.FileNode) (Entry, int64, error) {
	checksum, size, err := s.checksum(f.Path)
	if err != nil {
		return Entry{}, 0, err
	}
	entry := Entry{
		Checksum:   checksum,
		Content:    contentKey(checksum, s.encryptor != nil),
		Size:       size,
		ModifiedAt: f.ModifiedAt,
	}

	has, err := s.vault.HasContent(entry.Content)
	if err != nil {
		return Entry{}, 0, fmt.Errorf("checking vault: %w", err)
	}
	if has {
		s.logger.Debug("content deduplicated", "checksum", checksum)
		return entry, 0, nil
	}

	sent, err := s.upload(f.Path, entry)
	if err != nil {
		return Entry{}, 0, err
	}
	s.logger.Debug("content uploaded", "path", f.Path, "bytes", sent)
	return entry, sent, nil
}

func (s *Service) checksum(path string) (string, int64, error) {
	r, err := s.opener.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening file: %w", err)
	}
	defer r.Close()

	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// upload stages the file in a temp file, encrypted if the service encrypts,
// and sends the staged copy only once its plaintext still hashes to the
// checksum computed earlier. Vaults also need the size before the upload starts.
func (s *Service) upload(path string, entry Entry) (int64, error) {
	r, err := s.opener.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "shelf-backup-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	h := sha256.New()
	src := io.TeeReader(r, h)
	if s.encryptor != nil {
		if err := s.encryptor.Encrypt(src, tmp); err != nil {
			return 0, fmt.Errorf("encrypting: %w", err)
		}
	} else if _, err := io.Copy(tmp, src); err != nil {
		return 0, fmt.Errorf("staging file: %w", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != entry.Checksum {
		return 0, fmt.Errorf("file changed during backup: %s", path)
	}

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("sizing staged file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding staged file: %w", err)
	}
	if err := s.vault.PutContent(entry.Content, tmp, size); err != nil {
		return 0, fmt.Errorf("uploading to vault: %w", err)
	}
	return size, nil
}

// Latest returns the version and creation time of the newest manifest, or
// zero values if the library was never backed up.
func (s *Service) Latest() (int64, time.Time, error) {
	version, err := s.vault.GetMetadataVersion(s.libraryID, ManifestName)
	if err != nil || version == 0 {
		return 0, time.Time{}, err
	}
	m, err := LoadManifest(s.vault, s.libraryID)
	if err != nil {
		return 0, time.Time{}, err
	}
	return m.Version, m.CreatedAt, nil
}
