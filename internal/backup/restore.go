package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"shelf/internal/library"
)

// RestoreResult lists what a restore wrote.
type RestoreResult struct {
	Version int64
	Paths   []string // absolute paths written, in manifest order
	Renamed int      // files written under a suffixed name because the path was taken
}

// Restore writes every file of the newest manifest below dest, recreating
// the folder structure. Existing files are never overwritten: a taken name
// gets a numbered suffix instead. decryptCtx is required when the manifest
// is encrypted and ignored otherwise.
func (s *Service) Restore(dest string, decryptCtx DecryptionContext, progress ProgressFunc) (RestoreResult, error) {
	m, err := LoadManifest(s.vault, s.libraryID)
	if err != nil {
		return RestoreResult{}, err
	}
	if m.Encrypted && decryptCtx == nil {
		return RestoreResult{}, fmt.Errorf("backup is encrypted but no passphrase was provided")
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return RestoreResult{}, fmt.Errorf("creating destination: %w", err)
	}

	res := RestoreResult{Version: m.Version}
	s.logger.Info("restore started", "version", m.Version, "files", len(m.Entries), "dest", dest)
	for i, e := range m.Entries {
		out, renamed, err := s.restoreEntry(dest, e, m.Encrypted, decryptCtx)
		if progress != nil {
			progress(Progress{Index: i + 1, Total: len(m.Entries), Path: e.Path, Err: err})
		}
		if err != nil {
			s.logger.Error("restore failed", "path", e.Path, "error", err)
			return res, fmt.Errorf("restoring %s: %w", e.Path, err)
		}
		res.Paths = append(res.Paths, out)
		if renamed {
			res.Renamed++
		}
	}

	s.logger.Info("restore complete", "version", m.Version, "files", len(res.Paths), "renamed", res.Renamed)
	return res, nil
}

func (s *Service) restoreEntry(dest string, e Entry, encrypted bool, decryptCtx DecryptionContext) (string, bool, error) {
	rel := filepath.FromSlash(e.Path)
	if !filepath.IsLocal(rel) {
		return "", false, fmt.Errorf("manifest path escapes destination: %q", e.Path)
	}

	dir := filepath.Join(dest, filepath.Dir(rel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("creating parent directory: %w", err)
	}

	name, err := freeName(dir, filepath.Base(rel))
	if err != nil {
		return "", false, err
	}
	outPath := filepath.Join(dir, name)

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", false, fmt.Errorf("creating output file: %w", err)
	}

	h := sha256.New()
	w := io.MultiWriter(f, h)
	if encrypted {
		err = s.fetchEncrypted(e.Content, decryptCtx, w)
	} else {
		err = s.vault.GetContent(e.Content, w)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && hex.EncodeToString(h.Sum(nil)) != e.Checksum {
		err = fmt.Errorf("checksum mismatch for content %s", e.Content)
	}
	if err != nil {
		os.Remove(outPath)
		return "", false, err
	}

	if !e.ModifiedAt.IsZero() {
		if err := os.Chtimes(outPath, e.ModifiedAt, e.ModifiedAt); err != nil {
			return "", false, fmt.Errorf("setting file times: %w", err)
		}
	}
	s.logger.Debug("file restored", "path", outPath)
	return outPath, name != filepath.Base(rel), nil
}

// fetchEncrypted pipes vault output straight into the decryptor.
func (s *Service) fetchEncrypted(content string, decryptCtx DecryptionContext, w io.Writer) error {
	pr, pw := io.Pipe()
	vaultErr := make(chan error, 1)
	go func() {
		err := s.vault.GetContent(content, pw)
		pw.CloseWithError(err)
		vaultErr <- err
	}()

	err := decryptCtx.Decrypt(pr, w)
	if err == nil {
		// Let the vault finish writing anything the decryptor left unread.
		_, err = io.Copy(io.Discard, pr)
	}
	pr.CloseWithError(err) // unblocks the writer if Decrypt stopped early
	verr := <-vaultErr
	if err != nil {
		return fmt.Errorf("decrypting content: %w", err)
	}
	if verr != nil {
		return fmt.Errorf("retrieving content from vault: %w", verr)
	}
	return nil
}

// freeName returns desired, or a suffixed variant if dir already holds an
// entry with that name.
func freeName(dir, desired string) (string, error) {
	if _, err := os.Lstat(filepath.Join(dir, desired)); errors.Is(err, fs.ErrNotExist) {
		return desired, nil
	} else if err != nil {
		return "", fmt.Errorf("checking %s: %w", desired, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}
	taken := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		taken[e.Name()] = struct{}{}
	}
	return library.ResolveName(desired, taken), nil
}
