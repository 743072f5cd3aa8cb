package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"shelf/internal/backup"
	"shelf/internal/config"
	"shelf/internal/database"
	"shelf/internal/encryption"
	"shelf/internal/fs"
	"shelf/internal/library"
	"shelf/internal/vault"
)

// JournalName is the vault metadata name under which the journal snapshot is stored.
const JournalName = "journal"

// ShelfApp is the application layer between the CLI and the library store.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw slash-separated library paths, and manages the journal
// lifecycle on Close.
type ShelfApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	vault     backup.Vault // nil when no vault is configured
	fsys      *fs.OSFilesystem
	encryptor backup.Encryptor
	store     *library.Store
	backups   *backup.Service
	logger    *slog.Logger
	op        *Operation
	logFile   *os.File
}

type options struct {
	parameters string
	console    io.Writer
	verbose    bool
}

// Option configures NewShelfApp.
type Option func(*options)

// WithParameters records the command arguments on the journalled operation.
func WithParameters(params ...string) Option {
	return func(o *options) { o.parameters = strings.Join(params, " ") }
}

// WithConsole sets where warnings and errors are echoed. Defaults to stderr.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithVerbose echoes every log line to the console, not only warnings and errors.
func WithVerbose(verbose bool) Option {
	return func(o *options) { o.verbose = verbose }
}

// NewShelfApp creates a fully wired ShelfApp from the given config and loads
// the library. operation names the CLI command being run (e.g. "mkdir").
// The caller must call Close when done.
func NewShelfApp(cfg *config.Config, operation string, opts ...Option) (*ShelfApp, error) {
	o := options{console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var v backup.Vault
	if len(cfg.Vaults) > 0 {
		var err error
		v, err = vault.NewVaultFromConfig(context.Background(), cfg.Vaults[0])
		if err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.LibraryID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	if v != nil {
		// A journal snapshot newer than anything local means this machine missed operations.
		remoteVersion, err := v.GetMetadataVersion(cfg.LibraryID, JournalName)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking remote journal version: %w", err)
		}
		localMax, err := db.MaxOperationID()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking local journal version: %w", err)
		}
		if remoteVersion > localMax {
			db.Close()
			return nil, fmt.Errorf("local journal is behind remote (local=%d, remote=%d): restore it from the vault or re-initialize", localMax, remoteVersion)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	consoleLevel := slog.LevelWarn
	if o.verbose {
		consoleLevel = slog.LevelDebug
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, o.console, consoleLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	ignore, err := fs.ParseIgnoreFile(filepath.Join(cfg.LibraryRoot, fs.IgnoreFileName))
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	fsys := fs.NewOSFilesystem(append(append([]string(nil), cfg.Filesystem.Ignore...), ignore...))

	adapter := &slogAdapter{l: logger}
	var storeOpts []library.Option
	if cfg.Library.RootLabel != "" {
		storeOpts = append(storeOpts, library.WithRootLabel(cfg.Library.RootLabel))
	}
	store := library.NewStore(cfg.LibraryRoot, fsys, adapter, library.RealClock{}, library.UUIDGenerator{}, storeOpts...)
	if err := store.Load(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("loading library: %w", err)
	}

	a := &ShelfApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		fsys:      fsys,
		encryptor: enc,
		store:     store,
		logger:    logger,
		op:        NewOperation(operation, o.parameters),
		logFile:   logFile,
	}
	if v != nil {
		a.backups = backup.NewService(cfg.LibraryID, v, enc, fsys, adapter, library.RealClock{})
	}
	return a, nil
}

// Store returns the loaded library store.
func (a *ShelfApp) Store() *library.Store {
	return a.store
}

// Operation returns the operation this app was opened for.
func (a *ShelfApp) Operation() *Operation {
	return a.op
}

// persistOperation saves the operation to the journal, giving it an auto-increment ID.
// This should only be called for mutating commands.
func (a *ShelfApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// record marks the operation failed when err is non-nil and returns err.
func (a *ShelfApp) record(err error) error {
	a.op.Fail(err)
	return err
}

// splitParent splits a slash path into its parent path and final element.
func splitParent(p string) (string, string) {
	p = strings.Trim(p, "/")
	dir, name := path.Split(p)
	return strings.TrimSuffix(dir, "/"), name
}

// MakeFolder creates the folder named by the final element of p inside the
// folder named by the rest of it.
func (a *ShelfApp) MakeFolder(p string) (library.FolderID, error) {
	if err := a.persistOperation(); err != nil {
		return "", err
	}
	parentPath, name := splitParent(p)
	parentID, err := a.store.LookupFolder(parentPath)
	if err != nil {
		return "", a.record(err)
	}
	id, err := a.store.CreateFolder(name, parentID)
	return id, a.record(err)
}

// Rename gives the file or folder at p a new name. Files take precedence
// when a file and a folder share the path.
func (a *ShelfApp) Rename(p, newName string) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	if fileID, err := a.store.LookupFile(p); err == nil {
		return a.record(a.store.RenameFile(fileID, newName))
	}
	folderID, err := a.folderAt(p)
	if err != nil {
		return a.record(err)
	}
	return a.record(a.store.RenameFolder(folderID, newName))
}

// Move moves the file at filePath into the folder at folderPath.
func (a *ShelfApp) Move(filePath, folderPath string) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	fileID, err := a.store.LookupFile(filePath)
	if err != nil {
		return a.record(err)
	}
	folderID, err := a.store.LookupFolder(folderPath)
	if err != nil {
		return a.record(err)
	}
	return a.record(a.store.MoveFile(fileID, folderID))
}

// Remove deletes the file or folder at p. Folders are removed with everything below them.
func (a *ShelfApp) Remove(p string) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	if fileID, err := a.store.LookupFile(p); err == nil {
		return a.record(a.store.DeleteFile(fileID))
	}
	folderID, err := a.folderAt(p)
	if err != nil {
		return a.record(err)
	}
	return a.record(a.store.DeleteFolder(folderID))
}

// folderAt looks up a non-root folder.
func (a *ShelfApp) folderAt(p string) (library.FolderID, error) {
	id, err := a.store.LookupFolder(p)
	if err != nil {
		return "", err
	}
	if id == library.RootFolderID {
		return "", fmt.Errorf("the library root cannot be changed")
	}
	return id, nil
}

// Import copies sources into the folder at folderPath. Directories are
// imported as new folders when recursive is set, filtered by the configured
// import extensions; otherwise they are rejected. Individual failures are
// counted in the result and do not stop the import.
func (a *ShelfApp) Import(sources []string, folderPath string, recursive bool, progress library.ProgressFunc) (library.ImportResult, error) {
	if err := a.persistOperation(); err != nil {
		return library.ImportResult{}, err
	}
	folderID, err := a.store.LookupFolder(folderPath)
	if err != nil {
		return library.ImportResult{}, a.record(err)
	}

	var total library.ImportResult
	var files []string
	for _, raw := range sources {
		src, err := a.fsys.Resolve(raw)
		if err != nil {
			return total, a.record(fmt.Errorf("resolving %s: %w", raw, err))
		}
		info, err := os.Stat(src)
		if err != nil {
			return total, a.record(fmt.Errorf("stat %s: %w", raw, err))
		}
		if !info.IsDir() {
			files = append(files, src)
			continue
		}
		if !recursive {
			return total, a.record(fmt.Errorf("%s is a directory (use -r to import it)", raw))
		}
		res, err := a.store.ImportDirectory(src, folderID, library.ImportOptions{Extensions: a.cfg.Library.ImportExtensions}, progress)
		if err != nil {
			return total, a.record(err)
		}
		merge(&total, res)
	}

	if len(files) > 0 {
		res, err := a.store.ImportFiles(files, folderID, progress)
		if err != nil {
			return total, a.record(err)
		}
		merge(&total, res)
	}

	if total.Failed() {
		a.op.Fail(fmt.Errorf("%d files and %d folders failed to import", total.FailedFiles, total.FailedFolders))
	}
	a.logger.Info("import complete", "files", total.Files, "folders", total.Folders, "skipped", total.Skipped,
		"failed_files", total.FailedFiles, "failed_folders", total.FailedFolders)
	return total, nil
}

// ImportByType copies the files among sources that belong to the type named
// typeName into that type's folder below the root, creating the folder on
// first use. Files of other types are skipped.
func (a *ShelfApp) ImportByType(sources []string, typeName string, progress library.ProgressFunc) (library.ImportResult, error) {
	if err := a.persistOperation(); err != nil {
		return library.ImportResult{}, err
	}
	ft, ok := library.LookupFileType(typeName)
	if !ok {
		names := make([]string, len(library.FileTypes))
		for i, t := range library.FileTypes {
			names[i] = t.Name
		}
		return library.ImportResult{}, a.record(fmt.Errorf("unknown file type %q (want one of %s)", typeName, strings.Join(names, ", ")))
	}

	files := make([]string, 0, len(sources))
	for _, raw := range sources {
		src, err := a.fsys.Resolve(raw)
		if err != nil {
			return library.ImportResult{}, a.record(fmt.Errorf("resolving %s: %w", raw, err))
		}
		info, err := os.Stat(src)
		if err != nil {
			return library.ImportResult{}, a.record(fmt.Errorf("stat %s: %w", raw, err))
		}
		if info.IsDir() {
			return library.ImportResult{}, a.record(fmt.Errorf("%s is a directory; typed imports take files", raw))
		}
		files = append(files, src)
	}

	res, err := a.store.ImportByType(files, ft, progress)
	if err != nil {
		return res, a.record(err)
	}
	if res.Failed() {
		a.op.Fail(fmt.Errorf("%d files failed to import", res.FailedFiles))
	}
	a.logger.Info("typed import complete", "type", ft.Name, "folder", ft.Folder,
		"files", res.Files, "skipped", res.Skipped, "failed_files", res.FailedFiles)
	return res, nil
}

func merge(dst *library.ImportResult, src library.ImportResult) {
	if dst.Folder == "" {
		dst.Folder = src.Folder
	}
	dst.Files += src.Files
	dst.Folders += src.Folders
	dst.FailedFiles += src.FailedFiles
	dst.FailedFolders += src.FailedFolders
	dst.Skipped += src.Skipped
	dst.Errors = append(dst.Errors, src.Errors...)
}

// Listing is the content of one folder.
type Listing struct {
	Folder     library.FolderID
	Breadcrumb string
	Folders    []library.FolderNode
	Files      []library.FileNode
}

// List returns the folders and files directly inside folderPath ordered by
// sortOrder, or by the configured default sort when sortOrder is empty.
func (a *ShelfApp) List(folderPath, sortOrder string) (Listing, error) {
	if sortOrder == "" {
		sortOrder = a.cfg.Library.DefaultSort
	}
	order, err := library.ParseSortOrder(sortOrder)
	if err != nil {
		return Listing{}, err
	}
	id, err := a.store.LookupFolder(folderPath)
	if err != nil {
		return Listing{}, err
	}
	folders, err := a.store.ChildFolders(id)
	if err != nil {
		return Listing{}, err
	}
	files, err := a.store.ChildFiles(id)
	if err != nil {
		return Listing{}, err
	}
	library.SortFolders(folders, order)
	library.SortFiles(files, order)
	return Listing{Folder: id, Breadcrumb: a.store.LogicalPath(id), Folders: folders, Files: files}, nil
}

// Find searches the whole library for names containing query. Matching is
// case-sensitive when either caseSensitive or the config asks for it.
func (a *ShelfApp) Find(query string, caseSensitive bool) (library.SearchResult, error) {
	res, err := a.store.Search(query, library.SearchOptions{
		Recursive:     true,
		CaseSensitive: caseSensitive || a.cfg.Library.SearchCaseSensitive,
	})
	if err != nil {
		return res, err
	}
	library.SortFolders(res.Folders, library.SortNameAsc)
	library.SortFiles(res.Files, library.SortNameAsc)
	return res, nil
}

// Open returns the absolute path of the file at p for handing to a viewer.
func (a *ShelfApp) Open(p string) (string, error) {
	id, err := a.store.LookupFile(p)
	if err != nil {
		return "", err
	}
	return a.store.OpenPath(id)
}

// Info describes the file at p.
func (a *ShelfApp) Info(p string) (library.FileDetails, error) {
	id, err := a.store.LookupFile(p)
	if err != nil {
		return library.FileDetails{}, err
	}
	return a.store.Describe(id)
}

// History returns the most recent journalled operations, newest first.
func (a *ShelfApp) History(limit int) ([]*database.Operation, error) {
	return a.db.ListOperations(limit)
}

// ErrNoVault is returned by backup operations when no vault is configured.
var ErrNoVault = errors.New("no vault configured")

// Backup copies the library to the configured vault and records the backup in the journal.
func (a *ShelfApp) Backup(progress backup.ProgressFunc) (backup.Result, error) {
	if a.backups == nil {
		return backup.Result{}, ErrNoVault
	}
	if err := a.persistOperation(); err != nil {
		return backup.Result{}, err
	}
	if a.encryptor != nil && !a.encryptor.IsConfigured() {
		return backup.Result{}, a.record(fmt.Errorf("encryption keys are not set up: run config init --encrypt"))
	}

	res, err := a.backups.Backup(a.store, progress)
	if err != nil {
		return res, a.record(err)
	}

	rec := &database.Backup{
		OperationID:     sql.NullInt64{Int64: a.op.ID, Valid: true},
		Vault:           a.vault.Name(),
		ManifestVersion: res.Version,
		Files:           res.Files,
		Uploaded:        res.Uploaded,
		Bytes:           res.Bytes,
	}
	if err := a.db.RecordBackup(rec); err != nil {
		return res, a.record(fmt.Errorf("recording backup: %w", err))
	}
	return res, nil
}

// LastBackup returns the journal record of the newest backup to the
// configured vault, or nil if there is none.
func (a *ShelfApp) LastBackup() (*database.Backup, error) {
	if a.vault == nil {
		return nil, ErrNoVault
	}
	return a.db.LatestBackup(a.vault.Name())
}

// NeedsPassphrase reports whether the newest backup is encrypted.
func (a *ShelfApp) NeedsPassphrase() (bool, error) {
	if a.vault == nil {
		return false, ErrNoVault
	}
	m, err := backup.LoadManifest(a.vault, a.cfg.LibraryID)
	if err != nil {
		return false, err
	}
	return m.Encrypted, nil
}

// Restore writes the newest backup below rawDest. passphrase unlocks an
// encrypted backup and is ignored otherwise.
func (a *ShelfApp) Restore(rawDest, passphrase string, progress backup.ProgressFunc) (backup.RestoreResult, error) {
	if a.backups == nil {
		return backup.RestoreResult{}, ErrNoVault
	}
	dest, err := filepath.Abs(rawDest)
	if err != nil {
		return backup.RestoreResult{}, fmt.Errorf("resolving path: %w", err)
	}

	var decryptCtx backup.DecryptionContext
	if passphrase != "" {
		if a.encryptor == nil {
			return backup.RestoreResult{}, fmt.Errorf("no encryption configured")
		}
		decryptCtx, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return backup.RestoreResult{}, fmt.Errorf("unlocking private key: %w", err)
		}
	}
	return a.backups.Restore(dest, decryptCtx, progress)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record and, when a vault
// is configured, uploads a journal snapshot to it.
// For non-persisted operations: just closes the database.
func (a *ShelfApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status, a.op.Message); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
		if a.vault != nil {
			keep(a.uploadJournal())
		}
	}

	if err := a.db.Close(); err != nil {
		keep(fmt.Errorf("closing database: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// uploadJournal snapshots the journal to a temp file and uploads it to the
// vault with version = operation ID.
func (a *ShelfApp) uploadJournal() error {
	remote, err := a.vault.GetMetadataVersion(a.cfg.LibraryID, JournalName)
	if err != nil {
		return fmt.Errorf("checking remote journal version: %w", err)
	}
	if remote > a.op.ID {
		a.logger.Warn("remote journal is newer, not uploading", "local", a.op.ID, "remote", remote)
		return nil
	}

	tmpDir, err := os.MkdirTemp("", "shelf-journal-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for journal snapshot: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, "journal.db")
	if err := a.db.BackupTo(tmpPath); err != nil {
		return fmt.Errorf("snapshotting journal: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening journal snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat journal snapshot: %w", err)
	}
	if err := a.vault.PutMetadata(a.cfg.LibraryID, JournalName, f, info.Size(), a.op.ID); err != nil {
		return fmt.Errorf("uploading journal to vault: %w", err)
	}
	return nil
}
