package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for shelf.
type Config struct {
	LibraryID   string           `toml:"library_id"`
	BaseDir     string           `toml:"base_dir"`
	LibraryRoot string           `toml:"library_root"`
	LogDir      string           `toml:"log_dir"`
	Library     LibraryConfig    `toml:"library"`
	Filesystem  FilesystemConfig `toml:"filesystem"`
	Database    DatabaseConfig   `toml:"database"`
	Vaults      []VaultConfig    `toml:"vaults"`
	Encryption  EncryptionConfig `toml:"encryption"`
}

// LibraryConfig holds presentation and import settings for the library.
type LibraryConfig struct {
	RootLabel           string   `toml:"root_label"`            // breadcrumb label of the root, defaults to "Home"
	DefaultSort         string   `toml:"default_sort"`          // name-asc, name-desc, newest, oldest or size
	SearchCaseSensitive bool     `toml:"search_case_sensitive"` // default is case-insensitive
	ImportExtensions    []string `toml:"import_extensions"`     // empty imports every file
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// DatabaseConfig represents configuration for the operation journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// VaultConfig represents configuration for a backup vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores such as MinIO

	// Static S3 credentials. When empty the default AWS credential chain is used.
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig selects how backups are encrypted.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DefaultImportExtensions are the document and image formats the reader opens.
var DefaultImportExtensions = []string{
	"pdf", "epub", "txt", "doc", "docx",
	"jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp",
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(libraryID, baseDir string) *Config {
	return &Config{
		LibraryID:   libraryID,
		BaseDir:     baseDir,
		LibraryRoot: filepath.Join(baseDir, "library"),
		LogDir:      filepath.Join(baseDir, "log"),
		Library: LibraryConfig{
			RootLabel:        "Home",
			DefaultSort:      "name-asc",
			ImportExtensions: append([]string(nil), DefaultImportExtensions...),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "shelf.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "shelf.key"),
		},
	}
}

// Validate checks the tagged unions and required fields.
func (c *Config) Validate() error {
	var errs []error
	if c.LibraryID == "" {
		errs = append(errs, errors.New("library_id is required"))
	}
	if c.LibraryRoot == "" {
		errs = append(errs, errors.New("library_root is required"))
	}
	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.DataDir == "" {
			errs = append(errs, errors.New("database.data_dir is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database type %q", c.Database.Type))
	}
	for i, v := range c.Vaults {
		switch v.Type {
		case "memory":
		case "filesystem":
			if v.FSVaultRoot == "" {
				errs = append(errs, fmt.Errorf("vaults[%d]: fs_vault_root is required", i))
			}
		case "s3":
			if v.S3Bucket == "" {
				errs = append(errs, fmt.Errorf("vaults[%d]: s3_bucket is required", i))
			}
		default:
			errs = append(errs, fmt.Errorf("vaults[%d]: unknown vault type %q", i, v.Type))
		}
	}
	switch c.Encryption.Type {
	case "", "none", "age", "test":
	default:
		errs = append(errs, fmt.Errorf("unknown encryption type %q", c.Encryption.Type))
	}
	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
