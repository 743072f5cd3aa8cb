package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		LibraryID:   "lib-abc",
		BaseDir:     "/home/user/.local/share/shelf",
		LibraryRoot: "/home/user/Documents/Library",
		LogDir:      "/home/user/.local/share/shelf/log",
		Library: LibraryConfig{
			RootLabel:        "首頁",
			DefaultSort:      "newest",
			ImportExtensions: []string{"pdf", "epub"},
		},
		Filesystem: FilesystemConfig{Ignore: []string{"*.log", ".git"}},
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/shelf/db"},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
			{Type: "s3", Name: "minio", S3Bucket: "books", S3Endpoint: "http://localhost:9000"},
		},
		Encryption: EncryptionConfig{Type: "age", PublicKeyPath: "/k/shelf.pub", PrivateKeyPath: "/k/shelf.key"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.LibraryID != original.LibraryID {
		t.Errorf("LibraryID = %q, want %q", got.LibraryID, original.LibraryID)
	}
	if got.LibraryRoot != original.LibraryRoot {
		t.Errorf("LibraryRoot = %q, want %q", got.LibraryRoot, original.LibraryRoot)
	}
	if got.Library.RootLabel != "首頁" {
		t.Errorf("Library.RootLabel = %q, want %q", got.Library.RootLabel, "首頁")
	}
	if got.Library.DefaultSort != "newest" {
		t.Errorf("Library.DefaultSort = %q, want %q", got.Library.DefaultSort, "newest")
	}
	if len(got.Library.ImportExtensions) != 2 {
		t.Errorf("len(Library.ImportExtensions) = %d, want 2", len(got.Library.ImportExtensions))
	}
	if len(got.Vaults) != 2 {
		t.Fatalf("len(Vaults) = %d, want 2", len(got.Vaults))
	}
	if got.Vaults[0].FSVaultRoot != "/backup/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vaults[0].FSVaultRoot, "/backup/vault")
	}
	if got.Vaults[1].S3Endpoint != "http://localhost:9000" {
		t.Errorf("Vault.S3Endpoint = %q", got.Vaults[1].S3Endpoint)
	}
	if got.Encryption.Type != "age" {
		t.Errorf("Encryption.Type = %q, want age", got.Encryption.Type)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if len(got.Filesystem.Ignore) != 2 {
		t.Fatalf("len(Filesystem.Ignore) = %d, want 2", len(got.Filesystem.Ignore))
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("lib-1", "/data/shelf")

	if cfg.LibraryID != "lib-1" {
		t.Errorf("LibraryID = %q, want %q", cfg.LibraryID, "lib-1")
	}
	if cfg.LibraryRoot != "/data/shelf/library" {
		t.Errorf("LibraryRoot = %q, want %q", cfg.LibraryRoot, "/data/shelf/library")
	}
	if cfg.LogDir != "/data/shelf/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/shelf/log")
	}
	if cfg.Database.DataDir != "/data/shelf/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/shelf/db")
	}
	if cfg.Encryption.PublicKeyPath != "/data/shelf/keys/shelf.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
	if cfg.Library.RootLabel != "Home" {
		t.Errorf("Library.RootLabel = %q, want Home", cfg.Library.RootLabel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	// The default extension list is a copy.
	cfg.Library.ImportExtensions[0] = "changed"
	if DefaultImportExtensions[0] != "pdf" {
		t.Error("NewConfig shares DefaultImportExtensions")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing library id", func(c *Config) { c.LibraryID = "" }, "library_id"},
		{"missing root", func(c *Config) { c.LibraryRoot = "" }, "library_root"},
		{"unknown database", func(c *Config) { c.Database.Type = "postgres" }, "database type"},
		{"sqlite without data dir", func(c *Config) { c.Database.DataDir = "" }, "data_dir"},
		{"unknown vault", func(c *Config) { c.Vaults = []VaultConfig{{Type: "ftp"}} }, "vault type"},
		{"filesystem vault without root", func(c *Config) { c.Vaults = []VaultConfig{{Type: "filesystem"}} }, "fs_vault_root"},
		{"s3 vault without bucket", func(c *Config) { c.Vaults = []VaultConfig{{Type: "s3"}} }, "s3_bucket"},
		{"unknown encryption", func(c *Config) { c.Encryption.Type = "rot13" }, "encryption type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewConfig("lib", "/data")
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "shelf.toml")
		cfg := NewConfig("l1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "shelf.toml")
		cfg := NewConfig("l1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})

	t.Run("refuses invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "shelf.toml")
		cfg := NewConfig("", dir)

		if err := Init(path, cfg); err == nil {
			t.Fatal("Init() expected error for invalid config")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("config file written despite error: %v", err)
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "shelf.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.LibraryID != "read-test" {
			t.Errorf("LibraryID = %q, want %q", got.LibraryID, "read-test")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/shelf.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
