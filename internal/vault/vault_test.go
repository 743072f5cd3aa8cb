package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"shelf/internal/backup"
)

// vaultFactories lists the vaults that run locally; each gets the same checks.
var vaultFactories = map[string]func(t *testing.T) backup.Vault{
	"memory": func(t *testing.T) backup.Vault {
		return NewMemoryVault("test")
	},
	"filesystem": func(t *testing.T) backup.Vault {
		v, err := NewFileSystemVault("test", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		return v
	},
}

func TestVault_Content(t *testing.T) {
	for kind, newVault := range vaultFactories {
		t.Run(kind, func(t *testing.T) {
			tests := []struct {
				name    string
				data    string
				size    int64
				wantErr bool
			}{
				{name: "store content successfully", data: "hello world", size: 11},
				{name: "size mismatch", data: "hello", size: 100, wantErr: true},
				{name: "empty content", data: "", size: 0},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					v := newVault(t)
					err := v.PutContent("abc123", strings.NewReader(tt.data), tt.size)
					if (err != nil) != tt.wantErr {
						t.Fatalf("PutContent() error = %v, wantErr %v", err, tt.wantErr)
					}

					has, err := v.HasContent("abc123")
					if err != nil {
						t.Fatalf("HasContent() error = %v", err)
					}
					if has == tt.wantErr {
						t.Errorf("HasContent() = %v after PutContent error %v", has, tt.wantErr)
					}
					if tt.wantErr {
						return
					}

					var buf bytes.Buffer
					if err := v.GetContent("abc123", &buf); err != nil {
						t.Fatalf("GetContent() error = %v", err)
					}
					if buf.String() != tt.data {
						t.Errorf("content = %q, want %q", buf.String(), tt.data)
					}
				})
			}

			t.Run("idempotent", func(t *testing.T) {
				v := newVault(t)
				data := "hello world"
				for i := 0; i < 2; i++ {
					if err := v.PutContent("abc123", strings.NewReader(data), int64(len(data))); err != nil {
						t.Fatalf("PutContent() #%d error = %v", i+1, err)
					}
				}
				var buf bytes.Buffer
				if err := v.GetContent("abc123", &buf); err != nil {
					t.Fatalf("GetContent() error = %v", err)
				}
				if buf.String() != data {
					t.Errorf("content = %q, want %q", buf.String(), data)
				}
			})

			t.Run("missing content", func(t *testing.T) {
				v := newVault(t)
				var buf bytes.Buffer
				if err := v.GetContent("nonexistent", &buf); !errors.Is(err, backup.ErrMissing) {
					t.Errorf("GetContent() error = %v, want ErrMissing", err)
				}
				has, err := v.HasContent("nonexistent")
				if err != nil || has {
					t.Errorf("HasContent() = %v, %v; want false, nil", has, err)
				}
			})
		})
	}
}

func TestVault_Metadata(t *testing.T) {
	for kind, newVault := range vaultFactories {
		t.Run(kind, func(t *testing.T) {
			t.Run("unknown item has version zero", func(t *testing.T) {
				v := newVault(t)
				version, err := v.GetMetadataVersion("lib-1", "manifest")
				if err != nil {
					t.Fatalf("GetMetadataVersion() error = %v", err)
				}
				if version != 0 {
					t.Errorf("GetMetadataVersion() = %d, want 0", version)
				}

				var buf bytes.Buffer
				if err := v.GetMetadata("lib-1", "manifest", &buf); !errors.Is(err, backup.ErrMissing) {
					t.Errorf("GetMetadata() error = %v, want ErrMissing", err)
				}
			})

			t.Run("later put overwrites", func(t *testing.T) {
				v := newVault(t)
				for i, data := range []string{"version 1", "version 2"} {
					if err := v.PutMetadata("lib-1", "manifest", strings.NewReader(data), int64(len(data)), int64(i+1)); err != nil {
						t.Fatalf("PutMetadata(%q) error = %v", data, err)
					}
				}

				var buf bytes.Buffer
				if err := v.GetMetadata("lib-1", "manifest", &buf); err != nil {
					t.Fatalf("GetMetadata() error = %v", err)
				}
				if buf.String() != "version 2" {
					t.Errorf("metadata = %q, want %q", buf.String(), "version 2")
				}
				version, err := v.GetMetadataVersion("lib-1", "manifest")
				if err != nil {
					t.Fatalf("GetMetadataVersion() error = %v", err)
				}
				if version != 2 {
					t.Errorf("GetMetadataVersion() = %d, want 2", version)
				}
			})

			t.Run("items are kept per library and name", func(t *testing.T) {
				v := newVault(t)
				put := func(lib, name, data string) {
					t.Helper()
					if err := v.PutMetadata(lib, name, strings.NewReader(data), int64(len(data)), 1); err != nil {
						t.Fatalf("PutMetadata() error = %v", err)
					}
				}
				put("lib-1", "manifest", "one")
				put("lib-2", "manifest", "two")
				put("lib-1", "journal", "db")

				var buf bytes.Buffer
				if err := v.GetMetadata("lib-2", "manifest", &buf); err != nil {
					t.Fatalf("GetMetadata() error = %v", err)
				}
				if buf.String() != "two" {
					t.Errorf("lib-2 manifest = %q, want two", buf.String())
				}
			})

			t.Run("size mismatch", func(t *testing.T) {
				v := newVault(t)
				if err := v.PutMetadata("lib-1", "manifest", strings.NewReader("abc"), 10, 1); err == nil {
					t.Error("PutMetadata() expected size mismatch error")
				}
			})

			if err := newVault(t).ValidateSetup(); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}

func TestMemoryVault_ContentCount(t *testing.T) {
	v := NewMemoryVault("test")
	v.PutContent("a", strings.NewReader("x"), 1)
	v.PutContent("a", strings.NewReader("x"), 1)
	v.PutContent("b", strings.NewReader("y"), 1)
	if got := v.ContentCount(); got != 2 {
		t.Errorf("ContentCount() = %d, want 2", got)
	}
	if v.Name() != "test" {
		t.Errorf("Name() = %q", v.Name())
	}
}
