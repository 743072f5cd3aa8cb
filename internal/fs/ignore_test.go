package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	defaults := len(defaultIgnorePatterns)

	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log"})
		if len(m.patterns) != defaults+1 {
			t.Fatalf("expected %d patterns, got %d", defaults+1, len(m.patterns))
		}
		if m.patterns[defaults].pattern != "*.log" {
			t.Errorf("expected *.log, got %s", m.patterns[defaults].pattern)
		}
	})

	t.Run("classifies path vs basename patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.log", "drafts/**"})
		if m.patterns[defaults].matchPath {
			t.Error("*.log should not be a path pattern")
		}
		if !m.patterns[defaults+1].matchPath {
			t.Error("drafts/** should be a path pattern")
		}
	})

	t.Run("drops invalid patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"[unclosed"})
		if len(m.patterns) != defaults {
			t.Errorf("expected only default patterns, got %d", len(m.patterns))
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{
			name:         "basename glob matches file in root",
			patterns:     []string{"*.log"},
			relativePath: "app.log",
			want:         true,
		},
		{
			name:         "basename glob matches file in subdirectory",
			patterns:     []string{"*.log"},
			relativePath: filepath.Join("Books", "app.log"),
			want:         true,
		},
		{
			name:         "basename glob does not match different extension",
			patterns:     []string{"*.log"},
			relativePath: "novel.pdf",
			want:         false,
		},
		{
			name:         "ignore file is always ignored",
			patterns:     nil,
			relativePath: IgnoreFileName,
			want:         true,
		},
		{
			name:         "copy temp files are always ignored",
			patterns:     nil,
			relativePath: filepath.Join("Books", ".shelf-123456.tmp"),
			want:         true,
		},
		{
			name:         "path pattern matches exact relative path",
			patterns:     []string{"Books/drafts"},
			relativePath: filepath.Join("Books", "drafts"),
			want:         true,
		},
		{
			name:         "path pattern does not match wrong path",
			patterns:     []string{"Books/drafts"},
			relativePath: filepath.Join("Comics", "drafts"),
			want:         false,
		},
		{
			name:         "leading slash anchors at the root",
			patterns:     []string{"/Books/drafts"},
			relativePath: filepath.Join("Books", "drafts"),
			want:         true,
		},
		{
			name:         "double star spans directories",
			patterns:     []string{"**/cache/*.bin"},
			relativePath: filepath.Join("a", "b", "cache", "x.bin"),
			want:         true,
		},
		{
			name:         "single star stays within a directory",
			patterns:     []string{"Books/*.pdf"},
			relativePath: filepath.Join("Books", "sub", "x.pdf"),
			want:         false,
		},
		{
			name:         "question mark wildcard",
			patterns:     []string{"?.txt"},
			relativePath: "a.txt",
			want:         true,
		},
		{
			name:         "brace alternatives",
			patterns:     []string{"*.{tmp,part}"},
			relativePath: "download.part",
			want:         true,
		},
		{
			name:         "no patterns matches ordinary file",
			patterns:     nil,
			relativePath: "anything.txt",
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			got := m.Match(tt.relativePath)
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads patterns from file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, IgnoreFileName)
		content := "*.log\n# comment\n\n*.tmp\nBooks/drafts\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(patterns) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}

		m := NewIgnoreMatcher(patterns)
		if len(m.patterns) != len(defaultIgnorePatterns)+3 {
			t.Errorf("expected %d parsed patterns, got %d", len(defaultIgnorePatterns)+3, len(m.patterns))
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile("/nonexistent/" + IgnoreFileName)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}
