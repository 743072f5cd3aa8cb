package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"shelf/internal/library"

	"golang.org/x/term"
)

// printTree writes the folder tree of store below its root label, folders
// before files, each level ordered by name.
func printTree(w io.Writer, store *library.Store) error {
	fmt.Fprintln(w, store.RootLabel())
	return printLevel(w, store, library.RootFolderID, "")
}

func printLevel(w io.Writer, store *library.Store, id library.FolderID, indent string) error {
	folders, err := store.ChildFolders(id)
	if err != nil {
		return err
	}
	files, err := store.ChildFiles(id)
	if err != nil {
		return err
	}
	library.SortFolders(folders, library.SortNameAsc)
	library.SortFiles(files, library.SortNameAsc)

	for _, f := range folders {
		fmt.Fprintf(w, "%s  %s/\n", indent, f.Name)
		if err := printLevel(w, store, f.ID, indent+"  "); err != nil {
			return err
		}
	}
	for _, f := range files {
		fmt.Fprintf(w, "%s  %s\n", indent, f.Name)
	}
	return nil
}

// joinLibraryPath joins a folder's relative path and a name.
func joinLibraryPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// formatSize renders n bytes with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// readPassphrase prompts on stderr and reads a line from the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// readNewPassphrase asks for a passphrase twice and checks both match.
func readNewPassphrase() (string, error) {
	first, err := readPassphrase("New passphrase: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", fmt.Errorf("passphrase cannot be empty")
	}
	second, err := readPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}
