package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shelf/internal/app"
	"shelf/internal/backup"
	"shelf/internal/config"
	"shelf/internal/encryption"
	"shelf/internal/library"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var verbose bool

// newApp reads the config and creates a ShelfApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "mkdir", "backup").
func newApp(operation string, args []string) (*app.ShelfApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewShelfApp(cfg, operation, app.WithParameters(args...), app.WithVerbose(verbose))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "shelf",
	Short:        "Document library manager",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		libraryID := uuid.New().String()
		cfg := config.NewConfig(libraryID, defaults["base_dir"])

		if root, _ := cmd.Flags().GetString("library-root"); root != "" {
			abs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolving library root: %w", err)
			}
			cfg.LibraryRoot = abs
		}
		if dir, _ := cmd.Flags().GetString("vault-dir"); dir != "" {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving vault dir: %w", err)
			}
			cfg.Vaults = []config.VaultConfig{{Type: "filesystem", Name: "local", FSVaultRoot: abs}}
		}

		encrypt, _ := cmd.Flags().GetBool("encrypt")
		var passphrase string
		if encrypt {
			cfg.Encryption.Type = "age"
			passphrase, err = readNewPassphrase()
			if err != nil {
				return err
			}
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		if encrypt {
			enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
			if err != nil {
				return fmt.Errorf("creating encryptor: %w", err)
			}
			if err := enc.Setup(passphrase); err != nil {
				return fmt.Errorf("setting up encryption keys: %w", err)
			}
			fmt.Printf("Encryption keys written to %s\n", filepath.Dir(cfg.Encryption.PublicKeyPath))
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Library ID:   %s\n", libraryID)
		fmt.Printf("Library root: %s\n", cfg.LibraryRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Library ID:   %s\n", cfg.LibraryID)
		fmt.Printf("Library root: %s\n", cfg.LibraryRoot)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Journal:      %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Encryption:   %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:        %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls [FOLDER]",
	Short: "List a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sortOrder, _ := cmd.Flags().GetString("sort")

		a, err := newApp("ls", args)
		if err != nil {
			return err
		}
		defer a.Close()

		folder := ""
		if len(args) > 0 {
			folder = args[0]
		}
		l, err := a.List(folder, sortOrder)
		if err != nil {
			return err
		}

		fmt.Println(l.Breadcrumb)
		for _, f := range l.Folders {
			n, _ := a.Store().CountEntries(f.ID)
			fmt.Printf("  %s/  (%d)\n", f.Name, n)
		}
		for _, f := range l.Files {
			fmt.Printf("  %-40s  %10s  %s\n", f.Name, formatSize(f.Size), f.ModifiedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// tree command
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show the whole library tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("tree", args)
		if err != nil {
			return err
		}
		defer a.Close()

		return printTree(cmd.OutOrStdout(), a.Store())
	},
}

// mkdir command
var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("mkdir", args)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.MakeFolder(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created %s\n", a.Store().LogicalPath(id))
		return nil
	},
}

// rename command
var renameCmd = &cobra.Command{
	Use:   "rename PATH NEWNAME",
	Short: "Rename a file or folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("rename", args)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Rename(args[0], args[1])
	},
}

// mv command
var mvCmd = &cobra.Command{
	Use:   "mv FILE FOLDER",
	Short: "Move a file into another folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("mv", args)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Move(args[0], args[1])
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Delete a file, or a folder with everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("rm", args)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Remove(args[0])
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import SRC...",
	Short: "Copy files or directories into the library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		recursive, _ := cmd.Flags().GetBool("recursive")
		byType, _ := cmd.Flags().GetString("by-type")
		if byType != "" && (to != "" || recursive) {
			return fmt.Errorf("--by-type cannot be combined with --to or --recursive")
		}

		a, err := newApp("import", args)
		if err != nil {
			return err
		}
		defer a.Close()

		progress := func(p library.ImportProgress) {
			if p.Err != nil {
				fmt.Printf("[%d/%d] FAILED %s: %v\n", p.Index, p.Total, p.Source, p.Err)
				return
			}
			fmt.Printf("[%d/%d] %s\n", p.Index, p.Total, p.Name)
		}
		var res library.ImportResult
		if byType != "" {
			res, err = a.ImportByType(args, byType, progress)
		} else {
			res, err = a.Import(args, to, recursive, progress)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d file(s) and %d folder(s), skipped %d\n", res.Files, res.Folders, res.Skipped)
		if res.Failed() {
			return fmt.Errorf("%d file(s) and %d folder(s) failed", res.FailedFiles, res.FailedFolders)
		}
		return nil
	},
}

// find command
var findCmd = &cobra.Command{
	Use:   "find QUERY",
	Short: "Search folder and file names",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")

		a, err := newApp("find", args)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Find(args[0], caseSensitive)
		if err != nil {
			return err
		}
		if len(res.Folders) == 0 && len(res.Files) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, f := range res.Folders {
			fmt.Printf("%s/\n", a.Store().RelativePath(f.ID))
		}
		for _, f := range res.Files {
			fmt.Printf("%s\n", joinLibraryPath(a.Store().RelativePath(f.FolderID), f.Name))
		}
		return nil
	},
}

// open command
var openCmd = &cobra.Command{
	Use:   "open FILE",
	Short: "Print the path to open a file with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("open", args)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.Open(args[0])
		if err != nil {
			return err
		}
		fmt.Println(p)
		return nil
	},
}

// info command
var infoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Describe a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("info", args)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Info(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Name:      %s\n", d.Name)
		fmt.Printf("Location:  %s\n", d.Location)
		fmt.Printf("Path:      %s\n", d.Path)
		fmt.Printf("Size:      %s\n", formatSize(d.Size))
		fmt.Printf("Modified:  %s\n", d.ModifiedAt.Format("2006-01-02 15:04:05"))
		if d.ContentType != "" {
			fmt.Printf("Type:      %s\n", d.ContentType)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history", args)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-8s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
			if op.Message != "" {
				fmt.Printf("      %s\n", op.Message)
			}
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back the library up to the configured vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backup", args)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Backup(func(p backup.Progress) {
			if p.Uploaded {
				fmt.Printf("[%d/%d] %s\n", p.Index, p.Total, p.Path)
			}
		})
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup #%d: %d file(s), %d uploaded (%s)\n", res.Version, res.Files, res.Uploaded, formatSize(res.Bytes))
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore DEST",
	Short: "Restore the newest backup into a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("restore", args)
		if err != nil {
			return err
		}
		defer a.Close()

		encrypted, err := a.NeedsPassphrase()
		if err != nil {
			return err
		}
		var passphrase string
		if encrypted {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		res, err := a.Restore(args[0], passphrase, func(p backup.Progress) {
			fmt.Printf("[%d/%d] %s\n", p.Index, p.Total, p.Path)
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored %d file(s) from backup #%d", len(res.Paths), res.Version)
		if res.Renamed > 0 {
			fmt.Printf(", %d renamed to avoid overwriting", res.Renamed)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Echo every log line to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("library-root", "", "Library directory (default $SHELF_HOME/library)")
	configInitCmd.Flags().String("vault-dir", "", "Back up to a filesystem vault in this directory")
	configInitCmd.Flags().Bool("encrypt", false, "Encrypt backups with a passphrase-protected age key")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().String("sort", "", "Sort order: name-asc, name-desc, newest, oldest or size")
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("to", "", "Destination folder (default the library root)")
	importCmd.Flags().BoolP("recursive", "r", false, "Import directories with their contents")
	importCmd.Flags().String("by-type", "", "Import only files of this type (pdf, epub, images) into its own top-level folder")
	rootCmd.AddCommand(findCmd)
	findCmd.Flags().Bool("case-sensitive", false, "Match case exactly")
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
