package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opsmirror/playbooksyncd/internal/config"
	"github.com/opsmirror/playbooksyncd/internal/gitcmd"
	"github.com/opsmirror/playbooksyncd/internal/syncer"
	"github.com/opsmirror/playbooksyncd/internal/webhook"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	jsonOut   bool

	// Subcommand flags
	historyLimit int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "playbooksyncd",
	Short: "Synchronize operational playbooks from a Git repository",
	Long: `playbooksyncd mirrors a Git repository holding playbooks-as-code into a
local working copy for the operations platform to execute.

It can run as a oneshot sync (via systemd timer or cron), answer read-only
queries about the mirrored repository, roll the playbook directory back to a
historical commit, or run as a long-running webhook daemon that syncs on
GitHub push events.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Clone or update the local playbook mirror",
	Long: `Sync pulls the configured branch into the local working copy. If the
repository has not been cloned yet, a shallow clone bootstraps it first.`,
	RunE: runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show repository configuration and live sync state",
	RunE:  runStatus,
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Preview pending changes from the remote branch",
	Long: `Diff fetches the remote branch without merging and lists the files that
a sync would change. The working copy is left untouched.`,
	RunE: runDiff,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show commit history for the playbook directory",
	RunE:  runHistory,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <commit>",
	Short: "Restore the playbook directory to a historical commit",
	Long: `Rollback checks out the playbook directory as of the given commit. Files
outside the playbook directory are not touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List playbook files in the local mirror",
	RunE:  runFiles,
}

var oplogCmd = &cobra.Command{
	Use:   "oplog",
	Short: "Show the sync operation log for this invocation",
	RunE:  runOplog,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Serve starts a long-running HTTP server that listens for GitHub webhook
events and pulls when the configured repository is updated. When auto_sync
is enabled it also pulls on a periodic interval.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("playbooksyncd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/playbooksyncd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	historyCmd.Flags().IntVar(&historyLimit, "limit", syncer.DefaultHistoryLimit, "maximum number of history entries")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(oplogCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the config and builds the synchronizer shared by all commands.
func setup() (context.Context, context.CancelFunc, *syncer.Synchronizer, *config.Config, error) {
	ctx, cancel := setupSignalHandler()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		cancel()
		return nil, nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	runner := gitcmd.NewExecRunner(cfg.Sync.CommandTimeout)
	sync := syncer.New(cfg, runner, logger)

	return ctx, cancel, sync, cfg, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel, sync, _, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	rec, err := sync.Pull(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(rec)
	}

	if rec.UpToDate {
		fmt.Println("Already up to date.")
		return nil
	}
	fmt.Printf("%s %s -> %s (%d files changed)\n", rec.Action, shortCommit(rec.PreviousCommit), shortCommit(rec.Commit), rec.FilesChanged)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel, sync, _, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	st := sync.Status(ctx)
	if jsonOut {
		return printJSON(st)
	}

	fmt.Printf("Remote:        %s\n", st.RemoteURL)
	fmt.Printf("Branch:        %s\n", st.Branch)
	fmt.Printf("Local path:    %s\n", st.LocalPath)
	fmt.Printf("Playbook dir:  %s\n", st.PlaybookDir)
	fmt.Printf("Auto sync:     %v\n", st.AutoSync)
	if !st.IsCloned {
		color.Yellow("Not cloned yet. Run 'playbooksyncd sync' to bootstrap.")
		return nil
	}
	fmt.Printf("Checked out:   %s (branch %s)\n", shortCommit(st.LastCommit), st.CurrentBranch)
	if !st.LastSync.IsZero() {
		fmt.Printf("Last sync:     %s\n", st.LastSync.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("Playbooks:     %d\n", st.PlaybookCount)
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx, cancel, sync, _, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	entries, err := sync.DiffPreview(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No pending changes.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s\n", colorizeStatus(e), e.Path)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel, sync, _, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	records, err := sync.History(ctx, historyLimit)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(records)
	}

	for _, rec := range records {
		fmt.Printf("%s  %s  %s <%s>  %s\n",
			color.YellowString(shortCommit(rec.Hash)),
			rec.Date, rec.AuthorName, rec.AuthorEmail, rec.Subject)
	}
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx, cancel, sync, _, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	rec, err := sync.Rollback(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(rec)
	}
	fmt.Printf("Playbook directory restored to %s\n", shortCommit(rec.Commit))
	return nil
}

func runFiles(cmd *cobra.Command, args []string) error {
	_, cancel, sync, _, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	files, err := sync.PlaybookFiles()
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(files)
	}

	for _, f := range files {
		fmt.Printf("%8d  %s  %s\n", f.Size, f.Modified.Format("2006-01-02 15:04"), f.Path)
	}
	return nil
}

func runOplog(cmd *cobra.Command, args []string) error {
	_, cancel, sync, _, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	return printJSON(sync.Operations())
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel, sync, cfg, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	if !cfg.Serve.Enabled {
		return fmt.Errorf("serve is not enabled in the configuration")
	}

	logger := setupLogger()
	server, err := webhook.NewServer(cfg, sync, logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	return server.Start(ctx)
}

// colorizeStatus renders a diff status letter with the conventional color.
func colorizeStatus(e syncer.DiffEntry) string {
	switch e.Status {
	case syncer.StatusAdded:
		return color.GreenString(e.Code)
	case syncer.StatusModified:
		return color.YellowString(e.Code)
	case syncer.StatusDeleted:
		return color.RedString(e.Code)
	case syncer.StatusRenamed:
		return color.CyanString(e.Code)
	default:
		return e.Code
	}
}

func shortCommit(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/playbooksyncd/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"repo", cfg.Repo.URL,
		"branch", cfg.Repo.Branch,
		"playbook_dir", cfg.Repo.PlaybookDir,
		"local_path", cfg.Paths.LocalPath)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
