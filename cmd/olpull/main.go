package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"olpull/internal/commands/pull"
	"olpull/internal/commands/snapshots"
	"olpull/internal/config"
	"olpull/internal/logging"
	"olpull/internal/snapshot"

	"github.com/spf13/cobra"
)

func newRootCmd(stderr io.Writer) *cobra.Command {
	var (
		cfg             config.Config
		verbose         bool
		pullCmdFlags    pull.Flags
		listCmdFlags    snapshots.ListFlags
		restoreCmdFlags snapshots.RestoreFlags
	)

	withStore := func(ctx context.Context, fn func(*snapshot.Store) error) error {
		store, err := snapshot.Open(ctx, cfg.Snapshot)
		if err != nil {
			return err
		}
		defer store.Close(ctx)
		return fn(store)
	}

	rootCmd := &cobra.Command{
		Use:   "olpull <project_id> <cookie> <base_url>",
		Short: "Download an Overleaf project and unpack it locally.",
		Long: `Download an Overleaf project as a zip archive and unpack it into a local directory.
The cookie is the value of the overleaf.sid session cookie, with or without the
"overleaf.sid=" prefix. Pass "-" to type it without echo.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(stderr, verbose)
			cmd.SetContext(logger.WithContext(cmd.Context()))

			var err error
			cfg, err = config.Load(".env")
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return pull.Run(cmd.Context(), pullCmdFlags, cfg, args[0], args[1], args[2], cmd.OutOrStdout())
		},
	}

	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage stored project snapshots.",
		Long:  `Manage project archives stored with --snapshot. The store is selected with OLPULL_SNAPSHOT_DRIVER.`,
	}

	listCmd := &cobra.Command{
		Use:   "list [project_id]",
		Short: "List stored snapshots.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			return withStore(cmd.Context(), func(store *snapshot.Store) error {
				return snapshots.List(cmd.Context(), store, listCmdFlags, project, cmd.OutOrStdout())
			})
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore <key>",
		Short: "Extract a stored snapshot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store *snapshot.Store) error {
				return snapshots.Restore(cmd.Context(), store, restoreCmdFlags, args[0], cmd.OutOrStdout())
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a stored snapshot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store *snapshot.Store) error {
				return snapshots.Delete(cmd.Context(), store, args[0], cmd.OutOrStdout())
			})
		},
	}

	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(listCmd, restoreCmd, deleteCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log request details")

	// =============
	// rootCmd flags
	// =============
	rootCmd.Flags().StringVarP(
		&pullCmdFlags.OutputDir, "output-dir", "o", ".", "Directory to extract the project into",
	)
	rootCmd.Flags().BoolVar(
		&pullCmdFlags.NoFlatten, "no-flatten", false, "Keep the archive's top-level folder",
	)
	rootCmd.Flags().StringVar(
		&pullCmdFlags.KeepZip, "keep-zip", "", "Also save the downloaded archive to this path",
	)
	rootCmd.Flags().BoolVar(
		&pullCmdFlags.Snapshot, "snapshot", false, "Store the downloaded archive in the snapshot store",
	)
	rootCmd.Flags().DurationVar(
		&pullCmdFlags.Timeout, "timeout", 0, "HTTP timeout (default from OLPULL_TIMEOUT, else 5m)",
	)

	// =============
	// listCmd flags
	// =============
	listCmd.Flags().BoolVar(&listCmdFlags.JSON, "json", false, "Print snapshots as JSON")

	// ================
	// restoreCmd flags
	// ================
	restoreCmd.Flags().StringVarP(
		&restoreCmdFlags.OutputDir, "output-dir", "o", ".", "Directory to extract the snapshot into",
	)
	restoreCmd.Flags().BoolVar(
		&restoreCmdFlags.NoFlatten, "no-flatten", false, "Keep the archive's top-level folder",
	)
	restoreCmd.Flags().BoolVar(&restoreCmdFlags.JSON, "json", false, "Print the result as JSON")

	return rootCmd
}

// execute runs olpull with args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "olpull: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
