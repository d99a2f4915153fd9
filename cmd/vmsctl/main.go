// Command vmsctl runs Pre-LR sync operations from cron or a shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/app"
	"github.com/chandanyadavsde/vms-v2/internal/buildinfo"
	"github.com/chandanyadavsde/vms-v2/internal/config"
	"github.com/chandanyadavsde/vms-v2/internal/utils"
	"github.com/spf13/cobra"
)

var (
	timeout  time.Duration
	tokenTTL time.Duration
	role     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "vmsctl",
	Short:         "Operate the VMS Pre-LR sync",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest new Pre-LR ids from NetSuite and sync their details",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		res, err := a.Sync.HarvestIDs(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	}),
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync details of every pending queue entry",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		processed, err := a.Sync.SyncDetails(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]int{"processed": processed})
	}),
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <id>",
	Short: "Print the raw NetSuite record for one internal id",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		record, err := a.Sync.FetchOne(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), record)
	}),
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Count queue entries still waiting for details",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		n, err := a.Sync.Pending(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]int64{"pending": n})
	}),
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		// app.New already migrated
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	}),
}

var rebuildRefsCmd = &cobra.Command{
	Use:   "rebuild-refs",
	Short: "Recompute every Pre-LR lrs index from the LR collection",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		n, err := a.Linker.RebuildLRRefs(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]int{"updated": n})
	}),
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint a bearer token for the write API, signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	token, err := utils.GenerateToken(args[0], role, cfg.JWTSecret, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd.OutOrStdout(), buildinfo.Current())
	},
}

type appRunner func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error

// withApp loads configuration, wires the app for one command and closes it.
func withApp(requireRemote bool, run appRunner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := config.NewLogger(cfg)
		log.SetOutput(cmd.ErrOrStderr())

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		a, err := app.New(ctx, cfg, log, app.Options{RequireRemote: requireRemote})
		if err != nil {
			return err
		}
		defer a.Close()
		return run(ctx, a, cmd, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout (0 disables)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&role, "role", "operator", "Role claim")

	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rebuildRefsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
