package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/OCAP2/bouncelog/internal/config"
	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootOptions struct {
	configDir string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           ServiceName,
		Short:         "Bouncing-ball position capture service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(opts.configDir); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v, using defaults\n", err)
			}
			if opts.logLevel != "" {
				viper.Set("logLevel", opts.logLevel)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config", ".", "directory containing "+config.FileName)
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logLevel (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(),
		newViewerCmd(),
		newMigrateCmd(),
		newListCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				viper.Set("server.port", port)
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runServe(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port and PORT)")
	return cmd
}

func newViewerCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "viewer",
		Short: "Run an interactive terminal client against a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL != "" {
				viper.Set("viewer.serverUrl", serverURL)
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runViewer(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server root URL (overrides viewer.serverUrl)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the storage schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := setupRuntime(nil)
			defer rt.Close()

			storageCfg := config.GetStorageConfig()
			backend, err := openStorage(storageCfg, rt.SlogManager, rt.Logger)
			if err != nil {
				return err
			}
			rt.Logger.Info("Schema is up to date", "type", storageCfg.Type)
			return backend.Close()
		},
	}
}

func newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the persisted position log, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := setupRuntime(nil)
			defer rt.Close()

			backend, err := openStorage(config.GetStorageConfig(), rt.SlogManager, rt.Logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			rows, err := backend.ListAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("list positions: %w", err)
			}
			return printSnapshots(cmd.OutOrStdout(), rows, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as a JSON array")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (built %s)\n", ServiceName, BuildVersion, BuildDate)
		},
	}
}

func printSnapshots(w io.Writer, rows []core.Snapshot, asJSON bool) error {
	if asJSON {
		if rows == nil {
			rows = []core.Snapshot{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tX\tY\tZ\tTIMESTAMP")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f\t%s\n", r.ID, r.X, r.Y, r.Z, r.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
