package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/deskbridge/deskbridge/internal/desk"
	"github.com/deskbridge/deskbridge/internal/logger"
	"github.com/deskbridge/deskbridge/internal/push"
	"github.com/deskbridge/deskbridge/internal/scheduler"
	"github.com/deskbridge/deskbridge/internal/storage/sqlite"
	syncengine "github.com/deskbridge/deskbridge/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "deskbridge",
	Short: "Bidirectional Jira / helpdesk sync",
	Long: `deskbridge keeps a local helpdesk ticket store in sync with Jira:
a periodic pull mirrors issues, comments and attachments into local
tickets, and local edits of linked tickets push back to Jira.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Init(viper.GetString("log-level"))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("db", "deskbridge.db", "path to the SQLite database")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Duration("sync-interval", 10*time.Minute, "background pull interval")

	_ = viper.BindPFlag("db", flags.Lookup("db"))
	_ = viper.BindPFlag("log-level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("sync-interval", flags.Lookup("sync-interval"))

	viper.SetEnvPrefix("DESKBRIDGE")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, syncCmd, testConnectionCmd, configCmd)
}

// openStore opens the configured database, returning a cleanup func.
func openStore(ctx context.Context) (*sqlite.Store, func(), error) {
	store, err := sqlite.New(ctx, viper.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background sync loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer cancel()

		store, cleanup, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		log := logger.GetLogger()
		svc := desk.New(store, log)
		orch := syncengine.NewOrchestrator(store, svc, log)

		sched := scheduler.New(viper.GetDuration("sync-interval"),
			func(ctx context.Context) error {
				_, err := orch.Run(ctx)
				return err
			}, log)

		// The hook must be in place before the scheduler goroutine can fire.
		svc.SetHook(push.NewMapper(svc, sched.TriggerNow, log))
		sched.Start(ctx)
		defer sched.Stop()

		// Eager first run instead of waiting a full interval. A failed
		// probe is not fatal: the ticker keeps retrying on its interval.
		if err := syncengine.StartSync(ctx, store, sched, log); err != nil {
			log.Warn("initial sync not started", zap.Error(err))
		}

		log.Info("deskbridge serving")
		<-ctx.Done()
		log.Info("shutting down")
		return nil
	},
}

var syncProjectsOnly bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one pull sync in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, cleanup, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		log := logger.GetLogger()
		svc := desk.New(store, log)
		orch := syncengine.NewOrchestrator(store, svc, log)

		if syncProjectsOnly {
			if err := orch.RunProjects(ctx); err != nil {
				return err
			}
			fmt.Println("Projects synced.")
			return nil
		}

		result, err := orch.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Processed %d issues (%d failed).\n", result.Processed, result.Failed)
		return nil
	},
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Probe the configured Jira account and refresh projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, cleanup, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		log := logger.GetLogger()
		svc := desk.New(store, log)
		orch := syncengine.NewOrchestrator(store, svc, log)

		if err := syncengine.TestConnection(ctx, store, orch); err != nil {
			return err
		}
		fmt.Println("Connected to Jira.")
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncProjectsOnly, "projects-only", false,
		"sync only the project list")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
