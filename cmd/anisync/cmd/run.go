package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/jdholdren/anisync/internal/config"
	"github.com/jdholdren/anisync/internal/oauth"
	"github.com/jdholdren/anisync/internal/service"
	enginesync "github.com/jdholdren/anisync/internal/sync"
	"github.com/jdholdren/anisync/internal/web"
	"github.com/jdholdren/anisync/logger"
)

var (
	runOnce     bool
	runNoWeb    bool
	runInterval time.Duration
	runPort     int
	runMode     string
	runDryRun   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync loop, with the web dashboard unless disabled",
	Long: `Starts the periodic sync loop and the web dashboard. With --once a
single sync is performed and the process exits, which suits cron-style
scheduling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		applyRunFlags(cmd, &cfg)

		logger.Setup(cfg.LoggerFormat, cfg.Sync.LogLevel)

		if err := requireCredentials(cfg); err != nil {
			return err
		}
		mode, err := enginesync.ParseDirection(cfg.Sync.Mode)
		if err != nil {
			return err
		}
		interval, err := cfg.Sync.IntervalDuration()
		if err != nil {
			return err
		}

		store, err := oauth.LoadStore(cfg.TokenFile)
		if err != nil {
			return err
		}
		mgr := oauth.NewManager(cfg, store)

		engine, err := buildEngine(ctx, cfg, mgr)
		if err != nil {
			return err
		}

		dbx, repo, err := openHistory(cfg.HistoryFile)
		if err != nil {
			return err
		}
		defer dbx.Close()

		svc := service.New(engine, repo, reauthorizer(cfg, mgr), service.Config{
			Mode:     mode,
			Interval: interval,
			DryRun:   cfg.Sync.DryRun,
		})

		if runOnce {
			return syncOnce(ctx, svc, cfg.Sync.DryRun)
		}

		var g run.Group

		loopCtx, cancelLoop := context.WithCancel(ctx)
		g.Add(func() error {
			return svc.Loop(loopCtx)
		}, func(error) {
			cancelLoop()
		})

		if !runNoWeb {
			srvr := web.NewServer(web.ServerConfig{
				Host:       cfg.Web.Host,
				Port:       cfg.Web.Port,
				ConfigPath: configPath,
			}, svc, repo)

			g.Add(func() error {
				fmt.Printf("Dashboard listening on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
				return srvr.ListenAndServe()
			}, func(error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srvr.Shutdown(shutdownCtx) //nolint:errcheck
			})
		}

		g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

		err = g.Run()
		var sigErr run.SignalError
		if errors.As(err, &sigErr) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// Flags only override the file config when actually set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("mode") {
		cfg.Sync.Mode = runMode
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Sync.DryRun = runDryRun
	}
	if cmd.Flags().Changed("interval") {
		cfg.Sync.Interval = runInterval.String()
	}
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = runPort
	}
}

func syncOnce(ctx context.Context, svc *service.Service, dryRun bool) error {
	rn, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Println("Dry run, no changes were written.")
	}
	fmt.Printf("Synced %d, failed %d", rn.EntriesSynced, rn.EntriesFailed)
	if rn.Unmatched > 0 {
		fmt.Printf(", %d unmatched", rn.Unmatched)
	}
	fmt.Println()
	for _, msg := range rn.Errors {
		fmt.Printf("  %s\n", msg)
	}

	if !rn.Success {
		return fmt.Errorf("%d entries failed to sync", rn.EntriesFailed)
	}
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "sync once and exit")
	runCmd.Flags().BoolVar(&runNoWeb, "no-web", false, "disable the web dashboard")
	runCmd.Flags().DurationVar(&runInterval, "interval", time.Hour, "time between syncs")
	runCmd.Flags().IntVar(&runPort, "port", 8080, "web dashboard port")
	runCmd.Flags().StringVar(&runMode, "mode", "bidirectional", "sync mode (anilist-to-mal, mal-to-anilist, bidirectional)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "compute changes without writing them")

	rootCmd.AddCommand(runCmd)
}
