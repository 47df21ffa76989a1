// Command nodefailerd runs the node-failure control loop as a standalone
// daemon: a Raft-replicated node repository, the periodic failer and
// expirer maintainers, and the health/ready/metrics HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nodefailer/corectl/pkg/api"
	"github.com/nodefailer/corectl/pkg/clock"
	"github.com/nodefailer/corectl/pkg/config"
	"github.com/nodefailer/corectl/pkg/deploy"
	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/expirer"
	"github.com/nodefailer/corectl/pkg/failer"
	"github.com/nodefailer/corectl/pkg/liveness"
	"github.com/nodefailer/corectl/pkg/log"
	"github.com/nodefailer/corectl/pkg/maintainer"
	"github.com/nodefailer/corectl/pkg/manager"
	"github.com/nodefailer/corectl/pkg/orchestrator"
	"github.com/nodefailer/corectl/pkg/servicemonitor"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:     "nodefailerd",
	Short:   "nodefailerd runs the node-failure control loop",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"nodefailerd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the node-failure control loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		bootstrap, _ := cmd.Flags().GetBool("bootstrap")
		apiAddr, _ := cmd.Flags().GetString("api-addr")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if nodeID != "" {
			cfg.Raft.NodeID = nodeID
		}
		if bindAddr != "" {
			cfg.Raft.BindAddr = bindAddr
		}
		if dataDir != "" {
			cfg.Raft.DataDir = dataDir
		}
		if apiAddr != "" {
			cfg.API.BindAddr = apiAddr
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Logging.Level),
			JSONOutput: cfg.Logging.JSON,
		})
		logger := log.WithComponent("main")

		mgr, err := manager.NewManager(&manager.Config{
			NodeID:   cfg.Raft.NodeID,
			BindAddr: cfg.Raft.BindAddr,
			DataDir:  cfg.Raft.DataDir,
		})
		if err != nil {
			return fmt.Errorf("create manager: %w", err)
		}

		if bootstrap || cfg.Raft.Bootstrap {
			if err := mgr.Bootstrap(); err != nil {
				return fmt.Errorf("bootstrap cluster: %w", err)
			}
		} else {
			if err := mgr.JoinExisting(); err != nil {
				return fmt.Errorf("start raft: %w", err)
			}
		}

		repo := mgr.AsRepository()
		clk := clock.System{}

		livenessTracker := liveness.NewInMemory()
		// No health-check targets are wired: this core's non-goals
		// exclude owning service discovery. The monitor is started with
		// an empty target set, so it reports no application instances
		// and phases C and D see no down/up signals.
		monitor := servicemonitor.NewCheckerMonitor(nil, cfg.Failer.NodeRequestInterval, cfg.Failer.DownTimeLimit)
		monitor.Start()
		orch := orchestrator.NewInMemory()

		// Tenant nodes are this core's primary redeployment target; this
		// daemon has no per-application node-type registry to consult
		// instead.
		capacity := deploy.NewSchedulerCapacityChecker(repo, domain.TypeTenant)
		deployer := deploy.NewDeployer(capacity, &logOnlyActivator{})

		failerCfg := failer.Config{
			Interval:            cfg.Failer.Interval,
			DownTimeLimit:       cfg.Failer.DownTimeLimit,
			NodeRequestInterval: cfg.Failer.NodeRequestInterval,
			ThrottlePolicy:      cfg.ThrottlePolicy(),
		}
		nodeFailer, err := failer.New(failerCfg, repo, livenessTracker, monitor, orch, deployer, clk)
		if err != nil {
			return fmt.Errorf("create failer: %w", err)
		}

		nodeExpirer := expirer.New(expirer.Config{
			Interval:    cfg.Expirer.Interval,
			FailTimeout: cfg.Expirer.FailTimeout,
			Environment: cfg.Environment,
		}, repo, clk)

		sched := maintainer.NewScheduler(nil, clk)
		sched.Register(nodeFailer)
		sched.Register(nodeExpirer)

		collector := manager.NewMetricsCollector(mgr)
		collector.Start()
		defer collector.Stop()

		server := api.NewServer(mgr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			logger.Info().Msg("shutdown signal received")
			cancel()
		}()

		go func() {
			if err := sched.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("maintainer scheduler stopped")
			}
		}()
		go func() {
			if err := server.Start(ctx, cfg.API.BindAddr); err != nil {
				logger.Error().Err(err).Msg("api server stopped")
			}
		}()

		logger.Info().
			Str("node_id", cfg.Raft.NodeID).
			Str("raft_addr", cfg.Raft.BindAddr).
			Str("api_addr", cfg.API.BindAddr).
			Msg("nodefailerd started")

		<-ctx.Done()
		if err := mgr.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("error shutting down manager")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("node-id", "", "Raft node ID (overrides config)")
	runCmd.Flags().String("bind", "", "Raft bind address (overrides config)")
	runCmd.Flags().String("data-dir", "", "data directory (overrides config)")
	runCmd.Flags().String("api-addr", "", "HTTP API bind address (overrides config)")
	runCmd.Flags().Bool("bootstrap", false, "bootstrap a new single-node cluster")
}

// logOnlyActivator is a placeholder Activator: this core's non-goals
// exclude specifying the redeployment algorithm itself, so the daemon
// binary ships with a stub that logs the request. A real deployment
// wires deploy.Activator to its own orchestrator/deployer/scheduler.
type logOnlyActivator struct{}

func (logOnlyActivator) Activate(ctx context.Context, applicationID string) error {
	logger := log.WithComponent("deploy")
	logger.Info().Str("application_id", applicationID).
		Msg("activation requested, no activator wired")
	return nil
}
