// nrmserver is the NRM daemon: it loads a topology, (re)builds the
// per-model AvailableConnection tables and per-channel ILP skeletons if
// asked to, then serves the line-oriented TCP request protocol (spec §6)
// until interrupted.
//
// Usage:
//
//	nrmserver serve                 # run the daemon
//	nrmserver build-ac              # precompute AvailableConnection tables
//	nrmserver build-skeleton        # precompute pf/solvec ILP skeletons
//	nrmserver version
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aist-nrm/nrm/pkg/acbuilder"
	"github.com/aist-nrm/nrm/pkg/audit"
	"github.com/aist-nrm/nrm/pkg/config"
	"github.com/aist-nrm/nrm/pkg/health"
	"github.com/aist-nrm/nrm/pkg/logutil"
	"github.com/aist-nrm/nrm/pkg/nrmops"
	"github.com/aist-nrm/nrm/pkg/pathfinder"
	"github.com/aist-nrm/nrm/pkg/protocol"
	"github.com/aist-nrm/nrm/pkg/reservation"
	"github.com/aist-nrm/nrm/pkg/solver"
	"github.com/aist-nrm/nrm/pkg/topo"
	"github.com/aist-nrm/nrm/pkg/util"
	"github.com/aist-nrm/nrm/pkg/version"

	redislib "github.com/go-redis/redis/v8"
)

var (
	configPath       string
	healthAddr       string
	verbose          bool
	rebuildSkeletons bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "nrmserver",
	Short:             "Network Resource Manager daemon for optical fabrics",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			return util.SetLogLevel("debug")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (overrides default)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newServeCmd(),
		newBuildACCmd(),
		newBuildSkeletonCmd(),
		newVersionCmd(),
	)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// newBuildACCmd precomputes every distinct device model's
// AvailableConnection table (spec §4.3), a prerequisite for both
// build-skeleton and serve.
func newBuildACCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build-ac",
		Short: "Precompute per-device-model AvailableConnection tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.TopoXML == "" {
				return fmt.Errorf("config has no topo_xml")
			}
			top, err := topo.Load(cfg.TopoXML, "", false)
			if err != nil {
				return fmt.Errorf("loading topology: %w", err)
			}
			runner := solver.NewLocal(util.WithField("component", "acbuilder"))
			if err := acbuilder.Build(cmd.Context(), top, cfg.AcDir(), runner); err != nil {
				return err
			}
			fmt.Println("AvailableConnection tables written to " + cfg.AcDir())
			return nil
		},
	}
}

// newBuildSkeletonCmd precomputes every pf/solvec ILP skeleton (spec
// §4.4), requiring build-ac to have already run (it loads the topology
// with AC tables attached, from cfg.AcDir()).
func newBuildSkeletonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build-skeleton",
		Short: "Precompute per-channel and per-model-group ILP skeleton files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.TopoXML == "" {
				return fmt.Errorf("config has no topo_xml")
			}
			top, err := topo.Load(cfg.TopoXML, cfg.AcDir(), true)
			if err != nil {
				return fmt.Errorf("loading topology: %w", err)
			}
			if err := checkACFilesPresent(top, cfg.AcDir()); err != nil {
				return err
			}
			_, _, err = pathfinder.BuildAllSkeletons(top, cfg.AcDir(), cfg.SkeletonDir(),
				cfg.GetPfTmpModel(), cfg.GetSolvecTmpModel(), cfg.GetNumComps())
			if err != nil {
				return fmt.Errorf("building skeletons: %w", err)
			}
			fmt.Println("ILP skeletons written to " + cfg.SkeletonDir())
			return nil
		},
	}
}

// checkACFilesPresent verifies build-ac already produced both AC output
// files for every distinct device model in top, so build-skeleton fails
// fast with an actionable message instead of partway through rendering.
func checkACFilesPresent(top *topo.Topology, acDir string) error {
	seen := map[string]bool{}
	for _, c := range top.AllComponents() {
		if seen[c.Model] {
			continue
		}
		seen[c.Model] = true
		modelPath, connPath := pathfinder.ModelFilesFor(acDir, c.Model)
		for _, p := range []string{modelPath, connPath} {
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("missing AvailableConnection table for model %s (%s): run build-ac first: %w", c.Model, p, err)
			}
		}
	}
	return nil
}

// newServeCmd brings up the full daemon: load topology + AC + skeletons,
// build the reservation manager and orchestrator, then serve the TCP
// protocol until SIGINT/SIGTERM (spec §5: "on Ctrl+C the server finishes
// the current handler iteration, closes the DB, and exits").
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the NRM request server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&healthAddr, "health-addr", "", "optional /healthz and /metrics listen address")
	cmd.Flags().BoolVar(&rebuildSkeletons, "rebuild-skeletons", false, "rebuild ILP skeletons instead of reloading persisted ones from a prior build-skeleton run")
	return cmd
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Logger != "" {
		if err := util.SetLogLevel(cfg.Logger); err != nil {
			util.WithField("error", err).Warn("nrmserver: invalid logger level in config")
		}
	}
	logCfg, err := logutil.Load(cfg.LogConfig)
	if err != nil {
		return fmt.Errorf("loading log config: %w", err)
	}
	if err := logutil.Apply(logCfg); err != nil {
		return fmt.Errorf("applying log config: %w", err)
	}
	if cfg.TopoXML == "" {
		return fmt.Errorf("config has no topo_xml")
	}

	top, err := topo.Load(cfg.TopoXML, cfg.AcDir(), true)
	if err != nil {
		return fmt.Errorf("loading topology: %w", err)
	}
	util.WithFields(map[string]any{
		"components": len(top.AllComponents()), "channels": len(top.AllChannels()),
	}).Info("nrmserver: topology loaded")

	var pfBuilder, solvecBuilder pathfinder.OverlayBuilder
	if !rebuildSkeletons {
		pfBuilder, solvecBuilder, err = pathfinder.LoadAllSkeletons(top, cfg.AcDir(), cfg.SkeletonDir(),
			cfg.GetPfTmpModel(), cfg.GetSolvecTmpModel())
		if err != nil {
			util.WithField("error", err).Info("nrmserver: no reusable skeletons found, building fresh")
		}
	}
	if pfBuilder == nil || solvecBuilder == nil {
		pfBuilder, solvecBuilder, err = pathfinder.BuildAllSkeletons(top, cfg.AcDir(), cfg.SkeletonDir(),
			cfg.GetPfTmpModel(), cfg.GetSolvecTmpModel(), cfg.GetNumComps())
		if err != nil {
			return fmt.Errorf("building skeletons: %w", err)
		}
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening reservation store: %w", err)
	}
	if c, ok := store.(interface{ Close() error }); ok {
		defer c.Close()
	}

	rsvMgr, err := reservation.NewManager(ctx, top, store, store != nil)
	if err != nil {
		return fmt.Errorf("initializing reservation manager: %w", err)
	}

	pathSolver, closeSolver, err := openSolver(cfg)
	if err != nil {
		return fmt.Errorf("opening solver: %w", err)
	}
	if closeSolver != nil {
		defer closeSolver()
	}

	driver := &pathfinder.Driver{
		SkeletonDir:        cfg.SkeletonDir(),
		Solver:             pathSolver,
		DeleteTmp:          true,
		DumpGLPSol:         false,
		BuildPFOverlay:     pfBuilder,
		BuildSolvecOverlay: solvecBuilder,
	}
	orch := &pathfinder.Orchestrator{
		Topo:         top,
		Driver:       driver,
		NumComps:     cfg.GetNumComps(),
		ModelFileKey: cfg.GetPfTmpModel(),
		DataFileKey:  cfg.GetSolvecTmpModel(),
	}

	tempBase, err := os.MkdirTemp("", "nrm-")
	if err != nil {
		return fmt.Errorf("creating temp base dir: %w", err)
	}
	defer os.RemoveAll(tempBase)

	handler := nrmops.NewHandler(top, rsvMgr, orch, cfg, tempBase)
	if cfg.AuditLogPath != "" {
		auditLogger, err := audit.NewFileLogger(cfg.AuditLogPath, audit.RotationConfig{MaxSize: 50 << 20, MaxBackups: 5})
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer auditLogger.Close()
		handler.Audit = auditLogger
	}

	addr := fmt.Sprintf("%s:%d", cfg.GetNrmHost(), cfg.GetNrmPort())
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	util.WithField("addr", addr).Info("nrmserver: listening")

	srv := protocol.NewServer(ln, handler)
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(serveCtx) }()

	var healthSrv *health.Server
	if healthAddr != "" {
		checker := health.NewChecker(
			&health.TopologyCheck{Topo: top},
			&health.StoreCheck{Store: store},
			&health.SolverCheck{Lookup: func() (string, error) { return exec.LookPath("glpsol") }},
		)
		healthSrv = health.NewServer(healthAddr, checker, prometheus.NewRegistry())
		go func() {
			if err := healthSrv.Start(serveCtx); err != nil {
				util.WithField("error", err).Warn("nrmserver: health server stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		util.Logger.Info("nrmserver: signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			util.WithField("error", err).Warn("nrmserver: server stopped")
		}
	}

	cancel()
	ln.Close()
	return nil
}

// openStore selects a Redis-backed store when cfg.RedisAddr is set, a
// file-backed store under cfg.DBDir when set, or nil (in-memory
// reservations only, no durable writeDB target) otherwise.
func openStore(ctx context.Context, cfg *config.Config) (reservation.Store, error) {
	if cfg.RedisAddr != "" {
		client := redislib.NewClient(&redislib.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("pinging redis at %s: %w", cfg.RedisAddr, err)
		}
		return reservation.NewRedisStore(client), nil
	}
	if cfg.DBDir != "" {
		return reservation.NewFileStore(cfg.DBDir)
	}
	return nil, nil
}

// openSolver selects an SSH-backed Solver when cfg.RemoteSolverHost is set
// (glpsol runs on the controller host next to the device), or a Local
// solver otherwise. The returned close func tears down the SSH connection
// and is nil for the local case.
func openSolver(cfg *config.Config) (solver.Solver, func(), error) {
	if cfg.RemoteSolverHost == "" {
		return solver.NewLocal(util.WithField("component", "solver")), nil, nil
	}
	remote, err := solver.DialRemote(cfg.RemoteSolverHost, cfg.RemoteSolverPort,
		cfg.RemoteSolverUser, cfg.RemoteSolverPass, util.WithField("component", "remote-solver"))
	if err != nil {
		return nil, nil, err
	}
	return remote, func() { remote.Close() }, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Info())
		},
	}
}
