// Command csched-demo drives a synthetic cn-tree against a live
// Scheduler: it simulates an ingest workload, lets the scheduler spill,
// compact, split and join nodes in response, and prints periodic
// status so the scheduling behavior can be observed end to end.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/config"
	"github.com/cuemby/cn-csched/pkg/csched"
	"github.com/cuemby/cn-csched/pkg/health"
	"github.com/cuemby/cn-csched/pkg/log"
	"github.com/cuemby/cn-csched/pkg/metalog"
	"github.com/cuemby/cn-csched/pkg/metrics"
)

var (
	flagConfigPath  string
	flagDataDir     string
	flagDuration    time.Duration
	flagIngestEvery time.Duration
	flagIngestBytes int64
	flagMetricsAddr string
	flagJSONLogs    bool
)

func main() {
	root := &cobra.Command{
		Use:   "csched-demo",
		Short: "Drive a synthetic cn-tree against the compaction scheduler",
	}
	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "YAML config file (defaults built in if omitted)")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "./csched-demo-data", "directory for the metadata log")
	root.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "emit structured JSON logs instead of console output")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo workload until it exits or is interrupted",
		RunE:  runDemo,
	}
	runCmd.Flags().DurationVar(&flagDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().DurationVar(&flagIngestEvery, "ingest-every", 200*time.Millisecond, "interval between synthetic ingest batches")
	runCmd.Flags().Int64Var(&flagIngestBytes, "ingest-bytes", 4<<20, "approximate bytes per synthetic ingest batch")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: flagJSONLogs})

	params := config.Default()
	if flagConfigPath != "" {
		loaded, err := config.Load(flagConfigPath)
		if err != nil {
			return fmt.Errorf("csched-demo: %w", err)
		}
		params = loaded
	}

	if err := os.MkdirAll(flagDataDir, 0o755); err != nil {
		return fmt.Errorf("csched-demo: create data dir: %w", err)
	}
	mlog, err := metalog.Open(flagDataDir)
	if err != nil {
		return fmt.Errorf("csched-demo: open metalog: %w", err)
	}
	defer mlog.Close()

	// Stand in for the metalog collaborator the scheduler depends on:
	// a loopback listener the demo probes with a TCPChecker, exactly
	// as a production deployment would probe its real metalog process.
	collaborator, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("csched-demo: start collaborator stand-in: %w", err)
	}
	defer collaborator.Close()
	go acceptAndDrop(collaborator)

	healthChecker := health.NewTCPChecker(collaborator.Addr().String()).WithTimeout(time.Second)
	healthStatus := health.NewStatus()
	healthCfg := health.DefaultConfig()
	healthCfg.Interval = 2 * time.Second
	go runHealthLoop(cmd.Context(), healthChecker, healthStatus, healthCfg)
	healthFn := func() bool { return healthStatus.Healthy }

	runID := uuid.New().String()
	treeID := "demo-" + runID[:8]
	tree := cn.NewTree(treeID, cn.Params{FanoutCeiling: 64, SplitSizeMiB: 4, SplitKeys: 50_000})

	sched := csched.Create("csched-demo", params, healthFn, mlog)
	sched.SetThrottleSensor(func(sval int64) {
		log.WithComponent("throttle").Debug().Int64("sval", sval).Msg("csched-demo: sensor update")
	})
	sched.TreeAdd(tree)

	go serveMetrics(flagMetricsAddr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var deadline <-chan time.Time
	if flagDuration > 0 {
		deadline = time.After(flagDuration)
	}

	ingestTicker := time.NewTicker(flagIngestEvery)
	defer ingestTicker.Stop()
	statusTicker := time.NewTicker(3 * time.Second)
	defer statusTicker.Stop()

	rng := rand.New(rand.NewSource(1))
	var nextKvsetID uint64

	log.WithComponent("csched-demo").Info().Str("tree", treeID).Msg("csched-demo: workload started")

	for {
		select {
		case <-ctx.Done():
			return shutdown(sched, tree)
		case <-deadline:
			return shutdown(sched, tree)
		case <-ingestTicker.C:
			nextKvsetID++
			keys := int64(500 + rng.Intn(2000))
			tombs := int64(rng.Intn(int(keys) / 10))
			alen := flagIngestBytes
			wlen := alen
			root := tree.Root()
			root.PrependKvsets(cn.NewKvset(nextKvsetID, 1, keys, tombs, 0, alen, wlen, nil))
			if err := sched.NotifyIngest(tree, alen, wlen); err != nil {
				log.WithComponent("csched-demo").Warn().Err(err).Msg("csched-demo: ingest rejected")
			}
		case <-statusTicker.C:
			printStatus(sched)
		}
	}
}

func printStatus(sched *csched.Scheduler) {
	status := sched.CompactStatusGet()
	shape := sched.ShapeSummary()
	log.WithComponent("csched-demo").Info().
		Bool("healthy", sched.Healthy()).
		Bool("idle", sched.Idle()).
		Int64("samp_curr_x100", status.SampCurrX100).
		Int64("samp_lwm_x100", status.SampLWMX100).
		Int64("samp_hwm_x100", status.SampHWMX100).
		Int("shape_longest_root", shape.LongestRoot).
		Int("shape_longest_leaf", shape.LongestLeaf).
		Bool("shape_bad", shape.BadShape).
		Msg("csched-demo: status")
}

func shutdown(sched *csched.Scheduler, tree *cn.Tree) error {
	log.WithComponent("csched-demo").Info().Msg("csched-demo: shutting down")
	sched.TreeRemove(tree, false)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if err := sched.Destroy(); err == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("csched-demo: tree did not quiesce before shutdown deadline")
}

// acceptAndDrop accepts and immediately closes connections against
// the collaborator stand-in so the TCPChecker's dials succeed.
func acceptAndDrop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}
}

func runHealthLoop(ctx context.Context, checker *health.TCPChecker, status *health.Status, cfg health.Config) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status.Update(checker.Check(ctx), cfg)
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithComponent("metrics").Warn().Err(err).Msg("csched-demo: metrics server stopped")
	}
}
