package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"loadsurge/internal/alert"
	"loadsurge/internal/behavior"
	"loadsurge/internal/cli"
	"loadsurge/internal/config"
	"loadsurge/internal/executor"
	"loadsurge/internal/logging"
	"loadsurge/internal/metrics"
	"loadsurge/internal/monitor"
	"loadsurge/internal/orchestrator"
	"loadsurge/internal/scenario"
	"loadsurge/internal/storage"
)

var (
	url           string
	method        string
	body          string
	headers       []string
	users         int
	duration      time.Duration
	rampUp        time.Duration
	thinkTime     time.Duration
	timeout       time.Duration
	seed          uint64
	maxLatency    time.Duration
	maxErrorRate  float64
	minThroughput float64
	monitorEvery  time.Duration
	insecure      bool
	outPrefix     string
	noHistory     bool
)

var runCmd = &cobra.Command{
	Use:   "run [run-file.yaml]",
	Short: "Run a load test from a run file or from flags",
	Example: `  loadsurge run --url http://localhost:8080/fast --users 20 --duration 30s
  loadsurge run spike.yaml --out reports/spike`,
	Args: cobra.MaximumNArgs(1),
}

func init() {
	runCmd.RunE = runLoad
	f := runCmd.Flags()
	f.StringVarP(&url, "url", "u", "", "target URL (ignored with a run file)")
	f.StringVarP(&method, "method", "X", "GET", "HTTP method")
	f.StringVarP(&body, "body", "b", "", "request body, templated")
	f.StringSliceVarP(&headers, "header", "H", nil, `HTTP header, e.g. "Key: Value"`)
	f.IntVarP(&users, "users", "U", 10, "concurrent users")
	f.DurationVarP(&duration, "duration", "d", 10*time.Second, "run duration")
	f.DurationVar(&rampUp, "ramp-up", 0, "time over which users are started")
	f.DurationVar(&thinkTime, "think-time", 0, "pause between a user's actions")
	f.DurationVar(&timeout, "timeout", config.DefaultTimeout, "per-action timeout")
	f.Uint64Var(&seed, "seed", 0, "seed for reproducible action selection (0 = random)")
	f.DurationVar(&maxLatency, "max-latency", 0, "mean latency threshold (unset = off)")
	f.Float64Var(&maxErrorRate, "max-error-rate", 0, "error rate threshold in [0,1] (unset = off)")
	f.Float64Var(&minThroughput, "min-throughput", 0, "throughput floor in req/s (unset = off)")
	f.DurationVar(&monitorEvery, "monitor", 0, "resource sampling interval; enables live alerts (0 = off)")
	f.BoolVarP(&insecure, "insecure", "k", false, "skip TLS verification")
	f.StringVarP(&outPrefix, "out", "o", "", "write <prefix>.json and <prefix>.csv reports")
	f.BoolVar(&noHistory, "no-history", false, "do not record the run in history")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	viper.BindPFlag("metrics-addr", f.Lookup("metrics-addr"))
}

func runLoad(cmd *cobra.Command, args []string) error {
	log := logging.Named("run")

	file, target, err := buildRun(args)
	if err != nil {
		return err
	}

	reg := behavior.NewRegistry()
	builtins, err := executor.Register(reg, file.Load.Seed, executor.HTTPOptions{InsecureSkipVerify: insecure})
	if err != nil {
		return err
	}
	defer builtins.HTTP.CloseIdle()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := orchestrator.Options{
		Log:    logging.Named("orchestrator"),
		Probes: monitor.Network(builtins.HTTP),
	}
	if addr := viper.GetString("metrics-addr"); addr != "" {
		exp := metrics.NewExporter()
		opts.Recorders = append(opts.Recorders, exp)
		opts.OnAlert = exp.ObserveAlert
		go func() {
			if err := exp.Serve(ctx, addr, log); err != nil {
				log.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	o, err := orchestrator.New(file.Load, reg, opts)
	if err != nil {
		return err
	}
	plan, err := file.Scenario.Plan(o.Config())
	if err != nil {
		return err
	}

	var hist *storage.Store
	if !noHistory {
		hist, err = storage.NewStore(viper.GetString("history-dir"))
		if err != nil {
			log.Warn("history disabled", zap.Error(err))
		}
	}

	_, err = cli.Start(ctx, o, plan, cli.Options{
		Out:       cmd.OutOrStdout(),
		Target:    target,
		OutPrefix: outPrefix,
		History:   hist,
	})
	return err
}

// buildRun loads the run file, or assembles a single-action HTTP run from
// flags when none is given.
func buildRun(args []string) (*config.File, string, error) {
	if len(args) == 1 {
		f, err := config.Load(args[0])
		if err != nil {
			return nil, "", err
		}
		return f, args[0], nil
	}
	if url == "" {
		return nil, "", fmt.Errorf("%w: --url or a run file is required", config.ErrInvalidConfig)
	}

	spec := behavior.SingleAction("http", behavior.Target{
		Address: url,
		Method:  method,
		Body:    body,
		Headers: parseHeaders(headers),
	}, behavior.Fixed(thinkTime), timeout)

	load := config.LoadConfig{
		Users:    users,
		Duration: duration,
		RampUp:   rampUp,
		Timeout:  timeout,
		Seed:     seed,
		Thresholds: flagThresholds(),
		Behavior:   &spec,
	}
	if monitorEvery > 0 {
		load.Monitoring = &config.MonitoringConfig{SampleInterval: monitorEvery}
	}
	load.ApplyDefaults()
	if err := load.Validate(); err != nil {
		return nil, "", err
	}
	return &config.File{Load: load, Scenario: config.ScenarioConfig{Pattern: scenario.PatternConstant}}, url, nil
}

// flagThresholds enables only the threshold flags given on the command line,
// so --max-error-rate 0 means no errors tolerated.
func flagThresholds() alert.Thresholds {
	var th alert.Thresholds
	f := runCmd.Flags()
	if f.Changed("max-latency") {
		th.ResponseTime = alert.Limit(maxLatency)
	}
	if f.Changed("max-error-rate") {
		th.ErrorRate = alert.Limit(maxErrorRate)
	}
	if f.Changed("min-throughput") {
		th.Throughput = alert.Limit(minThroughput)
	}
	return th
}

func parseHeaders(raw []string) map[string]string {
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return out
}
