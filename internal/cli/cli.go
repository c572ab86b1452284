package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"loadsurge/internal/orchestrator"
	"loadsurge/internal/report"
	"loadsurge/internal/scenario"
	"loadsurge/internal/stats"
	"loadsurge/internal/storage"
)

// Options control the headless run output.
type Options struct {
	Out io.Writer
	// Target is shown in the header and kept in history.
	Target string
	// OutPrefix, when set, writes <prefix>.json and <prefix>.csv.
	OutPrefix string
	History   *storage.Store
	// Tick is the progress refresh interval.
	Tick time.Duration
}

// Start runs plan while printing a progress line, then prints the summary,
// writes exports and saves a history entry.
func Start(ctx context.Context, o *orchestrator.Orchestrator, plan scenario.Plan, opts Options) (*report.RunReport, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Tick <= 0 {
		opts.Tick = 200 * time.Millisecond
	}
	printHeader(opts.Out, plan, o, opts.Target)

	type result struct {
		rep *report.RunReport
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := o.Run(ctx, plan)
		done <- result{rep, err}
	}()

	startTime := time.Now()
	total := plan.TotalDuration()
	ticker := time.NewTicker(opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case res := <-done:
			if res.err != nil {
				return nil, res.err
			}
			if live, ok := o.Live(); ok {
				fmt.Fprintln(opts.Out, progressLine(live, time.Since(startTime), total))
			}
			fmt.Fprintln(opts.Out)
			fmt.Fprintln(opts.Out, RenderSummary(res.rep))
			finish(opts, res.rep)
			return res.rep, nil
		case <-ticker.C:
			if live, ok := o.Live(); ok {
				fmt.Fprint(opts.Out, "\r"+progressLine(live, time.Since(startTime), total))
			}
		}
	}
}

func printHeader(w io.Writer, plan scenario.Plan, o *orchestrator.Orchestrator, target string) {
	cfg := o.Config()
	fmt.Fprintf(w, "\nSTARTING LOADSURGE RUN\n")
	fmt.Fprintf(w, "%s\n", strings.Repeat("=", 70))
	if target != "" {
		fmt.Fprintf(w, "Target     : %s\n", target)
	}
	fmt.Fprintf(w, "Pattern    : %s (%d stages, %s collectors)\n", plan.Pattern, len(plan.Stages), plan.Collectors)
	for _, s := range plan.Stages {
		fmt.Fprintf(w, "  - %s\n", s.Label)
	}
	fmt.Fprintf(w, "Duration   : %s\n", plan.TotalDuration())
	fmt.Fprintf(w, "Timeout    : %s\n", cfg.Timeout)
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", 70))
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func progressLine(live stats.LiveStats, elapsed, total time.Duration) string {
	pct := 1.0
	if total > 0 {
		pct = min(elapsed.Seconds()/total.Seconds(), 1)
	}
	rps := 0.0
	if elapsed > 0 {
		rps = float64(live.Requests) / elapsed.Seconds()
	}
	return fmt.Sprintf("%s %3.0f%% | %s/%s | RPS: %.1f | OK: %d | Err: %d | p50 %.1fms p99 %.1fms",
		progressBar(pct, 20), pct*100,
		elapsed.Round(time.Second), total,
		rps, live.Success, live.Fail, live.P50Ms, live.P99Ms)
}

func finish(opts Options, rep *report.RunReport) {
	if opts.OutPrefix != "" {
		fmt.Fprintf(opts.Out, "\nWriting reports with prefix: %s\n", opts.OutPrefix)
		for _, ext := range []string{".json", ".csv"} {
			if err := report.Export(rep, opts.OutPrefix+ext); err != nil {
				fmt.Fprintf(opts.Out, "export %s failed: %v\n", ext, err)
			}
		}
		fmt.Fprintf(opts.Out, "Reports saved to %s.{json,csv}\n", opts.OutPrefix)
	}
	if opts.History != nil {
		if err := opts.History.Save(storage.FromReport(rep, opts.Target)); err != nil {
			fmt.Fprintf(opts.Out, "saving history failed: %v\n", err)
		}
	}
}
