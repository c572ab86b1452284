package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"loadsurge/internal/alert"
	"loadsurge/internal/report"
	"loadsurge/internal/stats"
	"loadsurge/internal/storage"
	"loadsurge/internal/styles"
)

func row(label, value string) string {
	return styles.Label.Render(label) + styles.Value.Render(value)
}

// RenderSummary lays out a finished report as styled panels.
func RenderSummary(rep *report.RunReport) string {
	s := rep.Summary
	title := "LOAD TEST RESULTS"
	if rep.Interrupted {
		title += " (interrupted)"
	}

	overview := []string{
		styles.Title.Render(title),
		row("Run", rep.ID),
		row("Duration", s.Duration.Round(time.Millisecond).String()),
		row("Requests", fmt.Sprintf("%d", s.Requests)),
		row("Success", fmt.Sprintf("%d", s.Successes)),
		row("Failures", fmt.Sprintf("%d", s.Errors)),
		row("Error rate", fmt.Sprintf("%.2f%%", s.ErrorRate*100)),
		row("Throughput", fmt.Sprintf("%.2f req/s", s.Throughput)),
		"",
		styles.Subtle.Render("response times (ms, successes only)"),
		row("Mean", fmt.Sprintf("%.2f", s.MeanMs)),
		row("Median", fmt.Sprintf("%.2f", s.MedianMs)),
		row("P95", fmt.Sprintf("%.2f", s.P95Ms)),
		row("P99", fmt.Sprintf("%.2f", s.P99Ms)),
		row("Min / Max", fmt.Sprintf("%.2f / %.2f", s.MinMs, s.MaxMs)),
		row("Sessions", fmt.Sprintf("%d closed, %d open, %.1f actions avg", s.Sessions.Closed, s.Sessions.Open, s.Sessions.AvgActions)),
	}
	blocks := []string{styles.Panel.Render(strings.Join(overview, "\n"))}

	if len(rep.Stages) > 1 {
		lines := []string{styles.Title.Render("STAGES")}
		for _, st := range rep.Stages {
			lines = append(lines, fmt.Sprintf("%-40s %6d req  %6.2f%% err  %8.2fms mean  %8.2f req/s",
				st.Label, st.Summary.Requests, st.Summary.ErrorRate*100, st.Summary.MeanMs, st.Summary.Throughput))
		}
		blocks = append(blocks, styles.Panel.Render(strings.Join(lines, "\n")))
	}

	if len(s.Resources) > 0 {
		lines := []string{styles.Title.Render("RESOURCES")}
		kinds := make([]string, 0, len(s.Resources))
		for k := range s.Resources {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			r := s.Resources[stats.ResourceKind(k)]
			lines = append(lines, row(k, fmt.Sprintf("mean %.2f  max %.2f  last %.2f  %s", r.Mean, r.Max, r.Last, r.Trend)))
		}
		blocks = append(blocks, styles.Panel.Render(strings.Join(lines, "\n")))
	}

	if len(s.ErrorCounts) > 0 {
		lines := []string{styles.Title.Render("FAILURE SUMMARY")}
		for _, e := range sortedErrors(s.ErrorCounts) {
			lines = append(lines, styles.Error.Render(fmt.Sprintf("%d x %s", s.ErrorCounts[e], e)))
		}
		blocks = append(blocks, styles.Panel.Render(strings.Join(lines, "\n")))
	}

	if len(rep.Alerts) > 0 {
		lines := []string{styles.Title.Render("ALERTS")}
		for _, a := range rep.Alerts {
			style := styles.Warn
			if a.Severity != alert.SeverityWarning {
				style = styles.Error
			}
			lines = append(lines, style.Render(fmt.Sprintf("[%s] %s", a.Severity, a.Message)))
		}
		blocks = append(blocks, styles.Panel.Render(strings.Join(lines, "\n")))
	}

	recs := []string{styles.Title.Render("RECOMMENDATIONS")}
	for _, r := range rep.Recommendations {
		style := styles.Text
		if r == report.AllGood {
			style = styles.Success
		}
		recs = append(recs, style.Render("- "+r))
	}
	blocks = append(blocks, styles.Panel.Render(strings.Join(recs, "\n")))

	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

// sortedErrors orders messages by count, most frequent first.
func sortedErrors(counts map[string]uint64) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// PrintHistory lists stored runs, newest first.
func PrintHistory(w io.Writer, items []storage.HistoryItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, styles.Subtle.Render("no runs recorded yet"))
		return
	}
	fmt.Fprintf(w, "%-36s  %-19s  %-11s  %5s  %8s  %7s  %9s\n", "ID", "STARTED", "PATTERN", "USERS", "REQUESTS", "ERR%", "MEAN MS")
	for _, it := range items {
		fmt.Fprintf(w, "%-36s  %-19s  %-11s  %5d  %8d  %6.2f%%  %9.2f\n",
			it.ID, it.Timestamp.Local().Format("2006-01-02 15:04:05"), it.Pattern,
			it.PeakUsers, it.Summary.TotalRequests, it.Summary.ErrorRate*100, it.Summary.AvgLatencyMs)
	}
}
