package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Export writes r to path, choosing the format from the extension.
func Export(r *RunReport, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ExportCSV(r, path)
	case ".json":
		return ExportJSON(r, path)
	default:
		return fmt.Errorf("unsupported export format %q (want .json or .csv)", filepath.Ext(path))
	}
}

func ExportJSON(r *RunReport, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportCSV writes one row per stage followed by a "total" row.
func ExportCSV(r *RunReport, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var csvHeader = []string{
	"label", "users", "durationSec", "requests", "errors", "errorRate",
	"meanMs", "medianMs", "p95Ms", "p99Ms", "minMs", "maxMs", "throughput",
}

func WriteCSV(w io.Writer, r *RunReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range r.Stages {
		if err := cw.Write(row(s.Label, s.Users, s)); err != nil {
			return err
		}
	}
	total := StageResult{Duration: r.Summary.Duration, Summary: r.Summary}
	if err := cw.Write(row("total", 0, total)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func row(label string, users int, s StageResult) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	a := s.Summary
	return []string{
		label,
		strconv.Itoa(users),
		f(s.Duration.Seconds()),
		strconv.FormatUint(a.Requests, 10),
		strconv.FormatUint(a.Errors, 10),
		strconv.FormatFloat(a.ErrorRate, 'f', 4, 64),
		f(a.MeanMs),
		f(a.MedianMs),
		f(a.P95Ms),
		f(a.P99Ms),
		f(a.MinMs),
		f(a.MaxMs),
		f(a.Throughput),
	}
}
