package etl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VerifyResult is the post-run count check for one destination table.
type VerifyResult struct {
	Table    string `json:"table"`
	Op       Op     `json:"op"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
	OK       bool   `json:"ok"`
	Message  string `json:"message,omitempty"`
}

// Report is the outcome of one run. It is produced even when the run fails.
type Report struct {
	RunID        string         `json:"run_id"`
	Job          string         `json:"job"`
	State        State          `json:"state"`
	DryRun       bool           `json:"dry_run"`
	ResumedFrom  interface{}    `json:"resumed_from,omitempty"`
	LastCursor   interface{}    `json:"last_cursor,omitempty"`
	Verification []VerifyResult `json:"verification,omitempty"`
	Error        string         `json:"error,omitempty"`
	Stats
}

func newReport(job string, dryRun bool) *Report {
	return &Report{
		RunID:  uuid.NewString(),
		Job:    job,
		State:  StateInit,
		DryRun: dryRun,
	}
}

// Verified reports whether every verification check passed. A run without
// verification counts as verified.
func (r *Report) Verified() bool {
	for _, v := range r.Verification {
		if !v.OK {
			return false
		}
	}
	return true
}

// Print writes the human readable summary.
func (r *Report) Print(w io.Writer) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	title := fmt.Sprintf("Migration report: %s", r.Job)
	if r.DryRun {
		title += " (DRY RUN)"
	}
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintf(w, "State:         %s\n", r.State)
	fmt.Fprintf(w, "Elapsed:       %s\n", r.Elapsed().Round(time.Millisecond))
	fmt.Fprintf(w, "Pages:         %d\n", r.Pages)
	fmt.Fprintf(w, "Total rows:    %d\n", r.Total)
	fmt.Fprintf(w, "Migrated:      %d\n", r.Migrated)
	fmt.Fprintf(w, "Skipped:       %d\n", r.Skipped)
	fmt.Fprintf(w, "Errored:       %d\n", r.Errored)
	fmt.Fprintf(w, "Storage delta: %s (written %s, removed %s)\n",
		formatBytes(r.StorageDelta()), formatBytes(r.BytesWritten), formatBytes(r.BytesRemoved))
	if r.Truncated {
		fmt.Fprintln(w, "Truncated:     yes, a cap stopped the run before the source was exhausted")
	}
	if r.ResumedFrom != nil {
		fmt.Fprintf(w, "Resumed from:  %v\n", r.ResumedFrom)
	}

	for _, v := range r.Verification {
		status := "OK"
		if !v.OK {
			status = "MISMATCH"
		}
		fmt.Fprintf(w, "Verify %-14s %s expected %d, found %d", v.Table+":", status, v.Expected, v.Actual)
		if v.Message != "" {
			fmt.Fprintf(w, " (%s)", v.Message)
		}
		fmt.Fprintln(w)
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(w, "Errored records:")
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  [%s] %s key=%v: %s\n", f.Class, f.Table, f.Key, f.Reason)
		}
		if int64(len(r.Failures)) < r.Errored {
			fmt.Fprintf(w, "  ... and %d more\n", r.Errored-int64(len(r.Failures)))
		}
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:         %s\n", r.Error)
	}
	fmt.Fprintln(w, line)
}

// WriteJSON persists the report as an indented JSON artifact.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func formatBytes(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%s%d B", sign, n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %ciB", sign, float64(n)/float64(div), "KMGTPE"[exp])
}
