package etl

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// maxRecorded bounds the failure and skip lists kept for the report. Counters
// are always exact.
const maxRecorded = 1000

// Failure is a recorded skip or error.
type Failure struct {
	Key    interface{} `json:"key"`
	Table  string      `json:"table,omitempty"`
	Class  ErrorClass  `json:"class"`
	Reason string      `json:"reason"`
}

// Stats are the counters of one run. A Pipeline owns its Stats and mutates
// them only between batches.
type Stats struct {
	Total        int64     `json:"total"`
	Migrated     int64     `json:"migrated"`
	Skipped      int64     `json:"skipped"`
	Errored      int64     `json:"errored"`
	Pages        int       `json:"pages"`
	SkippedPages int       `json:"skipped_pages,omitempty"`
	Records      int64     `json:"records_written"`
	BytesWritten int64     `json:"bytes_written"`
	BytesRemoved int64     `json:"bytes_removed"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Truncated    bool      `json:"truncated"`

	Failures []Failure `json:"failures,omitempty"`
	Skips    []Failure `json:"skips,omitempty"`
}

func (s *Stats) addFailure(f Failure) {
	if len(s.Failures) < maxRecorded {
		s.Failures = append(s.Failures, f)
	}
}

func (s *Stats) addSkip(f Failure) {
	if len(s.Skips) < maxRecorded {
		s.Skips = append(s.Skips, f)
	}
}

// Elapsed is the run time so far, or the total once finished.
func (s *Stats) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// StorageDelta is the estimated change in stored bytes.
func (s *Stats) StorageDelta() int64 {
	return s.BytesWritten - s.BytesRemoved
}

// Rate is source rows per second.
func (s *Stats) Rate() float64 {
	secs := s.Elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Total) / secs
}

// Accounted reports whether every source row landed in exactly one bucket.
func (s *Stats) Accounted() bool {
	return s.Migrated+s.Skipped+s.Errored == s.Total
}

func (s *Stats) Fields() logrus.Fields {
	return logrus.Fields{
		"total":    s.Total,
		"migrated": s.Migrated,
		"skipped":  s.Skipped,
		"errored":  s.Errored,
		"pages":    s.Pages,
		"rate":     fmt.Sprintf("%.2f/s", s.Rate()),
	}
}
