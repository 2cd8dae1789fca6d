// Package config loads runtime settings from the environment (populated from
// .env in main.go) and mapping files for table copy jobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ReadErrorAbort = "abort"
	ReadErrorSkip  = "skip"

	CapPolicyStop = "stop"
	CapPolicyFail = "fail"
)

// Config holds all settings for a migration run.
type Config struct {
	SourceURL string
	DestURL   string

	DryRun         bool
	BatchSize      int
	WriteBatchSize int
	MaxIterations  int
	MaxRows        int
	MonthsBack     int
	CutoffDate     time.Time
	BatchDelay     time.Duration
	ReadRetries    int
	OnReadError    string
	CapPolicy      string
	CreateSchema   bool
	Verify         bool

	ReportPath     string
	MetricsPath    string
	CheckpointPath string
	LogLevel       string
	LogFile        string

	SupabaseURL   string
	SupabaseKey   string
	MongoDatabase string
}

// LoadConfig reads the environment and validates the result.
func LoadConfig() (*Config, error) {
	r := &envReader{}
	cfg := &Config{
		SourceURL: os.Getenv("SOURCE_URL"),
		DestURL:   os.Getenv("DEST_URL"),

		DryRun:         r.boolOr("DRY_RUN", false),
		BatchSize:      r.intOr("BATCH_SIZE", 100),
		WriteBatchSize: r.intOr("WRITE_BATCH_SIZE", 50),
		MaxIterations:  r.intOr("MAX_ITERATIONS", 0),
		MaxRows:        r.intOr("MAX_ROWS", 0),
		MonthsBack:     r.intOr("MONTHS_BACK", 0),
		CutoffDate:     r.dateOr("CUTOFF_DATE"),
		BatchDelay:     r.durationOr("BATCH_DELAY", 0),
		ReadRetries:    r.intOr("READ_RETRIES", 2),
		OnReadError:    strings.ToLower(getEnvOrDefault("ON_READ_ERROR", ReadErrorAbort)),
		CapPolicy:      strings.ToLower(getEnvOrDefault("CAP_POLICY", CapPolicyStop)),
		CreateSchema:   r.boolOr("CREATE_SCHEMA", false),
		Verify:         r.boolOr("VERIFY", true),

		ReportPath:     os.Getenv("REPORT_PATH"),
		MetricsPath:    os.Getenv("METRICS_PATH"),
		CheckpointPath: os.Getenv("CHECKPOINT_PATH"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),

		SupabaseURL:   os.Getenv("SUPABASE_URL"),
		SupabaseKey:   os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		MongoDatabase: os.Getenv("MONGO_DATABASE"),
	}
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations. The source URL is checked by the
// commands that need it.
func (c *Config) Validate() error {
	var errs []error
	if c.BatchSize < 1 || c.BatchSize > 10000 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be between 1 and 10000, got %d", c.BatchSize))
	}
	if c.WriteBatchSize < 1 || c.WriteBatchSize > 1000 {
		errs = append(errs, fmt.Errorf("WRITE_BATCH_SIZE must be between 1 and 1000, got %d", c.WriteBatchSize))
	}
	if c.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("MAX_ITERATIONS must not be negative"))
	}
	if c.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("MAX_ROWS must not be negative"))
	}
	if c.MonthsBack < 0 {
		errs = append(errs, fmt.Errorf("MONTHS_BACK must not be negative"))
	}
	if c.ReadRetries < 0 {
		errs = append(errs, fmt.Errorf("READ_RETRIES must not be negative"))
	}
	if c.BatchDelay < 0 {
		errs = append(errs, fmt.Errorf("BATCH_DELAY must not be negative"))
	}
	if c.OnReadError != ReadErrorAbort && c.OnReadError != ReadErrorSkip {
		errs = append(errs, fmt.Errorf("ON_READ_ERROR must be %q or %q, got %q", ReadErrorAbort, ReadErrorSkip, c.OnReadError))
	}
	if c.CapPolicy != CapPolicyStop && c.CapPolicy != CapPolicyFail {
		errs = append(errs, fmt.Errorf("CAP_POLICY must be %q or %q, got %q", CapPolicyStop, CapPolicyFail, c.CapPolicy))
	}
	return errors.Join(errs...)
}

// Destination returns DEST_URL, falling back to the source.
func (c *Config) Destination() string {
	if c.DestURL != "" {
		return c.DestURL
	}
	return c.SourceURL
}

// Cutoff returns CUTOFF_DATE when set, otherwise now minus MONTHS_BACK.
// The zero time means no cutoff.
func (c *Config) Cutoff(now time.Time) time.Time {
	if !c.CutoffDate.IsZero() {
		return c.CutoffDate
	}
	if c.MonthsBack > 0 {
		return now.AddDate(0, -c.MonthsBack, 0)
	}
	return time.Time{}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader collects parse errors so every malformed key is reported at once.
type envReader struct {
	errs []error
}

func (r *envReader) intOr(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, value))
		return defaultValue
	}
	return intVal
}

func (r *envReader) boolOr(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, value))
		return defaultValue
	}
	return boolVal
}

// durationOr accepts Go durations ("250ms") or a bare number of milliseconds.
func (r *envReader) durationOr(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration", key, value))
		return defaultValue
	}
	return d
}

func (r *envReader) dateOr(key string) time.Time {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return time.Time{}
	}
	t, err := ParseDate(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
	}
	return t
}

// ParseDate accepts YYYY-MM-DD or RFC 3339.
func ParseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC 3339", value)
	}
	return t, nil
}
