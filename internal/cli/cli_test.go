package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BartekS5/crm-migrate/internal/etl"
	"github.com/BartekS5/crm-migrate/pkg/database"
	"github.com/BartekS5/crm-migrate/pkg/logger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"SOURCE_URL", "DEST_URL", "DRY_RUN", "BATCH_SIZE", "WRITE_BATCH_SIZE",
	"MAX_ITERATIONS", "MAX_ROWS", "MONTHS_BACK", "CUTOFF_DATE", "BATCH_DELAY",
	"READ_RETRIES", "ON_READ_ERROR", "CAP_POLICY", "CREATE_SCHEMA", "VERIFY",
	"REPORT_PATH", "METRICS_PATH", "CHECKPOINT_PATH", "LOG_LEVEL", "LOG_FILE",
}

func clearEnv(t *testing.T) {
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

// seedEmails creates an emails table with n rows, one per day from 2024-01-02.
func seedEmails(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crm.db")
	db, err := database.ConnectSQL(context.Background(), "sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE emails (
		id INTEGER PRIMARY KEY, message_id TEXT, subject TEXT, created_at DATETIME, body_text TEXT)`)
	require.NoError(t, err)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for id := 1; id <= n; id++ {
		_, err := db.Exec(`INSERT INTO emails (id, message_id, subject, created_at, body_text) VALUES (?, ?, ?, ?, ?)`,
			id, fmt.Sprintf("<m%d@crm>", id), "subject", base.AddDate(0, 0, id), "body")
		require.NoError(t, err)
	}
	return path
}

func execute(args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitAborted, ExitCode(fmt.Errorf("%w: interrupted", etl.ErrAborted)))
	assert.Equal(t, ExitAborted, ExitCode(context.Canceled))
	assert.Equal(t, ExitFailure, ExitCode(etl.ErrPrecondition))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
}

func TestMigrateEmails_EndToEnd(t *testing.T) {
	clearEnv(t)
	db := seedEmails(t, 25)
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.json")
	metricsPath := filepath.Join(dir, "crm_migrate.prom")

	_, err := execute("--source", "sqlite://"+db, "--create-schema", "--batch-size", "10",
		"--report", reportPath, "--metrics", metricsPath, "migrate", "emails")
	require.NoError(t, err)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report etl.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, etl.StateDone, report.State)
	assert.Equal(t, "emails", report.Job)
	assert.Equal(t, int64(25), report.Migrated)
	assert.Equal(t, 3, report.Pages)
	assert.True(t, report.Verified())

	assert.FileExists(t, metricsPath)
}

func TestMigrateEmails_MissingSchemaFails(t *testing.T) {
	clearEnv(t)
	db := seedEmails(t, 5)

	_, err := execute("--source", "sqlite://"+db, "migrate", "emails")
	require.ErrorIs(t, err, etl.ErrPrecondition)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestCleanupEmails_RequiresScopeAndConfirm(t *testing.T) {
	clearEnv(t)
	db := seedEmails(t, 5)

	_, err := execute("--source", "sqlite://"+db, "cleanup", "emails")
	assert.ErrorContains(t, err, "--all")

	_, err = execute("--source", "sqlite://"+db, "--months-back", "3", "cleanup", "emails")
	assert.ErrorContains(t, err, "--confirm")
}

func TestCleanupEmails_DeletesOlderRows(t *testing.T) {
	clearEnv(t)
	db := seedEmails(t, 20)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	_, err := execute("--source", "sqlite://"+db, "--cutoff-date", "2024-01-11", "--report", reportPath,
		"cleanup", "emails", "--confirm")
	require.NoError(t, err)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report etl.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "cleanup-emails", report.Job)
	assert.Equal(t, int64(9), report.Migrated)

	out, err := execute("--source", "sqlite://"+db, "count", "emails")
	require.NoError(t, err)
	assert.Contains(t, out, "emails: 11 rows")
}

func TestCount_WithCutoff(t *testing.T) {
	clearEnv(t)
	db := seedEmails(t, 20)

	out, err := execute("--source", "sqlite://"+db, "--cutoff-date", "2024-01-11", "count", "emails")
	require.NoError(t, err)
	assert.Contains(t, out, "emails: 20 rows")
	assert.Contains(t, out, "emails: 9 rows with created_at before 2024-01-11")
}

func TestRoot_InvalidFlagsFailValidation(t *testing.T) {
	clearEnv(t)

	_, err := execute("--batch-size", "0", "count", "emails")
	assert.ErrorContains(t, err, "BATCH_SIZE")

	_, err = execute("--cutoff-date", "soon", "count", "emails")
	assert.Error(t, err)

	_, err = execute("count", "emails")
	assert.ErrorContains(t, err, "SOURCE_URL")
}

func TestRoot_RetryDelayAndLogFileFlags(t *testing.T) {
	clearEnv(t)
	db := seedEmails(t, 3)
	logPath := filepath.Join(t.TempDir(), "crm-migrate.log")
	t.Cleanup(func() {
		logger.Close()
		logrus.SetOutput(os.Stdout)
	})

	_, err := execute("--source", "sqlite://"+db, "--read-retries", "-1", "count", "emails")
	assert.ErrorContains(t, err, "READ_RETRIES")

	_, err = execute("--source", "sqlite://"+db, "--batch-delay", "-1s", "count", "emails")
	assert.ErrorContains(t, err, "BATCH_DELAY")

	_, err = execute("--source", "sqlite://"+db, "--read-retries", "5", "--batch-delay", "150ms",
		"--log-file", logPath, "count", "emails")
	require.NoError(t, err)
	assert.FileExists(t, logPath)
}
