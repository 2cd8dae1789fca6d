// Package metrics exports the outcome of a run in the Prometheus text format
// so the node exporter textfile collector can pick it up.
package metrics

import (
	"github.com/BartekS5/crm-migrate/internal/etl"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crm_migrate"

// Registry builds a registry holding the gauges for report.
func Registry(report *etl.Report) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"job": report.Job}

	rows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "rows",
		Help:        "Source rows by outcome in the last run.",
		ConstLabels: labels,
	}, []string{"outcome"})
	rows.WithLabelValues("migrated").Set(float64(report.Migrated))
	rows.WithLabelValues("skipped").Set(float64(report.Skipped))
	rows.WithLabelValues("errored").Set(float64(report.Errored))
	rows.WithLabelValues("total").Set(float64(report.Total))

	gauge := func(name, help string, v float64) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		g.Set(v)
		return g
	}

	reg.MustRegister(
		rows,
		gauge("pages", "Pages read in the last run.", float64(report.Pages)),
		gauge("duration_seconds", "Duration of the last run.", report.Elapsed().Seconds()),
		gauge("storage_delta_bytes", "Estimated change in stored bytes in the last run.", float64(report.StorageDelta())),
		gauge("last_run_success", "1 if the last run reached DONE.", boolValue(report.State == etl.StateDone)),
		gauge("last_run_timestamp_seconds", "Unix time the last run finished.", float64(report.FinishedAt.Unix())),
		gauge("verification_ok", "1 if every verification check passed.", boolValue(report.Verified())),
		gauge("truncated", "1 if a cap stopped the last run early.", boolValue(report.Truncated)),
		gauge("dry_run", "1 if the last run was a dry run.", boolValue(report.DryRun)),
	)
	return reg
}

// WriteTextfile writes the metrics for report to path atomically.
func WriteTextfile(path string, report *etl.Report) error {
	return prometheus.WriteToTextfile(path, Registry(report))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
