package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	entryPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timetrack",
		Subsystem: "persistence",
		Name:      "last_entry_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent time entry written to Postgres.",
	})
	timersStartedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timetrack",
		Subsystem: "timer",
		Name:      "started_total",
		Help:      "Number of timers started.",
	})
	timerConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timetrack",
		Subsystem: "timer",
		Name:      "start_conflicts_total",
		Help:      "Number of timer starts rejected because a timer was already running.",
	})
	repairForceStopCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timetrack",
		Subsystem: "repair",
		Name:      "force_stops_total",
		Help:      "Number of duplicate running timers force-stopped by the repair routine.",
	})
	entryStateChangeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timetrack",
		Subsystem: "entry",
		Name:      "state_changes_total",
		Help:      "Number of persisted entry updates, labelled by the resulting status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(entryPersistGauge, timersStartedCounter, timerConflictCounter,
		repairForceStopCounter, entryStateChangeCounter)
}

// RecordEntryPersisted updates the persistence watermark gauge.
func RecordEntryPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	entryPersistGauge.Set(float64(ts.Unix()))
}

// RecordTimerStarted increments the started-timer counter.
func RecordTimerStarted() {
	timersStartedCounter.Inc()
}

// RecordTimerConflict increments the already-running rejection counter.
func RecordTimerConflict() {
	timerConflictCounter.Inc()
}

// RecordRepairForceStop increments the repair force-stop counter.
func RecordRepairForceStop() {
	repairForceStopCounter.Inc()
}

// RecordEntryStateChange counts a persisted entry update by resulting status.
func RecordEntryStateChange(status string) {
	entryStateChangeCounter.WithLabelValues(status).Inc()
}
