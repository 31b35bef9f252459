package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Watcher metrics
	NotesEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_notes_emitted_total",
			Help: "Action notes emitted into the vault by watcher",
		},
		[]string{"watcher"},
	)

	WatcherPollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_watcher_poll_errors_total",
			Help: "Watcher poll failures by watcher and error kind",
		},
		[]string{"watcher", "kind"},
	)

	// Orchestrator metrics
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_dispatches_total",
			Help: "Adapter dispatches by adapter and outcome",
		},
		[]string{"adapter", "outcome"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_dispatch_duration_seconds",
			Help:    "Adapter dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	PolicyRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_policy_rejections_total",
			Help: "Approved files rejected by the policy gate, by rule",
		},
		[]string{"rule"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_rate_limited_total",
			Help: "Dispatches deferred by channel rate limits",
		},
		[]string{"channel"},
	)

	// Claim protocol metrics
	ClaimsWon = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_claims_won_total",
			Help: "Successful claims by peer",
		},
		[]string{"peer"},
	)

	ClaimsMissed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_claims_missed_total",
			Help: "Claim races lost by peer",
		},
		[]string{"peer"},
	)

	StaleClaimsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_stale_claims_swept_total",
			Help: "In_Progress entries swept back to Needs_Action",
		},
	)

	// Sweep metrics
	ApprovalsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_approvals_expired_total",
			Help: "Notes auto-rejected after their expiry passed",
		},
	)

	// Sync bridge metrics
	SyncCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sync_cycles_total",
			Help: "Vault sync cycles by result",
		},
		[]string{"result"},
	)

	SyncConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sync_conflicts_total",
			Help: "Sync conflicts resolved, by policy applied",
		},
		[]string{"policy"},
	)

	// Scheduler metrics
	ScheduledRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_scheduled_runs_total",
			Help: "Scheduler job executions by job and result",
		},
		[]string{"job", "result"},
	)
)

func init() {
	prometheus.MustRegister(NotesEmitted)
	prometheus.MustRegister(WatcherPollErrors)
	prometheus.MustRegister(Dispatches)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(PolicyRejections)
	prometheus.MustRegister(RateLimited)
	prometheus.MustRegister(ClaimsWon)
	prometheus.MustRegister(ClaimsMissed)
	prometheus.MustRegister(StaleClaimsSwept)
	prometheus.MustRegister(ApprovalsExpired)
	prometheus.MustRegister(SyncCycles)
	prometheus.MustRegister(SyncConflicts)
	prometheus.MustRegister(ScheduledRuns)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics listener on addr when non-empty. Returned errors
// are the listener's; callers treat them as advisory.
func Serve(addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
