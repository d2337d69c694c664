// Package metrics holds the prometheus collectors of the vote pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VotesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "govagent",
		Name:      "votes_submitted_total",
		Help:      "Vote submission attempts by result.",
	}, []string{"result"})

	VotesReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "govagent",
		Name:      "votes_reconciled_total",
		Help:      "Vote state transitions applied by the reconciler.",
	}, []string{"status"})

	ReconcileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "govagent",
		Name:      "reconcile_errors_total",
		Help:      "Per-vote failures during reconciliation passes.",
	})

	ReconcilePassSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "govagent",
		Name:      "reconcile_pass_seconds",
		Help:      "Duration of reconciliation passes.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	VotesPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "govagent",
		Name:      "votes_pending",
		Help:      "Pending votes seen by the last reconciliation pass.",
	})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "govagent",
		Name:      "emails_sent_total",
		Help:      "Outbound emails by kind and result.",
	}, []string{"kind", "result"})

	RepliesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "govagent",
		Name:      "email_replies_total",
		Help:      "Inbound email replies by classified intent.",
	}, []string{"intent"})
)

// Result labels an outcome as "ok" or "error".
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
