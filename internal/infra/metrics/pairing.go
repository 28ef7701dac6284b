package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activationsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pairing_activations_issued_total",
			Help: "Pairing codes issued to display devices.",
		},
	)

	claimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairing_claims_total",
			Help: "Claim attempts by outcome (won/retry/rejected/throttled).",
		},
		[]string{"outcome"},
	)

	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairing_polls_total",
			Help: "Poll reads by reported status.",
		},
		[]string{"status"},
	)

	consumedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pairing_consumed_total",
			Help: "Claimed activations exchanged for a session.",
		},
	)

	expiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pairing_expired_total",
			Help: "Stale pending activations retired by the sweep.",
		},
	)
)

func init() {
	register(activationsIssued, claimsTotal, pollsTotal, consumedTotal, expiredTotal)
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncActivationIssued() { activationsIssued.Inc() }

func IncClaim(outcome string) { claimsTotal.WithLabelValues(norm(outcome)).Inc() }

func IncPoll(status string) { pollsTotal.WithLabelValues(norm(status)).Inc() }

func IncConsume() { consumedTotal.Inc() }

func IncActivationsExpired(n int) { expiredTotal.Add(float64(n)) }
