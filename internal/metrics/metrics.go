package metrics

import (
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Outcome string

const (
	Success Outcome = "success"
	Error   Outcome = "error"
)

func (o Outcome) String() string {
	return string(o)
}

var (
	once sync.Once

	defaultHistogramBucketsSeconds = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

	operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by name and outcome.",
		},
		[]string{"op", "outcome"},
	)

	operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Histogram of ledger operation durations in seconds, including the asset transfer.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"op", "status"},
	)

	persistLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_persist_duration_seconds",
			Help:    "Histogram of event and snapshot persistence durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"target", "status"},
	)

	eventsWrittenCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_events_written_total",
			Help: "The total number of ledger events written to storage",
		},
	)

	totalDepositedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_total_deposited",
			Help: "Sum of all principal held by the pool, in base units",
		},
	)

	rewardRateGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_reward_rate",
			Help: "Reward units emitted per second",
		},
	)

	accountsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_accounts",
			Help: "Number of accounts known to the ledger",
		},
	)

	haltedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_halted",
			Help: "1 while the ledger waits for a transfer to be reconciled",
		},
	)
)

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			operationCounter,
			operationLatency,
			persistLatency,
			eventsWrittenCounter,
			totalDepositedGauge,
			rewardRateGauge,
			accountsGauge,
			haltedGauge,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOperation counts one ledger operation. outcome is "success" or the
// failure kind.
func RecordOperation(op string, d time.Duration, outcome string) {
	status := Success
	if outcome != Success.String() {
		status = Error
	}
	operationCounter.WithLabelValues(op, outcome).Inc()
	operationLatency.WithLabelValues(op, status.String()).Observe(d.Seconds())
}

func RecordPersistLatency(d time.Duration, target string, failure bool) {
	status := Success
	if failure {
		status = Error
	}
	persistLatency.WithLabelValues(target, status.String()).Observe(d.Seconds())
}

func RecordEventsWritten(n int) {
	eventsWrittenCounter.Add(float64(n))
}

func RecordPoolState(totalDeposited, rewardRate *uint256.Int, accounts int, halted bool) {
	totalDepositedGauge.Set(toFloat(totalDeposited))
	rewardRateGauge.Set(toFloat(rewardRate))
	accountsGauge.Set(float64(accounts))
	if halted {
		haltedGauge.Set(1)
	} else {
		haltedGauge.Set(0)
	}
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
