package inference

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generatedTokens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamago",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Total number of tokens produced by successful generations",
		},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llamago",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of successful generations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamago",
			Name:      "generations_total",
			Help:      "Generations by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(generatedTokens, generationDuration, generationsTotal)
}

func observeSuccess(out *Output) {
	generatedTokens.Add(float64(out.TokenCount))
	generationDuration.Observe(out.Elapsed.Seconds())
	generationsTotal.WithLabelValues(string(out.StopReason)).Inc()
}

func observeFailure(ctx context.Context, err error) {
	outcome := "error"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		outcome = "canceled"
	}
	generationsTotal.WithLabelValues(outcome).Inc()
}
