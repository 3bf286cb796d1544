package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ads_analyst_build_info",
			Help: "Build information of the ads analyst",
		},
		[]string{"version", "commit", "date"},
	)

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_analyst_runs_total",
		Help: "Total number of pipeline runs",
	}, []string{"result"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ads_analyst_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.5, 10), // ≈ 10ms .. 38s
	}, []string{"stage"})

	LLMCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_analyst_llm_calls_total",
		Help: "Total number of LLM calls issued by the generator",
	}, []string{"role", "result"})

	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ads_analyst_llm_call_duration_seconds",
		Help:    "Duration of LLM API calls including retries",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms .. 64s
	}, []string{"result"})

	GeneratorFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_analyst_generator_fallbacks_total",
		Help: "Total number of generator calls that degraded to a fallback result",
	}, []string{"role", "reason"})

	RefinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ads_analyst_refines_total",
		Help: "Total number of hypothesis refinements",
	})

	GateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_analyst_gate_decisions_total",
		Help: "Total number of confidence gate decisions",
	}, []string{"outcome"})
)
