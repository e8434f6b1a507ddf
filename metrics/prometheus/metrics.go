// Package prometheus provides Prometheus metrics for the dialogue engine.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voiceloop"

var (
	// sessionsActive is a gauge of currently connected device sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected device sessions",
		},
	)

	// framesProcessedTotal is a counter of inbound audio frames.
	framesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Total number of inbound audio frames processed",
		},
		[]string{"status"}, // status: ok, dropped, error
	)

	// utterancesTotal is a counter of captured utterances.
	utterancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Total number of captured utterances",
		},
		[]string{"trigger"}, // trigger: voice, wake_word, text
	)

	// transcriptionDuration is a histogram of utterance transcription duration.
	transcriptionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Duration of utterance transcription in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "status"}, // status: success, error
	)

	// synthesisDuration is a histogram of sentence synthesis duration.
	synthesisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of sentence synthesis in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"}, // status: success, error
	)

	// sentencesDeliveredTotal is a counter of delivered response sentences.
	sentencesDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_delivered_total",
			Help:      "Total number of response sentences delivered",
		},
		[]string{"status"}, // status: ok, silent, failed
	)

	// turnsTotal is a counter of completed dialogue turns.
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of dialogue turns",
		},
		[]string{"status"}, // status: completed, aborted, error
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		framesProcessedTotal,
		utterancesTotal,
		transcriptionDuration,
		synthesisDuration,
		sentencesDeliveredTotal,
		turnsTotal,
	}
)

// RecordSessionStart records a new device session.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a closed device session.
func RecordSessionEnd() {
	sessionsActive.Dec()
}

// RecordFrame records one processed inbound frame.
func RecordFrame(status string) {
	framesProcessedTotal.WithLabelValues(status).Inc()
}

// RecordUtterance records a captured utterance.
func RecordUtterance(trigger string) {
	utterancesTotal.WithLabelValues(trigger).Inc()
}

// RecordTranscription records an utterance transcription.
func RecordTranscription(provider, status string, durationSeconds float64) {
	transcriptionDuration.WithLabelValues(provider, status).Observe(durationSeconds)
}

// RecordSynthesis records a sentence synthesis.
func RecordSynthesis(provider, status string, durationSeconds float64) {
	synthesisDuration.WithLabelValues(provider, status).Observe(durationSeconds)
}

// RecordSentenceDelivered records one delivered sentence.
func RecordSentenceDelivered(status string) {
	sentencesDeliveredTotal.WithLabelValues(status).Inc()
}

// RecordTurn records a finished dialogue turn.
func RecordTurn(status string) {
	turnsTotal.WithLabelValues(status).Inc()
}
