// Package metrics exposes Prometheus instrumentation for ingestion runs and
// chat requests.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ingestionMetrics struct {
	once sync.Once

	docsNew       prometheus.Counter
	docsChanged   prometheus.Counter
	docsUnchanged prometheus.Counter
	docsDeleted   prometheus.Counter
	docsFailed    prometheus.Counter

	chunksUpserted prometheus.Counter
	embedErrors    prometheus.Counter

	runsTotal  prometheus.Counter
	runsFailed prometheus.Counter
	runSkipped prometheus.Counter

	runDuration   prometheus.Histogram
	embedDuration prometheus.Histogram
}

type chatMetrics struct {
	once sync.Once

	requestsTotal    *prometheus.CounterVec
	requestDuration  prometheus.Histogram
	retrievedPerReq  prometheus.Histogram
	promptTokens     prometheus.Counter
	completionTokens prometheus.Counter
}

var (
	ing  ingestionMetrics
	chat chatMetrics
)

func (m *ingestionMetrics) init() {
	m.once.Do(func() {
		m.docsNew = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_docs_new_total", Help: "Documents seen for the first time"})
		m.docsChanged = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_docs_changed_total", Help: "Documents whose content hash changed"})
		m.docsUnchanged = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_docs_unchanged_total", Help: "Documents skipped as unchanged"})
		m.docsDeleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_docs_deleted_total", Help: "Tracked documents pruned after removal upstream"})
		m.docsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_docs_failed_total", Help: "Documents that failed processing and were deferred"})

		m.chunksUpserted = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_chunks_upserted_total", Help: "Chunks written to the vector store"})
		m.embedErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_embed_errors_total", Help: "Embedding provider errors"})

		m.runsTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_runs_total", Help: "Ingestion runs started"})
		m.runsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_runs_failed_total", Help: "Ingestion runs aborted by a fatal error"})
		m.runSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_ingest_runs_skipped_total", Help: "Scheduled runs skipped because one was in progress"})

		buckets := []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
		m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "archon_ingest_run_seconds", Help: "Ingestion run duration", Buckets: buckets})
		m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "archon_ingest_embed_seconds", Help: "Embedding batch duration", Buckets: prometheus.DefBuckets})

		prometheus.MustRegister(
			m.docsNew, m.docsChanged, m.docsUnchanged, m.docsDeleted, m.docsFailed,
			m.chunksUpserted, m.embedErrors,
			m.runsTotal, m.runsFailed, m.runSkipped,
			m.runDuration, m.embedDuration,
		)
	})
}

func (m *chatMetrics) init() {
	m.once.Do(func() {
		m.requestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "archon_chat_requests_total", Help: "Chat completion requests by outcome"},
			[]string{"status"},
		)
		m.requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "archon_chat_request_seconds", Help: "End to end chat request duration", Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}})
		m.retrievedPerReq = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "archon_chat_retrieved_chunks", Help: "Chunks retrieved per request", Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21}})
		m.promptTokens = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_chat_prompt_tokens_total", Help: "Prompt tokens reported by the model"})
		m.completionTokens = prometheus.NewCounter(prometheus.CounterOpts{Name: "archon_chat_completion_tokens_total", Help: "Completion tokens reported by the model"})

		prometheus.MustRegister(
			m.requestsTotal, m.requestDuration, m.retrievedPerReq,
			m.promptTokens, m.completionTokens,
		)
	})
}

// Ingestion counters.

func IngestDocNew()            { ing.init(); ing.docsNew.Inc() }
func IngestDocChanged()        { ing.init(); ing.docsChanged.Inc() }
func IngestDocUnchanged()      { ing.init(); ing.docsUnchanged.Inc() }
func IngestDocDeleted()        { ing.init(); ing.docsDeleted.Inc() }
func IngestDocFailed()         { ing.init(); ing.docsFailed.Inc() }
func IngestChunksUpserted(n int) {
	ing.init()
	ing.chunksUpserted.Add(float64(n))
}
func IngestEmbedError()        { ing.init(); ing.embedErrors.Inc() }
func IngestRunStarted()        { ing.init(); ing.runsTotal.Inc() }
func IngestRunFailed()         { ing.init(); ing.runsFailed.Inc() }
func IngestRunSkipped()        { ing.init(); ing.runSkipped.Inc() }
func IngestRunSeconds(s float64) {
	ing.init()
	ing.runDuration.Observe(s)
}
func IngestEmbedSeconds(s float64) {
	ing.init()
	ing.embedDuration.Observe(s)
}

// Chat counters.

func ChatRequest(status string) {
	chat.init()
	chat.requestsTotal.WithLabelValues(status).Inc()
}
func ChatRequestSeconds(s float64) {
	chat.init()
	chat.requestDuration.Observe(s)
}
func ChatRetrievedChunks(n int) {
	chat.init()
	chat.retrievedPerReq.Observe(float64(n))
}
func ChatTokens(prompt, completion int) {
	chat.init()
	chat.promptTokens.Add(float64(prompt))
	chat.completionTokens.Add(float64(completion))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	ing.init()
	chat.init()
	return promhttp.Handler()
}
