package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	interviewsScheduledTotal atomic.Uint64
	callsPlacedTotal         atomic.Uint64
	reportsReadyTotal        atomic.Uint64
	stageFailuresTotal       atomic.Uint64
	eventsDroppedTotal       atomic.Uint64

	workerJobsReceivedTotal      atomic.Uint64
	workerJobsCompletedTotal     atomic.Uint64
	workerJobsFailedTotal        atomic.Uint64
	workerJobsUnrecoverableTotal atomic.Uint64

	pipelineDuration = newHistogram([]float64{1000, 5000, 15000, 60000, 300000, 900000, 1800000, 3600000})
)

// IncInterviewsScheduled increments the scheduled counter.
func IncInterviewsScheduled() {
	interviewsScheduledTotal.Add(1)
}

// IncCallsPlaced increments the outbound call counter.
func IncCallsPlaced() {
	callsPlacedTotal.Add(1)
}

// IncReportsReady increments the completed-report counter.
func IncReportsReady() {
	reportsReadyTotal.Add(1)
}

// IncStageFailures increments the terminal-failure counter.
func IncStageFailures() {
	stageFailuresTotal.Add(1)
}

// IncEventsDropped counts stale, duplicate, or untrusted callbacks dropped.
func IncEventsDropped() {
	eventsDroppedTotal.Add(1)
}

// IncWorkerJobsReceived counts queue messages picked up by the worker.
func IncWorkerJobsReceived() {
	workerJobsReceivedTotal.Add(1)
}

// IncWorkerJobsCompleted counts messages processed and deleted.
func IncWorkerJobsCompleted() {
	workerJobsCompletedTotal.Add(1)
}

// IncWorkerJobsFailed counts messages left on the queue for redelivery.
func IncWorkerJobsFailed() {
	workerJobsFailedTotal.Add(1)
}

// IncWorkerJobsUnrecoverable counts messages deleted without processing.
func IncWorkerJobsUnrecoverable() {
	workerJobsUnrecoverableTotal.Add(1)
}

// ObservePipelineDurationMs records schedule-to-report latency in milliseconds.
func ObservePipelineDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	pipelineDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "interviews_scheduled_total", "Total interviews scheduled", interviewsScheduledTotal.Load())
	writeCounter(&buf, "calls_placed_total", "Total outbound calls placed", callsPlacedTotal.Load())
	writeCounter(&buf, "reports_ready_total", "Total interview reports produced", reportsReadyTotal.Load())
	writeCounter(&buf, "stage_failures_total", "Total interviews ending in a terminal failure stage", stageFailuresTotal.Load())
	writeCounter(&buf, "events_dropped_total", "Total callbacks dropped as stale, duplicate, or untrusted", eventsDroppedTotal.Load())
	writeCounter(&buf, "worker_jobs_received_total", "Total queue messages received by the worker", workerJobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_completed_total", "Total queue messages processed successfully", workerJobsCompletedTotal.Load())
	writeCounter(&buf, "worker_jobs_failed_total", "Total queue messages left for redelivery", workerJobsFailedTotal.Load())
	writeCounter(&buf, "worker_jobs_unrecoverable_total", "Total queue messages deleted as unprocessable", workerJobsUnrecoverableTotal.Load())
	writeHistogram(&buf, "pipeline_duration_ms", "Schedule-to-report duration in milliseconds", pipelineDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
