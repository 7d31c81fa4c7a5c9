// Package metrics provides Prometheus metrics for the volleycoach service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default latency buckets in milliseconds.
var defaultBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Challenge metrics
	challengesStarted  *prometheus.CounterVec
	challengesFinished *prometheus.CounterVec
	holdsBroken        *prometheus.CounterVec
	timeToSuccess      *prometheus.HistogramVec

	// Match metrics
	matchesStarted   prometheus.Counter
	matchPoints      *prometheus.CounterVec
	matchesCompleted *prometheus.CounterVec

	// Session metrics
	activeSessions   prometheus.Gauge
	sessionsCreated  prometheus.Counter
	sessionsEvicted  prometheus.Counter
	sceneChanges     *prometheus.CounterVec
	posesUnlocked    *prometheus.CounterVec
	sessionsPerShard *prometheus.GaugeVec

	// Frame pipeline metrics
	framesReceived   prometheus.Counter
	framesDuplicate  prometheus.Counter
	framesRejected   *prometheus.CounterVec
	classifications  *prometheus.CounterVec
	classifyLatency  prometheus.Histogram
	classifierErrors prometheus.Counter

	// Queue metrics
	queueDepth      *prometheus.GaugeVec
	queueCapacity   prometheus.Gauge
	queueEnqueued   prometheus.Counter
	queueDequeued   prometheus.Counter
	queueEnqueueErr *prometheus.CounterVec

	// Worker metrics
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Renderer metrics
	rendererClients prometheus.Gauge
	eventsEmitted   *prometheus.CounterVec
	eventsDropped   prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "volleycoach",
		subsystem:        "coach",
		histogramBuckets: defaultBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.challengesStarted = auto.NewCounterVec(
		m.counterOpts("challenges_started_total", "Hold challenges started by mode and pose"),
		[]string{"mode", "pose"})
	m.challengesFinished = auto.NewCounterVec(
		m.counterOpts("challenges_finished_total", "Hold challenges finished by mode, pose and outcome"),
		[]string{"mode", "pose", "outcome"})
	m.holdsBroken = auto.NewCounterVec(
		m.counterOpts("holds_broken_total", "In-progress holds interrupted by a non-qualifying frame"),
		[]string{"mode", "pose"})
	m.timeToSuccess = auto.NewHistogramVec(
		m.histogramOpts("challenge_time_to_success_milliseconds", "Time from challenge start to success",
			[]float64{2000, 2500, 3000, 3500, 4000, 4500, 5000, 7500, 10000}),
		[]string{"mode"})

	m.matchesStarted = auto.NewCounter(m.counterOpts("matches_started_total", "Matches started"))
	m.matchPoints = auto.NewCounterVec(
		m.counterOpts("match_points_total", "Match points by winner"),
		[]string{"winner"})
	m.matchesCompleted = auto.NewCounterVec(
		m.counterOpts("matches_completed_total", "Completed matches by winner"),
		[]string{"winner"})

	m.activeSessions = auto.NewGauge(m.gaugeOpts("active_sessions", "Sessions currently held in memory"))
	m.sessionsCreated = auto.NewCounter(m.counterOpts("sessions_created_total", "Sessions created"))
	m.sessionsEvicted = auto.NewCounter(m.counterOpts("sessions_evicted_total", "Idle sessions evicted"))
	m.sceneChanges = auto.NewCounterVec(
		m.counterOpts("scene_changes_total", "Scene transitions by target scene"),
		[]string{"scene"})
	m.posesUnlocked = auto.NewCounterVec(
		m.counterOpts("poses_completed_total", "Practice poses completed for the first time in a session"),
		[]string{"pose"})
	m.sessionsPerShard = auto.NewGaugeVec(
		m.gaugeOpts("sessions_per_shard", "Sessions stored per repository shard"),
		[]string{"shard_id"})

	m.framesReceived = auto.NewCounter(m.counterOpts("frames_received_total", "Frames accepted for classification"))
	m.framesDuplicate = auto.NewCounter(m.counterOpts("frames_duplicate_total", "Frames dropped as duplicates"))
	m.framesRejected = auto.NewCounterVec(
		m.counterOpts("frames_rejected_total", "Frames rejected before classification"),
		[]string{"reason"})
	m.classifications = auto.NewCounterVec(
		m.counterOpts("classifications_total", "Frames classified by result"),
		[]string{"result"})
	m.classifyLatency = auto.NewHistogram(
		m.histogramOpts("classify_latency_milliseconds", "Classifier latency per frame", m.histogramBuckets))
	m.classifierErrors = auto.NewCounter(m.counterOpts("classifier_errors_total", "Classifier faults"))

	m.queueDepth = auto.NewGaugeVec(
		m.gaugeOpts("queue_depth", "Frames waiting per lane"),
		[]string{"lane"})
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Configured capacity of each lane"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Frames enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Frames dequeued"))
	m.queueEnqueueErr = auto.NewCounterVec(
		m.counterOpts("queue_enqueue_errors_total", "Enqueue failures by reason"),
		[]string{"reason"})

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Frame worker lanes"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "End-to-end frame processing latency", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Frame processing errors"))

	m.rendererClients = auto.NewGauge(m.gaugeOpts("renderer_clients", "Connected websocket renderer clients"))
	m.eventsEmitted = auto.NewCounterVec(
		m.counterOpts("events_emitted_total", "Renderer events emitted by type"),
		[]string{"type"})
	m.eventsDropped = auto.NewCounter(m.counterOpts("events_dropped_total", "Renderer events dropped for slow clients"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause time",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}))
}

// Challenge metrics.

// RecordChallengeStarted counts a started hold challenge.
func RecordChallengeStarted(mode, pose string) {
	globalManager.challengesStarted.WithLabelValues(mode, pose).Inc()
}

// RecordChallengeFinished counts a terminal challenge outcome.
func RecordChallengeFinished(mode, pose, outcome string) {
	globalManager.challengesFinished.WithLabelValues(mode, pose, outcome).Inc()
}

// RecordHoldBroken counts an interrupted hold.
func RecordHoldBroken(mode, pose string) {
	globalManager.holdsBroken.WithLabelValues(mode, pose).Inc()
}

// RecordTimeToSuccess observes how long a successful challenge took.
func RecordTimeToSuccess(mode string, ms float64) {
	globalManager.timeToSuccess.WithLabelValues(mode).Observe(ms)
}

// Match metrics.

// RecordMatchStarted counts a match start or restart.
func RecordMatchStarted() {
	globalManager.matchesStarted.Inc()
}

// RecordMatchPoint counts a point for "player" or "opponent".
func RecordMatchPoint(winner string) {
	globalManager.matchPoints.WithLabelValues(winner).Inc()
}

// RecordMatchCompleted counts a finished match by winner.
func RecordMatchCompleted(winner string) {
	globalManager.matchesCompleted.WithLabelValues(winner).Inc()
}

// Session metrics.

// UpdateActiveSessions sets the number of live sessions.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordSessionCreated counts a new session.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordSessionEvicted counts an idle eviction.
func RecordSessionEvicted() {
	globalManager.sessionsEvicted.Inc()
}

// RecordSceneChange counts a scene transition.
func RecordSceneChange(scene string) {
	globalManager.sceneChanges.WithLabelValues(scene).Inc()
}

// RecordPoseCompleted counts a first-time practice completion.
func RecordPoseCompleted(pose string) {
	globalManager.posesUnlocked.WithLabelValues(pose).Inc()
}

// UpdateSessionsPerShard sets the session count of one repository shard.
func UpdateSessionsPerShard(shardID string, count int) {
	globalManager.sessionsPerShard.WithLabelValues(shardID).Set(float64(count))
}

// Frame pipeline metrics.

// RecordFrameReceived counts an accepted frame.
func RecordFrameReceived() {
	globalManager.framesReceived.Inc()
}

// RecordFrameDuplicate counts a duplicate frame.
func RecordFrameDuplicate() {
	globalManager.framesDuplicate.Inc()
}

// RecordFrameRejected counts a frame rejected for reason.
func RecordFrameRejected(reason string) {
	globalManager.framesRejected.WithLabelValues(reason).Inc()
}

// RecordClassification counts a classified frame; result is "detected",
// "no_body" or "client".
func RecordClassification(result string) {
	globalManager.classifications.WithLabelValues(result).Inc()
}

// RecordClassifyLatency observes classifier latency in milliseconds.
func RecordClassifyLatency(ms float64) {
	globalManager.classifyLatency.Observe(ms)
}

// RecordClassifierError counts a classifier fault.
func RecordClassifierError() {
	globalManager.classifierErrors.Inc()
}

// Queue metrics.

// UpdateQueueDepth sets the backlog of one lane.
func UpdateQueueDepth(lane string, depth int) {
	globalManager.queueDepth.WithLabelValues(lane).Set(float64(depth))
}

// UpdateQueueCapacity sets the per-lane capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueued frame.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued frame.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts an enqueue failure.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErr.WithLabelValues(reason).Inc()
}

// Worker metrics.

// UpdateWorkerCount sets the number of worker lanes.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency observes frame processing latency.
func RecordWorkerProcessingLatency(ms float64) {
	globalManager.workerProcessingLatency.Observe(ms)
}

// RecordWorkerError counts a frame processing error.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Renderer metrics.

// UpdateRendererClients sets the number of websocket clients.
func UpdateRendererClients(count int) {
	globalManager.rendererClients.Set(float64(count))
}

// RecordEventEmitted counts a renderer event.
func RecordEventEmitted(eventType string) {
	globalManager.eventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordEventDropped counts an event not delivered to a slow client.
func RecordEventDropped() {
	globalManager.eventsDropped.Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.systemGCPauseTime.Observe(ms)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
