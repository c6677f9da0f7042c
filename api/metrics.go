package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// listRequestMetrics collects timings for the todos listing, the hottest
// route: clients re-fetch it after every update notification.
type listRequestMetrics struct {
	logger         *log.Logger
	start          time.Time
	fetchDuration  time.Duration
	encodeDuration time.Duration
	statusFilter   string
	todosReturned  int
	errorStage     string
}

func newListRequestMetrics(logger *log.Logger) *listRequestMetrics {
	return &listRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
}

func (m *listRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *listRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *listRequestMetrics) SetStatusFilter(status string) {
	m.statusFilter = status
}

func (m *listRequestMetrics) SetTodosReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.todosReturned = count
}

func (m *listRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *listRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":          "/api/todos",
		"status":         status,
		"total_ms":       durationToMillis(time.Since(m.start)),
		"todos_returned": m.todosReturned,
	}

	if m.statusFilter != "" {
		fields["status_filter"] = m.statusFilter
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("todos.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
