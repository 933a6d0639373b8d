package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veilgate/veilgate/pkg/domain"
	"github.com/veilgate/veilgate/pkg/ratewatch"
)

// HeaderRequestID carries a caller-supplied correlation id. When absent
// the monitor generates one.
const HeaderRequestID = "X-Request-ID"

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Tracker    *ratewatch.Tracker
	Thresholds domain.Thresholds
	// IntrospectionPaths are prefixes that additionally emit an
	// INTROSPECTION_REQUEST event.
	IntrospectionPaths []string
	Logger             *slog.Logger
	Metrics            *Metrics
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Monitor records every authenticated request in the sliding-window
// tracker and emits advisory security events when frequency thresholds
// are crossed. It never blocks a request; admission control is a
// separate layer.
type Monitor struct {
	tracker       *ratewatch.Tracker
	thresholds    atomic.Pointer[domain.Thresholds]
	introspection []string
	logger        *slog.Logger
	metrics       *Metrics
	now           func() time.Time
}

// NewMonitor builds the monitoring middleware.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Monitor{
		tracker:       cfg.Tracker,
		introspection: append([]string(nil), cfg.IntrospectionPaths...),
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		now:           cfg.Now,
	}
	th := cfg.Thresholds
	m.thresholds.Store(&th)
	return m
}

// UpdateThresholds swaps in reloaded threshold configuration.
func (m *Monitor) UpdateThresholds(th domain.Thresholds) {
	m.thresholds.Store(&th)
}

// Wrap returns a handler that observes the request before handing it to
// next.
func (m *Monitor) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.observe(r)
		next.ServeHTTP(w, r)
	})
}

func (m *Monitor) observe(r *http.Request) {
	th := *m.thresholds.Load()
	now := m.now()

	evt := domain.SecurityEvent{
		CorrelationID: correlationID(r),
		Timestamp:     now,
		CallerIP:      callerIP(r),
		Path:          r.URL.Path,
		Method:        r.Method,
	}
	if p, ok := PrincipalFromContext(r.Context()); ok {
		evt.ClientID = p.ClientID
	}

	if evt.ClientID == "" {
		// Nothing to key the window on; the request proceeds untracked.
		evt.Type = domain.EventClientIdentityUnresolved
		m.emit(r.Context(), slog.LevelInfo, evt)
		return
	}

	m.tracker.Prune(evt.ClientID, now.Add(-th.Retention))
	m.tracker.Record(evt.ClientID, now)
	recent := m.tracker.CountSince(evt.ClientID, now.Add(-th.SuspiciousWindow))
	hourly := m.tracker.CountSince(evt.ClientID, now.Add(-th.HighFrequencyWindow))

	evt.Type = domain.EventTokenRequestMonitored
	evt.RecentCount = recent
	m.emit(r.Context(), slog.LevelDebug, evt)

	if th.Suspicious > 0 && recent >= th.Suspicious {
		suspicious := evt
		suspicious.Type = domain.EventSuspiciousTokenFrequency
		m.emit(r.Context(), slog.LevelWarn, suspicious)
	}
	if th.HighFrequency > 0 && hourly >= th.HighFrequency {
		high := evt
		high.Type = domain.EventHighTokenFrequency
		high.RecentCount = hourly
		m.emit(r.Context(), slog.LevelWarn, high)
	}
	if m.introspectionPath(r.URL.Path) {
		intro := evt
		intro.Type = domain.EventIntrospectionRequest
		m.emit(r.Context(), slog.LevelInfo, intro)
	}

	if m.metrics != nil {
		m.metrics.trackedClients.Set(float64(m.tracker.Clients()))
	}
}

func (m *Monitor) introspectionPath(path string) bool {
	for _, prefix := range m.introspection {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// emit hands the event to the log sink and the metrics/trace pipelines.
func (m *Monitor) emit(ctx context.Context, level slog.Level, evt domain.SecurityEvent) {
	if m.metrics != nil {
		m.metrics.securityEvents.WithLabelValues(string(evt.Type)).Inc()
	}
	trace.SpanFromContext(ctx).AddEvent("security_audit", trace.WithAttributes(
		attribute.String("veilgate.event_type", string(evt.Type)),
		attribute.String("veilgate.client_id", evt.ClientID),
	))

	m.logger.LogAttrs(ctx, level, "security_audit",
		slog.String("event_type", string(evt.Type)),
		slog.String("correlation_id", evt.CorrelationID),
		slog.String("client_id", evt.ClientID),
		slog.Int("recent_count", evt.RecentCount),
		slog.Time("event_time", evt.Timestamp),
		slog.String("caller_ip", evt.CallerIP),
		slog.String("path", evt.Path),
		slog.String("method", evt.Method),
	)
}

func correlationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" {
		return id
	}
	return uuid.NewString()
}
