package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veilgate/veilgate/pkg/domain"
	"github.com/veilgate/veilgate/pkg/policy"
	"github.com/veilgate/veilgate/pkg/policy/redact"
)

var errFilterPanic = errors.New("gateway: panic during redaction")

// FilterConfig configures a ResponseFilter.
type FilterConfig struct {
	// Policies is the initial field visibility table. Swapped atomically
	// on reload via UpdatePolicies.
	Policies *policy.Store
	// ExcludedPaths are request path prefixes that bypass filtering
	// entirely (authorization-server endpoints, discovery metadata, API
	// documentation UI). Responses under them stream through untouched.
	ExcludedPaths []string
	Logger        *slog.Logger
	Metrics       *Metrics
}

// ResponseFilter buffers a downstream handler's output and rewrites
// successful JSON bodies through the redaction engine before any byte
// reaches the transport. Every failure mode degrades to serving the
// original bytes; the filter never rejects a request.
type ResponseFilter struct {
	policies atomic.Pointer[policy.Store]
	excluded []string
	logger   *slog.Logger
	metrics  *Metrics
}

// NewResponseFilter builds the filtering middleware.
func NewResponseFilter(cfg FilterConfig) *ResponseFilter {
	if cfg.Policies == nil {
		cfg.Policies = policy.NewStore(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	f := &ResponseFilter{
		excluded: append([]string(nil), cfg.ExcludedPaths...),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	f.policies.Store(cfg.Policies)
	return f
}

// UpdatePolicies swaps in a freshly built visibility table. In-flight
// requests finish against the table they started with.
func (f *ResponseFilter) UpdatePolicies(s *policy.Store) {
	if s != nil {
		f.policies.Store(s)
	}
}

// Wrap returns a handler that intercepts next's response for eligible
// requests. A request is eligible when a principal was resolved and the
// path is not excluded; everything else streams through without
// buffering.
func (f *ResponseFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok || f.excludedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		rec := &bodyRecorder{ResponseWriter: w}
		// A panic below abandons the buffered body entirely: nothing has
		// been flushed yet, and partially filtered output must never be.
		next.ServeHTTP(rec, r)
		f.finish(w, r, rec, principal)
	})
}

func (f *ResponseFilter) excludedPath(path string) bool {
	for _, prefix := range f.excluded {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// finish decides whether the buffered body is rewritten and performs the
// single write to the real ResponseWriter.
func (f *ResponseFilter) finish(w http.ResponseWriter, r *http.Request, rec *bodyRecorder, p domain.Principal) {
	if r.Context().Err() != nil {
		// Caller disconnected mid-request; abandon the buffered body.
		return
	}

	body := rec.body.Bytes()
	status := rec.statusCode()
	outcome := OutcomeUnmodified

	if status == http.StatusOK && isJSONContentType(w.Header().Get("Content-Type")) {
		start := time.Now()
		filtered, removed, err := f.filter(body, p)
		if f.metrics != nil {
			f.metrics.filterDuration.Observe(time.Since(start).Seconds())
		}

		switch {
		case errors.Is(err, errFilterPanic):
			// Fail open: serve the original body rather than the error.
			outcome = OutcomePanic
			f.logger.Error("redaction panicked, serving unfiltered body",
				"path", r.URL.Path,
				"error", err,
			)
		case err != nil:
			outcome = OutcomeParseError
			f.logger.Debug("response body is not parseable JSON, passing through",
				"path", r.URL.Path,
				"error", err,
			)
		default:
			body = filtered
			outcome = OutcomeFiltered
			if f.metrics != nil && removed > 0 {
				f.metrics.fieldsRedacted.Add(float64(removed))
			}
			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.Int("veilgate.fields_removed", removed),
			)
		}
	}

	if f.metrics != nil {
		f.metrics.filterOutcomes.WithLabelValues(outcome).Inc()
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if r.Method == http.MethodHead || len(body) == 0 {
		return
	}
	if _, err := w.Write(body); err != nil {
		f.logger.Debug("client went away before body was written", "error", err)
	}
}

// filter runs the redaction engine over the buffered bytes, converting a
// panic into an error so it cannot propagate past the interceptor.
func (f *ResponseFilter) filter(body []byte, p domain.Principal) (out []byte, removed int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, removed = nil, 0
			err = fmt.Errorf("%w: %v", errFilterPanic, rec)
		}
	}()

	engine := redact.NewEngine(f.policies.Load())
	return engine.FilterBytes(body, p)
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// bodyRecorder buffers the downstream handler's response so the filter
// can rewrite it before anything reaches the wire. It is request-local;
// no state is shared across requests.
type bodyRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (rec *bodyRecorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status = code
		rec.wroteHeader = true
	}
}

func (rec *bodyRecorder) Write(p []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	return rec.body.Write(p)
}

// Flush is a no-op: the whole point of the recorder is that nothing is
// transmitted until the filtering decision has been made.
func (rec *bodyRecorder) Flush() {}

func (rec *bodyRecorder) statusCode() int {
	if !rec.wroteHeader {
		return http.StatusOK
	}
	return rec.status
}
