package apiclient

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_http_requests_total",
			Help: "Total count of REST requests sent to the chat backend.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_client_http_request_duration_seconds",
			Help:    "Histogram of REST request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	requestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_client_http_inflight_requests",
		Help: "Number of REST requests currently in flight.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, requestsInFlight)
}

// instrumentedTransport wraps a RoundTripper with prometheus counters and histograms.
type instrumentedTransport struct {
	next http.RoundTripper
}

func instrument(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumentedTransport{next: next}
}

func (t *instrumentedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	requestsInFlight.Inc()
	defer requestsInFlight.Dec()

	start := time.Now()
	res, err := t.next.RoundTrip(r)
	elapsed := time.Since(start).Seconds()

	status := "error"
	if err == nil {
		status = strconv.Itoa(res.StatusCode)
	}
	labels := []string{r.Method, sanitizePath(r.URL.Path), status}
	requestsTotal.WithLabelValues(labels...).Inc()
	requestDuration.WithLabelValues(labels...).Observe(elapsed)

	return res, err
}

// sanitizePath reduces cardinality by collapsing numeric and uuid-like segments.
func sanitizePath(p string) string {
	clean := path.Clean(p)
	if clean == "" || clean == "." {
		return "/"
	}

	segments := strings.Split(clean, "/")
	for i, seg := range segments {
		if isIdentifier(seg) {
			segments[i] = ":id"
		}
	}

	res := strings.Join(segments, "/")
	if !strings.HasPrefix(res, "/") {
		res = "/" + res
	}
	return res
}

func isIdentifier(seg string) bool {
	if seg == "" {
		return false
	}
	if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
		return true
	}
	return len(seg) == 36 && strings.Count(seg, "-") == 4
}
