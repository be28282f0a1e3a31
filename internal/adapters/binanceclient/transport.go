package binanceclient

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type statusKey struct{}

// responseStatus captures the HTTP status of the last response on a request
// context. The go-binance client drops it when it decodes an error body.
type responseStatus struct {
	mu     sync.Mutex
	status int
	after  time.Duration
}

func withStatus(ctx context.Context) (context.Context, *responseStatus) {
	rs := &responseStatus{}
	return context.WithValue(ctx, statusKey{}, rs), rs
}

func (rs *responseStatus) code() int {
	if rs == nil {
		return 0
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.status
}

func (rs *responseStatus) retryAfter() time.Duration {
	if rs == nil {
		return 0
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.after
}

func (rs *responseStatus) record(resp *http.Response) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status = resp.StatusCode
	rs.after = parseRetryAfter(resp.Header.Get("Retry-After"))
}

// statusTransport records response metadata into the request context.
type statusTransport struct {
	next http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if rs, ok := req.Context().Value(statusKey{}).(*responseStatus); ok {
		rs.record(resp)
	}
	return resp, nil
}

// parseRetryAfter reads the delta-seconds form Binance sends.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
