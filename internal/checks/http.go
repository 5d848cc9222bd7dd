package checks

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/leozw/pulse-monitor/internal/db"
)

const (
	DefaultTimeout = 30 * time.Second
	UserAgent      = "PulseMonitor/1.0"

	maxBodyDrain = 64 << 10
)

type HTTPChecker struct {
	client *http.Client
	// now is swapped in tests to control measured latency.
	now func() time.Time
}

func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		client: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: false,
				},
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		now: time.Now,
	}
}

// clientFor returns a client sharing the transport with its overall
// timeout set to the monitor's.
func (h *HTTPChecker) clientFor(timeout time.Duration) *http.Client {
	c := *h.client
	c.Timeout = timeout
	return &c
}

func (h *HTTPChecker) Check(ctx context.Context, monitor *db.Monitor) Result {
	timeout := DefaultTimeout
	if monitor.Timeout > 0 {
		timeout = time.Duration(monitor.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := monitor.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, monitor.URL, nil)
	if err != nil {
		return Result{Error: err.Error()}
	}
	req.Header.Set("User-Agent", UserAgent)

	start := h.now()
	resp, err := h.clientFor(timeout).Do(req)
	elapsed := h.now().Sub(start).Milliseconds()

	if err != nil {
		return Result{
			ResponseTimeMs: elapsed,
			Error:          err.Error(),
		}
	}
	defer resp.Body.Close()
	// Drain a bounded amount so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrain))

	expected := monitor.ExpectedStatusCode
	if expected == 0 {
		expected = http.StatusOK
	}

	return Result{
		StatusCode:     resp.StatusCode,
		ResponseTimeMs: elapsed,
		Success:        resp.StatusCode == expected,
	}
}
