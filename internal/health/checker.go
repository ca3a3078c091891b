// Package health checks that camera snapshot endpoints are reachable.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// CheckResult contains the results of one reachability check.
type CheckResult struct {
	HostReachable bool      `json:"host_reachable"`
	HostError     string    `json:"host_error,omitempty"`
	URLAccessible bool      `json:"url_accessible"`
	URLError      string    `json:"url_error,omitempty"`
	ResponseTime  int64     `json:"response_time_ms"`
	LastChecked   time.Time `json:"last_checked"`
}

// Healthy reports whether both checks passed.
func (r CheckResult) Healthy() bool {
	return r.HostReachable && r.URLAccessible
}

// Checker performs TCP and HTTP checks against snapshot URLs.
type Checker struct {
	timeout time.Duration
	dialer  net.Dialer
	client  *http.Client
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
		client:  &http.Client{Timeout: timeout},
	}
}

// Check dials the host of snapshotURL and, if that succeeds, fetches the URL.
func (c *Checker) Check(ctx context.Context, snapshotURL string) CheckResult {
	result := CheckResult{LastChecked: time.Now()}

	u, err := url.Parse(snapshotURL)
	if err != nil || u.Host == "" {
		result.HostError = fmt.Sprintf("invalid URL %q", snapshotURL)
		result.URLError = result.HostError
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result.HostReachable, result.HostError = c.tcpPing(ctx, hostPort(u))
	if !result.HostReachable {
		result.URLError = "host unreachable"
		return result
	}

	start := time.Now()
	result.URLAccessible, result.URLError = c.httpCheck(ctx, snapshotURL)
	result.ResponseTime = time.Since(start).Milliseconds()
	return result
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func (c *Checker) tcpPing(ctx context.Context, host string) (bool, string) {
	conn, err := c.dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return false, fmt.Sprintf("TCP connection failed: %v", err)
	}
	_ = conn.Close()
	return true, ""
}

func (c *Checker) httpCheck(ctx context.Context, target string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Sprintf("request creation failed: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("HTTP request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return true, ""
	}
	return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
}
