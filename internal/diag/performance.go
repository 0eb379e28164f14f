package diag

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MimoJanra/SSOPulse/internal/config"
	"github.com/MimoJanra/SSOPulse/internal/models"
)

// latencyTier classifies a measured duration. Thresholds are in
// ascending order; the message of the first tier the value fits is used.
type latencyTier struct {
	belowMS float64
	level   models.Level
	message string
}

// PerformanceDiagnostics measures validation-endpoint, TCP, and DNS
// latency, benchmarks endpoints, and breaks down TLS handshake timing.
type PerformanceDiagnostics struct {
	recorder
	cfg *config.Settings

	// RequestDelay is inserted between successive benchmark requests.
	RequestDelay time.Duration
}

func NewPerformanceDiagnostics(cfg *config.Settings, log *logrus.Logger) *PerformanceDiagnostics {
	return &PerformanceDiagnostics{
		recorder:     newRecorder(log),
		cfg:          cfg,
		RequestDelay: 100 * time.Millisecond,
	}
}

// RunChecks executes all performance diagnostic checks.
func (d *PerformanceDiagnostics) RunChecks(ctx context.Context) []models.Result {
	d.Clear()

	d.checkValidationLatency(ctx)
	d.checkConnectLatency(ctx)
	d.checkDNSLatency(ctx)

	return d.Results()
}

func (d *PerformanceDiagnostics) checkValidationLatency(ctx context.Context) {
	if d.cfg.Host == "" || d.cfg.ValidationPath == "" {
		d.add("Performance - Validation Endpoint", models.LevelWarning,
			"Cannot test validation endpoint performance - endpoint not configured", nil, "")
		return
	}
	url := d.cfg.ValidationURL()

	client := d.cfg.NewHTTPClient(false)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		d.add("Performance - Validation Endpoint", models.LevelError,
			fmt.Sprintf("Failed to test validation endpoint performance: %v", err),
			map[string]any{"error": err.Error()}, "")
		return
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		d.add("Performance - Validation Endpoint", models.LevelError,
			fmt.Sprintf("Failed to test validation endpoint performance: %v", err),
			map[string]any{"error": err.Error()}, "")
		return
	}
	_ = resp.Body.Close()

	tiers := []latencyTier{
		{100, models.LevelSuccess, "Validation endpoint is fast (%.0fms)"},
		{500, models.LevelSuccess, "Validation endpoint response time: %.0fms"},
		{1000, models.LevelWarning, "Validation endpoint is slow (%.0fms)"},
		{math.Inf(1), models.LevelWarning, "Validation endpoint is very slow (%.0fms)"},
	}
	level, message := classifyLatency(tiers, elapsedMS)

	recommendation := ""
	if elapsedMS > 500 {
		recommendation = "Slow responses may indicate network issues, server load, or TLS overhead"
	}
	d.add("Performance - Validation Endpoint", level, message,
		map[string]any{
			"url":              url,
			"response_time_ms": round2(elapsedMS),
			"status_code":      resp.StatusCode,
		}, recommendation)
}

func (d *PerformanceDiagnostics) checkConnectLatency(ctx context.Context) {
	host := d.cfg.Host
	port := d.cfg.Port
	if host == "" {
		return
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: d.cfg.Timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		d.add("Performance - Network Latency", models.LevelError,
			fmt.Sprintf("Could not measure network latency: %v", err),
			map[string]any{"error": err.Error()}, "")
		return
	}
	_ = conn.Close()

	tiers := []latencyTier{
		{50, models.LevelSuccess, "Low network latency to identity service (%.0fms)"},
		{200, models.LevelSuccess, "Normal network latency to identity service (%.0fms)"},
		{500, models.LevelWarning, "Elevated network latency to identity service (%.0fms)"},
		{math.Inf(1), models.LevelWarning, "High network latency to identity service (%.0fms)"},
	}
	level, message := classifyLatency(tiers, elapsedMS)

	recommendation := ""
	if elapsedMS > 500 {
		recommendation = "High latency may indicate network congestion or routing issues"
	}
	d.add("Performance - Network Latency", level, message,
		map[string]any{
			"host":                host,
			"port":                port,
			"tcp_connect_time_ms": round2(elapsedMS),
		}, recommendation)
}

func (d *PerformanceDiagnostics) checkDNSLatency(ctx context.Context) {
	host := d.cfg.Host
	if host == "" {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	_, err := net.DefaultResolver.LookupHost(lookupCtx, host)
	elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			// Resolution failure is already reported by the
			// connectivity checks.
			return
		}
		d.add("Performance - DNS Resolution", models.LevelWarning,
			fmt.Sprintf("Could not measure DNS resolution: %v", err),
			map[string]any{"error": err.Error()}, "")
		return
	}

	tiers := []latencyTier{
		{50, models.LevelSuccess, "Fast DNS resolution (%.0fms)"},
		{200, models.LevelSuccess, "Normal DNS resolution time (%.0fms)"},
		{math.Inf(1), models.LevelWarning, "Slow DNS resolution (%.0fms)"},
	}
	level, message := classifyLatency(tiers, elapsedMS)

	recommendation := ""
	if elapsedMS > 200 {
		recommendation = "Consider using an IP address directly or checking DNS server configuration"
	}
	d.add("Performance - DNS Resolution", level, message,
		map[string]any{
			"host":               host,
			"resolution_time_ms": round2(elapsedMS),
		}, recommendation)
}

// Benchmark issues n sequential GET requests against url, following
// redirects, with a fixed delay between requests. Only 200 responses
// count as successes and contribute latencies.
func (d *PerformanceDiagnostics) Benchmark(ctx context.Context, url string, n int, headers, cookies map[string]string) models.BenchmarkResult {
	result := models.BenchmarkResult{
		URL:           url,
		TotalRequests: n,
		ResponseTimes: []float64{},
	}

	client := d.cfg.NewHTTPClient(true)

	for i := 0; i < n; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			result.Failed++
		} else {
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			for name, value := range cookies {
				req.AddCookie(&http.Cookie{Name: name, Value: value})
			}

			start := time.Now()
			resp, err := client.Do(req)
			elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)

			if err != nil {
				result.Failed++
			} else {
				_ = resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					result.Successful++
					result.ResponseTimes = append(result.ResponseTimes, round2(elapsedMS))
				} else {
					result.Failed++
				}
			}
		}

		if i < n-1 {
			sleepCtx(ctx, d.RequestDelay)
		}
	}

	result.Statistics = computeStats(result.ResponseTimes)
	return result
}

// SweepEndpoints probes each configured well-known endpoint once and
// records availability (any status below 500) and latency.
func (d *PerformanceDiagnostics) SweepEndpoints(ctx context.Context, token string) map[string]models.EndpointResult {
	results := make(map[string]models.EndpointResult, len(d.cfg.CommonEndpoints))
	client := d.cfg.NewHTTPClient(true)

	for name, path := range d.cfg.CommonEndpoints {
		url := d.cfg.BaseURL() + path
		er := models.EndpointResult{URL: url}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			er.Error = err.Error()
			results[name] = er
			continue
		}
		if token != "" {
			req.AddCookie(&http.Cookie{Name: d.cfg.TokenCookieName, Value: token})
		}

		start := time.Now()
		resp, err := client.Do(req)
		elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)
		if err != nil {
			er.Error = err.Error()
		} else {
			_ = resp.Body.Close()
			er.StatusCode = resp.StatusCode
			er.ResponseTimeMS = round2(elapsedMS)
			er.Accessible = resp.StatusCode < 500
		}
		results[name] = er
	}
	return results
}

// AnalyzeTLSTiming measures TCP connect and TLS handshake as two timed
// phases over a single connection. Any failure aborts the measurement.
func (d *PerformanceDiagnostics) AnalyzeTLSTiming(ctx context.Context) models.TLSTiming {
	host := d.cfg.Host
	port := d.cfg.Port
	result := models.TLSTiming{Host: host, Port: port}
	if host == "" {
		result.Error = "identity host not configured"
		return result
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: d.cfg.Timeout}
	start := time.Now()
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	tcpTime := time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = rawConn.Close() }()
	result.TCPTimeMS = round2(float64(tcpTime) / float64(time.Millisecond))

	tlsConn := tls.Client(rawConn, d.cfg.TLSConfig())
	tlsStart := time.Now()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		result.Error = err.Error()
		return result
	}
	tlsTime := time.Since(tlsStart)
	result.TLSTimeMS = round2(float64(tlsTime) / float64(time.Millisecond))
	result.TotalTimeMS = round2(float64(tcpTime+tlsTime) / float64(time.Millisecond))

	state := tlsConn.ConnectionState()
	result.Protocol = tls.VersionName(state.Version)
	result.Cipher = tls.CipherSuiteName(state.CipherSuite)
	return result
}

func classifyLatency(tiers []latencyTier, ms float64) (models.Level, string) {
	for _, t := range tiers {
		if ms < t.belowMS {
			return t.level, fmt.Sprintf(t.message, ms)
		}
	}
	last := tiers[len(tiers)-1]
	return last.level, fmt.Sprintf(last.message, ms)
}

// computeStats derives the benchmark statistics over successful-request
// latencies. Returns nil when there are no samples. Percentiles use
// nearest-rank indexing floor(n*p) into the ascending sort, with the
// index clamped to the last element for small samples. Standard
// deviation is the population form, reported as 0 below two samples.
func computeStats(times []float64) *models.BenchmarkStats {
	n := len(times)
	if n == 0 {
		return nil
	}

	sorted := make([]float64, n)
	copy(sorted, times)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	stddev := 0.0
	if n >= 2 {
		var sq float64
		for _, v := range sorted {
			diff := v - mean
			sq += diff * diff
		}
		stddev = math.Sqrt(sq / float64(n))
	}

	return &models.BenchmarkStats{
		MeanMS:   round2(mean),
		MedianMS: round2(median),
		MinMS:    round2(sorted[0]),
		MaxMS:    round2(sorted[n-1]),
		StddevMS: round2(stddev),
		P95MS:    round2(nearestRank(sorted, 0.95)),
		P99MS:    round2(nearestRank(sorted, 0.99)),
	}
}

func nearestRank(sorted []float64, p float64) float64 {
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
