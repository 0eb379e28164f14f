package diag

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MimoJanra/SSOPulse/internal/config"
	"github.com/MimoJanra/SSOPulse/internal/models"
)

// weakSecretKeys are literal values that must never be used in
// production.
var weakSecretKeys = []string{"change-me", "secret", "dev", "test"}

// SessionDiagnostics checks session configuration and probes session
// persistence and timeout behavior against a live target.
type SessionDiagnostics struct {
	recorder
	cfg *config.Settings

	// RequestDelay is inserted between successive probes to avoid
	// hammering the target. Never applied after the last probe.
	RequestDelay time.Duration
}

func NewSessionDiagnostics(cfg *config.Settings, log *logrus.Logger) *SessionDiagnostics {
	return &SessionDiagnostics{
		recorder:     newRecorder(log),
		cfg:          cfg,
		RequestDelay: 500 * time.Millisecond,
	}
}

// RunChecks executes all static session diagnostic checks.
func (d *SessionDiagnostics) RunChecks(ctx context.Context) []models.Result {
	d.Clear()

	d.checkSecretKey()
	d.checkTransportSecurity()
	d.checkCookieAdvisories()

	return d.Results()
}

func (d *SessionDiagnostics) checkSecretKey() {
	key := d.cfg.SecretKey
	if key == "" {
		d.add("Session - Secret Key", models.LevelCritical,
			"SSOPULSE_SECRET_KEY is not configured", nil,
			"Set SSOPULSE_SECRET_KEY to a secure random value (use 'openssl rand -hex 32')")
		return
	}
	for _, weak := range weakSecretKeys {
		if key == weak {
			d.add("Session - Secret Key", models.LevelError,
				"SSOPULSE_SECRET_KEY is using a default/weak value",
				map[string]any{"key_value": config.RedactionMarker},
				"Change SSOPULSE_SECRET_KEY to a strong random value")
			return
		}
	}
	if len(key) < 32 {
		d.add("Session - Secret Key", models.LevelWarning,
			fmt.Sprintf("SSOPULSE_SECRET_KEY is short (%d chars)", len(key)), nil,
			"Use at least 32 characters for the secret key")
		return
	}
	d.add("Session - Secret Key", models.LevelSuccess,
		fmt.Sprintf("SSOPULSE_SECRET_KEY is properly configured (%d chars)", len(key)), nil, "")
}

func (d *SessionDiagnostics) checkTransportSecurity() {
	port := d.cfg.Port
	if port == 443 || port == 8443 {
		d.add("Session - HTTPS", models.LevelSuccess,
			fmt.Sprintf("Using secure port %d", port),
			map[string]any{"port": port}, "")
	} else {
		d.add("Session - HTTPS", models.LevelWarning,
			fmt.Sprintf("Using non-standard port %d", port),
			map[string]any{"port": port},
			"Ensure HTTPS is used in production for secure cookie transmission")
	}
}

// checkCookieAdvisories documents operator responsibilities; neither
// point is programmatically verifiable from here.
func (d *SessionDiagnostics) checkCookieAdvisories() {
	d.add("Session - Cookie Best Practices", models.LevelInfo,
		"Session cookies should have: Secure flag (HTTPS only), HttpOnly flag (no JS access), SameSite=Strict/Lax",
		nil,
		"Configure your web server/proxy to set appropriate cookie flags")

	d.add("Session - SSO Domain", models.LevelInfo,
		"For SSO to work, ensure token cookies are set for the common domain",
		map[string]any{
			"identity_host": d.cfg.Host,
			"token_name":    d.cfg.TokenCookieName,
		},
		"Verify that the identity service and this app share the same cookie domain (e.g. .example.com)")
}

// TestPersistence issues n sequential GET requests against testURL,
// carrying the token cookie and accumulating session-related cookies
// across requests. A probe succeeds iff the status is exactly 200.
func (d *SessionDiagnostics) TestPersistence(ctx context.Context, testURL, token string, n int) models.SessionTestResult {
	result := models.SessionTestResult{
		TotalRequests: n,
		Requests:      []models.SessionProbe{},
	}
	if token == "" {
		result.Error = "no token provided"
		return result
	}

	client := d.cfg.NewHTTPClient(true)
	sessionCookies := map[string]string{}
	var latencies []float64

	for i := 0; i < n; i++ {
		probe := models.SessionProbe{RequestNum: i + 1}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
		if err != nil {
			probe.Error = err.Error()
			result.Failed++
			result.Requests = append(result.Requests, probe)
			continue
		}
		req.AddCookie(&http.Cookie{Name: d.cfg.TokenCookieName, Value: token})
		for name, value := range sessionCookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}

		start := time.Now()
		resp, err := client.Do(req)
		elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)

		if err != nil {
			probe.Error = err.Error()
			result.Failed++
		} else {
			probe.StatusCode = resp.StatusCode
			probe.ResponseTimeMS = round2(elapsedMS)
			probe.Success = resp.StatusCode == http.StatusOK

			for _, c := range resp.Cookies() {
				if d.isSessionCookie(c.Name) {
					sessionCookies[c.Name] = c.Value
					probe.SessionCookies = append(probe.SessionCookies, c.Name)
				}
			}
			_ = resp.Body.Close()

			if probe.Success {
				result.Successful++
				latencies = append(latencies, elapsedMS)
			} else {
				result.Failed++
			}
		}
		result.Requests = append(result.Requests, probe)

		if i < n-1 {
			sleepCtx(ctx, d.RequestDelay)
		}
	}

	if len(latencies) > 0 {
		var sum, minL, maxL float64
		minL, maxL = latencies[0], latencies[0]
		for _, v := range latencies {
			sum += v
			if v < minL {
				minL = v
			}
			if v > maxL {
				maxL = v
			}
		}
		result.AvgResponseTimeMS = round2(sum / float64(len(latencies)))
		result.MinResponseTimeMS = round2(minL)
		result.MaxResponseTimeMS = round2(maxL)
	}

	result.SessionStable = result.Successful == n
	return result
}

func (d *SessionDiagnostics) isSessionCookie(name string) bool {
	return strings.Contains(strings.ToLower(name), "session") || name == d.cfg.TokenCookieName
}

// AnalyzeTimeout probes testURL once after each wait interval and stops
// on the first detected expiration. Intervals are seconds and expected to
// be monotonically increasing. The estimated timeout is reported only
// when a prior probe succeeded; otherwise the token was never valid and
// no estimate is meaningful.
func (d *SessionDiagnostics) AnalyzeTimeout(ctx context.Context, testURL, token string, intervals []int) models.TimeoutAnalysis {
	if intervals == nil {
		intervals = []int{0, 60, 300}
	}
	result := models.TimeoutAnalysis{Checks: []models.TimeoutProbe{}}
	if token == "" {
		result.Error = "no token provided"
		return result
	}

	client := d.cfg.NewHTTPClient(false)
	sawSuccess := false

	for _, interval := range intervals {
		if interval > 0 {
			d.log.Infof("Waiting %d seconds before next check...", interval)
			sleepCtx(ctx, time.Duration(interval)*time.Second)
		}

		probe := models.TimeoutProbe{
			ElapsedSeconds: interval,
			Timestamp:      time.Now().UTC(),
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
		if err != nil {
			probe.Message = fmt.Sprintf("Request failed: %v", err)
			probe.Error = err.Error()
			result.Checks = append(result.Checks, probe)
			continue
		}
		req.AddCookie(&http.Cookie{Name: d.cfg.TokenCookieName, Value: token})

		resp, err := client.Do(req)
		if err != nil {
			probe.Message = fmt.Sprintf("Request failed: %v", err)
			probe.Error = err.Error()
			result.Checks = append(result.Checks, probe)
			continue
		}
		_ = resp.Body.Close()
		probe.StatusCode = resp.StatusCode

		switch {
		case resp.StatusCode == http.StatusOK:
			probe.Success = true
			probe.Message = "Session still valid"
			sawSuccess = true
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			probe.Message = "Session expired/invalid"
			result.TimeoutDetected = true
			if sawSuccess {
				result.EstimatedTimeoutSeconds = interval
			}
		default:
			probe.Message = fmt.Sprintf("Unexpected status: %d", resp.StatusCode)
		}

		result.Checks = append(result.Checks, probe)

		if result.TimeoutDetected {
			break
		}
	}

	return result
}

// sleepCtx sleeps for d or until the whole invocation is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
