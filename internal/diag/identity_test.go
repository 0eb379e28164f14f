package diag

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimoJanra/SSOPulse/internal/models"
)

func findResult(t *testing.T, results []models.Result, name string) models.Result {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no result named %q", name)
	return models.Result{}
}

func findTokenCheck(t *testing.T, checks []models.TokenCheck, name string) models.TokenCheck {
	t.Helper()
	for _, c := range checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no token check named %q", name)
	return models.TokenCheck{}
}

func TestCheckValidationEndpointStatuses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel models.Level
	}{
		{"unauthorized means reachable", http.StatusUnauthorized, models.LevelSuccess},
		{"forbidden means reachable", http.StatusForbidden, models.LevelSuccess},
		{"not found is misconfiguration", http.StatusNotFound, models.LevelError},
		{"server error", http.StatusInternalServerError, models.LevelError},
		{"unexpected success is suspicious", http.StatusOK, models.LevelWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			d := NewIdentityDiagnostics(testSettings(t, srv), quietLogger())
			d.checkValidationEndpoint(context.Background())

			res := findResult(t, d.Results(), "Identity Service - Endpoint")
			assert.Equal(t, tt.wantLevel, res.Level)
			assert.Equal(t, tt.status, res.Details["status_code"])
		})
	}
}

func TestCheckValidationEndpointDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer srv.Close()

	d := NewIdentityDiagnostics(testSettings(t, srv), quietLogger())
	d.checkValidationEndpoint(context.Background())

	res := findResult(t, d.Results(), "Identity Service - Endpoint")
	assert.Equal(t, models.LevelWarning, res.Level)
	assert.Equal(t, http.StatusFound, res.Details["status_code"])
}

func TestCheckConnectivityDNSFailure(t *testing.T) {
	cfg := testSettingsNoServer()
	cfg.Host = "host.invalid"
	cfg.Timeout = 2 * time.Second

	d := NewIdentityDiagnostics(cfg, quietLogger())
	d.checkConnectivity(context.Background())

	res := findResult(t, d.Results(), "Connectivity - DNS")
	assert.Equal(t, models.LevelError, res.Level)
	assert.Equal(t, "host.invalid", res.Details["host"])
	assert.NotEmpty(t, res.Recommendation)
}

func TestCheckConnectivityRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := testSettingsNoServer()
	cfg.Host = "127.0.0.1"
	cfg.Port = port

	d := NewIdentityDiagnostics(cfg, quietLogger())
	d.checkConnectivity(context.Background())

	res := findResult(t, d.Results(), "Connectivity - TCP")
	assert.Equal(t, models.LevelError, res.Level)
	assert.Equal(t, port, res.Details["port"])
}

func TestCheckConnectivitySuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	cfg := testSettingsNoServer()
	cfg.Host = "127.0.0.1"
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	d := NewIdentityDiagnostics(cfg, quietLogger())
	d.checkConnectivity(context.Background())

	res := findResult(t, d.Results(), "Connectivity - TCP")
	assert.Equal(t, models.LevelSuccess, res.Level)
}

func TestCheckConfigurationMissingHostIsCritical(t *testing.T) {
	cfg := testSettingsNoServer()
	cfg.Host = ""

	d := NewIdentityDiagnostics(cfg, quietLogger())
	d.checkConfiguration()

	res := findResult(t, d.Results(), "Identity Config - Host")
	assert.Equal(t, models.LevelCritical, res.Level)
	assert.NotEmpty(t, res.Recommendation)
}

func TestCheckCookieNameConventions(t *testing.T) {
	cfg := testSettingsNoServer()
	cfg.TokenCookieName = "my custom cookie!"

	d := NewIdentityDiagnostics(cfg, quietLogger())
	d.checkCookieName()

	res := findResult(t, d.Results(), "Cookie - Name Format")
	assert.Equal(t, models.LevelWarning, res.Level)
}

func TestCheckCookieNameNonStandardIsInfo(t *testing.T) {
	cfg := testSettingsNoServer()
	cfg.TokenCookieName = "MySSOToken"

	d := NewIdentityDiagnostics(cfg, quietLogger())
	d.checkCookieName()

	format := findResult(t, d.Results(), "Cookie - Name Format")
	assert.Equal(t, models.LevelSuccess, format.Level)

	convention := findResult(t, d.Results(), "Cookie - Name Convention")
	assert.Equal(t, models.LevelInfo, convention.Level)
}

func TestCheckTLSHandshakeSuccess(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	d := NewIdentityDiagnostics(tlsTestSettings(t, srv), quietLogger())
	d.checkTLS(context.Background())

	verification := findResult(t, d.Results(), "TLS - Verification")
	assert.Equal(t, models.LevelWarning, verification.Level)

	handshake := findResult(t, d.Results(), "TLS - Handshake")
	assert.Equal(t, models.LevelSuccess, handshake.Level)
	assert.NotEmpty(t, handshake.Details["protocol"])
	assert.NotEmpty(t, handshake.Details["cipher"])
	assert.Equal(t, true, handshake.Details["has_certificate"])
}

func TestCheckTLSHandshakeFailureAgainstPlainServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := NewIdentityDiagnostics(testSettings(t, srv), quietLogger())
	d.checkTLS(context.Background())

	handshake := findResult(t, d.Results(), "TLS - Handshake")
	assert.Equal(t, models.LevelError, handshake.Level)
}

func TestValidateTokenEmpty(t *testing.T) {
	d := NewIdentityDiagnostics(testSettingsNoServer(), quietLogger())
	v := d.ValidateToken(context.Background(), "  ")

	assert.False(t, v.Valid)
	require.Len(t, v.Checks, 1)
	assert.Equal(t, "Token Format", v.Checks[0].Name)
	assert.False(t, v.Checks[0].Passed)
}

func TestValidateTokenRejectedByService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	token := base64.StdEncoding.EncodeToString([]byte("some ltpa token payload"))
	d := NewIdentityDiagnostics(testSettings(t, srv), quietLogger())
	v := d.ValidateToken(context.Background(), token)

	assert.False(t, v.Valid, "structurally sound tokens are still invalid until the service accepts them")

	b64 := findTokenCheck(t, v.Checks, "Base64 Encoding")
	assert.True(t, b64.Passed)

	svc := findTokenCheck(t, v.Checks, "Identity Validation")
	assert.False(t, svc.Passed)
	assert.Contains(t, svc.Message, "401")
}

func TestValidateTokenAccepted(t *testing.T) {
	var gotHeader, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(TokenHeader)
		if c, err := r.Cookie("LtpaToken2"); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"username":"alice"}`))
	}))
	defer srv.Close()

	token := base64.StdEncoding.EncodeToString([]byte("payload"))
	d := NewIdentityDiagnostics(testSettings(t, srv), quietLogger())
	v := d.ValidateToken(context.Background(), token)

	assert.True(t, v.Valid)
	assert.Equal(t, token, gotHeader)
	assert.Equal(t, token, gotCookie)

	svc := findTokenCheck(t, v.Checks, "Identity Validation")
	assert.True(t, svc.Passed)
	assert.Contains(t, v.Details, "service_response")
}

func TestValidateTokenNotBase64StillDelegates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	d := NewIdentityDiagnostics(testSettings(t, srv), quietLogger())
	v := d.ValidateToken(context.Background(), "not!!valid==base64")

	b64 := findTokenCheck(t, v.Checks, "Base64 Encoding")
	assert.False(t, b64.Passed)

	svc := findTokenCheck(t, v.Checks, "Identity Validation")
	assert.True(t, svc.Passed)
	assert.True(t, v.Valid)
}

func TestRunChecksClearsPreviousResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewIdentityDiagnostics(testSettings(t, srv), quietLogger())
	first := d.RunChecks(context.Background())
	second := d.RunChecks(context.Background())

	assert.Equal(t, len(first), len(second), "repeated runs must not accumulate results")
	assert.Equal(t, len(second), d.Summary().Total())
}
