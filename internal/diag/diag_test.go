package diag

import (
	"io"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/MimoJanra/SSOPulse/internal/config"
)

// quietLogger keeps test output free of diagnostic log lines.
func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// testSettingsNoServer is a complete configuration with no live target,
// for checks that never touch the network.
func testSettingsNoServer() *config.Settings {
	return &config.Settings{
		Scheme:          "https",
		Host:            "sso.example.com",
		Port:            443,
		ValidationPath:  "ltpa-integration/validate",
		TokenCookieName: "LtpaToken2",
		VerifyTLS:       true,
		Timeout:         5 * time.Second,
		SecretKey:       "0123456789abcdef0123456789abcdef",
	}
}

// testSettings points the configuration at a local test server.
func testSettings(t *testing.T, srv *httptest.Server) *config.Settings {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return &config.Settings{
		Scheme:          "http",
		Host:            u.Hostname(),
		Port:            port,
		ValidationPath:  "validate",
		TokenCookieName: "LtpaToken2",
		VerifyTLS:       false,
		Timeout:         2 * time.Second,
		SecretKey:       "0123456789abcdef0123456789abcdef",
	}
}

// tlsTestSettings points the configuration at a local TLS test server,
// with certificate verification disabled to accept its ephemeral cert.
func tlsTestSettings(t *testing.T, srv *httptest.Server) *config.Settings {
	t.Helper()
	cfg := testSettings(t, srv)
	cfg.Scheme = "https"
	return cfg
}
