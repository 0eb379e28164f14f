// Package config loads SSOPulse settings from environment variables,
// with an optional YAML file overriding the collector's search lists.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the explicit configuration value passed into every
// diagnostic module and the runner at construction time.
type Settings struct {
	// Identity service connection.
	Scheme          string
	Host            string
	Port            int
	ValidationPath  string
	TokenCookieName string

	// TLS options.
	VerifyTLS    bool
	CABundlePath string

	// Per-call probe timeout.
	Timeout time.Duration

	// Application session secret.
	SecretKey string

	// Expected JSON keys in identity-service responses.
	UsernameKeys []string
	RolesKeys    []string

	// HTTP API.
	ListenAddr string
	AdminRoles []string

	// System/log collector inputs. Entries in LogLocations may contain
	// wildcard segments, expanded at check time.
	LogLocations    []string
	LogFilePatterns []string
	ErrorPatterns   []string

	// Well-known console endpoints for the performance sweep.
	CommonEndpoints map[string]string
}

var defaultLogLocations = []string{
	"/opt/IBM/tivoli/netcool/omnibus/log",
	"/opt/IBM/JazzSM/profile/logs",
	"/opt/IBM/WebSphere/AppServer/profiles/*/logs",
	"/var/log/netcool",
	"/var/log/dash",
	"logs/",
	"./logs",
}

var defaultLogFilePatterns = []string{"*.log", "*.out", "*.err", "*error*", "*exception*"}

var defaultErrorPatterns = []string{
	`ERROR`,
	`SEVERE`,
	`FATAL`,
	`Exception`,
	`failed`,
	`timeout`,
	`LTPA.*invalid`,
	`LTPA.*expired`,
	`authentication.*failed`,
	`session.*expired`,
}

var defaultCommonEndpoints = map[string]string{
	"dash_home":    "/ibm/console",
	"dash_api":     "/ibm/console/api/platform/info",
	"jazzsm_home":  "/ibm/console/jazz",
	"webgui_login": "/ibm/console/login",
}

// Load reads settings from the environment. A .env file in the working
// directory is honored when present.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		Scheme:          getEnv("SSO_SCHEME", "https"),
		Host:            getEnv("SSO_HOST", "127.0.0.1"),
		Port:            getEnvInt("SSO_PORT", 443),
		ValidationPath:  getEnv("SSO_VALIDATION_PATH", "ltpa-integration/validate"),
		TokenCookieName: getEnv("SSO_TOKEN_COOKIE", "LtpaToken2"),
		VerifyTLS:       getEnvBool("SSO_VERIFY_TLS", true),
		CABundlePath:    getEnv("SSO_CA_BUNDLE", ""),
		Timeout:         getEnvSeconds("SSO_TIMEOUT_SECONDS", 5*time.Second),
		SecretKey:       getEnv("SSOPULSE_SECRET_KEY", "change-me"),
		UsernameKeys:    getEnvList("SSO_USERNAME_KEYS", "username,user,userName,userid,principal,cn,uid"),
		RolesKeys:       getEnvList("SSO_ROLES_KEYS", "roles,roleList,groups,groupList,authorities"),
		ListenAddr:      getEnv("SSOPULSE_LISTEN_ADDR", ":8080"),
		AdminRoles:      getEnvList("SSOPULSE_ADMIN_ROLES", "TCE_ADMIN,NETCOOL_ADMIN"),
		LogLocations:    defaultLogLocations,
		LogFilePatterns: defaultLogFilePatterns,
		ErrorPatterns:   defaultErrorPatterns,
		CommonEndpoints: defaultCommonEndpoints,
	}

	if path := os.Getenv("SSOPULSE_CONFIG_FILE"); path != "" {
		if err := s.applyFileOverrides(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	return s, nil
}

// fileOverrides is the YAML shape of the optional collector config file.
type fileOverrides struct {
	LogLocations    []string          `yaml:"log_locations"`
	LogFilePatterns []string          `yaml:"log_file_patterns"`
	ErrorPatterns   []string          `yaml:"error_patterns"`
	CommonEndpoints map[string]string `yaml:"common_endpoints"`
}

func (s *Settings) applyFileOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f fileOverrides
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if len(f.LogLocations) > 0 {
		s.LogLocations = f.LogLocations
	}
	if len(f.LogFilePatterns) > 0 {
		s.LogFilePatterns = f.LogFilePatterns
	}
	if len(f.ErrorPatterns) > 0 {
		s.ErrorPatterns = f.ErrorPatterns
	}
	if len(f.CommonEndpoints) > 0 {
		s.CommonEndpoints = f.CommonEndpoints
	}
	return nil
}

// BaseURL returns the identity-service origin, e.g. https://host:443.
func (s *Settings) BaseURL() string {
	return fmt.Sprintf("%s://%s", s.Scheme, net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
}

// ValidationURL returns the full token-validation endpoint URL.
func (s *Settings) ValidationURL() string {
	return s.BaseURL() + "/" + strings.TrimLeft(s.ValidationPath, "/")
}

// TLSConfig builds the client TLS configuration, honoring disabled
// verification and an optional CA bundle. SNI is skipped for IP hosts.
func (s *Settings) TLSConfig() *tls.Config {
	cfg := &tls.Config{}
	if !s.VerifyTLS {
		cfg.InsecureSkipVerify = true
	}
	if s.Host != "" && net.ParseIP(s.Host) == nil {
		cfg.ServerName = s.Host
	}
	if s.VerifyTLS && s.CABundlePath != "" {
		if pem, err := os.ReadFile(s.CABundlePath); err == nil {
			pool, err := x509.SystemCertPool()
			if err != nil || pool == nil {
				pool = x509.NewCertPool()
			}
			if pool.AppendCertsFromPEM(pem) {
				cfg.RootCAs = pool
			}
		}
	}
	return cfg
}

// NewHTTPClient builds a probe client with the configured timeout and
// TLS posture. When followRedirects is false, redirect responses are
// returned as-is.
func (s *Settings) NewHTTPClient(followRedirects bool) *http.Client {
	client := &http.Client{
		Timeout: s.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: s.TLSConfig(),
		},
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// Snapshot returns the current configuration for reporting, with the
// secret key redacted.
func (s *Settings) Snapshot() map[string]any {
	return map[string]any{
		"sso_scheme":          s.Scheme,
		"sso_host":            s.Host,
		"sso_port":            s.Port,
		"sso_validation_path": s.ValidationPath,
		"sso_token_cookie":    s.TokenCookieName,
		"sso_verify_tls":      s.VerifyTLS,
		"sso_ca_bundle":       s.CABundlePath,
		"sso_timeout_seconds": s.Timeout.Seconds(),
		"secret_key":          RedactValue("secret_key", s.SecretKey),
	}
}

// MissingKeys lists required settings that are unset.
func (s *Settings) MissingKeys() []string {
	var missing []string
	if s.Host == "" {
		missing = append(missing, "SSO_HOST")
	}
	if s.ValidationPath == "" {
		missing = append(missing, "SSO_VALIDATION_PATH")
	}
	if s.TokenCookieName == "" {
		missing = append(missing, "SSO_TOKEN_COOKIE")
	}
	if s.SecretKey == "" {
		missing = append(missing, "SSOPULSE_SECRET_KEY")
	}
	return missing
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
