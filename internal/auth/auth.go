// Package auth implements the delegated-authentication flow: an SSO
// token is exchanged with the identity service for a user identity.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/MimoJanra/SSOPulse/internal/config"
	"github.com/MimoJanra/SSOPulse/internal/diag"
)

var (
	// ErrMissingToken means no token was present in the request.
	ErrMissingToken = errors.New("missing SSO token")
	// ErrRejected means the identity service refused the token.
	ErrRejected = errors.New("token rejected by identity service")
	// ErrUnreachable means the identity service could not be contacted.
	ErrUnreachable = errors.New("cannot reach identity service")
	// ErrProtocol means the identity service answered 200 with a
	// non-JSON body.
	ErrProtocol = errors.New("invalid response from identity service")
	// ErrMissingIdentity means the response carried no username.
	ErrMissingIdentity = errors.New("identity service response missing username")
)

// tokenHeaders are checked in order before falling back to the cookie.
var tokenHeaders = []string{"X-Lpta-Token", "X-Ltpa-Token", "X-LTPA-Token"}

// UserDetails is an authenticated identity with normalized roles.
type UserDetails struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// NewUserDetails trims, de-duplicates, and drops empty role entries.
func NewUserDetails(username string, roles []string) UserDetails {
	seen := map[string]bool{}
	norm := []string{}
	for _, r := range roles {
		s := strings.TrimSpace(r)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		norm = append(norm, s)
	}
	return UserDetails{Username: username, Roles: norm}
}

// Manager performs token extraction and delegated validation.
type Manager struct {
	cfg    *config.Settings
	log    *logrus.Logger
	client *http.Client
}

func NewManager(cfg *config.Settings, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		cfg:    cfg,
		log:    log,
		client: cfg.NewHTTPClient(true),
	}
}

// ExtractToken pulls the SSO token from the known headers, then from the
// configured cookie.
func (m *Manager) ExtractToken(r *http.Request) string {
	for _, h := range tokenHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	if c, err := r.Cookie(m.cfg.TokenCookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// Authenticate exchanges a token for a user identity via the identity
// service. A 200 with a JSON body is a valid identity; any other status
// is a rejection.
func (m *Manager) Authenticate(ctx context.Context, token string) (UserDetails, error) {
	if token == "" {
		return UserDetails{}, ErrMissingToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.ValidationURL(), nil)
	if err != nil {
		return UserDetails{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(diag.TokenHeader, token)
	req.AddCookie(&http.Cookie{Name: m.cfg.TokenCookieName, Value: token})

	resp, err := m.client.Do(req)
	if err != nil {
		m.log.WithError(err).Error("Failed to reach identity service")
		return UserDetails{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		m.log.Warnf("Identity service returned %d", resp.StatusCode)
		return UserDetails{}, ErrRejected
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return UserDetails{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	payload := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			m.log.Error("Non-JSON response from identity service")
			return UserDetails{}, ErrProtocol
		}
	}

	username, roles := extractIdentity(payload, m.cfg.UsernameKeys, m.cfg.RolesKeys)
	if username == "" {
		m.log.Error("Identity service response missing username")
		return UserDetails{}, ErrMissingIdentity
	}

	user := NewUserDetails(username, roles)
	m.log.Infof("Authenticated '%s' with roles=%v", user.Username, user.Roles)
	return user, nil
}

// extractIdentity searches the payload and its common sub-objects for
// the first matching username and roles keys. Roles may be a JSON list
// or a comma-separated string.
func extractIdentity(payload map[string]any, usernameKeys, rolesKeys []string) (string, []string) {
	candidates := []map[string]any{payload}
	for _, k := range []string{"data", "result", "user", "principal"} {
		if sub, ok := payload[k].(map[string]any); ok {
			candidates = append(candidates, sub)
		}
	}

	var username string
	var roles []string

	for _, obj := range candidates {
		if username == "" {
			if v := findFirst(obj, usernameKeys); v != nil {
				switch u := v.(type) {
				case string:
					username = u
				case float64:
					username = fmt.Sprintf("%v", v)
				}
			}
		}
		if roles == nil {
			if v := findFirst(obj, rolesKeys); v != nil {
				switch r := v.(type) {
				case []any:
					for _, item := range r {
						roles = append(roles, fmt.Sprint(item))
					}
				case string:
					for _, part := range strings.Split(r, ",") {
						if part = strings.TrimSpace(part); part != "" {
							roles = append(roles, part)
						}
					}
				}
			}
		}
	}
	return username, roles
}

func findFirst(obj map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return nil
}
