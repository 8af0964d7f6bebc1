// Package auth owns the bearer-token lifecycle: admin (service) token
// acquisition, customer login/logout, and on-demand refresh. At most one
// admin and one customer token are live per session.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"storefront/internal/model"
)

// Kind discriminates the two token scopes.
type Kind string

const (
	KindAdmin    Kind = "admin"
	KindCustomer Kind = "customer"
)

// Magento-compatible authentication endpoints.
const (
	pathAdminToken    = "/integration/admin/token"
	pathCustomerToken = "/integration/customer/token"
	pathCustomersMe   = "/customers/me"
	pathLogout        = "/customers/logout"
)

// Credentials are the service (admin) credentials from config.
type Credentials struct {
	Username string
	Password string
}

// Service obtains, persists, and refreshes tokens. It talks to the token
// endpoints directly (they are unauthenticated); everything else goes
// through the request gateway, which calls back into Refresh on 401.
type Service struct {
	baseURL string
	creds   Credentials
	client  *http.Client
	store   *Store
	logger  *slog.Logger

	// refreshGroup collapses concurrent refreshes of the same kind into one
	// upstream call; both callers receive its result.
	refreshGroup singleflight.Group

	mu           sync.Mutex
	onAdminToken []func()
}

// NewService creates a token service. baseURL is the commerce REST root.
func NewService(baseURL string, creds Credentials, client *http.Client, store *Store, logger *slog.Logger) *Service {
	return &Service{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		creds:   creds,
		client:  client,
		store:   store,
		logger:  logger,
	}
}

// OnAdminTokenIssued registers a hook fired whenever a fresh admin token is
// acquired. The catalog cache registers here: entries populated under the
// old token context must not outlive it.
func (s *Service) OnAdminTokenIssued(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAdminToken = append(s.onAdminToken, fn)
}

func (s *Service) fireAdminTokenHooks() {
	s.mu.Lock()
	hooks := make([]func(), len(s.onAdminToken))
	copy(hooks, s.onAdminToken)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// AdminToken returns the cached admin token, acquiring one if none is stored.
func (s *Service) AdminToken(ctx context.Context) (string, error) {
	if tok := s.store.Token(KindAdmin); tok != "" {
		return tok, nil
	}
	return s.acquireAdminToken(ctx)
}

// acquireAdminToken authenticates with the service credentials, persists the
// token, and invalidates admin-scoped read caches.
func (s *Service) acquireAdminToken(ctx context.Context) (string, error) {
	token, err := s.postToken(ctx, pathAdminToken, s.creds.Username, s.creds.Password)
	if err != nil {
		return "", err
	}

	if err := s.store.SetToken(KindAdmin, token); err != nil {
		return "", fmt.Errorf("persisting admin token: %w", err)
	}
	s.fireAdminTokenHooks()

	s.logger.Debug("admin token acquired")
	return token, nil
}

// Login authenticates a customer and fetches the profile. Stored state is
// only mutated once both steps succeed; a failed login leaves the session
// exactly as it was.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	token, err := s.postToken(ctx, pathCustomerToken, email, password)
	if err != nil {
		return "", err
	}

	profile, err := s.fetchProfile(ctx, token)
	if err != nil {
		return "", err
	}

	if err := s.store.SetToken(KindCustomer, token); err != nil {
		return "", fmt.Errorf("persisting customer token: %w", err)
	}
	if err := s.store.SetProfile(profile); err != nil {
		return "", fmt.Errorf("persisting profile: %w", err)
	}

	s.logger.Info("customer logged in", slog.String("email", profile.Email))
	return token, nil
}

// Logout clears the customer token and profile. The server is informed
// best-effort: logout always succeeds locally and is idempotent.
func (s *Service) Logout(ctx context.Context) {
	if tok := s.store.Token(KindCustomer); tok != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+pathLogout, strings.NewReader("{}"))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+tok)
			resp, err := s.client.Do(req)
			if err != nil {
				s.logger.Warn("server logout failed", slog.String("error", err.Error()))
			} else {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
	}

	if err := s.store.ClearCustomer(); err != nil {
		s.logger.Warn("clearing customer auth state", slog.String("error", err.Error()))
	}
}

// Refresh re-acquires a token of the given kind. Returns "" (with nil error)
// when refresh cannot proceed, letting callers distinguish "no refresh path"
// from a failed network call. Concurrent refreshes of one kind share a
// single upstream request.
func (s *Service) Refresh(ctx context.Context, kind Kind) (string, error) {
	tok, err, _ := s.refreshGroup.Do(string(kind), func() (any, error) {
		switch kind {
		case KindAdmin:
			// Service credentials are always available; drop the stale token
			// and fetch a new one.
			s.store.DeleteToken(KindAdmin)
			return s.acquireAdminToken(ctx)
		case KindCustomer:
			// Customer passwords are never stored, so there is nothing to
			// re-authenticate with. The session stays logged in until the
			// next explicit login.
			if s.store.Token(KindCustomer) == "" {
				return "", nil
			}
			s.logger.Debug("customer token refresh not possible without re-authentication")
			return "", nil
		default:
			return "", fmt.Errorf("unknown token kind %q", kind)
		}
	})
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

// Token returns a usable token for the given kind, acquiring an admin token
// on demand. A missing customer token is an unauthorized condition, not an
// acquisition trigger.
func (s *Service) Token(ctx context.Context, kind Kind) (string, error) {
	if kind == KindCustomer {
		tok := s.store.Token(KindCustomer)
		if tok == "" {
			return "", model.NewUnauthorizedError("no customer token; login required")
		}
		return tok, nil
	}
	return s.AdminToken(ctx)
}

// IsAuthenticated reports whether a customer token is stored.
func (s *Service) IsAuthenticated() bool {
	return s.store.Token(KindCustomer) != ""
}

// Profile returns the cached customer profile, or nil for a guest session.
func (s *Service) Profile() *model.UserProfile {
	return s.store.Profile()
}

// === HTTP helpers ===

// postToken calls a token endpoint. Both endpoints take the same payload and
// return the bare token as a JSON string.
func (s *Service) postToken(ctx context.Context, path, username, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", model.NewServiceUnavailableError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.NewServiceUnavailableError(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusUnprocessableEntity:
		return "", model.NewInvalidCredentialsError(apiMessage(body))
	case resp.StatusCode >= 400:
		return "", model.NewServerError(resp.StatusCode, apiMessage(body))
	}

	var token string
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}
	if token == "" {
		return "", model.NewServerError(resp.StatusCode, "empty token from API")
	}
	return token, nil
}

// fetchProfile loads /customers/me with an explicit token, used during login
// before the token is persisted.
func (s *Service) fetchProfile(ctx context.Context, token string) (*model.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+pathCustomersMe, nil)
	if err != nil {
		return nil, fmt.Errorf("creating profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, model.NewServiceUnavailableError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewServiceUnavailableError(err)
	}
	if resp.StatusCode >= 400 {
		return nil, model.NewServerError(resp.StatusCode, apiMessage(body))
	}

	var profile model.UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	return &profile, nil
}

// apiMessage extracts the message field from a Magento-style error payload.
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	json.Unmarshal(body, &payload) // Best effort parse
	if payload.Message == "" {
		return "request rejected"
	}
	return payload.Message
}
