// Package gateway performs authenticated commerce API calls with one
// automatic recovery attempt.
//
// Every request attaches the bearer token for the kind inferred from the
// request path. A 401 triggers a token refresh and a single retry; the retry
// budget is an explicit per-call attempt counter, so persistently invalid
// credentials can never loop.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"

	"storefront/internal/auth"
	"storefront/internal/model"
)

// Gateway wraps outbound commerce API calls.
type Gateway struct {
	baseURL string
	client  *http.Client
	tokens  *auth.Service
	logger  *slog.Logger
}

// New creates a gateway for the commerce REST root at baseURL.
func New(baseURL string, client *http.Client, tokens *auth.Service, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		tokens:  tokens,
		logger:  logger,
	}
}

// KindForPath infers the token scope from the request path. Customer-scoped
// endpoints address the authenticated identity ("mine"/"me"); everything
// else, guest cart paths included, runs under the service token.
func KindForPath(path string) auth.Kind {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	switch {
	case strings.HasPrefix(path, "/carts/mine"),
		strings.HasPrefix(path, "/customers/me"),
		path == "/customers/logout":
		return auth.KindCustomer
	default:
		return auth.KindAdmin
	}
}

// Do performs an authenticated request and decodes the JSON response into
// out (which may be nil for calls whose response body is irrelevant).
func (g *Gateway) Do(ctx context.Context, method, path string, body, out any) error {
	_, err := g.DoHeader(ctx, method, path, body, out)
	return err
}

// DoHeader is Do exposing the response headers, for callers that derive
// cache TTLs from them.
func (g *Gateway) DoHeader(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	return g.do(ctx, method, path, body, out, 0)
}

// do executes one attempt. attempt counts prior tries for this logical
// request: the 401 recovery path only runs when attempt == 0.
func (g *Gateway) do(ctx context.Context, method, path string, body, out any, attempt int) (http.Header, error) {
	kind := KindForPath(path)

	token, err := g.tokens.Token(ctx, kind)
	if err != nil {
		return nil, err
	}

	req, err := g.newRequest(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}

	reqID := uuid.Must(uuid.NewV4()).String()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug("request failed",
			slog.String("request_id", reqID),
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewNetworkError(err)
	}

	g.logger.Debug("request",
		slog.String("request_id", reqID),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("kind", string(kind)),
		slog.Int("status", resp.StatusCode),
		slog.Int("attempt", attempt),
	)

	if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
		// The 401 is the only signal that a token went stale. Refresh once;
		// concurrent 401s share the refresh through the token service.
		fresh, rerr := g.tokens.Refresh(ctx, kind)
		if rerr == nil && fresh != "" {
			return g.do(ctx, method, path, body, out, attempt+1)
		}
		if rerr != nil {
			g.logger.Warn("token refresh failed",
				slog.String("request_id", reqID),
				slog.String("kind", string(kind)),
				slog.String("error", rerr.Error()),
			)
		}
	}

	if resp.StatusCode >= 400 {
		return nil, parseError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
	}
	return resp.Header, nil
}

// newRequest builds a JSON request with the bearer token attached.
func (g *Gateway) newRequest(ctx context.Context, method, path string, body any, token string) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// parseError converts commerce API failures to the model error taxonomy.
func parseError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
	}
	json.Unmarshal(body, &payload) // Best effort parse

	switch {
	case status == http.StatusUnauthorized:
		msg := payload.Message
		if msg == "" {
			msg = "token rejected"
		}
		return model.NewUnauthorizedError(msg)
	default:
		return model.NewServerError(status, payload.Message)
	}
}
