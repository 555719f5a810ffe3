/*
Package api is the authenticated request/response client for the backing service.

This file defines the Gateway struct: the single chokepoint every outbound
request passes through. It attaches the bearer credential, detects expiry, and
performs exactly one transparent refresh-and-retry before surfacing a terminal
failure.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatlink/internal/app/session"
	jwtx "chatlink/internal/pkg/auth/jwt"
	"chatlink/internal/pkg/errs"
	"chatlink/internal/pkg/logx"
)

const (
	// basePath is the REST surface prefix of the backing service.
	basePath = "/api/v1"

	// refreshWindow is how close to expiry an inspectable access token may get
	// before the gateway refreshes it ahead of the request.
	refreshWindow = 30 * time.Second
)

// requestBuilder produces a fresh *http.Request carrying the given bearer
// token. A builder instead of a request lets a retry rebuild the body.
type requestBuilder func(token string) (*http.Request, error)

// Gateway sends authenticated requests to the backing service and recovers
// from credential expiry. All credential mutation is delegated to the session
// store; the gateway itself never holds tokens beyond a single request.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Store

	// refreshMu serializes credential refreshes: a refresh triggered by one
	// failing request must not be redundantly triggered by a second request
	// holding the same stale credential.
	refreshMu sync.Mutex

	logger zerolog.Logger
}

// NewGateway constructs a Gateway for the backing service at baseURL.
func NewGateway(baseURL string, sess *session.Store) *Gateway {
	return &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		session:    sess,
		logger:     logx.Component("ApiGateway"),
	}
}

// Do sends a JSON request to the given endpoint (relative to /api/v1) and
// decodes the response body into out when out is non-nil.
func (g *Gateway) Do(ctx context.Context, method, endpoint string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errs.New(errs.ErrInvalidParams, err.Error())
		}
		payload = data
	}

	build := func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, g.url(endpoint), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, nil
	}

	return g.execute(ctx, build, out)
}

// execute runs a request through the attach-send-recover cycle. Side effects
// are confined to at most one refresh call, at most one retry, and at most
// one logout per failed original request.
func (g *Gateway) execute(ctx context.Context, build requestBuilder, out any) error {
	token, refreshed, err := g.prepareCredential(ctx)
	if err != nil {
		return err
	}

	status, data, sendErr := g.send(build, token)
	if sendErr != nil {
		return errs.New(errs.ErrTransport, sendErr.Error())
	}

	if status == http.StatusUnauthorized {
		cur, ok := g.session.Current()

		if !ok || cur.RefreshToken == "" || refreshed {
			// Nothing left to recover with. A request that already consumed its
			// refresh is a terminal authentication failure.
			if refreshed {
				g.logger.Warn().Msg("Request rejected again after refresh. Logging out.")
				g.session.Logout()
			}
			return errs.New(errs.ErrCredentialExpired)
		}

		newToken, refreshErr := g.refreshAccess(ctx, token)
		if refreshErr != nil {
			return refreshErr
		}

		status, data, sendErr = g.send(build, newToken)
		if sendErr != nil {
			return errs.New(errs.ErrTransport, sendErr.Error())
		}

		if status == http.StatusUnauthorized {
			g.logger.Warn().Msg("Retried request rejected with fresh credential. Logging out.")
			g.session.Logout()
			return errs.New(errs.ErrCredentialExpired)
		}
	}

	if status < 200 || status > 299 {
		return errs.FromStatus(status, serverMessage(status, data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return errs.New(errs.ErrBackendStatus, "undecodable response body: "+err.Error())
		}
	}

	return nil
}

// prepareCredential returns the access token to attach, refreshing it first
// when it is an inspectable JWT about to expire. The returned flag reports
// whether this request has already spent its one refresh.
func (g *Gateway) prepareCredential(ctx context.Context) (string, bool, error) {
	cur, ok := g.session.Current()
	if !ok {
		return "", false, nil
	}

	if cur.RefreshToken != "" {
		if expiry, inspectable := jwtx.ExpiryOf(cur.AccessToken); inspectable && time.Until(expiry) < refreshWindow {
			g.logger.Debug().Time("expiry", expiry).Msg("Access credential near expiry. Refreshing ahead of request.")

			newToken, err := g.refreshAccess(ctx, cur.AccessToken)
			if err != nil {
				return "", false, err
			}
			return newToken, true, nil
		}
	}

	return cur.AccessToken, false, nil
}

// refreshAccess exchanges the refresh credential for a new access credential
// and rotates it into the session store. Concurrent callers are serialized; a
// caller whose stale token was already rotated away reuses the fresh one
// instead of refreshing again. Refresh failure is terminal: the session is
// logged out.
func (g *Gateway) refreshAccess(ctx context.Context, staleToken string) (string, error) {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	cur, ok := g.session.Current()
	if !ok {
		// Logout raced the refresh. Do not resurrect the session.
		return "", errs.New(errs.ErrNotAuthenticated)
	}

	if cur.AccessToken != staleToken {
		return cur.AccessToken, nil
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": cur.RefreshToken})
	if err != nil {
		return "", errs.New(errs.ErrUnknown)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url("auth/refresh-token"), bytes.NewReader(payload))
	if err != nil {
		return "", errs.New(errs.ErrUnknown)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Error().Err(err).Msg("Credential refresh unreachable. Logging out.")
		g.session.Logout()
		return "", errs.New(errs.ErrRefreshFailed, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		g.session.Logout()
		return "", errs.New(errs.ErrRefreshFailed, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		g.logger.Warn().Int("status", resp.StatusCode).Msg("Credential refresh rejected. Logging out.")
		g.session.Logout()
		return "", errs.New(errs.ErrRefreshFailed, serverMessage(resp.StatusCode, data))
	}

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.AccessToken == "" {
		g.session.Logout()
		return "", errs.New(errs.ErrRefreshFailed, "refresh response carried no access token")
	}

	g.session.RotateAccessCredential(body.AccessToken)
	g.logger.Info().Msg("Access credential refreshed.")

	return body.AccessToken, nil
}

// send builds and performs one HTTP exchange, returning status and raw body.
func (g *Gateway) send(build requestBuilder, token string) (int, []byte, error) {
	req, err := build(token)
	if err != nil {
		return 0, nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, data, nil
}

func (g *Gateway) url(endpoint string) string {
	return g.baseURL + basePath + "/" + strings.TrimPrefix(endpoint, "/")
}

// serverMessage extracts the backing service's {error} message, falling back
// to the status text.
func serverMessage(status int, data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return http.StatusText(status)
}
