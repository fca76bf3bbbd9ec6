// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package relay implements the gateway-facing RelayClient: origin-
// allowlisted, bearer-authenticated REST calls with 401 refresh-retry,
// plus an SSE subscription client with Last-Event-ID resume, bounded
// dedup, and exponential backoff.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/commands-run/desktop-agent/cryptoprimitives"
	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/internal/metrics"
)

// proactiveRefreshSkew is how far ahead of the access token's exp claim
// the client refreshes without waiting for a reactive 401.
const proactiveRefreshSkew = 30 * time.Second

// TokenSource supplies the current access token and performs a forced
// refresh on 401. Implementations own the OAuth refresh round trip and
// any vault persistence of the refreshed tokens.
type TokenSource interface {
	AccessToken() string
	Refresh(ctx context.Context) (string, error)
}

// Config configures a Client. AllowedOrigins must be exact scheme://host[:port]
// entries; every request's resolved origin must match one of them.
type Config struct {
	AllowedOrigins []string
	HTTPTimeout    time.Duration
}

// Client is the gateway HTTP surface client described in the external
// interfaces table: typed REST calls over an origin-allowlisted,
// bearer-authenticated http.Client that never follows a redirect with
// the token attached.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenSource

	sf singleflight.Group
}

// NewClient builds a Client. httpClient, if nil, gets a default
// Timeout and a redirect policy that refuses to forward the bearer
// token to any redirect target.
func NewClient(cfg Config, tokens TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		if cfg.HTTPTimeout == 0 {
			cfg.HTTPTimeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Client{cfg: cfg, http: httpClient, tokens: tokens}
}

// originAllowed reports whether rawURL resolves to an allowlisted
// origin and, for non-loopback origins, uses HTTPS.
func (c *Client) originAllowed(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errs.Wrap(errs.CodeUntrustedOrigin, "malformed request url", err)
	}
	origin := u.Scheme + "://" + u.Host
	loopback := isLoopbackHost(u.Hostname())
	if u.Scheme != "https" && !loopback {
		return errs.New(errs.CodeUnsafeScheme, fmt.Sprintf("non-loopback origin %s requires https", origin))
	}
	for _, allowed := range c.cfg.AllowedOrigins {
		if allowed == origin {
			return nil
		}
	}
	return errs.New(errs.CodeUntrustedOrigin, fmt.Sprintf("origin %s is not in the trusted allowlist", origin))
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// doJSON issues method against path with body marshaled as JSON (nil
// for no body), attaching the bearer token and retrying exactly once
// on a 401 after a forced token refresh. out, if non-nil, receives the
// unmarshaled JSON response body.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body, out interface{}) error {
	if err := c.originAllowed(rawURL); err != nil {
		return err
	}
	c.maybeProactiveRefresh(ctx)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	resp, respBody, err := c.doOnce(ctx, method, rawURL, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if _, rerr := c.forceRefresh(ctx); rerr != nil {
			metrics.RelayRequests.WithLabelValues(routeLabel(rawURL), "401").Inc()
			return errs.Wrap(errs.CodeRelayUnauthenticated, "token refresh after 401 failed", rerr)
		}
		resp, respBody, err = c.doOnce(ctx, method, rawURL, payload)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			metrics.RelayRequests.WithLabelValues(routeLabel(rawURL), "401").Inc()
			return errs.New(errs.CodeRelayUnauthenticated, "relay rejected refreshed access token")
		}
	}

	if resp.StatusCode == http.StatusNotFound {
		metrics.RelayRequests.WithLabelValues(routeLabel(rawURL), "404").Inc()
		return errs.New(errs.CodeRelayGone, fmt.Sprintf("%s %s: not found", method, rawURL))
	}
	if resp.StatusCode >= 500 {
		metrics.RelayRequests.WithLabelValues(routeLabel(rawURL), "5xx").Inc()
		return errs.New(errs.CodeRelayTransient, fmt.Sprintf("%s %s: relay returned %d", method, rawURL, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		metrics.RelayRequests.WithLabelValues(routeLabel(rawURL), "4xx").Inc()
		return fmt.Errorf("%s %s: status %d: %s", method, rawURL, resp.StatusCode, string(respBody))
	}

	metrics.RelayRequests.WithLabelValues(routeLabel(rawURL), "success").Inc()
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, payload []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.AccessToken())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CodeRelayTransient, fmt.Sprintf("%s %s failed", method, rawURL), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp, data, nil
}

// maybeProactiveRefresh parses the current access token's exp claim
// without verifying its signature (the relay is the verifier; this
// client only needs the claim to decide whether to refresh early) and
// force-refreshes when it is within proactiveRefreshSkew of expiring.
// Parse failures are ignored: the reactive 401 path still catches them.
func (c *Client) maybeProactiveRefresh(ctx context.Context) {
	token := c.tokens.AccessToken()
	if token == "" {
		return
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if time.Until(exp.Time) > proactiveRefreshSkew {
		return
	}
	if _, err := c.forceRefreshWithTrigger(ctx, "proactive"); err != nil {
		return
	}
}

// forceRefresh refreshes the access token, collapsing concurrent
// refreshes from multiple in-flight requests into one call.
func (c *Client) forceRefresh(ctx context.Context) (string, error) {
	return c.forceRefreshWithTrigger(ctx, "reactive_401")
}

func (c *Client) forceRefreshWithTrigger(ctx context.Context, trigger string) (string, error) {
	v, err, _ := c.sf.Do("refresh", func() (interface{}, error) {
		token, rerr := c.tokens.Refresh(ctx)
		if rerr == nil {
			metrics.RelayTokenRefreshes.WithLabelValues(trigger).Inc()
		}
		return token, rerr
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func routeLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	path := u.Path
	// Collapse path-parameter segments so the route cardinality stays
	// bounded regardless of device/session/handshake id.
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if looksLikeID(seg) {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func looksLikeID(seg string) bool {
	if len(seg) < 6 {
		return false
	}
	for _, r := range seg {
		if r >= '0' && r <= '9' {
			continue
		}
		if r >= 'a' && r <= 'f' {
			continue
		}
		if r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

// ListDevices fetches the devices accessible to the signed-in owner.
func (c *Client) ListDevices(ctx context.Context, baseURL string) ([]Device, error) {
	var out struct {
		Devices []Device `json:"devices"`
	}
	if err := c.doJSON(ctx, http.MethodGet, baseURL+"/gateway/v1/devices", nil, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// Device is one entry in the owner's accessible device list.
type Device struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// GetIdentityKey fetches the agent's registered Ed25519 identity
// public key, raw-encoded and base64-wrapped on the wire.
func (c *Client) GetIdentityKey(ctx context.Context, baseURL, deviceID string) ([]byte, error) {
	var out struct {
		IdentityPublicKeyB64 string `json:"identity_public_key_b64"`
	}
	path := fmt.Sprintf("%s/gateway/v1/devices/%s/identity-key", baseURL, deviceID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.IdentityPublicKeyB64 == "" {
		return nil, errs.New(errs.CodeCryptoFormat, "empty identity key field")
	}
	return cryptoprimitives.DecodeBase64(out.IdentityPublicKeyB64)
}

// DeregisterDevice best-effort deregisters deviceID, tolerating a 404
// as already-absent.
func (c *Client) DeregisterDevice(ctx context.Context, baseURL, deviceID string) error {
	path := fmt.Sprintf("%s/gateway/v1/devices/%s", baseURL, deviceID)
	err := c.doJSON(ctx, http.MethodDelete, path, nil, nil)
	if errs.Is(err, errs.CodeRelayGone) {
		return nil
	}
	return err
}

// PostClientInit begins round 1 of the handshake.
func (c *Client) PostClientInit(ctx context.Context, baseURL, sessionID string, body ClientInitRequest) error {
	path := fmt.Sprintf("%s/gateway/v1/sessions/%s/handshake/client-init", baseURL, sessionID)
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// ClientInitRequest is the wire body of client-init.
type ClientInitRequest struct {
	HandshakeID              string `json:"handshake_id"`
	DeviceID                 string `json:"device_id"`
	ClientEphemeralPublicKey string `json:"client_ephemeral_public_key"`
	ClientSessionNonce       string `json:"client_session_nonce"`
	ConversationID           string `json:"conversation_id,omitempty"`
}

// GetHandshakeStatus polls round 3 of the handshake.
func (c *Client) GetHandshakeStatus(ctx context.Context, baseURL, sessionID, handshakeID string) (*HandshakeStatus, error) {
	path := fmt.Sprintf("%s/gateway/v1/sessions/%s/handshake/%s", baseURL, sessionID, handshakeID)
	var out HandshakeStatus
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HandshakeStatus is the poll response body.
type HandshakeStatus struct {
	Status                  string `json:"status"`
	AgentEphemeralPublicKey string `json:"agent_ephemeral_public_key,omitempty"`
	TranscriptSignature     string `json:"transcript_signature,omitempty"`
}

// PostMessage transports one encrypted session.message envelope.
func (c *Client) PostMessage(ctx context.Context, baseURL, sessionID string, envelope *MessageEnvelope) error {
	path := fmt.Sprintf("%s/gateway/v1/sessions/%s/messages", baseURL, sessionID)
	return c.doJSON(ctx, http.MethodPost, path, envelope, nil)
}

// MintShareToken requests a new share invite token from the relay.
func (c *Client) MintShareToken(ctx context.Context, baseURL string, deviceID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := struct {
		DeviceID string `json:"device_id"`
	}{DeviceID: deviceID}
	if err := c.doJSON(ctx, http.MethodPost, baseURL+"/api/gateway/shares/invites", body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// ConsumeShareToken redeems token for the signed-in owner.
func (c *Client) ConsumeShareToken(ctx context.Context, baseURL, token string) error {
	body := struct {
		Token string `json:"token"`
	}{Token: token}
	return c.doJSON(ctx, http.MethodPost, baseURL+"/api/gateway/shares/invites/accept", body, nil)
}

// Grant is one accepted share grant for a device.
type Grant struct {
	GrantID  string `json:"grant_id"`
	DeviceID string `json:"device_id"`
	OwnerUID string `json:"owner_uid"`
}

// ListGrants lists the grants issued for deviceID.
func (c *Client) ListGrants(ctx context.Context, baseURL, deviceID string) ([]Grant, error) {
	var out struct {
		Grants []Grant `json:"grants"`
	}
	path := fmt.Sprintf("%s/api/gateway/shares/devices/%s/grants", baseURL, deviceID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Grants, nil
}

// RevokeGrant revokes grantID.
func (c *Client) RevokeGrant(ctx context.Context, baseURL, grantID string) error {
	path := fmt.Sprintf("%s/api/gateway/shares/grants/%s/revoke", baseURL, grantID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

