// Package smartconnect is a minimal Go client for the Angel One SmartAPI
// REST endpoints this service depends on: session management (login by
// password + TOTP, token refresh, logout, profile) and historical candle
// data. Routes, headers and token handling mirror the official SDK; order
// placement and portfolio endpoints are deliberately absent.
package smartconnect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRoot    = "https://apiconnect.angelone.in"
	defaultTimeout = 7 * time.Second

	// Used when the local interface scan yields nothing; the API only
	// requires the headers to be present.
	fallbackPublicIP = "106.193.147.98"
	fallbackLocalIP  = "127.0.0.1"
	fallbackMAC      = "00:11:22:33:44:55"
)

var routes = map[string]string{
	"api.login":       "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":      "/rest/secure/angelbroking/user/v1/logout",
	"api.refresh":     "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.profile":     "/rest/secure/angelbroking/user/v1/getProfile",
	"api.candle.data": "/rest/secure/angelbroking/historical/v1/getCandleData",
}

// Config configures a Client. Zero values get SmartAPI defaults.
type Config struct {
	APIKey  string
	RootURL string
	Timeout time.Duration

	// DisableSSL skips TLS verification; only for debugging against
	// intercepting proxies.
	DisableSSL bool

	ClientPublicIP string
	ClientLocalIP  string
	ClientMAC      string
}

// Session holds the token set returned by a successful login. It is the
// unit the session manager caches and restores.
type Session struct {
	ClientCode   string `json:"client_code"`
	JWTToken     string `json:"jwt_token"`
	RefreshToken string `json:"refresh_token"`
	FeedToken    string `json:"feed_token"`
}

// APIError is a SmartAPI-level failure (status=false or an error_type
// payload), as opposed to a transport error.
type APIError struct {
	ErrorType  string
	Code       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("smartapi %s: %s", e.ErrorType, e.Message)
	}
	return fmt.Sprintf("smartapi error %s: %s", e.Code, e.Message)
}

// IsTokenException reports whether err is an expired/invalid-session
// failure, the cue for callers to invalidate and re-login.
func IsTokenException(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorType == "TokenException"
}

// Client is a SmartAPI REST client. It is not safe for concurrent use
// while a login or restore is in flight; the broker session manager
// serializes those transitions.
type Client struct {
	apiKey       string
	rootURL      string
	httpClient   *http.Client
	accessToken  string
	refreshToken string
	feedToken    string
	clientCode   string

	publicIP string
	localIP  string
	mac      string

	// SessionExpiryHook, when set, fires on a 403 TokenException response.
	SessionExpiryHook func()
}

// New builds a Client. Network identity headers are resolved once from the
// local interfaces with static fallbacks; no outbound call is made here.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = localIP()
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = fallbackPublicIP
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.DisableSSL,
		},
	}

	return &Client{
		apiKey:     cfg.APIKey,
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		httpClient: &http.Client{Transport: tr, Timeout: cfg.Timeout},
		publicIP:   cfg.ClientPublicIP,
		localIP:    cfg.ClientLocalIP,
		mac:        cfg.ClientMAC,
	}
}

// GenerateSession logs in with clientCode/password/totp and stores the
// returned token set on the client.
func (c *Client) GenerateSession(ctx context.Context, clientCode, password, totp string) (*Session, error) {
	var data struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	}
	err := c.invoke(ctx, http.MethodPost, "api.login", map[string]string{
		"clientcode": clientCode,
		"password":   password,
		"totp":       totp,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if data.JWTToken == "" {
		return nil, errors.New("login: empty token set in response")
	}

	sess := &Session{
		ClientCode:   clientCode,
		JWTToken:     data.JWTToken,
		RefreshToken: data.RefreshToken,
		FeedToken:    data.FeedToken,
	}
	c.Restore(sess)
	return sess, nil
}

// Restore installs a previously obtained session (e.g. from the cache)
// without performing a login.
func (c *Client) Restore(s *Session) {
	c.clientCode = s.ClientCode
	c.accessToken = s.JWTToken
	c.refreshToken = s.RefreshToken
	c.feedToken = s.FeedToken
}

// Forget drops the installed session tokens.
func (c *Client) Forget() {
	c.clientCode = ""
	c.accessToken = ""
	c.refreshToken = ""
	c.feedToken = ""
}

// RenewAccessToken exchanges the refresh token for a fresh JWT and updates
// the installed session.
func (c *Client) RenewAccessToken(ctx context.Context) (*Session, error) {
	var data struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	}
	err := c.invoke(ctx, http.MethodPost, "api.refresh", map[string]string{
		"refreshToken": c.refreshToken,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("renew token: %w", err)
	}

	sess := &Session{
		ClientCode:   c.clientCode,
		JWTToken:     data.JWTToken,
		RefreshToken: data.RefreshToken,
		FeedToken:    data.FeedToken,
	}
	if sess.RefreshToken == "" {
		sess.RefreshToken = c.refreshToken
	}
	if sess.FeedToken == "" {
		sess.FeedToken = c.feedToken
	}
	c.Restore(sess)
	return sess, nil
}

// Profile is the subset of the SmartAPI user profile this service reads.
type Profile struct {
	ClientCode string `json:"clientcode"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// GetProfile fetches the logged-in user's profile; useful as a session
// liveness probe.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	err := c.invoke(ctx, http.MethodGet, "api.profile", map[string]string{
		"refreshToken": c.refreshToken,
	}, &p)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// TerminateSession logs the client code out and forgets local tokens.
func (c *Client) TerminateSession(ctx context.Context) error {
	err := c.invoke(ctx, http.MethodPost, "api.logout", map[string]string{
		"clientcode": c.clientCode,
	}, nil)
	c.Forget()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// CandleParams identifies one historical candle request. Dates use the
// SmartAPI "2006-01-02 15:04" layout in exchange-local time.
type CandleParams struct {
	Exchange    string
	SymbolToken string
	Interval    string
	FromDate    string
	ToDate      string
}

// GetCandleData fetches historical OHLC rows. Each row is
// [timestamp, open, high, low, close, volume] with numbers decoded as
// json.Number so the normalizer controls float conversion.
func (c *Client) GetCandleData(ctx context.Context, p CandleParams) ([][]any, error) {
	var rows [][]any
	err := c.invoke(ctx, http.MethodPost, "api.candle.data", map[string]string{
		"exchange":    p.Exchange,
		"symboltoken": p.SymbolToken,
		"interval":    p.Interval,
		"fromdate":    p.FromDate,
		"todate":      p.ToDate,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("get candle data: %w", err)
	}
	return rows, nil
}

// ---- transport ----

type apiEnvelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// invoke performs one SmartAPI request and unmarshals the data payload
// into out (which may be nil).
func (c *Client) invoke(ctx context.Context, method, route string, params map[string]string, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route %s", route)
	}

	var body *bytes.Reader
	if method == http.MethodGet {
		body = bytes.NewReader(nil)
	} else {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.rootURL+uri, body)
	if err != nil {
		return err
	}
	c.setHeaders(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var env apiEnvelope
	if err := dec.Decode(&env); err != nil {
		return fmt.Errorf("couldn't parse response: %w", err)
	}

	if env.ErrorType != "" {
		if resp.StatusCode == http.StatusForbidden && env.ErrorType == "TokenException" && c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return &APIError{ErrorType: env.ErrorType, Message: env.Message, StatusCode: resp.StatusCode}
	}
	if !env.Status {
		return &APIError{Code: env.ErrorCode, Message: env.Message, StatusCode: resp.StatusCode}
	}

	if out != nil && len(env.Data) > 0 {
		dataDec := json.NewDecoder(bytes.NewReader(env.Data))
		dataDec.UseNumber()
		if err := dataDec.Decode(out); err != nil {
			return fmt.Errorf("couldn't parse data payload: %w", err)
		}
	}
	return nil
}

func (c *Client) setHeaders(h http.Header) {
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.localIP)
	h.Set("X-ClientPublicIP", c.publicIP)
	h.Set("X-MACAddress", c.mac)
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return fallbackLocalIP
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return fallbackLocalIP
}

func macAddress() string {
	ifs, err := net.Interfaces()
	if err != nil {
		return fallbackMAC
	}
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return fallbackMAC
}
