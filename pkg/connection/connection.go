// Package connection manages the authenticated session against the Skoda
// Connect backends. It owns the per-client token sets, builds call-scoped
// request headers, routes vehicle calls to their home region, runs the
// security-pin challenge for privileged commands, and reports the progress
// of long-running requests.
package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/skodaconnect/skodaconnect-sub000/internal/identity"
	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/token"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/vehicle"
)

const maxBodyBytes = 2 << 20

// homeBases is the per-vehicle routing learned from the home-region service.
type homeBases struct {
	api  string
	spin string
}

// Connection is an authenticated session. One Connection serves any number of
// vehicles and API clients; all methods are safe for concurrent use.
type Connection struct {
	client    *http.Client
	flow      *identity.Flow
	store     *token.Store
	username  string
	password  string
	userAgent string
	timeout   time.Duration

	// mu serializes token acquisition end to end, so concurrent callers
	// cannot race duplicate sign-ins or refreshes.
	mu sync.Mutex

	basesMu sync.Mutex
	bases   map[string]homeBases

	garageMu sync.Mutex
	fleet    []vehicle.Info
}

var _ vehicle.Conn = (*Connection)(nil)

type Option func(*Connection)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Connection) { c.timeout = d }
}

// WithUserAgent overrides the User-Agent presented to every backend.
func WithUserAgent(ua string) Option {
	return func(c *Connection) { c.userAgent = ua }
}

// New builds a Connection for the given account. No network traffic happens
// until Login or the first authorized call.
func New(username, password string, opts ...Option) (*Connection, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	c := &Connection{
		username:  username,
		password:  password,
		userAgent: connect.UserAgent,
		timeout:   connect.DefaultTimeout,
		store:     token.NewStore(),
		bases:     make(map[string]homeBases),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = identity.NewHTTPClient(jar, c.timeout)
	c.flow = identity.NewFlow(c.client, c.userAgent)
	return c, nil
}

// HTTPClient exposes the underlying client, chiefly so tests can install a
// mock transport.
func (c *Connection) HTTPClient() *http.Client { return c.client }

// TokenSet returns a copy of the named client's current tokens.
func (c *Connection) TokenSet(clientName string) (token.Set, bool) {
	return c.store.Set(clientName)
}

// Authorized reports whether the named client currently holds a live access
// token.
func (c *Connection) Authorized(clientName string) bool {
	return c.store.Authorized(clientName)
}

// EnsureAuthorized makes sure the named client holds a usable access token,
// signing in or refreshing as needed, and returns a fresh header set carrying
// it. The headers are scoped to one call; nothing retains or mutates them
// afterwards.
func (c *Connection) EnsureAuthorized(ctx context.Context, clientName string) (http.Header, error) {
	client, ok := connect.ClientNamed(clientName)
	if !ok {
		return nil, connect.ErrUnknownClient
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLocked(ctx, client); err != nil {
		return nil, err
	}
	access, ok := c.store.Token(client.Name, token.KindAccess)
	if !ok {
		return nil, connect.ErrNotAuthenticated
	}
	return c.apiHeaders(access.Value, client.TokenType), nil
}

// apiHeaders builds the standard app headers plus the bearer token. A new
// header map is built for every call.
func (c *Connection) apiHeaders(accessToken, tokenType string) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", c.userAgent)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("Accept-Charset", "utf-8")
	h.Set("X-Client-Id", connect.XClientID)
	h.Set("X-App-Name", connect.AppName)
	h.Set("X-App-Version", connect.AppVersion)
	if accessToken != "" {
		h.Set("Authorization", "Bearer "+accessToken)
		h.Set("tokentype", tokenType)
	}
	return h
}

// Get fetches path as the named client and decodes the JSON response into
// out. Relative paths resolve against the vehicle's home region.
func (c *Connection) Get(ctx context.Context, clientName, vin, path string, out any) error {
	return c.do(ctx, http.MethodGet, clientName, vin, path, "", nil, nil, out)
}

// Post submits body to path as the named client. Headers in extra are set on
// top of the standard set, which lets commands attach one-shot security
// tokens without touching shared state.
func (c *Connection) Post(ctx context.Context, clientName, vin, path, contentType string, body []byte, extra http.Header, out any) error {
	return c.do(ctx, http.MethodPost, clientName, vin, path, contentType, body, extra, out)
}

func (c *Connection) do(ctx context.Context, method, clientName, vin, path, contentType string, body []byte, extra http.Header, out any) error {
	hdr, err := c.EnsureAuthorized(ctx, clientName)
	if err != nil {
		return err
	}
	endpoint := c.endpoint(vin, path)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header = hdr
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for name, values := range extra {
		for _, value := range values {
			req.Header.Set(name, value)
		}
	}
	log.Debug("%s %s", method, endpoint)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// endpoint resolves a path against the right base for vin. Absolute URLs pass
// through; role/rights and vehicle-data-service paths go to the SPIN base,
// everything else to the vehicle API base.
func (c *Connection) endpoint(vin, path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	bases := c.basesFor(vin)
	base := bases.api
	if strings.HasPrefix(path, "rolesrights/") || strings.HasPrefix(path, "cs/") {
		base = bases.spin
	}
	return base + "/" + strings.TrimPrefix(path, "/")
}

func (c *Connection) basesFor(vin string) homeBases {
	c.basesMu.Lock()
	defer c.basesMu.Unlock()
	if b, ok := c.bases[vin]; ok {
		return b
	}
	return homeBases{api: connect.BaseAPI, spin: connect.BaseSPIN}
}

// HomeRegion resolves which region serves vin and caches the result for all
// later calls. It returns the vehicle API base. Vehicles homed outside the
// default region answer on a fal host derived from their mal host.
func (c *Connection) HomeRegion(ctx context.Context, vin string) (string, error) {
	c.basesMu.Lock()
	if b, ok := c.bases[vin]; ok {
		c.basesMu.Unlock()
		return b.api, nil
	}
	c.basesMu.Unlock()

	var payload struct {
		HomeRegion struct {
			BaseURI struct {
				Content string `json:"content"`
			} `json:"baseUri"`
		} `json:"homeRegion"`
	}
	if err := c.Get(ctx, connect.ClientVWG.Name, vin, fmt.Sprintf(connect.HomeRegionURL, vin), &payload); err != nil {
		return "", err
	}
	b := homeBases{api: connect.BaseAPI, spin: connect.BaseSPIN}
	if content := payload.HomeRegion.BaseURI.Content; content != "" && content != connect.BaseSPIN {
		b.spin = content
		host := strings.SplitN(content, "/api", 2)[0]
		b.api = strings.Replace(host, "mal-", "fal-", 1) + "/fs-car"
	}
	log.Debug("vehicle %s is served from %s", vin, b.api)
	c.basesMu.Lock()
	c.bases[vin] = b
	c.basesMu.Unlock()
	return b.api, nil
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return connect.ErrNoContent
	case resp.StatusCode == http.StatusTooManyRequests:
		return &connect.ThrottledError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return &connect.ServiceUnavailableError{Status: resp.StatusCode}
	case resp.StatusCode >= 300:
		return &connect.HTTPError{Status: resp.StatusCode, Message: excerpt(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func excerpt(data []byte) string {
	s := strings.Join(strings.Fields(string(data)), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
