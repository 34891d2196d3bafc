// Package identity drives the OpenID authorization-code flow against the VW
// Group identity provider: provider discovery, the email and password form
// hops, and the redirect chain back into the app scheme. It produces the
// authorization code and id token that pkg/connection exchanges for API
// tokens; it never stores tokens itself.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

const (
	// maxRedirects bounds every Location chain the flow walks.
	maxRedirects = 10
	maxPageBytes = 1 << 20
)

// Credentials identify the account signing in.
type Credentials struct {
	Username string
	Password string
}

// Result is a completed authorization: the code to exchange for tokens and,
// for clients that request one, the identity token from the callback fragment.
type Result struct {
	Code    string
	IDToken string
	State   string
}

// Flow walks the provider's authorization endpoints. The HTTP client must not
// follow redirects on its own; the flow inspects every Location header itself.
type Flow struct {
	Client    *http.Client
	UserAgent string
	// ConfigURL overrides where the provider discovery document is fetched
	// from. Empty means the production identity provider.
	ConfigURL string
}

// NewFlow returns a Flow over the given client.
func NewFlow(client *http.Client, userAgent string) *Flow {
	return &Flow{Client: client, UserAgent: userAgent}
}

// NewHTTPClient builds the client the flow needs: it keeps the provider's
// session cookies in jar and never follows redirects on its own.
func NewHTTPClient(jar http.CookieJar, timeout time.Duration) *http.Client {
	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type providerConfig struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
}

// Authenticate signs the account in as the given API client and returns the
// authorization code from the callback. The flow is: discover the provider,
// request authorization, submit the email form, submit the password form, then
// follow the redirect chain until it reaches the app scheme.
func (f *Flow) Authenticate(ctx context.Context, creds Credentials, client connect.Client) (*Result, error) {
	if f.Client == nil {
		return nil, connect.NewError("authorization flow has no HTTP client", false)
	}
	if !client.SignsIn() {
		return nil, connect.NewError(fmt.Sprintf("client %q cannot sign in interactively", client.Name), false)
	}
	cfg, err := f.fetchConfig(ctx)
	if err != nil {
		return nil, err
	}
	authURL, err := authorizeURL(cfg.AuthorizationEndpoint, client)
	if err != nil {
		return nil, err
	}

	log.Debug("requesting authorization for client %s", client.Name)
	resp, err := f.get(ctx, authURL, "")
	if err != nil {
		return nil, err
	}
	var page []byte
	pageURL := authURL
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc := resp.Header.Get("Location")
		discard(resp)
		if loc == "" {
			return nil, connect.ErrUnexpectedRedirect
		}
		loc = resolve(authURL, loc)
		if strings.HasPrefix(loc, connect.AppURI) {
			// The provider still holds a session; no forms needed.
			return parseCallback(loc)
		}
		if err := mapLocationError(loc); err != nil {
			return nil, err
		}
		page, pageURL, err = f.fetchPage(ctx, loc)
		if err != nil {
			return nil, err
		}
	case resp.StatusCode == http.StatusOK:
		page, err = readPage(resp)
		if err != nil {
			return nil, err
		}
	default:
		discard(resp)
		return nil, &connect.AuthError{Err: fmt.Errorf("authorization endpoint answered %s", resp.Status)}
	}

	loc, err := f.signIn(ctx, cfg, client, creds, page, pageURL)
	if err != nil {
		return nil, err
	}
	return f.followCallback(ctx, loc)
}

func (f *Flow) fetchConfig(ctx context.Context) (*providerConfig, error) {
	configURL := f.ConfigURL
	if configURL == "" {
		configURL = connect.OpenIDConfigURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "application/json")
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &connect.ConfigFetchError{Status: resp.StatusCode}
	}
	var cfg providerConfig
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding provider configuration: %w", err)
	}
	if cfg.AuthorizationEndpoint == "" || cfg.Issuer == "" {
		return nil, connect.NewError("provider configuration lacks endpoints", false)
	}
	return &cfg, nil
}

// signIn submits the email and password forms and returns the first Location
// of the post-login redirect chain.
func (f *Flow) signIn(ctx context.Context, cfg *providerConfig, client connect.Client, creds Credentials, page []byte, pageURL string) (string, error) {
	form, err := ParseForm(page)
	if err != nil {
		return "", err
	}
	if form.Kind != FormHTML {
		return "", &connect.MalformedFormError{Reason: "expected the email form, found a script page"}
	}
	fields := url.Values{}
	for name, value := range form.Fields {
		fields.Set(name, value)
	}
	fields.Set("email", creds.Username)

	emailURL := cfg.Issuer + form.Action
	log.Debug("submitting email form to %s", emailURL)
	resp, err := f.postForm(ctx, emailURL, pageURL, fields)
	if err != nil {
		return "", err
	}
	pwPage, pwURL, err := f.finishPage(ctx, emailURL, resp)
	if err != nil {
		return "", err
	}

	pwForm, err := ParseForm(pwPage)
	if err != nil {
		return "", err
	}
	pwFields := url.Values{}
	var postURL string
	switch pwForm.Kind {
	case FormHTML:
		for name, value := range pwForm.Fields {
			pwFields.Set(name, value)
		}
		pwFields.Set("password", creds.Password)
		postURL = cfg.Issuer + pwForm.Action
	case FormScript:
		if code := pwForm.TemplateError(); code != "" {
			return "", mapTemplateError(code)
		}
		if pwForm.HMAC() == "" || pwForm.PostAction() == "" {
			return "", &connect.MalformedFormError{Reason: "template carries no hmac or postAction"}
		}
		pwFields.Set("email", creds.Username)
		pwFields.Set("password", creds.Password)
		pwFields.Set("hmac", pwForm.HMAC())
		if csrf := pwForm.TemplateString("csrf_token"); csrf != "" {
			pwFields.Set("_csrf", csrf)
		}
		postURL = fmt.Sprintf("%s/signin-service/v1/%s/%s", cfg.Issuer, client.ID, pwForm.PostAction())
	}

	log.Debug("submitting password form to %s", postURL)
	resp, err = f.postForm(ctx, postURL, pwURL, pwFields)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		body, readErr := readPage(resp)
		if readErr == nil {
			if failed, err := ParseForm(body); err == nil {
				if code := failed.TemplateError(); code != "" {
					return "", mapTemplateError(code)
				}
			}
		}
		return "", &connect.AuthError{Err: fmt.Errorf("password submission answered %s instead of a redirect", resp.Status)}
	}
	loc := resp.Header.Get("Location")
	discard(resp)
	if loc == "" {
		return "", connect.ErrUnexpectedRedirect
	}
	return resolve(postURL, loc), nil
}

// followCallback walks the post-login redirect chain until it reaches the app
// scheme, then extracts the authorization code from the callback fragment.
func (f *Flow) followCallback(ctx context.Context, loc string) (*Result, error) {
	for depth := 0; ; depth++ {
		if strings.HasPrefix(loc, connect.AppURI) {
			return parseCallback(loc)
		}
		if err := mapLocationError(loc); err != nil {
			return nil, err
		}
		if depth >= maxRedirects {
			return nil, connect.ErrTooManyRedirects
		}
		log.Debug("following sign-in redirect to %s", loc)
		resp, err := f.get(ctx, loc, "")
		if err != nil {
			return nil, err
		}
		next := resp.Header.Get("Location")
		discard(resp)
		if next == "" {
			return nil, connect.ErrUnexpectedRedirect
		}
		loc = resolve(loc, next)
	}
}

// fetchPage GETs loc, following interim redirects, and returns the final page
// body together with the URL it was served from.
func (f *Flow) fetchPage(ctx context.Context, loc string) ([]byte, string, error) {
	for depth := 0; depth <= maxRedirects; depth++ {
		if err := mapLocationError(loc); err != nil {
			return nil, "", err
		}
		resp, err := f.get(ctx, loc, "")
		if err != nil {
			return nil, "", err
		}
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			next := resp.Header.Get("Location")
			discard(resp)
			if next == "" {
				return nil, "", connect.ErrUnexpectedRedirect
			}
			loc = resolve(loc, next)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			discard(resp)
			return nil, "", &connect.AuthError{Err: fmt.Errorf("sign-in page answered %s", resp.Status)}
		}
		body, err := readPage(resp)
		if err != nil {
			return nil, "", err
		}
		return body, loc, nil
	}
	return nil, "", connect.ErrTooManyRedirects
}

// finishPage turns the response to a form submission into the next page,
// following the redirect when the provider answered with one.
func (f *Flow) finishPage(ctx context.Context, reqURL string, resp *http.Response) ([]byte, string, error) {
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		discard(resp)
		if loc == "" {
			return nil, "", connect.ErrUnexpectedRedirect
		}
		return f.fetchPage(ctx, resolve(reqURL, loc))
	}
	if resp.StatusCode != http.StatusOK {
		discard(resp)
		return nil, "", &connect.AuthError{Err: fmt.Errorf("sign-in page answered %s", resp.Status)}
	}
	body, err := readPage(resp)
	if err != nil {
		return nil, "", err
	}
	return body, reqURL, nil
}

func (f *Flow) get(ctx context.Context, rawURL, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	f.setPageHeaders(req, referer)
	return f.Client.Do(req)
}

func (f *Flow) postForm(ctx context.Context, rawURL, referer string, fields url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(fields.Encode()))
	if err != nil {
		return nil, err
	}
	f.setPageHeaders(req, referer)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.Client.Do(req)
}

func (f *Flow) setPageHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("x-requested-with", connect.AppName)
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

func (f *Flow) userAgent() string {
	if f.UserAgent != "" {
		return f.UserAgent
	}
	return connect.UserAgent
}

func authorizeURL(endpoint string, client connect.Client) (string, error) {
	state, err := nonce()
	if err != nil {
		return "", err
	}
	n, err := nonce()
	if err != nil {
		return "", err
	}
	q := url.Values{
		"redirect_uri":  {connect.AppURI},
		"nonce":         {n},
		"state":         {state},
		"response_type": {client.ResponseType},
		"client_id":     {client.ID},
		"scope":         {client.Scope},
	}
	return endpoint + "?" + q.Encode(), nil
}

// mapLocationError inspects a redirect target for the provider's error
// signals.
func mapLocationError(loc string) error {
	u, err := url.Parse(loc)
	if err != nil {
		return &connect.AuthError{Err: fmt.Errorf("unparseable redirect target %q", loc)}
	}
	q := u.Query()
	if code := q.Get("error"); code != "" {
		switch code {
		case "login.error.throttled":
			wait, _ := strconv.Atoi(q.Get("enableNextButtonAfterSeconds"))
			return &connect.AccountLockedError{RetryAfter: time.Duration(wait) * time.Second}
		case "login.errors.password_invalid":
			return connect.ErrInvalidCredentials
		default:
			return connect.NewError("sign-in rejected: "+code, false)
		}
	}
	if strings.Contains(loc, "terms-and-conditions") {
		return connect.ErrEULAPending
	}
	return nil
}

func mapTemplateError(code string) error {
	if strings.Contains(code, "password") || strings.Contains(code, "credentials") {
		return connect.ErrInvalidCredentials
	}
	if strings.Contains(code, "throttled") {
		return &connect.AccountLockedError{}
	}
	return connect.NewError("sign-in rejected: "+code, false)
}

func parseCallback(loc string) (*Result, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return nil, &connect.AuthError{Err: fmt.Errorf("unparseable callback %q", loc)}
	}
	params, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return nil, &connect.AuthError{Err: fmt.Errorf("unparseable callback fragment: %w", err)}
	}
	code := params.Get("code")
	if code == "" {
		code = u.Query().Get("code")
	}
	if code == "" {
		return nil, connect.NewError("callback carries no authorization code", false)
	}
	idToken := params.Get("id_token")
	if idToken == "" {
		idToken = u.Query().Get("id_token")
	}
	return &Result{Code: code, IDToken: idToken, State: params.Get("state")}, nil
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func readPage(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
