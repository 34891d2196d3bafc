package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/skodaconnect/skodaconnect-sub000/internal/identity"
	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/token"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/vehicle"
)

// Login establishes a fresh session: it drops any prior state, signs in the
// technical client, loads the account's garage, and obtains the VW Group
// tokens the legacy vehicle services require.
func (c *Connection) Login(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return connect.NewError("username and password are required to sign in", false)
	}
	c.mu.Lock()
	c.resetStateLocked()
	err := c.ensureLocked(ctx, connect.ClientSkoda)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	fleet, err := c.garage(ctx)
	if err != nil {
		return err
	}
	c.garageMu.Lock()
	c.fleet = fleet
	c.garageMu.Unlock()

	if len(fleet) > 0 {
		c.mu.Lock()
		err = c.ensureLocked(ctx, connect.ClientVWG)
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}
	log.Info("signed in, %d vehicle(s) in the garage", len(fleet))
	return nil
}

// Logout revokes every token the session holds and clears all state. The
// next authorized call runs the full sign-in flow again. Revocation failures
// are reported but do not stop the local state from being cleared.
func (c *Connection) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	if set, ok := c.store.Set(connect.ClientVWG.Name); ok {
		for _, rev := range []struct{ hint, value string }{
			{"access_token", set.Access.Value},
			{"refresh_token", set.Refresh.Value},
		} {
			if rev.value == "" {
				continue
			}
			form := url.Values{"token": {rev.value}, "token_type_hint": {rev.hint}}
			if err := c.revoke(ctx, connect.MBBRevokeURL, form); err != nil {
				log.Warning("revoking vwg %s failed: %s", rev.hint, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	for _, client := range []connect.Client{connect.ClientConnect, connect.ClientSkoda, connect.ClientSmartLink} {
		set, ok := c.store.Set(client.Name)
		if !ok || set.Refresh.Value == "" {
			continue
		}
		form := url.Values{"token": {set.Refresh.Value}, "brand": {connect.Brand}}
		if err := c.revoke(ctx, connect.TokenRevokeURL, form); err != nil {
			log.Warning("revoking %s refresh token failed: %s", client.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	c.resetStateLocked()
	return firstErr
}

// Vehicles returns the account's garage. Login caches the garage; without a
// prior Login it is fetched on first use.
func (c *Connection) Vehicles(ctx context.Context) ([]*vehicle.Vehicle, error) {
	c.garageMu.Lock()
	fleet := c.fleet
	c.garageMu.Unlock()
	if fleet == nil {
		var err error
		fleet, err = c.garage(ctx)
		if err != nil {
			return nil, err
		}
		c.garageMu.Lock()
		c.fleet = fleet
		c.garageMu.Unlock()
	}
	vehicles := make([]*vehicle.Vehicle, 0, len(fleet))
	for _, info := range fleet {
		vehicles = append(vehicles, vehicle.New(c, info))
	}
	return vehicles, nil
}

func (c *Connection) garage(ctx context.Context) ([]vehicle.Info, error) {
	var payload struct {
		Vehicles []vehicle.Info `json:"vehicles"`
	}
	if err := c.Get(ctx, connect.ClientSkoda.Name, "", connect.GarageURL, &payload); err != nil {
		return nil, err
	}
	return payload.Vehicles, nil
}

// resetStateLocked drops tokens, cookies, the cached garage, and home
// regions. Callers hold c.mu.
func (c *Connection) resetStateLocked() {
	c.store.Reset()
	if jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err == nil {
		c.client.Jar = jar
	}
	c.garageMu.Lock()
	c.fleet = nil
	c.garageMu.Unlock()
	c.basesMu.Lock()
	c.bases = make(map[string]homeBases)
	c.basesMu.Unlock()
}

// ensureLocked brings the client to an authorized state: reuse a live access
// token, refresh an expired one, or run the full sign-in. Callers hold c.mu.
func (c *Connection) ensureLocked(ctx context.Context, client connect.Client) error {
	if c.store.Authorized(client.Name) {
		return nil
	}
	if set, ok := c.store.Set(client.Name); ok && set.Refresh.Value != "" {
		err := c.refreshLocked(ctx, client, set)
		if err == nil {
			return nil
		}
		log.Warning("refreshing %s tokens failed, signing in again: %s", client.Name, err)
	}
	return c.authorizeLocked(ctx, client)
}

// authorizeLocked runs the full authorization for one client. The VW Group
// client has no sign-in identity of its own; its tokens derive from the
// connect client's id token.
func (c *Connection) authorizeLocked(ctx context.Context, client connect.Client) error {
	if !client.SignsIn() {
		if err := c.ensureLocked(ctx, connect.ClientConnect); err != nil {
			return err
		}
		idToken, ok := c.store.Token(connect.ClientConnect.Name, token.KindID)
		if !ok {
			return connect.NewError("connect client holds no id token for the VW Group grant", false)
		}
		return c.vwgGrantLocked(ctx, idToken.Value)
	}
	if c.username == "" || c.password == "" {
		return connect.ErrNotAuthenticated
	}
	log.Info("signing in client %s", client.Name)
	result, err := c.flow.Authenticate(ctx, identity.Credentials{Username: c.username, Password: c.password}, client)
	if err != nil {
		return err
	}
	set, err := c.exchangeCode(ctx, result)
	if err != nil {
		return err
	}
	c.store.Update(client.Name, set)
	c.verifyTokens(ctx, client.Name, set)
	return nil
}

// exchangeCode trades the authorization code for the client's token triple.
func (c *Connection) exchangeCode(ctx context.Context, result *identity.Result) (token.Set, error) {
	form := url.Values{
		"auth_code": {result.Code},
		"id_token":  {result.IDToken},
		"brand":     {connect.Brand},
	}
	body, err := c.tokenRequest(ctx, connect.TokenExchangeURL, "authorization code", form, "")
	if err != nil {
		return token.Set{}, err
	}
	return buildSet(body), nil
}

// vwgGrantLocked obtains VW Group API tokens from the connect client's id
// token. The response carries no id token of its own.
func (c *Connection) vwgGrantLocked(ctx context.Context, idToken string) error {
	form := url.Values{
		"grant_type": {"id_token"},
		"token":      {idToken},
		"scope":      {"sc2:fal"},
	}
	body, err := c.tokenRequest(ctx, connect.MBBTokenURL, "id_token", form, connect.XClientID)
	if err != nil {
		return err
	}
	set := buildSet(body)
	c.store.Update(connect.ClientVWG.Name, set)
	c.verifyTokens(ctx, connect.ClientVWG.Name, set)
	return nil
}

// refreshLocked renews the client's tokens with its refresh token. The
// response may omit members; present ones replace, absent ones survive.
func (c *Connection) refreshLocked(ctx context.Context, client connect.Client, set token.Set) error {
	log.Debug("refreshing %s tokens", client.Name)
	var body *tokenResponse
	var err error
	if client.SignsIn() {
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"brand":         {connect.Brand},
			"refresh_token": {set.Refresh.Value},
		}
		body, err = c.tokenRequest(ctx, connect.TokenRefreshURL, "refresh_token", form, "")
	} else {
		form := url.Values{
			"grant_type": {"refresh_token"},
			"scope":      {"sc2:fal"},
			"token":      {set.Refresh.Value},
		}
		body, err = c.tokenRequest(ctx, connect.MBBTokenURL, "refresh_token", form, connect.XClientID)
	}
	if err != nil {
		return err
	}
	if body.AccessToken != "" {
		c.store.SetToken(client.Name, decodeToken(token.KindAccess, body.AccessToken))
	}
	if body.RefreshToken != "" {
		c.store.SetToken(client.Name, decodeToken(token.KindRefresh, body.RefreshToken))
	}
	if body.IDToken != "" {
		c.store.SetToken(client.Name, decodeToken(token.KindID, body.IDToken))
	}
	if !c.store.Authorized(client.Name) {
		return connect.NewError(fmt.Sprintf("%s token refresh did not produce a usable access token", client.Name), false)
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

func (c *Connection) tokenRequest(ctx context.Context, rawURL, grant string, form url.Values, clientID string) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &connect.TokenExchangeError{Grant: grant, Status: resp.StatusCode, Message: excerpt(data)}
	}
	var body tokenResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding %s grant response: %w", grant, err)
	}
	return &body, nil
}

func (c *Connection) revoke(ctx context.Context, rawURL string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &connect.HTTPError{Status: resp.StatusCode}
	}
	return nil
}

func buildSet(body *tokenResponse) token.Set {
	return token.Set{
		ID:      decodeToken(token.KindID, body.IDToken),
		Access:  decodeToken(token.KindAccess, body.AccessToken),
		Refresh: decodeToken(token.KindRefresh, body.RefreshToken),
	}
}

// decodeToken decodes claims without failing the grant: refresh tokens are
// not always JWTs, and an undecodable access token simply never validates.
func decodeToken(kind token.Kind, raw string) token.Token {
	if raw == "" {
		return token.Token{Kind: kind}
	}
	t, err := token.Decode(kind, raw)
	if err != nil {
		log.Debug("%s token does not decode as a JWT: %s", kind, err)
	}
	return t
}
