package connection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/token"
)

const (
	testVIN       = "TMBJJ7NS5K1234567"
	authorizeURL  = connect.BaseAuth + "/oidc/v1/authorize"
	signinPageURL = connect.BaseAuth + "/signin/identifier"
	emailPostURL  = connect.BaseAuth + "/signin-service/v1/xx/login/identifier"
	pwPageURL     = connect.BaseAuth + "/signin/authenticate"
	ssoURL        = connect.BaseAuth + "/oidc/v1/oauth/sso"
)

const emailFormPage = `<!DOCTYPE html>
<html><body>
<form method="POST" id="emailPasswordForm" action="/signin-service/v1/xx/login/identifier">
<input type="hidden" id="csrf" name="_csrf" value="csrf-1"/>
<input type="hidden" id="input_relayState" name="relayState" value="rs-1"/>
<input type="hidden" id="hmac" name="hmac" value="hmac-1"/>
<input type="email" id="input_email" name="email"/>
</form>
</body></html>`

const passwordScriptPage = `<!DOCTYPE html>
<html><head><script>
    window._IDK = {
        baseUrl: 'https://identity.vwgroup.io',
        templateModel: {"clientLegalEntityModel":{"clientId":"x"},"hmac":"hmac-2","postAction":"login/authenticate","csrf_token":"csrf-2","templateName":"loginAuthenticate"},
    };
</script></head><body></body></html>`

const badPasswordPage = `<!DOCTYPE html>
<html><head><script>
    window._IDK = {
        templateModel: {"hmac":"hmac-2","postAction":"login/authenticate","error":"login.errors.password_invalid","templateName":"loginAuthenticate"},
    };
</script></head><body></body></html>`

func forgeJWT(sub string, exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT","kid":"k1"}`))
	claims, _ := json.Marshal(map[string]any{"sub": sub, "aud": "test", "exp": exp.Unix()})
	return header + "." + base64.RawURLEncoding.EncodeToString(claims) + ".c2ln"
}

func redirectTo(loc string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusFound, "")
		resp.Header.Set("Location", loc)
		return resp, nil
	}
}

func liveSet() token.Set {
	exp := time.Now().Add(time.Hour)
	return token.Set{
		ID:      token.Token{Kind: token.KindID, Value: forgeJWT("id", exp), ExpiresAt: exp},
		Access:  token.Token{Kind: token.KindAccess, Value: forgeJWT("access", exp), ExpiresAt: exp},
		Refresh: token.Token{Kind: token.KindRefresh, Value: "refresh-opaque"},
	}
}

func expiredSet() token.Set {
	set := liveSet()
	set.Access.ExpiresAt = time.Now().Add(-time.Minute)
	return set
}

var _ = Describe("Connection", func() {
	var (
		conn *Connection
		ctx  context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		conn, err = New("user@example.com", "hunter2")
		Expect(err).NotTo(HaveOccurred())
		httpmock.Activate()
		httpmock.ActivateNonDefault(conn.HTTPClient())
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	// registerSignInChain wires the whole interactive flow: provider
	// discovery, the authorize redirect, both form hops, and the redirect
	// chain back into the app scheme.
	registerSignInChain := func(loginIDToken string) {
		httpmock.RegisterResponder("GET", connect.OpenIDConfigURL,
			httpmock.NewStringResponder(200, fmt.Sprintf(
				`{"issuer":%q,"authorization_endpoint":%q}`, connect.BaseAuth, authorizeURL)))
		httpmock.RegisterResponder("GET", authorizeURL, redirectTo(signinPageURL))
		httpmock.RegisterResponder("GET", signinPageURL,
			httpmock.NewStringResponder(200, emailFormPage))
		httpmock.RegisterResponder("POST", emailPostURL, redirectTo("/signin/authenticate"))
		httpmock.RegisterResponder("GET", pwPageURL,
			httpmock.NewStringResponder(200, passwordScriptPage))
		callback := connect.AppURI + "#code=code-1&id_token=" + loginIDToken + "&state=s-1"
		for _, client := range []connect.Client{connect.ClientSkoda, connect.ClientConnect, connect.ClientSmartLink} {
			httpmock.RegisterResponder("POST",
				fmt.Sprintf("%s/signin-service/v1/%s/login/authenticate", connect.BaseAuth, client.ID),
				redirectTo(ssoURL+"?relay=1"))
		}
		httpmock.RegisterResponder("GET", ssoURL, redirectTo(callback))
	}

	registerJWKS := func() {
		httpmock.RegisterResponder("GET", connect.IdentityJWKSURL,
			httpmock.NewStringResponder(200, `{"keys":[]}`))
		httpmock.RegisterResponder("GET", connect.MBBJWKSURL,
			httpmock.NewStringResponder(200, `{"keys":[]}`))
	}

	Describe("Login", func() {
		var (
			exp        time.Time
			accessJWT  string
			idExchange string
			vwgAccess  string
			mbbForm    url.Values
			garageAuth http.Header
		)

		BeforeEach(func() {
			exp = time.Now().Add(time.Hour)
			accessJWT = forgeJWT("access", exp)
			idExchange = forgeJWT("identity", exp)
			vwgAccess = forgeJWT("vwg-access", exp)
			mbbForm = nil
			garageAuth = nil

			registerSignInChain(forgeJWT("login", exp))
			registerJWKS()
			httpmock.RegisterResponder("POST", connect.TokenExchangeURL,
				func(req *http.Request) (*http.Response, error) {
					if err := req.ParseForm(); err != nil {
						return nil, err
					}
					if req.PostForm.Get("auth_code") != "code-1" || req.PostForm.Get("brand") != connect.Brand {
						return httpmock.NewStringResponse(400, `{"error":"invalid_request"}`), nil
					}
					return httpmock.NewStringResponse(200, fmt.Sprintf(
						`{"access_token":%q,"refresh_token":"refresh-1","id_token":%q}`,
						accessJWT, idExchange)), nil
				})
			httpmock.RegisterResponder("POST", connect.MBBTokenURL,
				func(req *http.Request) (*http.Response, error) {
					if err := req.ParseForm(); err != nil {
						return nil, err
					}
					mbbForm = req.PostForm
					if req.Header.Get("X-Client-Id") != connect.XClientID {
						return httpmock.NewStringResponse(400, `{"error":"missing client id"}`), nil
					}
					return httpmock.NewStringResponse(200, fmt.Sprintf(
						`{"access_token":%q,"refresh_token":"vwg-refresh-1","token_type":"bearer","expires_in":3600}`,
						vwgAccess)), nil
				})
			httpmock.RegisterResponder("GET", connect.GarageURL,
				func(req *http.Request) (*http.Response, error) {
					garageAuth = req.Header.Clone()
					return httpmock.NewStringResponse(200, fmt.Sprintf(
						`{"vehicles":[{"vin":%q,"name":"Octavia","connectivities":[{"type":"ONLINE"}],"capabilities":[{"id":"CHARGING"}]}]}`,
						testVIN)), nil
				})
		})

		It("signs in every client and loads the garage", func() {
			Expect(conn.Login(ctx)).To(Succeed())

			Expect(conn.Authorized(connect.ClientSkoda.Name)).To(BeTrue())
			Expect(conn.Authorized(connect.ClientConnect.Name)).To(BeTrue())
			Expect(conn.Authorized(connect.ClientVWG.Name)).To(BeTrue())

			vehicles, err := conn.Vehicles(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(vehicles).To(HaveLen(1))
			Expect(vehicles[0].VIN()).To(Equal(testVIN))

			counts := httpmock.GetCallCountInfo()
			Expect(counts["GET "+authorizeURL]).To(Equal(2), "one authorization per signing client")
			Expect(counts["POST "+connect.TokenExchangeURL]).To(Equal(2))
			Expect(counts["POST "+connect.MBBTokenURL]).To(Equal(1))
		})

		It("fetches the garage with the technical client's token", func() {
			Expect(conn.Login(ctx)).To(Succeed())
			Expect(garageAuth.Get("Authorization")).To(Equal("Bearer " + accessJWT))
			Expect(garageAuth.Get("tokentype")).To(Equal(connect.ClientSkoda.TokenType))
			Expect(garageAuth.Get("X-App-Name")).To(Equal(connect.AppName))
		})

		It("derives the VW Group tokens from the connect id token", func() {
			Expect(conn.Login(ctx)).To(Succeed())
			Expect(mbbForm.Get("grant_type")).To(Equal("id_token"))
			Expect(mbbForm.Get("token")).To(Equal(idExchange))
			Expect(mbbForm.Get("scope")).To(Equal("sc2:fal"))

			set, ok := conn.TokenSet(connect.ClientVWG.Name)
			Expect(ok).To(BeTrue())
			Expect(set.ID.Value).To(BeEmpty(), "the grant carries no id token")
			Expect(set.Complete()).To(BeTrue())
		})

		It("skips the VW Group grant for an empty garage", func() {
			httpmock.RegisterResponder("GET", connect.GarageURL,
				httpmock.NewStringResponder(200, `{"vehicles":[]}`))

			Expect(conn.Login(ctx)).To(Succeed())
			Expect(conn.Authorized(connect.ClientSkoda.Name)).To(BeTrue())
			Expect(conn.Authorized(connect.ClientVWG.Name)).To(BeFalse())
			Expect(httpmock.GetCallCountInfo()["POST "+connect.MBBTokenURL]).To(BeZero())
		})

		It("reports rejected credentials", func() {
			httpmock.RegisterResponder("POST",
				fmt.Sprintf("%s/signin-service/v1/%s/login/authenticate", connect.BaseAuth, connect.ClientSkoda.ID),
				httpmock.NewStringResponder(200, badPasswordPage))

			err := conn.Login(ctx)
			Expect(errors.Is(err, connect.ErrInvalidCredentials)).To(BeTrue())
			Expect(conn.Authorized(connect.ClientSkoda.Name)).To(BeFalse())
		})

		It("requires credentials", func() {
			bare, err := New("", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(bare.Login(ctx)).To(HaveOccurred())
		})
	})

	Describe("EnsureAuthorized", func() {
		It("reuses a live access token without network traffic", func() {
			set := liveSet()
			conn.store.Update(connect.ClientSkoda.Name, set)

			hdr, err := conn.EnsureAuthorized(ctx, connect.ClientSkoda.Name)
			Expect(err).NotTo(HaveOccurred())
			Expect(hdr.Get("Authorization")).To(Equal("Bearer " + set.Access.Value))
			Expect(hdr.Get("tokentype")).To(Equal("IDK_TECHNICAL"))
			Expect(hdr.Get("User-Agent")).To(Equal(connect.UserAgent))
			Expect(hdr.Get("X-Client-Id")).To(Equal(connect.XClientID))
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
		})

		It("hands out call-scoped headers", func() {
			conn.store.Update(connect.ClientSkoda.Name, liveSet())

			first, err := conn.EnsureAuthorized(ctx, connect.ClientSkoda.Name)
			Expect(err).NotTo(HaveOccurred())
			first.Set("Authorization", "Bearer tampered")
			first.Set("X-mbbSecToken", "leaked")

			second, err := conn.EnsureAuthorized(ctx, connect.ClientSkoda.Name)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Get("Authorization")).NotTo(Equal("Bearer tampered"))
			Expect(second.Get("X-mbbSecToken")).To(BeEmpty())
		})

		It("refreshes an expired access token", func() {
			conn.store.Update(connect.ClientSkoda.Name, expiredSet())
			fresh := forgeJWT("fresh", time.Now().Add(time.Hour))
			var form url.Values
			httpmock.RegisterResponder("POST", connect.TokenRefreshURL,
				func(req *http.Request) (*http.Response, error) {
					if err := req.ParseForm(); err != nil {
						return nil, err
					}
					form = req.PostForm
					return httpmock.NewStringResponse(200, fmt.Sprintf(`{"access_token":%q}`, fresh)), nil
				})

			hdr, err := conn.EnsureAuthorized(ctx, connect.ClientSkoda.Name)
			Expect(err).NotTo(HaveOccurred())
			Expect(hdr.Get("Authorization")).To(Equal("Bearer " + fresh))
			Expect(form.Get("grant_type")).To(Equal("refresh_token"))
			Expect(form.Get("brand")).To(Equal(connect.Brand))
			Expect(form.Get("refresh_token")).To(Equal("refresh-opaque"))
			// The refresh response omitted members; the stored ones survive.
			set, _ := conn.TokenSet(connect.ClientSkoda.Name)
			Expect(set.Refresh.Value).To(Equal("refresh-opaque"))
		})

		It("refreshes VW Group tokens through the MBB endpoint", func() {
			conn.store.Update(connect.ClientVWG.Name, expiredSet())
			fresh := forgeJWT("fresh-vwg", time.Now().Add(time.Hour))
			var form url.Values
			httpmock.RegisterResponder("POST", connect.MBBTokenURL,
				func(req *http.Request) (*http.Response, error) {
					if err := req.ParseForm(); err != nil {
						return nil, err
					}
					form = req.PostForm
					if req.Header.Get("X-Client-Id") != connect.XClientID {
						return httpmock.NewStringResponse(400, ""), nil
					}
					return httpmock.NewStringResponse(200, fmt.Sprintf(
						`{"access_token":%q,"refresh_token":"vwg-refresh-2"}`, fresh)), nil
				})

			_, err := conn.EnsureAuthorized(ctx, connect.ClientVWG.Name)
			Expect(err).NotTo(HaveOccurred())
			Expect(form.Get("grant_type")).To(Equal("refresh_token"))
			Expect(form.Get("scope")).To(Equal("sc2:fal"))
			Expect(form.Get("token")).To(Equal("refresh-opaque"))
			set, _ := conn.TokenSet(connect.ClientVWG.Name)
			Expect(set.Refresh.Value).To(Equal("vwg-refresh-2"))
		})

		It("refreshes once for concurrent callers", func() {
			conn.store.Update(connect.ClientSkoda.Name, expiredSet())
			fresh := forgeJWT("fresh", time.Now().Add(time.Hour))
			httpmock.RegisterResponder("POST", connect.TokenRefreshURL,
				func(req *http.Request) (*http.Response, error) {
					time.Sleep(20 * time.Millisecond)
					return httpmock.NewStringResponse(200, fmt.Sprintf(`{"access_token":%q}`, fresh)), nil
				})

			var wg sync.WaitGroup
			errs := make([]error, 8)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = conn.EnsureAuthorized(ctx, connect.ClientSkoda.Name)
				}(i)
			}
			wg.Wait()

			for _, err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(httpmock.GetCallCountInfo()["POST "+connect.TokenRefreshURL]).To(Equal(1))
		})

		It("falls back to a full sign-in when the refresh is rejected", func() {
			conn.store.Update(connect.ClientSkoda.Name, expiredSet())
			httpmock.RegisterResponder("POST", connect.TokenRefreshURL,
				httpmock.NewStringResponder(400, `{"error":"invalid_grant"}`))
			registerSignInChain(forgeJWT("login", time.Now().Add(time.Hour)))
			registerJWKS()
			accessJWT := forgeJWT("reissued", time.Now().Add(time.Hour))
			httpmock.RegisterResponder("POST", connect.TokenExchangeURL,
				httpmock.NewStringResponder(200, fmt.Sprintf(
					`{"access_token":%q,"refresh_token":"refresh-2","id_token":%q}`,
					accessJWT, forgeJWT("id", time.Now().Add(time.Hour)))))

			hdr, err := conn.EnsureAuthorized(ctx, connect.ClientSkoda.Name)
			Expect(err).NotTo(HaveOccurred())
			Expect(hdr.Get("Authorization")).To(Equal("Bearer " + accessJWT))
			counts := httpmock.GetCallCountInfo()
			Expect(counts["POST "+connect.TokenRefreshURL]).To(Equal(1))
			Expect(counts["GET "+authorizeURL]).To(Equal(1))
		})

		It("rejects unknown client names", func() {
			_, err := conn.EnsureAuthorized(ctx, "nope")
			Expect(errors.Is(err, connect.ErrUnknownClient)).To(BeTrue())
		})

		It("needs credentials when no tokens are stored", func() {
			bare, err := New("", "")
			Expect(err).NotTo(HaveOccurred())
			httpmock.ActivateNonDefault(bare.HTTPClient())
			_, err = bare.EnsureAuthorized(ctx, connect.ClientSkoda.Name)
			Expect(errors.Is(err, connect.ErrNotAuthenticated)).To(BeTrue())
		})
	})

	Describe("Logout", func() {
		BeforeEach(func() {
			conn.store.Update(connect.ClientSkoda.Name, liveSet())
			conn.store.Update(connect.ClientConnect.Name, liveSet())
			conn.store.Update(connect.ClientVWG.Name, liveSet())
		})

		It("revokes every token and clears the session", func() {
			var mbbHints []string
			httpmock.RegisterResponder("POST", connect.MBBRevokeURL,
				func(req *http.Request) (*http.Response, error) {
					if err := req.ParseForm(); err != nil {
						return nil, err
					}
					mbbHints = append(mbbHints, req.PostForm.Get("token_type_hint"))
					return httpmock.NewStringResponse(204, ""), nil
				})
			var identityRevokes []url.Values
			httpmock.RegisterResponder("POST", connect.TokenRevokeURL,
				func(req *http.Request) (*http.Response, error) {
					if err := req.ParseForm(); err != nil {
						return nil, err
					}
					identityRevokes = append(identityRevokes, req.PostForm)
					return httpmock.NewStringResponse(200, ""), nil
				})

			Expect(conn.Logout(ctx)).To(Succeed())
			Expect(mbbHints).To(Equal([]string{"access_token", "refresh_token"}))
			Expect(identityRevokes).To(HaveLen(2), "connect and skoda refresh tokens")
			for _, form := range identityRevokes {
				Expect(form.Get("brand")).To(Equal(connect.Brand))
				Expect(form.Get("token")).To(Equal("refresh-opaque"))
			}
			for _, name := range []string{"skoda", "connect", "vwg"} {
				Expect(conn.Authorized(name)).To(BeFalse())
				_, ok := conn.TokenSet(name)
				Expect(ok).To(BeFalse())
			}
		})

		It("clears the session even when revocation fails", func() {
			httpmock.RegisterResponder("POST", connect.MBBRevokeURL,
				httpmock.NewStringResponder(500, ""))
			httpmock.RegisterResponder("POST", connect.TokenRevokeURL,
				httpmock.NewStringResponder(500, ""))

			Expect(conn.Logout(ctx)).To(HaveOccurred())
			Expect(conn.Authorized(connect.ClientSkoda.Name)).To(BeFalse())
		})
	})

	Describe("SecurityToken", func() {
		const challenge = "0f0e0d0c0b0a09080706050403020100ffeeddccbbaa99887766554433221100"
		challengeURL := connect.BaseSPIN + "/rolesrights/authorization/v2/vehicles/" + testVIN +
			"/services/rlu_v1/operations/LOCK/security-pin-auth-requested"
		completeURL := connect.BaseSPIN + "/rolesrights/authorization/v2/security-pin-auth-completed"

		BeforeEach(func() {
			conn.store.Update(connect.ClientVWG.Name, liveSet())
			httpmock.RegisterResponder("GET", challengeURL,
				httpmock.NewStringResponder(200, fmt.Sprintf(
					`{"securityPinAuthInfo":{"securityToken":"st-1","securityPinTransmission":{"challenge":%q,"remainingTries":3}}}`,
					challenge)))
		})

		It("answers the challenge with the pin hash", func() {
			var sent struct {
				Auth struct {
					Pin struct {
						Challenge string `json:"challenge"`
						Hash      string `json:"securityPinHash"`
					} `json:"securityPin"`
					Token string `json:"securityToken"`
				} `json:"securityPinAuthentication"`
			}
			httpmock.RegisterResponder("POST", completeURL,
				func(req *http.Request) (*http.Response, error) {
					if err := json.NewDecoder(req.Body).Decode(&sent); err != nil {
						return nil, err
					}
					return httpmock.NewStringResponse(200, `{"securityToken":"sectok-99"}`), nil
				})

			tok, err := conn.SecurityToken(ctx, testVIN, connect.SPINLock, "1234")
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(Equal("sectok-99"))

			wantHash, err := connect.HashPIN("1234", challenge)
			Expect(err).NotTo(HaveOccurred())
			Expect(sent.Auth.Pin.Challenge).To(Equal(challenge))
			Expect(sent.Auth.Pin.Hash).To(Equal(wantHash))
			Expect(sent.Auth.Token).To(Equal("st-1"))
		})

		It("rejects an unhashable pin before answering", func() {
			_, err := conn.SecurityToken(ctx, testVIN, connect.SPINLock, "12z4")
			Expect(errors.Is(err, connect.ErrInvalidPIN)).To(BeTrue())
			Expect(httpmock.GetCallCountInfo()["POST "+completeURL]).To(BeZero())
		})

		It("rejects actions without a challenge service", func() {
			_, err := conn.SecurityToken(ctx, testVIN, connect.SPINAction("paint"), "1234")
			Expect(err).To(HaveOccurred())
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
		})

		It("surfaces a failed completion", func() {
			httpmock.RegisterResponder("POST", completeURL,
				httpmock.NewStringResponder(200, `{}`))
			_, err := conn.SecurityToken(ctx, testVIN, connect.SPINLock, "1234")
			var serr *connect.SecurityTokenExchangeError
			Expect(errors.As(err, &serr)).To(BeTrue())
		})
	})

	Describe("RequestStatus", func() {
		BeforeEach(func() {
			conn.store.Update(connect.ClientVWG.Name, liveSet())
		})

		DescribeTable("status endpoints and vocabularies",
			func(sectionID, path, body string, want connect.Outcome) {
				httpmock.RegisterResponder("GET", connect.BaseAPI+path,
					httpmock.NewStringResponder(200, body))
				outcome, err := conn.RequestStatus(ctx, testVIN, sectionID, "77")
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome).To(Equal(want))
			},
			Entry("lock/unlock",
				"rlu", "/bs/rlu/v1/skoda/CZ/vehicles/"+testVIN+"/requests/77/status",
				`{"requestStatusResponse":{"status":"request_in_progress"}}`, connect.OutcomeInProgress),
			Entry("charger action",
				"batterycharge", "/bs/batterycharge/v1/skoda/CZ/vehicles/"+testVIN+"/charger/actions/77",
				`{"action":{"actionId":77,"actionState":"succeeded"}}`, connect.OutcomeSuccess),
			Entry("climater action",
				"climatisation", "/bs/climatisation/v1/skoda/CZ/vehicles/"+testVIN+"/climater/actions/77",
				`{"action":{"actionState":"failed"}}`, connect.OutcomeFailed),
			Entry("departure timer",
				"departuretimer", "/bs/departuretimer/v1/skoda/CZ/vehicles/"+testVIN+"/timer/actions/77",
				`{"action":{"actionState":"queued"}}`, connect.OutcomeInProgress),
			Entry("data refresh job",
				"vsr", "/bs/vsr/v1/skoda/CZ/vehicles/"+testVIN+"/requests/77/jobstatus",
				`{"requestStatusResponse":{"status":"request_successful"}}`, connect.OutcomeSuccess),
			Entry("parking heater",
				"rs", "/bs/rs/v1/skoda/CZ/vehicles/"+testVIN+"/requests/77/status",
				`{"requestStatusResponse":{"status":"request_fail"}}`, connect.OutcomeFailed),
			Entry("missing status",
				"rlu", "/bs/rlu/v1/skoda/CZ/vehicles/"+testVIN+"/requests/77/status",
				`{}`, connect.OutcomeUnknown),
		)

		It("propagates a rejected token", func() {
			httpmock.RegisterResponder("GET",
				connect.BaseAPI+"/bs/rlu/v1/skoda/CZ/vehicles/"+testVIN+"/requests/77/status",
				httpmock.NewStringResponder(401, `{"error":"expired"}`))
			_, err := conn.RequestStatus(ctx, testVIN, "rlu", "77")
			Expect(connect.IsUnauthorized(err)).To(BeTrue())
		})
	})

	Describe("HomeRegion", func() {
		BeforeEach(func() {
			conn.store.Update(connect.ClientVWG.Name, liveSet())
		})

		It("keeps the default region for default-homed vehicles", func() {
			httpmock.RegisterResponder("GET", fmt.Sprintf(connect.HomeRegionURL, testVIN),
				httpmock.NewStringResponder(200, fmt.Sprintf(
					`{"homeRegion":{"baseUri":{"content":%q}}}`, connect.BaseSPIN)))
			api, err := conn.HomeRegion(ctx, testVIN)
			Expect(err).NotTo(HaveOccurred())
			Expect(api).To(Equal(connect.BaseAPI))
		})

		It("rewrites the mal host into the fal API base", func() {
			httpmock.RegisterResponder("GET", fmt.Sprintf(connect.HomeRegionURL, testVIN),
				httpmock.NewStringResponder(200,
					`{"homeRegion":{"baseUri":{"content":"https://mal-3a.prd.eu.dp.vwg-connect.com/api"}}}`))
			api, err := conn.HomeRegion(ctx, testVIN)
			Expect(err).NotTo(HaveOccurred())
			Expect(api).To(Equal("https://fal-3a.prd.eu.dp.vwg-connect.com/fs-car"))

			// Later vehicle calls route to the learned bases.
			statusURL := "https://fal-3a.prd.eu.dp.vwg-connect.com/fs-car/bs/rlu/v1/skoda/CZ/vehicles/" + testVIN + "/requests/77/status"
			httpmock.RegisterResponder("GET", statusURL,
				httpmock.NewStringResponder(200, `{"requestStatusResponse":{"status":"request_successful"}}`))
			outcome, err := conn.RequestStatus(ctx, testVIN, "rlu", "77")
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(connect.OutcomeSuccess))

			sectokenURL := "https://mal-3a.prd.eu.dp.vwg-connect.com/api/rolesrights/authorization/v2/vehicles/" + testVIN +
				"/services/rlu_v1/operations/LOCK/security-pin-auth-requested"
			httpmock.RegisterResponder("GET", sectokenURL,
				httpmock.NewStringResponder(200, `{"securityPinAuthInfo":{"securityPinTransmission":{}}}`))
			_, err = conn.SecurityToken(ctx, testVIN, connect.SPINLock, "1234")
			Expect(err).To(HaveOccurred(), "empty challenge")
			Expect(httpmock.GetCallCountInfo()["GET "+sectokenURL]).To(Equal(1))
		})

		It("resolves each vehicle once", func() {
			httpmock.RegisterResponder("GET", fmt.Sprintf(connect.HomeRegionURL, testVIN),
				httpmock.NewStringResponder(200,
					`{"homeRegion":{"baseUri":{"content":"https://mal-3a.prd.eu.dp.vwg-connect.com/api"}}}`))
			for i := 0; i < 3; i++ {
				_, err := conn.HomeRegion(ctx, testVIN)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(httpmock.GetCallCountInfo()["GET "+fmt.Sprintf(connect.HomeRegionURL, testVIN)]).To(Equal(1))
		})
	})

	Describe("response decoding", func() {
		statusURL := connect.BaseAPI + "/bs/cf/v1/skoda/CZ/vehicles/" + testVIN + "/position"
		path := "bs/cf/v1/skoda/CZ/vehicles/" + testVIN + "/position"

		BeforeEach(func() {
			conn.store.Update(connect.ClientVWG.Name, liveSet())
		})

		It("maps 204 to ErrNoContent", func() {
			httpmock.RegisterResponder("GET", statusURL, httpmock.NewStringResponder(204, ""))
			var out json.RawMessage
			err := conn.Get(ctx, connect.ClientVWG.Name, testVIN, path, &out)
			Expect(errors.Is(err, connect.ErrNoContent)).To(BeTrue())
		})

		It("maps 429 to a throttling error with the advertised wait", func() {
			httpmock.RegisterResponder("GET", statusURL,
				func(req *http.Request) (*http.Response, error) {
					resp := httpmock.NewStringResponse(429, "")
					resp.Header.Set("Retry-After", "90")
					return resp, nil
				})
			var out json.RawMessage
			err := conn.Get(ctx, connect.ClientVWG.Name, testVIN, path, &out)
			var terr *connect.ThrottledError
			Expect(errors.As(err, &terr)).To(BeTrue())
			Expect(terr.RetryAfter).To(Equal(90 * time.Second))
			Expect(connect.Temporary(err)).To(BeTrue())
		})

		It("maps 5xx to a temporary service error", func() {
			httpmock.RegisterResponder("GET", statusURL, httpmock.NewStringResponder(503, "maintenance"))
			var out json.RawMessage
			err := conn.Get(ctx, connect.ClientVWG.Name, testVIN, path, &out)
			var serr *connect.ServiceUnavailableError
			Expect(errors.As(err, &serr)).To(BeTrue())
			Expect(serr.Status).To(Equal(503))
			Expect(connect.Temporary(err)).To(BeTrue())
		})

		It("maps other failures to HTTPError with a body excerpt", func() {
			httpmock.RegisterResponder("GET", statusURL,
				httpmock.NewStringResponder(404, `{"error":  "vehicle   not found"}`))
			var out json.RawMessage
			err := conn.Get(ctx, connect.ClientVWG.Name, testVIN, path, &out)
			var herr *connect.HTTPError
			Expect(errors.As(err, &herr)).To(BeTrue())
			Expect(herr.Status).To(Equal(404))
			Expect(herr.Message).To(ContainSubstring("vehicle not found"))
			Expect(connect.Temporary(err)).To(BeFalse())
		})

		It("rejects unparseable bodies", func() {
			httpmock.RegisterResponder("GET", statusURL,
				httpmock.NewStringResponder(200, "<html>not json</html>"))
			var out json.RawMessage
			err := conn.Get(ctx, connect.ClientVWG.Name, testVIN, path, &out)
			Expect(err).To(MatchError(ContainSubstring("decoding response")))
		})

		It("tolerates an empty body", func() {
			httpmock.RegisterResponder("POST", connect.BaseAPI+"/bs/vsr/v1/skoda/CZ/vehicles/"+testVIN+"/requests",
				httpmock.NewStringResponder(202, ""))
			var out json.RawMessage
			err := conn.Post(ctx, connect.ClientVWG.Name, testVIN,
				"bs/vsr/v1/skoda/CZ/vehicles/"+testVIN+"/requests", "", nil, nil, &out)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())
		})
	})
})
