// Package connect defines the shared vocabulary of the Skoda Connect client:
// the API client registry, the error taxonomy, asynchronous request outcomes,
// and the security-PIN hash.
package connect

import "time"

// Identifiers the official mobile app presents to the backend. The services
// reject requests without them.
const (
	UserAgent  = "okhttp/3.14.7"
	AppName    = "cz.skodaauto.connect"
	AppVersion = "3.2.6"
	XClientID  = "28cd30c6-dee7-4529-a0e6-b1e07ff90b79"

	Brand   = "skoda"
	Country = "CZ"

	// AppURI is the redirect URI registered for the mobile app. The authorization
	// redirect chain terminates once a Location header starts with it.
	AppURI = "skodaconnect://oidc.login/"
)

// Service endpoints. BaseAPI and BaseSPIN are defaults; per-vehicle home
// regions learned at runtime take precedence.
const (
	BaseAuth = "https://identity.vwgroup.io"
	// BaseAPI serves the vehicle services for vehicles homed in the default
	// region. BaseSPIN serves role/rights and security-pin challenges.
	BaseAPI  = "https://msg.volkswagen.de/fs-car"
	BaseSPIN = "https://mal-1a.prd.ece.vwg-connect.com/api"

	OpenIDConfigURL = BaseAuth + "/.well-known/openid-configuration"
	IdentityJWKSURL = BaseAuth + "/oidc/v1/keys"

	TokenExchangeURL = "https://tokenrefreshservice.apps.emea.vwapps.io/exchangeAuthCode"
	TokenRefreshURL  = "https://tokenrefreshservice.apps.emea.vwapps.io/refreshTokens"
	TokenRevokeURL   = "https://tokenrefreshservice.apps.emea.vwapps.io/revokeToken"

	MBBTokenURL  = "https://mbboauth-1d.prd.ece.vwg-connect.com/mbbcoauth/mobile/oauth2/v1/token"
	MBBRevokeURL = "https://mbboauth-1d.prd.ece.vwg-connect.com/mbbcoauth/mobile/oauth2/v1/revoke"
	MBBJWKSURL   = "https://mbboauth-1d.prd.ece.vwg-connect.com/mbbcoauth/public/jwk/v1"

	HomeRegionURL = BaseSPIN + "/cs/vds/v1/vehicles/%s/homeRegion"
	GarageURL     = "https://api.connect.skoda-auto.cz/api/v2/garage/vehicles"
	ChargingURL   = "https://api.connect.skoda-auto.cz/api/v1/charging/%s/status"
)

// DefaultTimeout bounds each HTTP exchange with the backend.
const DefaultTimeout = 30 * time.Second
