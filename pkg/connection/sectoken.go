package connection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

// spinServices maps each privileged action to its role/rights challenge
// endpoint.
var spinServices = map[connect.SPINAction]struct{ service, operation string }{
	connect.SPINLock:    {"rlu_v1", "LOCK"},
	connect.SPINUnlock:  {"rlu_v1", "UNLOCK"},
	connect.SPINHeating: {"rheating_v1", "P_QSACT"},
	connect.SPINTimer:   {"timerprogramming_v1", "P_SETTINGS_AU"},
	connect.SPINClimate: {"rclima_v1", "P_START_CLIMA_AU"},
}

// SecurityToken runs the challenge/response dance that guards privileged
// vehicle commands: request a challenge for the action, answer it with the
// S-PIN hash, and collect the resulting token. The token authorizes exactly
// one request and is never cached.
func (c *Connection) SecurityToken(ctx context.Context, vin string, action connect.SPINAction, spin string) (string, error) {
	ep, ok := spinServices[action]
	if !ok {
		return "", connect.NewError(fmt.Sprintf("no security-pin service for action %q", action), false)
	}
	path := fmt.Sprintf("rolesrights/authorization/v2/vehicles/%s/services/%s/operations/%s/security-pin-auth-requested",
		vin, ep.service, ep.operation)
	var challenge struct {
		SecurityPinAuthInfo struct {
			SecurityToken           string `json:"securityToken"`
			SecurityPinTransmission struct {
				Challenge string `json:"challenge"`
			} `json:"securityPinTransmission"`
		} `json:"securityPinAuthInfo"`
	}
	if err := c.Get(ctx, connect.ClientVWG.Name, vin, path, &challenge); err != nil {
		return "", err
	}
	ch := challenge.SecurityPinAuthInfo.SecurityPinTransmission.Challenge
	if ch == "" {
		return "", &connect.SecurityTokenExchangeError{Message: "challenge request returned no challenge"}
	}

	hash, err := connect.HashPIN(spin, ch)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]any{
		"securityPinAuthentication": map[string]any{
			"securityPin": map[string]string{
				"challenge":       ch,
				"securityPinHash": hash,
			},
			"securityToken": challenge.SecurityPinAuthInfo.SecurityToken,
		},
	})
	if err != nil {
		return "", err
	}
	var completed struct {
		SecurityToken string `json:"securityToken"`
	}
	if err := c.Post(ctx, connect.ClientVWG.Name, vin, "rolesrights/authorization/v2/security-pin-auth-completed",
		"application/json", body, nil, &completed); err != nil {
		return "", err
	}
	if completed.SecurityToken == "" {
		return "", &connect.SecurityTokenExchangeError{Message: "challenge completion returned no security token"}
	}
	log.Debug("obtained security token for %s on %s", action, vin)
	return completed.SecurityToken, nil
}
