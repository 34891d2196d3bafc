package action

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

// RequestID digs the request id out of an accepted-command response. Ids
// arrive as numbers in some envelopes and strings in others; they are always
// returned as strings for use in status URLs.
func RequestID(family Family, payload []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var id any
	switch family {
	case FamilyRLU:
		var body struct {
			Response struct {
				RequestID any `json:"requestId"`
			} `json:"rluActionResponse"`
		}
		if err := dec.Decode(&body); err != nil {
			return "", fmt.Errorf("decoding command response: %w", err)
		}
		id = body.Response.RequestID
	case FamilyAction:
		var body struct {
			Action struct {
				ActionID any `json:"actionId"`
			} `json:"action"`
		}
		if err := dec.Decode(&body); err != nil {
			return "", fmt.Errorf("decoding command response: %w", err)
		}
		id = body.Action.ActionID
	case FamilyPerform:
		var body struct {
			Response struct {
				RequestID any `json:"requestId"`
			} `json:"performActionResponse"`
		}
		if err := dec.Decode(&body); err != nil {
			return "", fmt.Errorf("decoding command response: %w", err)
		}
		id = body.Response.RequestID
	case FamilyVSR:
		var body struct {
			Response struct {
				RequestID any `json:"requestId"`
			} `json:"CurrentVehicleDataResponse"`
		}
		if err := dec.Decode(&body); err != nil {
			return "", fmt.Errorf("decoding command response: %w", err)
		}
		id = body.Response.RequestID
	}
	switch v := id.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case json.Number:
		return v.String(), nil
	}
	return "", connect.NewError("command response carries no request id", false)
}
