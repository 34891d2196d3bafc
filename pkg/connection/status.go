package connection

import (
	"context"
	"fmt"

	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

// requestStatusPath picks the status endpoint for one submitted request. The
// sections never agreed on a single layout.
func requestStatusPath(vin, sectionID, requestID string) string {
	prefix := fmt.Sprintf("bs/%s/v1/%s/%s/vehicles/%s",
		sectionID, connect.Brand, connect.Country, vin)
	switch sectionID {
	case "climatisation":
		return prefix + "/climater/actions/" + requestID
	case "batterycharge":
		return prefix + "/charger/actions/" + requestID
	case "departuretimer":
		return prefix + "/timer/actions/" + requestID
	case "vsr":
		return prefix + "/requests/" + requestID + "/jobstatus"
	default:
		return prefix + "/requests/" + requestID + "/status"
	}
}

// RequestStatus reports the progress of a submitted request, normalized
// across the sections' status vocabularies.
func (c *Connection) RequestStatus(ctx context.Context, vin, sectionID, requestID string) (connect.Outcome, error) {
	var payload struct {
		RequestStatusResponse struct {
			Status string `json:"status"`
		} `json:"requestStatusResponse"`
		Action struct {
			ActionState string `json:"actionState"`
		} `json:"action"`
	}
	if err := c.Get(ctx, connect.ClientVWG.Name, vin, requestStatusPath(vin, sectionID, requestID), &payload); err != nil {
		return connect.OutcomeUnknown, err
	}
	raw := payload.RequestStatusResponse.Status
	if raw == "" {
		raw = payload.Action.ActionState
	}
	if raw == "" {
		log.Warning("status response for request %s carries no status", requestID)
		return connect.OutcomeUnknown, nil
	}
	return connect.NormalizeStatus(raw), nil
}
