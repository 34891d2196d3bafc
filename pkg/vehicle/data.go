package vehicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

// The data getters return the service's payload envelope raw. The library
// only needs the envelope fields it inspects itself; modeling the full
// reports is left to the caller.

func (v *Vehicle) sectionPath(sectionID, suffix string) string {
	return fmt.Sprintf("bs/%s/v1/%s/%s/vehicles/%s/%s",
		sectionID, connect.Brand, connect.Country, v.info.VIN, suffix)
}

// Status returns the stored vehicle data report.
func (v *Vehicle) Status(ctx context.Context) (json.RawMessage, error) {
	v.resolveRegion(ctx)
	var payload struct {
		Response json.RawMessage `json:"StoredVehicleDataResponse"`
	}
	if err := v.conn.Get(ctx, connect.ClientVWG.Name, v.info.VIN, v.sectionPath("vsr", "status"), &payload); err != nil {
		return nil, err
	}
	return payload.Response, nil
}

// Position is the vehicle's last parking position.
type Position struct {
	// Moving is set when the backend reports no position because the
	// vehicle is in motion.
	Moving   bool
	Response json.RawMessage
}

// Position returns where the vehicle is parked, or that it is moving.
func (v *Vehicle) Position(ctx context.Context) (*Position, error) {
	v.resolveRegion(ctx)
	var payload struct {
		Response json.RawMessage `json:"findCarResponse"`
	}
	err := v.conn.Get(ctx, connect.ClientVWG.Name, v.info.VIN, v.sectionPath("cf", "position"), &payload)
	if errors.Is(err, connect.ErrNoContent) {
		return &Position{Moving: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Position{Response: payload.Response}, nil
}

// Climater returns the climatisation state report.
func (v *Vehicle) Climater(ctx context.Context) (json.RawMessage, error) {
	v.resolveRegion(ctx)
	var payload struct {
		Response json.RawMessage `json:"climater"`
	}
	if err := v.conn.Get(ctx, connect.ClientVWG.Name, v.info.VIN, v.sectionPath("climatisation", "climater"), &payload); err != nil {
		return nil, err
	}
	return payload.Response, nil
}

// Charger returns the charging state report.
func (v *Vehicle) Charger(ctx context.Context) (json.RawMessage, error) {
	v.resolveRegion(ctx)
	var payload struct {
		Response json.RawMessage `json:"charger"`
	}
	if err := v.conn.Get(ctx, connect.ClientVWG.Name, v.info.VIN, v.sectionPath("batterycharge", "charger"), &payload); err != nil {
		return nil, err
	}
	return payload.Response, nil
}

// Timers returns the departure timer report.
func (v *Vehicle) Timers(ctx context.Context) (json.RawMessage, error) {
	v.resolveRegion(ctx)
	var payload struct {
		Response json.RawMessage `json:"timer"`
	}
	if err := v.conn.Get(ctx, connect.ClientVWG.Name, v.info.VIN, v.sectionPath("departuretimer", "timer"), &payload); err != nil {
		return nil, err
	}
	return payload.Response, nil
}

// Preheater returns the parking heater report.
func (v *Vehicle) Preheater(ctx context.Context) (json.RawMessage, error) {
	v.resolveRegion(ctx)
	var payload struct {
		Response json.RawMessage `json:"statusResponse"`
	}
	if err := v.conn.Get(ctx, connect.ClientVWG.Name, v.info.VIN, v.sectionPath("rs", "status"), &payload); err != nil {
		return nil, err
	}
	return payload.Response, nil
}

// TripStatistics returns the most recent short-term trip entry.
func (v *Vehicle) TripStatistics(ctx context.Context) (json.RawMessage, error) {
	v.resolveRegion(ctx)
	var payload struct {
		Response json.RawMessage `json:"tripData"`
	}
	if err := v.conn.Get(ctx, connect.ClientVWG.Name, v.info.VIN, v.sectionPath("tripstatistics", "tripdata/shortTerm?type=list&newest"), &payload); err != nil {
		return nil, err
	}
	return payload.Response, nil
}

// OperationList returns the role/rights operation list: which services and
// operations this account may invoke on the vehicle.
func (v *Vehicle) OperationList(ctx context.Context) (json.RawMessage, error) {
	var payload struct {
		Response json.RawMessage `json:"operationList"`
	}
	path := "rolesrights/operationlist/v3/vehicles/" + v.info.VIN
	if err := v.conn.Get(ctx, connect.ClientVWG.Name, v.info.VIN, path, &payload); err != nil {
		return nil, err
	}
	return payload.Response, nil
}

// Charging returns the native charging report. Only vehicles on the native
// platform serve it.
func (v *Vehicle) Charging(ctx context.Context) (json.RawMessage, error) {
	var payload json.RawMessage
	url := fmt.Sprintf(connect.ChargingURL, v.info.VIN)
	if err := v.conn.Get(ctx, connect.ClientConnect.Name, v.info.VIN, url, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
