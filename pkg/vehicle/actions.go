package vehicle

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/action"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

// Execute submits a remote command. For privileged commands it first runs the
// security-pin challenge with the given S-PIN and attaches the resulting
// token to this one request. It returns the backend's request id for
// progress polling.
func (v *Vehicle) Execute(ctx context.Context, req action.Request, spin string) (string, error) {
	var extra http.Header
	if req.Privileged() {
		token, err := v.conn.SecurityToken(ctx, v.info.VIN, req.SPIN, spin)
		if err != nil {
			return "", err
		}
		extra = http.Header{}
		extra.Set(req.TokenHeader, token)
	}
	v.resolveRegion(ctx)
	var payload json.RawMessage
	if err := v.conn.Post(ctx, connect.ClientVWG.Name, v.info.VIN, req.Path, req.ContentType, req.Body, extra, &payload); err != nil {
		return "", err
	}
	id, err := action.RequestID(req.Family, payload)
	if err != nil {
		return "", err
	}
	log.Info("%s on %s accepted as request %s", req.Name, v.info.VIN, id)
	return id, nil
}

// run submits a command and waits for its outcome.
func (v *Vehicle) run(ctx context.Context, req action.Request, spin string) (connect.Outcome, error) {
	id, err := v.Execute(ctx, req, spin)
	if err != nil {
		return connect.OutcomeUnknown, err
	}
	return v.AwaitRequest(ctx, req.SectionID, id)
}

// Lock locks the vehicle. Locking is privileged and needs the S-PIN.
func (v *Vehicle) Lock(ctx context.Context, spin string) (connect.Outcome, error) {
	return v.run(ctx, action.Lock(v.info.VIN), spin)
}

// Unlock unlocks the vehicle. Unlocking is privileged and needs the S-PIN.
func (v *Vehicle) Unlock(ctx context.Context, spin string) (connect.Outcome, error) {
	return v.run(ctx, action.Unlock(v.info.VIN), spin)
}

// StartCharging starts charging.
func (v *Vehicle) StartCharging(ctx context.Context) (connect.Outcome, error) {
	return v.run(ctx, action.ChargerStart(v.info.VIN), "")
}

// StopCharging stops charging.
func (v *Vehicle) StopCharging(ctx context.Context) (connect.Outcome, error) {
	return v.run(ctx, action.ChargerStop(v.info.VIN), "")
}

// SetChargeCurrent limits the charge current to amps (1 through 254).
func (v *Vehicle) SetChargeCurrent(ctx context.Context, amps int) (connect.Outcome, error) {
	req, err := action.ChargerMaxCurrent(v.info.VIN, amps)
	if err != nil {
		return connect.OutcomeUnknown, err
	}
	return v.run(ctx, req, "")
}

// StartClimatisation starts climatisation. An auxiliary heater source makes
// this privileged, in which case spin must carry the S-PIN.
func (v *Vehicle) StartClimatisation(ctx context.Context, settings action.ClimaterSettings, spin string) (connect.Outcome, error) {
	return v.run(ctx, action.ClimaterStart(v.info.VIN, settings), spin)
}

// StopClimatisation stops climatisation.
func (v *Vehicle) StopClimatisation(ctx context.Context) (connect.Outcome, error) {
	return v.run(ctx, action.ClimaterStop(v.info.VIN), "")
}

// StartWindowHeating starts window heating.
func (v *Vehicle) StartWindowHeating(ctx context.Context) (connect.Outcome, error) {
	return v.run(ctx, action.WindowHeatingStart(v.info.VIN), "")
}

// StopWindowHeating stops window heating.
func (v *Vehicle) StopWindowHeating(ctx context.Context) (connect.Outcome, error) {
	return v.run(ctx, action.WindowHeatingStop(v.info.VIN), "")
}

// StartPreheater starts the parking heater for the given number of minutes.
// Starting is privileged and needs the S-PIN.
func (v *Vehicle) StartPreheater(ctx context.Context, minutes int, spin string) (connect.Outcome, error) {
	return v.run(ctx, action.PreheaterStart(v.info.VIN, minutes), spin)
}

// StopPreheater stops the parking heater.
func (v *Vehicle) StopPreheater(ctx context.Context) (connect.Outcome, error) {
	return v.run(ctx, action.PreheaterStop(v.info.VIN), "")
}

// RefreshData asks the vehicle to report fresh data. The backend rations
// these requests, so a ThrottledError here is common and temporary.
func (v *Vehicle) RefreshData(ctx context.Context) (connect.Outcome, error) {
	return v.run(ctx, action.Refresh(v.info.VIN), "")
}
