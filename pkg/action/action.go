// Package action builds the request payloads for remote vehicle commands. A
// builder yields a Request describing the endpoint, body, and the security
// requirements of one command; pkg/vehicle submits it and polls its progress.
package action

import (
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

// Family selects where in an accepted-command response the request id lives.
// The vehicle services never settled on one envelope.
type Family int

const (
	// FamilyRLU is the lock/unlock envelope, rluActionResponse.requestId.
	FamilyRLU Family = iota
	// FamilyAction is the charger/climater envelope, action.actionId.
	FamilyAction
	// FamilyPerform is the parking-heater envelope, performActionResponse.requestId.
	FamilyPerform
	// FamilyVSR is the data-refresh envelope, CurrentVehicleDataResponse.requestId.
	FamilyVSR
)

// Request is one remote command ready to submit.
type Request struct {
	Name        string
	SectionID   string
	Path        string
	ContentType string
	Body        []byte
	// SPIN names the privileged operation this command must present a
	// security token for. Empty for unprivileged commands.
	SPIN connect.SPINAction
	// TokenHeader carries the security token. The services are not
	// consistent about its spelling.
	TokenHeader string
	Family      Family
}

// Privileged reports whether the command needs a security token.
func (r Request) Privileged() bool {
	return r.SPIN != ""
}

const (
	lockContentType      = "application/vnd.vwg.mbb.RemoteLockUnlock_v1_0_0+xml;charset=utf-8"
	preheaterContentType = "application/vnd.vwg.mbb.RemoteStandheizung_v2_0_2+json"
	jsonContentType      = "application/json"
)

func sectionPath(sectionID, vin, suffix string) string {
	return fmt.Sprintf("bs/%s/v1/%s/%s/vehicles/%s/%s",
		sectionID, connect.Brand, connect.Country, vin, suffix)
}

type rluAction struct {
	XMLName xml.Name `xml:"rluAction"`
	XMLNS   string   `xml:"xmlns,attr"`
	Action  string   `xml:"action"`
}

func lockBody(verb string) []byte {
	body, _ := xml.Marshal(rluAction{XMLNS: "http://audi.de/connect/rlu", Action: verb})
	return append([]byte(xml.Header), body...)
}

func rluRequest(name, vin, verb string, spin connect.SPINAction) Request {
	return Request{
		Name:        name,
		SectionID:   "rlu",
		Path:        sectionPath("rlu", vin, "actions"),
		ContentType: lockContentType,
		Body:        lockBody(verb),
		SPIN:        spin,
		TokenHeader: "X-mbbSecToken",
		Family:      FamilyRLU,
	}
}

// Lock builds the central-locking command.
func Lock(vin string) Request {
	return rluRequest("lock", vin, "lock", connect.SPINLock)
}

// Unlock builds the unlock command.
func Unlock(vin string) Request {
	return rluRequest("unlock", vin, "unlock", connect.SPINUnlock)
}

type chargerSettings struct {
	MaxChargeCurrent int `json:"maxChargeCurrent"`
}

type chargerAction struct {
	Action struct {
		Type     string           `json:"type"`
		Settings *chargerSettings `json:"settings,omitempty"`
	} `json:"action"`
}

func chargerRequest(name, vin string, payload chargerAction) Request {
	body, _ := json.Marshal(payload)
	return Request{
		Name:        name,
		SectionID:   "batterycharge",
		Path:        sectionPath("batterycharge", vin, "charger/actions"),
		ContentType: jsonContentType,
		Body:        body,
		Family:      FamilyAction,
	}
}

// ChargerStart builds the start-charging command.
func ChargerStart(vin string) Request {
	var payload chargerAction
	payload.Action.Type = "start"
	return chargerRequest("start charging", vin, payload)
}

// ChargerStop builds the stop-charging command.
func ChargerStop(vin string) Request {
	var payload chargerAction
	payload.Action.Type = "stop"
	return chargerRequest("stop charging", vin, payload)
}

// ChargerMaxCurrent builds the command limiting the charge current. The
// backend accepts 1 through 254 ampere, where 252 and 254 are the symbolic
// "reduced" and "maximum" levels.
func ChargerMaxCurrent(vin string, amps int) (Request, error) {
	if amps < 1 || amps > 254 {
		return Request{}, fmt.Errorf("charge current must be between 1 and 254 ampere, got %d", amps)
	}
	var payload chargerAction
	payload.Action.Type = "setSettings"
	payload.Action.Settings = &chargerSettings{MaxChargeCurrent: amps}
	return chargerRequest("set charge current", vin, payload), nil
}

// ClimaterSettings tune the start-climatisation command.
type ClimaterSettings struct {
	// TargetTemperature is in degrees Celsius.
	TargetTemperature float64
	// WithoutHVPower requests climatisation without high-voltage power.
	WithoutHVPower bool
	// HeaterSource is "electric" or "auxiliary". The auxiliary heater burns
	// fuel and is a privileged operation.
	HeaterSource string
}

type climaterAction struct {
	Action struct {
		Type     string         `json:"type"`
		Settings map[string]any `json:"settings,omitempty"`
	} `json:"action"`
}

func climaterRequest(name, vin string, payload climaterAction, spin connect.SPINAction) Request {
	body, _ := json.Marshal(payload)
	return Request{
		Name:        name,
		SectionID:   "climatisation",
		Path:        sectionPath("climatisation", vin, "climater/actions"),
		ContentType: jsonContentType,
		Body:        body,
		SPIN:        spin,
		TokenHeader: "X-securityToken",
		Family:      FamilyAction,
	}
}

// ClimaterStart builds the start-climatisation command. Temperatures travel
// as tenths of a Kelvin.
func ClimaterStart(vin string, settings ClimaterSettings) Request {
	source := settings.HeaterSource
	if source == "" {
		source = "electric"
	}
	var payload climaterAction
	payload.Action.Type = "startClimatisation"
	payload.Action.Settings = map[string]any{
		"climatisationWithoutHVpower": settings.WithoutHVPower,
		"targetTemperature":           int((settings.TargetTemperature + 273) * 10),
		"heaterSource":                source,
	}
	var spin connect.SPINAction
	if source == "auxiliary" {
		spin = connect.SPINClimate
	}
	return climaterRequest("start climatisation", vin, payload, spin)
}

// ClimaterStop builds the stop-climatisation command.
func ClimaterStop(vin string) Request {
	var payload climaterAction
	payload.Action.Type = "stopClimatisation"
	return climaterRequest("stop climatisation", vin, payload, "")
}

// WindowHeatingStart builds the start-window-heating command.
func WindowHeatingStart(vin string) Request {
	var payload climaterAction
	payload.Action.Type = "startWindowHeating"
	return climaterRequest("start window heating", vin, payload, "")
}

// WindowHeatingStop builds the stop-window-heating command.
func WindowHeatingStop(vin string) Request {
	var payload climaterAction
	payload.Action.Type = "stopWindowHeating"
	return climaterRequest("stop window heating", vin, payload, "")
}

type preheaterAction struct {
	PerformAction map[string]any `json:"performAction"`
}

// PreheaterStart builds the parking-heater quickstart. Duration is in
// minutes.
func PreheaterStart(vin string, duration int) Request {
	body, _ := json.Marshal(preheaterAction{PerformAction: map[string]any{
		"quickstart": map[string]any{
			"climatisationDuration": duration,
			"startMode":             "heating",
			"active":                true,
		},
	}})
	return Request{
		Name:        "start parking heater",
		SectionID:   "rs",
		Path:        sectionPath("rs", vin, "action"),
		ContentType: preheaterContentType,
		Body:        body,
		SPIN:        connect.SPINHeating,
		TokenHeader: "x-mbbSecToken",
		Family:      FamilyPerform,
	}
}

// PreheaterStop builds the parking-heater quickstop. Stopping needs no
// security token.
func PreheaterStop(vin string) Request {
	body, _ := json.Marshal(preheaterAction{PerformAction: map[string]any{
		"quickstop": map[string]any{"active": false},
	}})
	return Request{
		Name:        "stop parking heater",
		SectionID:   "rs",
		Path:        sectionPath("rs", vin, "action"),
		ContentType: preheaterContentType,
		Body:        body,
		Family:      FamilyPerform,
	}
}

// Refresh builds the request forcing the vehicle to report fresh data. The
// backend rations these to protect the vehicle battery.
func Refresh(vin string) Request {
	return Request{
		Name:      "data refresh",
		SectionID: "vsr",
		Path:      sectionPath("vsr", vin, "requests"),
		Family:    FamilyVSR,
	}
}
