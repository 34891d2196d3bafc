// Package vehicle exposes one vehicle of the account's garage: its stored
// data reports, remote commands, and the polling of long-running requests.
// It talks to the backend through the Conn interface so command handling can
// be tested against a mock session.
package vehicle

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

// Conn is the slice of the session a vehicle needs.
type Conn interface {
	// EnsureAuthorized guarantees the named API client holds a live access
	// token and returns call-scoped request headers carrying it.
	EnsureAuthorized(ctx context.Context, client string) (http.Header, error)
	// Get fetches path for vin and decodes the JSON response into out.
	Get(ctx context.Context, client, vin, path string, out any) error
	// Post submits body to path for vin and decodes the JSON response into
	// out. Headers in extra are set on top of the standard set.
	Post(ctx context.Context, client, vin, path, contentType string, body []byte, extra http.Header, out any) error
	// SecurityToken runs the security-pin challenge for a privileged action
	// and returns a single-use token.
	SecurityToken(ctx context.Context, vin string, action connect.SPINAction, spin string) (string, error)
	// RequestStatus reports the progress of a submitted request.
	RequestStatus(ctx context.Context, vin, sectionID, requestID string) (connect.Outcome, error)
	// HomeRegion resolves and caches the API base serving vin.
	HomeRegion(ctx context.Context, vin string) (string, error)
}

// Connectivity is one connectivity type the garage reports for a vehicle.
type Connectivity struct {
	Type string `json:"type"`
}

// Capability is one capability id the garage reports for a vehicle.
type Capability struct {
	ID string `json:"id"`
}

// Info is the garage's description of a vehicle.
type Info struct {
	VIN            string          `json:"vin"`
	Name           string          `json:"name"`
	Connectivities []Connectivity  `json:"connectivities"`
	Capabilities   []Capability    `json:"capabilities"`
	Specification  json.RawMessage `json:"specification"`
}

const (
	defaultPollBudget   = 36
	defaultPollInterval = 5 * time.Second
)

// Vehicle is one entry of the account's garage.
type Vehicle struct {
	conn Conn
	info Info

	pollBudget   int
	pollInterval time.Duration

	mu           sync.Mutex
	regionCached bool
}

type Option func(*Vehicle)

// WithPollInterval overrides the wait between request-status polls.
func WithPollInterval(d time.Duration) Option {
	return func(v *Vehicle) { v.pollInterval = d }
}

// WithPollBudget overrides how many in-progress polls a request is allowed
// before it is reported as timed out.
func WithPollBudget(n int) Option {
	return func(v *Vehicle) {
		if n > 0 {
			v.pollBudget = n
		}
	}
}

func New(conn Conn, info Info, opts ...Option) *Vehicle {
	v := &Vehicle{
		conn:         conn,
		info:         info,
		pollBudget:   defaultPollBudget,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Vehicle) VIN() string { return v.info.VIN }

func (v *Vehicle) Name() string { return v.info.Name }

func (v *Vehicle) Info() Info { return v.info }

// HasConnectivity reports whether the garage lists the given connectivity
// type ("ONLINE", "REMOTE", "INCAR") for this vehicle.
func (v *Vehicle) HasConnectivity(kind string) bool {
	for _, c := range v.info.Connectivities {
		if c.Type == kind {
			return true
		}
	}
	return false
}

// HasCapability reports whether the garage lists the given capability id.
func (v *Vehicle) HasCapability(id string) bool {
	for _, c := range v.info.Capabilities {
		if c.ID == id {
			return true
		}
	}
	return false
}

// HomeRegion returns the API base serving this vehicle.
func (v *Vehicle) HomeRegion(ctx context.Context) (string, error) {
	return v.conn.HomeRegion(ctx, v.info.VIN)
}

// resolveRegion settles routing for this vehicle before a data or command
// call. Resolution failures keep the default region and are retried on the
// next call.
func (v *Vehicle) resolveRegion(ctx context.Context) {
	v.mu.Lock()
	cached := v.regionCached
	v.mu.Unlock()
	if cached {
		return
	}
	if _, err := v.conn.HomeRegion(ctx, v.info.VIN); err != nil {
		log.Warning("resolving home region for %s failed: %s", v.info.VIN, err)
		return
	}
	v.mu.Lock()
	v.regionCached = true
	v.mu.Unlock()
}
