package connect

import "github.com/skodaconnect/skodaconnect-sub000/internal/log"

// Outcome is the normalized state of an asynchronous vehicle action. The backend
// answers status polls with several vendor vocabularies depending on the endpoint
// family; NormalizeStatus folds them into this enum.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeInProgress
	OutcomeSuccess
	OutcomeFailed
	// OutcomeTimeout means the backend has not reported a terminal state. The
	// action may still complete server-side; this is "don't know yet", not
	// failure.
	OutcomeTimeout
)

var outcomeNames = map[Outcome]string{
	OutcomeUnknown:    "Unknown",
	OutcomeInProgress: "In progress",
	OutcomeSuccess:    "Success",
	OutcomeFailed:     "Failed",
	OutcomeTimeout:    "Timeout",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether polling should stop.
func (o Outcome) Terminal() bool {
	return o != OutcomeInProgress
}

// NormalizeStatus translates a raw backend status string into an Outcome.
// Unrecognized statuses are logged and mapped to OutcomeUnknown rather than
// treated as errors, since new vocabulary shows up as the backend evolves.
func NormalizeStatus(raw string) Outcome {
	switch raw {
	case "request_in_progress", "queued", "fetched", "InProgress", "Waiting":
		return OutcomeInProgress
	case "request_fail", "failed":
		return OutcomeFailed
	case "request_successful", "succeeded", "Successful":
		return OutcomeSuccess
	case "unfetched", "delayed", "PollingTimeout":
		return OutcomeTimeout
	}
	log.Info("unrecognized request status '%s'", raw)
	return OutcomeUnknown
}
