package vehicle

import (
	"context"
	"time"

	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

// AwaitRequest polls a submitted request until it reaches a terminal outcome
// or the poll budget is spent. A spent budget yields OutcomeTimeout, not an
// error: the command may still complete, the library just stops watching.
// Each in-progress report consumes one unit of budget; an expired token
// mid-poll triggers a single re-authorization and the poll repeats without
// consuming budget.
func (v *Vehicle) AwaitRequest(ctx context.Context, sectionID, requestID string) (connect.Outcome, error) {
	reauthorized := false
	for polled := 0; polled < v.pollBudget; {
		outcome, err := v.conn.RequestStatus(ctx, v.info.VIN, sectionID, requestID)
		if err != nil {
			if connect.IsUnauthorized(err) && !reauthorized {
				reauthorized = true
				log.Debug("token rejected while polling request %s, re-authorizing", requestID)
				if _, err := v.conn.EnsureAuthorized(ctx, connect.ClientVWG.Name); err != nil {
					return connect.OutcomeUnknown, err
				}
				continue
			}
			return connect.OutcomeUnknown, err
		}
		if outcome.Terminal() {
			return outcome, nil
		}
		polled++
		if polled >= v.pollBudget {
			break
		}
		select {
		case <-ctx.Done():
			return connect.OutcomeUnknown, ctx.Err()
		case <-time.After(v.pollInterval):
		}
	}
	log.Warning("request %s still in progress after %d polls", requestID, v.pollBudget)
	return connect.OutcomeTimeout, nil
}
