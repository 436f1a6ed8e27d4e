package swarm

import (
	"context"

	"callpilot/models"
)

// Caller runs one provider call session to its terminal outcome. Failures are
// absorbed into the result's outcome; implementations never abort sibling
// sessions. Implementations must honor ctx cancellation by tearing down any
// open transport and reporting an error outcome.
type Caller interface {
	Call(ctx context.Context, provider models.Provider, req models.AppointmentRequest, campaignID string) models.ProviderCallResult
}
