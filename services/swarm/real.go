package swarm

import (
	"context"

	"callpilot/models"
	"callpilot/store"
	"callpilot/telephony"
	"callpilot/utils"

	"go.uber.org/zap"
)

// RealCaller places an outbound carrier call and waits for the media-stream
// session (or a terminal status webhook) to publish the call's result.
type RealCaller struct {
	Dialer telephony.Dialer
	Store  *store.Store
}

func NewRealCaller(dialer telephony.Dialer, st *store.Store) *RealCaller {
	return &RealCaller{Dialer: dialer, Store: st}
}

func (c *RealCaller) Call(ctx context.Context, provider models.Provider, req models.AppointmentRequest, campaignID string) models.ProviderCallResult {
	logger := utils.GetLogger()

	callSID, err := c.Dialer.PlaceCall(ctx, provider.Phone, campaignID, provider.ID)
	if err != nil {
		logger.Error("Failed to place carrier call",
			zap.String("campaign_id", campaignID),
			zap.String("provider_id", provider.ID),
			zap.Error(err))
		return models.ProviderCallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeFailed,
			Notes:      "Failed to place carrier call",
		}
	}

	mapping, ok := c.Store.GetCall(callSID)
	if !ok {
		return models.ProviderCallResult{
			ProviderID: provider.ID,
			CallSID:    callSID,
			Outcome:    models.OutcomeFailed,
			Notes:      "Call mapping not found after placement",
		}
	}

	// Block until the stream handler or status webhook completes the call,
	// or the session deadline fires.
	select {
	case <-mapping.Done:
	case <-ctx.Done():
		// Publish the cancellation so a late webhook cannot overwrite it,
		// then report the teardown.
		c.Store.CompleteCall(callSID, models.ProviderCallResult{
			ProviderID: provider.ID,
			CallSID:    callSID,
			Outcome:    models.OutcomeError,
			Notes:      "Call timed out or was cancelled",
		})
		<-mapping.Done
	}

	if mapping.Result == nil {
		return models.ProviderCallResult{
			ProviderID: provider.ID,
			CallSID:    callSID,
			Outcome:    models.OutcomeFailed,
			Notes:      "Call completed but no result data",
		}
	}
	result := *mapping.Result
	result.CallSID = callSID
	return result
}
