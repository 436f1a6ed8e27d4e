package telephony

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"callpilot/config"
	"callpilot/store"
	"callpilot/utils"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Dialer places outbound calls. RealCaller depends on this interface so tests
// can substitute a fake carrier.
type Dialer interface {
	PlaceCall(ctx context.Context, toPhone, campaignID, providerID string) (string, error)
}

// TwilioDialer creates outbound calls through the Twilio REST API and
// registers the call mapping so the webhooks can route back to the session.
type TwilioDialer struct {
	client *twilio.RestClient
	cfg    config.Config
	store  *store.Store
}

func NewTwilioDialer(cfg config.Config, st *store.Store) *TwilioDialer {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return &TwilioDialer{client: client, cfg: cfg, store: st}
}

// PlaceCall starts the outbound call and returns the carrier call SID.
func (d *TwilioDialer) PlaceCall(ctx context.Context, toPhone, campaignID, providerID string) (string, error) {
	correlation := url.Values{}
	correlation.Set("campaign_id", campaignID)
	correlation.Set("provider_id", providerID)

	voiceURL := fmt.Sprintf("%s/twilio/voice?%s", d.cfg.PublicBaseURL, correlation.Encode())
	statusURL := fmt.Sprintf("%s/twilio/voice/status?%s", d.cfg.PublicBaseURL, correlation.Encode())

	params := &twilioapi.CreateCallParams{}
	params.SetTo(toPhone)
	params.SetFrom(d.cfg.TwilioCallerID)
	params.SetUrl(voiceURL)
	params.SetStatusCallback(statusURL)
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	params.SetStatusCallbackMethod("POST")
	params.SetTimeout(60)
	// Reported back as AnsweredBy on the completed status callback; the
	// status webhook turns machine pickups into VOICEMAIL outcomes.
	params.SetMachineDetection("Enable")

	call, err := d.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("failed to create carrier call: %w", err)
	}
	callSID := ""
	if call.Sid != nil {
		callSID = *call.Sid
	}

	utils.GetLogger().Info("Created carrier call",
		zap.String("call_sid", callSID),
		zap.String("to", toPhone),
		zap.String("campaign_id", campaignID),
		zap.String("provider_id", providerID))

	// Register before the webhooks can fire so the stream handler finds it.
	d.store.RegisterCall(callSID, campaignID, providerID)
	return callSID, nil
}

// StreamURL builds the wss:// media-stream URL for a call.
func StreamURL(cfg config.Config, callSID, campaignID, providerID string) string {
	base := strings.Replace(cfg.PublicBaseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "wss://", 1)
	correlation := url.Values{}
	correlation.Set("campaign_id", campaignID)
	correlation.Set("provider_id", providerID)
	return fmt.Sprintf("%s/twilio/stream/%s?%s", base, callSID, correlation.Encode())
}
