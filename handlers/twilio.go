package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"callpilot/config"
	"callpilot/models"
	"callpilot/telephony"
	"callpilot/utils"
)

// VoiceWebhook answers the carrier's call-connected webhook with TwiML that
// opens the bidirectional media stream for this call.
func VoiceWebhook(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	campaignID := c.Query("campaign_id")
	providerID := c.Query("provider_id")

	if callSID == "" {
		utils.JSONError(c, http.StatusBadRequest, "invalid voice webhook", "missing CallSid")
		return
	}
	if _, ok := CampaignStore.GetCall(callSID); !ok {
		// Calls are registered at dial time; an unknown SID is not ours.
		utils.GetLogger().Warn("Voice webhook for unknown call", zap.String("call_sid", callSID))
		CampaignStore.RegisterCall(callSID, campaignID, providerID)
	}

	streamURL := telephony.StreamURL(config.AppConfig, callSID, campaignID, providerID)
	xml, err := telephony.BuildConnectTwiML(streamURL)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to build call instructions", err.Error())
		return
	}

	utils.GetLogger().Info("Connecting media stream",
		zap.String("call_sid", callSID),
		zap.String("campaign_id", campaignID),
		zap.String("provider_id", providerID))
	c.Data(http.StatusOK, "text/xml", []byte(xml))
}

// StatusWebhook receives carrier call lifecycle callbacks. Terminal statuses
// that never reached the media stream resolve the call session here;
// CompleteCall is a no-op for sessions the stream already concluded.
func StatusWebhook(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	callStatus := c.PostForm("CallStatus")

	if callSID == "" {
		c.Status(http.StatusOK)
		return
	}

	mapping, ok := CampaignStore.GetCall(callSID)
	if !ok {
		c.Status(http.StatusOK)
		return
	}

	utils.GetLogger().Info("Carrier status callback",
		zap.String("call_sid", callSID),
		zap.String("status", callStatus),
		zap.String("campaign_id", mapping.CampaignID))

	var outcome models.CallOutcome
	notes := "carrier reported " + callStatus
	switch callStatus {
	case "busy":
		outcome = models.OutcomeBusy
	case "no-answer":
		outcome = models.OutcomeNoAnswer
	case "failed", "canceled":
		outcome = models.OutcomeFailed
	case "completed":
		// Answering-machine detection runs on the carrier side; a machine
		// pickup is terminal here because the agent never negotiates with
		// voicemail. Human pickups are concluded by the media stream instead.
		answeredBy := c.PostForm("AnsweredBy")
		if !strings.HasPrefix(answeredBy, "machine") {
			c.Status(http.StatusOK)
			return
		}
		outcome = models.OutcomeVoicemail
		notes = "carrier detected answering machine (" + answeredBy + ")"
	default:
		// Non-terminal or stream-handled status; nothing to resolve.
		c.Status(http.StatusOK)
		return
	}

	CampaignStore.CompleteCall(callSID, models.ProviderCallResult{
		ProviderID: mapping.ProviderID,
		CallSID:    callSID,
		Outcome:    outcome,
		Notes:      notes,
	})
	c.Status(http.StatusOK)
}
