package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"callpilot/models"
	"callpilot/services/calendar"
	"callpilot/services/swarm"
	"callpilot/store"
	"callpilot/utils"
)

// Collaborators are assigned once at startup in main before the router starts
// serving.
var (
	CampaignStore   *store.Store
	SwarmService    swarm.Service
	CalendarService calendar.Service
	ModeDefault     *swarm.ModeDefault
)

// CreateCampaign accepts an appointment request, registers the campaign, and
// launches the swarm in the background. Responds 202 immediately; progress is
// observed through GET /campaigns/:id.
func CreateCampaign(c *gin.Context) {
	var req models.AppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid campaign request", err.Error())
		return
	}
	if !req.DateRangeEnd.After(req.DateRangeStart) {
		utils.JSONError(c, http.StatusBadRequest, "invalid campaign request",
			"date_range_end must be after date_range_start")
		return
	}
	if !models.ValidCallMode(req.CallMode) && req.CallMode != "" {
		utils.JSONError(c, http.StatusBadRequest, "invalid campaign request",
			"call_mode must be one of auto, real, simulated, hybrid")
		return
	}
	req.ApplyDefaults()

	state := CampaignStore.CreateCampaign(req)
	utils.GetLogger().Info("Campaign created",
		zap.String("campaign_id", state.CampaignID),
		zap.String("service", req.Service),
		zap.String("location", req.Location),
		zap.String("call_mode", string(req.CallMode)))

	// The campaign outlives this request; it runs on its own context.
	go SwarmService.RunCampaign(context.Background(), state.CampaignID)

	c.JSON(http.StatusAccepted, models.CreateCampaignResponse{
		CampaignID: state.CampaignID,
		Status:     state.Status,
		CallMode:   ModeDefault.Resolve(req.CallMode),
	})
}

// GetCampaign returns the full campaign projection for pollers.
func GetCampaign(c *gin.Context) {
	campaignID := c.Param("id")
	snap, err := CampaignStore.Snapshot(campaignID)
	if err != nil {
		utils.JSONError(c, http.StatusNotFound, "campaign not found", campaignID)
		return
	}

	debug := snap.Debug
	if len(snap.Providers) > 0 {
		previews := make([]models.ProviderPreview, 0, len(snap.Providers))
		for _, p := range snap.Providers {
			previews = append(previews, models.ProviderPreview{
				Name:    p.Name,
				Rating:  p.Rating,
				Address: p.Address,
				Phone:   p.Phone,
			})
		}
		debug["providers"] = previews
	}

	c.JSON(http.StatusOK, models.CampaignResponse{
		CampaignID: snap.CampaignID,
		Status:     snap.Status,
		Progress:   snap.Progress,
		Best:       snap.Best,
		Ranked:     snap.Ranked,
		Booking:    snap.Booking,
		Debug:      debug,
	})
}

// ConfirmCampaign books one of the campaign's ranked slots on behalf of the
// client. Exactly one booking can ever succeed per campaign; a repeat attempt
// gets 409 with the original reference.
func ConfirmCampaign(c *gin.Context) {
	campaignID := c.Param("id")

	var req models.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid confirm request", err.Error())
		return
	}
	if !req.End.After(req.Start) {
		utils.JSONError(c, http.StatusBadRequest, "invalid confirm request", "end must be after start")
		return
	}

	// Resolve the campaign before touching the calendar so an unknown id is a
	// 404 even when the calendar is busy or unreachable.
	if _, err := CampaignStore.GetRequest(campaignID); err != nil {
		utils.JSONError(c, http.StatusNotFound, "campaign not found", campaignID)
		return
	}

	// Re-check the client calendar: the slot may have been taken since the
	// call that surfaced it.
	checkCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	free, err := CalendarService.IsFree(checkCtx, req.Start, req.End)
	if err != nil {
		utils.JSONError(c, http.StatusServiceUnavailable, "calendar unavailable",
			"could not verify availability for the requested slot")
		return
	}
	if !free {
		utils.JSONError(c, http.StatusConflict, "slot no longer available",
			"the requested slot conflicts with the client calendar")
		return
	}

	booking, err := CampaignStore.SetBooking(campaignID, req)
	if err != nil {
		var conflict *store.ConflictError
		var invalid *store.ValidationError
		var notFound *store.NotFoundError
		switch {
		case errors.As(err, &conflict):
			utils.JSONError(c, http.StatusConflict, "campaign already booked", conflict.Ref)
		case errors.As(err, &invalid):
			utils.JSONError(c, http.StatusBadRequest, "invalid confirm request", invalid.Message)
		case errors.As(err, &notFound):
			utils.JSONError(c, http.StatusNotFound, "campaign not found", campaignID)
		default:
			utils.JSONError(c, http.StatusInternalServerError, "confirmation failed", err.Error())
		}
		return
	}

	utils.GetLogger().Info("Campaign confirmed",
		zap.String("campaign_id", campaignID),
		zap.String("provider_id", booking.ProviderID),
		zap.String("ref", booking.ConfirmationRef))

	c.JSON(http.StatusOK, models.ConfirmResponse{
		CampaignID:      campaignID,
		Confirmed:       true,
		ConfirmationRef: booking.ConfirmationRef,
	})
}
