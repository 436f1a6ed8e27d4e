package models

import "time"

// CampaignStatus is the externally observable lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignRunning   CampaignStatus = "running"
	CampaignBooking   CampaignStatus = "booking"
	CampaignBooked    CampaignStatus = "booked"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// CallMode selects how a campaign's calls are executed.
type CallMode string

const (
	CallModeAuto      CallMode = "auto"      // use the server-wide default
	CallModeReal      CallMode = "real"      // every call goes through the carrier
	CallModeSimulated CallMode = "simulated" // all calls simulated in-process
	CallModeHybrid    CallMode = "hybrid"    // first call real, the rest simulated
)

// ValidCallMode reports whether m is one of the recognized call modes.
func ValidCallMode(m CallMode) bool {
	switch m {
	case CallModeAuto, CallModeReal, CallModeSimulated, CallModeHybrid:
		return true
	}
	return false
}

// AppointmentRequest is the campaign configuration supplied by the client.
type AppointmentRequest struct {
	Service        string             `json:"service" binding:"required"`
	Location       string             `json:"location" binding:"required"`
	DateRangeStart time.Time          `json:"date_range_start" binding:"required"`
	DateRangeEnd   time.Time          `json:"date_range_end" binding:"required"`
	DurationMin    int                `json:"duration_min"`
	Preferences    map[string]float64 `json:"preferences"`
	MaxProviders   int                `json:"max_providers"`
	MaxParallel    int                `json:"max_parallel"`
	AutoBook       bool               `json:"auto_book"`
	CallMode       CallMode           `json:"call_mode"`
	ClientName     string             `json:"client_name"`
}

// ApplyDefaults fills in the zero-valued optional fields.
func (r *AppointmentRequest) ApplyDefaults() {
	if r.DurationMin <= 0 {
		r.DurationMin = 30
	}
	if r.MaxProviders <= 0 {
		r.MaxProviders = 15
	}
	if r.MaxParallel <= 0 {
		r.MaxParallel = 5
	}
	if r.CallMode == "" {
		r.CallMode = CallModeAuto
	}
	if r.Preferences == nil {
		r.Preferences = map[string]float64{}
	}
}

// CampaignProgress tracks call completion counters for a running campaign.
type CampaignProgress struct {
	TotalProviders  int `json:"total_providers"`
	CompletedCalls  int `json:"completed_calls"`
	SuccessfulCalls int `json:"successful_calls"`
	FailedCalls     int `json:"failed_calls"`
	InProgress      int `json:"in_progress"`
}

// CreateCampaignResponse is returned by POST /campaigns.
type CreateCampaignResponse struct {
	CampaignID string         `json:"campaign_id"`
	Status     CampaignStatus `json:"status"`
	CallMode   CallMode       `json:"call_mode"`
}

// CampaignResponse is the full campaign projection returned to pollers.
type CampaignResponse struct {
	CampaignID string               `json:"campaign_id"`
	Status     CampaignStatus       `json:"status"`
	Progress   CampaignProgress     `json:"progress"`
	Best       *SlotOffer           `json:"best"`
	Ranked     []SlotOffer          `json:"ranked"`
	Booking    *BookingConfirmation `json:"booking"`
	Debug      map[string]any       `json:"debug"`
}
