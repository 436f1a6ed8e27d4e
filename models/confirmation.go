package models

import "time"

// BookingConfirmation records the single booking produced for a campaign,
// either by auto-book or by the manual confirm operation.
type BookingConfirmation struct {
	ProviderID      string    `json:"provider_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	ConfirmationRef string    `json:"confirmation_ref"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
	ClientName      string    `json:"client_name,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

// UserContact identifies the person the booking is made for.
type UserContact struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

// ConfirmRequest is the body of POST /campaigns/:id/confirm.
type ConfirmRequest struct {
	ProviderID  string      `json:"provider_id" binding:"required"`
	Start       time.Time   `json:"start" binding:"required"`
	End         time.Time   `json:"end" binding:"required"`
	UserContact UserContact `json:"user_contact" binding:"required"`
}

// ConfirmResponse is returned on a successful confirmation.
type ConfirmResponse struct {
	CampaignID      string `json:"campaign_id"`
	Confirmed       bool   `json:"confirmed"`
	ConfirmationRef string `json:"confirmation_ref"`
}
