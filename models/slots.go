package models

import "time"

// SlotOffer is a candidate appointment window proposed by a provider during
// negotiation. Score is the relative score assigned by ranking (best = 1.0);
// nil until the offer has been ranked.
type SlotOffer struct {
	ProviderID   string    `json:"provider_id"`
	ProviderName string    `json:"provider_name,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Notes        string    `json:"notes,omitempty"`
	Confidence   float64   `json:"confidence"`
	Score        *float64  `json:"score,omitempty"`
}

// ValidOffer reports whether the offer is structurally sound for the given
// request: positive extent, inside the requested range, and matching the
// requested duration.
func ValidOffer(o SlotOffer, req AppointmentRequest) bool {
	if !o.Start.Before(o.End) {
		return false
	}
	if o.Start.Before(req.DateRangeStart) || o.End.After(req.DateRangeEnd) {
		return false
	}
	return o.End.Sub(o.Start) == time.Duration(req.DurationMin)*time.Minute
}
