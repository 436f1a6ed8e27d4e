package store

import "fmt"

// ConflictError signals an attempt to confirm a campaign that already holds a
// booking. The original booking is left untouched.
type ConflictError struct {
	CampaignID string
	Ref        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("campaign %s is already booked (ref %s)", e.CampaignID, e.Ref)
}

// ValidationError signals a malformed or unknown slot in a confirm request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError signals an unknown campaign or call id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
