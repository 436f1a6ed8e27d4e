// Package store holds all in-memory campaign and call state. Every mutation
// of a campaign record goes through the store's mutex so concurrent call
// sessions never race on progress, ranking or booking updates.
package store

import (
	"strings"
	"sync"
	"time"

	"callpilot/models"

	"github.com/google/uuid"
)

// CampaignState is the mutable record for one campaign. Handlers never touch
// it directly; they read snapshots and mutate through store operations.
type CampaignState struct {
	CampaignID  string
	Request     models.AppointmentRequest
	Status      models.CampaignStatus
	Progress    models.CampaignProgress
	Providers   []models.Provider
	CallResults []models.ProviderCallResult
	Ranked      []models.SlotOffer
	Best        *models.SlotOffer
	Booking     *models.BookingConfirmation
	Debug       map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CallMapping correlates a carrier call SID with its campaign and provider.
// The media stream handler publishes the session result on Done.
type CallMapping struct {
	CallSID    string
	CampaignID string
	ProviderID string
	StreamSID  string
	StartedAt  time.Time

	Done   chan struct{}
	Result *models.ProviderCallResult

	once sync.Once
}

// complete records the result and closes Done exactly once.
func (m *CallMapping) complete(result models.ProviderCallResult) {
	m.once.Do(func() {
		m.Result = &result
		close(m.Done)
	})
}

// Store is the process-wide in-memory state container.
type Store struct {
	mu        sync.RWMutex
	campaigns map[string]*CampaignState
	calls     map[string]*CallMapping
}

func New() *Store {
	return &Store{
		campaigns: make(map[string]*CampaignState),
		calls:     make(map[string]*CallMapping),
	}
}

// CreateCampaign registers a new campaign in running state and returns its id.
func (s *Store) CreateCampaign(req models.AppointmentRequest) *CampaignState {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	now := time.Now().UTC()
	state := &CampaignState{
		CampaignID: id,
		Request:    req,
		Status:     models.CampaignRunning,
		Debug:      map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.mu.Lock()
	s.campaigns[id] = state
	s.mu.Unlock()
	return state
}

// UpdateCampaign applies fn to the campaign under the store lock. Returns a
// NotFoundError for unknown ids.
func (s *Store) UpdateCampaign(campaignID string, fn func(*CampaignState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.campaigns[campaignID]
	if !ok {
		return &NotFoundError{Kind: "campaign", ID: campaignID}
	}
	fn(state)
	state.UpdatedAt = time.Now().UTC()
	return nil
}

// GetRequest returns a copy of the campaign's request configuration.
func (s *Store) GetRequest(campaignID string) (models.AppointmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.campaigns[campaignID]
	if !ok {
		return models.AppointmentRequest{}, &NotFoundError{Kind: "campaign", ID: campaignID}
	}
	return state.Request, nil
}

// GetProvider looks up a provider attached to the campaign.
func (s *Store) GetProvider(campaignID, providerID string) (models.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.campaigns[campaignID]
	if !ok {
		return models.Provider{}, false
	}
	for _, p := range state.Providers {
		if p.ID == providerID {
			return p, true
		}
	}
	return models.Provider{}, false
}

// Snapshot returns a deep-enough copy of the campaign for read-only use by
// handlers. Slices are copied so pollers never observe in-place re-ranking.
func (s *Store) Snapshot(campaignID string) (CampaignState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.campaigns[campaignID]
	if !ok {
		return CampaignState{}, &NotFoundError{Kind: "campaign", ID: campaignID}
	}

	snap := *state
	snap.Providers = append([]models.Provider(nil), state.Providers...)
	snap.CallResults = append([]models.ProviderCallResult(nil), state.CallResults...)
	snap.Ranked = append([]models.SlotOffer(nil), state.Ranked...)
	if state.Best != nil {
		best := *state.Best
		snap.Best = &best
	}
	if state.Booking != nil {
		booking := *state.Booking
		snap.Booking = &booking
	}
	snap.Debug = make(map[string]any, len(state.Debug))
	for k, v := range state.Debug {
		snap.Debug[k] = v
	}
	return snap, nil
}

// RegisterCall maps a carrier call SID to its campaign/provider context so the
// stream and status webhooks can route to the owning call session.
func (s *Store) RegisterCall(callSID, campaignID, providerID string) *CallMapping {
	mapping := &CallMapping{
		CallSID:    callSID,
		CampaignID: campaignID,
		ProviderID: providerID,
		StartedAt:  time.Now().UTC(),
		Done:       make(chan struct{}),
	}
	s.mu.Lock()
	s.calls[callSID] = mapping
	s.mu.Unlock()
	return mapping
}

// GetCall returns the mapping for a call SID.
func (s *Store) GetCall(callSID string) (*CallMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mapping, ok := s.calls[callSID]
	return mapping, ok
}

// UpdateStreamSID records the media stream id once the carrier stream opens.
func (s *Store) UpdateStreamSID(callSID, streamSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mapping, ok := s.calls[callSID]; ok {
		mapping.StreamSID = streamSID
	}
}

// CompleteCall publishes the result for a call and wakes its waiting session.
// Completing an unknown or already-completed call is a no-op; the carrier may
// deliver both a stream close and a status callback for the same call.
func (s *Store) CompleteCall(callSID string, result models.ProviderCallResult) {
	s.mu.RLock()
	mapping, ok := s.calls[callSID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	mapping.complete(result)
}

// SetBooking validates a manual confirm request against the campaign and, on
// success, installs the single BookingConfirmation and marks the campaign
// booked. A campaign that already holds a booking is rejected with a
// ConflictError, leaving the original booking unchanged.
func (s *Store) SetBooking(campaignID string, req models.ConfirmRequest) (models.BookingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.campaigns[campaignID]
	if !ok {
		return models.BookingConfirmation{}, &NotFoundError{Kind: "campaign", ID: campaignID}
	}
	if state.Booking != nil {
		return models.BookingConfirmation{}, &ConflictError{
			CampaignID: campaignID,
			Ref:        state.Booking.ConfirmationRef,
		}
	}
	if state.Status != models.CampaignCompleted {
		return models.BookingConfirmation{}, &ValidationError{
			Message: "campaign is not awaiting manual confirmation",
		}
	}

	found := false
	for _, offer := range state.Ranked {
		if offer.ProviderID == req.ProviderID &&
			offer.Start.Equal(req.Start) && offer.End.Equal(req.End) {
			found = true
			break
		}
	}
	if !found {
		return models.BookingConfirmation{}, &ValidationError{
			Message: "requested slot not found in campaign ranked offers",
		}
	}

	booking := models.BookingConfirmation{
		ProviderID:      req.ProviderID,
		Start:           req.Start,
		End:             req.End,
		ConfirmationRef: NewConfirmationRef(),
		ConfirmedAt:     time.Now().UTC(),
		ClientName:      req.UserContact.Name,
	}
	state.Booking = &booking
	state.Status = models.CampaignBooked
	state.UpdatedAt = time.Now().UTC()
	return booking, nil
}

// NewConfirmationRef generates a unique human-readable confirmation reference.
func NewConfirmationRef() string {
	return "CONF-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}
