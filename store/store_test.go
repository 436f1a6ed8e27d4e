package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpilot/models"
)

func testRequest() models.AppointmentRequest {
	req := models.AppointmentRequest{
		Service:        "dentist",
		Location:       "Springfield",
		DateRangeStart: time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC),
		DateRangeEnd:   time.Date(2026, 9, 10, 18, 0, 0, 0, time.UTC),
	}
	req.ApplyDefaults()
	return req
}

func confirmFor(offer models.SlotOffer) models.ConfirmRequest {
	return models.ConfirmRequest{
		ProviderID:  offer.ProviderID,
		Start:       offer.Start,
		End:         offer.End,
		UserContact: models.UserContact{Name: "Pat Jordan", Phone: "+15550001111"},
	}
}

func TestCreateCampaignAssignsIDAndDefaults(t *testing.T) {
	s := New()
	state := s.CreateCampaign(testRequest())

	assert.Len(t, state.CampaignID, 12)
	assert.Equal(t, models.CampaignRunning, state.Status)
	assert.NotNil(t, state.Debug)

	// IDs are unique across campaigns.
	other := s.CreateCampaign(testRequest())
	assert.NotEqual(t, state.CampaignID, other.CampaignID)
}

func TestUpdateCampaignUnknownID(t *testing.T) {
	s := New()
	err := s.UpdateCampaign("nope", func(*CampaignState) {})
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSnapshotIsIsolatedFromLaterWrites(t *testing.T) {
	s := New()
	state := s.CreateCampaign(testRequest())

	offer := models.SlotOffer{
		ProviderID: "p1",
		Start:      time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpdateCampaign(state.CampaignID, func(st *CampaignState) {
		st.Ranked = []models.SlotOffer{offer}
	}))

	snap, err := s.Snapshot(state.CampaignID)
	require.NoError(t, err)

	require.NoError(t, s.UpdateCampaign(state.CampaignID, func(st *CampaignState) {
		st.Ranked[0].ProviderID = "mutated"
		st.Debug["k"] = "v"
	}))

	assert.Equal(t, "p1", snap.Ranked[0].ProviderID)
	assert.NotContains(t, snap.Debug, "k")
}

func TestSetBookingHappyPath(t *testing.T) {
	s := New()
	state := s.CreateCampaign(testRequest())
	offer := models.SlotOffer{
		ProviderID: "p1",
		Start:      time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpdateCampaign(state.CampaignID, func(st *CampaignState) {
		st.Status = models.CampaignCompleted
		st.Ranked = []models.SlotOffer{offer}
	}))

	booking, err := s.SetBooking(state.CampaignID, confirmFor(offer))
	require.NoError(t, err)
	assert.Equal(t, "p1", booking.ProviderID)
	assert.True(t, strings.HasPrefix(booking.ConfirmationRef, "CONF-"))
	assert.Len(t, booking.ConfirmationRef, len("CONF-")+8)
	assert.Equal(t, "Pat Jordan", booking.ClientName)

	snap, err := s.Snapshot(state.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignBooked, snap.Status)
	require.NotNil(t, snap.Booking)
}

func TestSetBookingRejectsSecondConfirmation(t *testing.T) {
	s := New()
	state := s.CreateCampaign(testRequest())
	offer := models.SlotOffer{
		ProviderID: "p1",
		Start:      time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpdateCampaign(state.CampaignID, func(st *CampaignState) {
		st.Status = models.CampaignCompleted
		st.Ranked = []models.SlotOffer{offer}
	}))

	first, err := s.SetBooking(state.CampaignID, confirmFor(offer))
	require.NoError(t, err)

	_, err = s.SetBooking(state.CampaignID, confirmFor(offer))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ConfirmationRef, conflict.Ref)

	// The original booking survives untouched.
	snap, _ := s.Snapshot(state.CampaignID)
	assert.Equal(t, first.ConfirmationRef, snap.Booking.ConfirmationRef)
}

func TestSetBookingRejectsUnknownSlot(t *testing.T) {
	s := New()
	state := s.CreateCampaign(testRequest())
	require.NoError(t, s.UpdateCampaign(state.CampaignID, func(st *CampaignState) {
		st.Status = models.CampaignCompleted
		st.Ranked = []models.SlotOffer{{
			ProviderID: "p1",
			Start:      time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
			End:        time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
		}}
	}))

	bogus := models.ConfirmRequest{
		ProviderID:  "p1",
		Start:       time.Date(2026, 9, 7, 11, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 9, 7, 11, 30, 0, 0, time.UTC),
		UserContact: models.UserContact{Name: "Pat", Phone: "+15550001111"},
	}
	_, err := s.SetBooking(state.CampaignID, bogus)
	var invalid *ValidationError
	assert.ErrorAs(t, err, &invalid)
}

func TestSetBookingRequiresCompletedStatus(t *testing.T) {
	s := New()
	state := s.CreateCampaign(testRequest())
	offer := models.SlotOffer{
		ProviderID: "p1",
		Start:      time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpdateCampaign(state.CampaignID, func(st *CampaignState) {
		st.Ranked = []models.SlotOffer{offer}
	}))

	_, err := s.SetBooking(state.CampaignID, confirmFor(offer))
	var invalid *ValidationError
	assert.ErrorAs(t, err, &invalid)
}

func TestSetBookingUnknownCampaign(t *testing.T) {
	s := New()
	_, err := s.SetBooking("missing", models.ConfirmRequest{})
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestCompleteCallIsIdempotent(t *testing.T) {
	s := New()
	mapping := s.RegisterCall("CA123", "camp1", "p1")

	s.CompleteCall("CA123", models.ProviderCallResult{ProviderID: "p1", Outcome: models.OutcomeSuccess})
	s.CompleteCall("CA123", models.ProviderCallResult{ProviderID: "p1", Outcome: models.OutcomeFailed})
	s.CompleteCall("unknown", models.ProviderCallResult{}) // no-op

	select {
	case <-mapping.Done:
	default:
		t.Fatal("Done should be closed after completion")
	}
	require.NotNil(t, mapping.Result)
	assert.Equal(t, models.OutcomeSuccess, mapping.Result.Outcome)
}

func TestUpdateStreamSID(t *testing.T) {
	s := New()
	s.RegisterCall("CA123", "camp1", "p1")
	s.UpdateStreamSID("CA123", "MZ999")
	s.UpdateStreamSID("unknown", "MZ000") // no-op

	mapping, ok := s.GetCall("CA123")
	require.True(t, ok)
	assert.Equal(t, "MZ999", mapping.StreamSID)
}
