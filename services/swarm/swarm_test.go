package swarm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpilot/config"
	"callpilot/models"
	"callpilot/store"
)

type fakeProviderDirectory struct {
	providers []models.Provider
	err       error
}

func (f *fakeProviderDirectory) Search(ctx context.Context, service, location string) ([]models.Provider, error) {
	return f.providers, f.err
}

func (f *fakeProviderDirectory) ByIDs(ids []string) ([]models.Provider, bool) {
	return f.providers, true
}

type fixedDistance struct{ minutes int }

func (f *fixedDistance) EstimateTravelMinutes(ctx context.Context, location string, provider models.Provider) (int, error) {
	return f.minutes, nil
}

type openCalendar struct{}

func (openCalendar) IsFree(ctx context.Context, start, end time.Time) (bool, error) {
	return true, nil
}

// scriptedCaller returns canned results per provider while tracking how many
// calls run concurrently.
type scriptedCaller struct {
	results map[string]models.ProviderCallResult
	delay   time.Duration

	inFlight    int64
	maxInFlight int64
	mu          sync.Mutex
}

func (c *scriptedCaller) Call(ctx context.Context, provider models.Provider, req models.AppointmentRequest, campaignID string) models.ProviderCallResult {
	now := atomic.AddInt64(&c.inFlight, 1)
	c.mu.Lock()
	if now > c.maxInFlight {
		c.maxInFlight = now
	}
	c.mu.Unlock()
	defer atomic.AddInt64(&c.inFlight, -1)

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return cancelledResult(provider.ID)
		}
	}

	if result, ok := c.results[provider.ID]; ok {
		return result
	}
	return models.ProviderCallResult{ProviderID: provider.ID, Outcome: models.OutcomeNoAnswer}
}

func (c *scriptedCaller) observedMax() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFlight
}

func testProviders() []models.Provider {
	return []models.Provider{
		{ID: "p1", Name: "Alpha Dental", Phone: "+15550000001", Rating: 4.8},
		{ID: "p2", Name: "Beta Dental", Phone: "+15550000002", Rating: 4.2},
		{ID: "p3", Name: "Gamma Dental", Phone: "+15550000003", Rating: 3.9},
	}
}

func campaignRequest(maxParallel int, autoBook bool) models.AppointmentRequest {
	req := models.AppointmentRequest{
		Service:        "dentist",
		Location:       "Springfield",
		DateRangeStart: time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC),
		DateRangeEnd:   time.Date(2026, 9, 10, 18, 0, 0, 0, time.UTC),
		MaxParallel:    maxParallel,
		AutoBook:       autoBook,
		CallMode:       models.CallModeSimulated,
		ClientName:     "Pat Jordan",
	}
	req.ApplyDefaults()
	return req
}

func offerAt(providerID string, hour int) models.SlotOffer {
	start := time.Date(2026, 9, 7, hour, 0, 0, 0, time.UTC)
	return models.SlotOffer{
		ProviderID: providerID,
		Start:      start,
		End:        start.Add(30 * time.Minute),
		Confidence: 0.9,
	}
}

func newTestService(st *store.Store, caller Caller, providers []models.Provider) *DefaultService {
	svc := NewDefaultService(
		st,
		&fakeProviderDirectory{providers: providers},
		&fixedDistance{minutes: 15},
		openCalendar{},
		NewModeDefault(true),
		nil,
		config.Config{SimCallTimeoutSec: 5, RealCallTimeoutSec: 5},
	)
	svc.Simulated = caller
	return svc
}

func TestRunCampaignAggregatesOutcomes(t *testing.T) {
	st := store.New()
	state := st.CreateCampaign(campaignRequest(2, false))

	caller := &scriptedCaller{
		results: map[string]models.ProviderCallResult{
			"p1": {ProviderID: "p1", Outcome: models.OutcomeSuccess, Offers: []models.SlotOffer{offerAt("p1", 9)}},
			"p2": {ProviderID: "p2", Outcome: models.OutcomeNoAnswer},
			"p3": {ProviderID: "p3", Outcome: models.OutcomeSuccess, Offers: []models.SlotOffer{offerAt("p3", 14)}},
		},
	}
	svc := newTestService(st, caller, testProviders())
	svc.RunCampaign(context.Background(), state.CampaignID)

	snap, err := st.Snapshot(state.CampaignID)
	require.NoError(t, err)

	assert.Equal(t, models.CampaignCompleted, snap.Status)
	assert.Equal(t, 3, snap.Progress.TotalProviders)
	assert.Equal(t, 3, snap.Progress.CompletedCalls)
	assert.Equal(t, 2, snap.Progress.SuccessfulCalls)
	assert.Equal(t, 1, snap.Progress.FailedCalls)
	assert.Zero(t, snap.Progress.InProgress)

	require.Len(t, snap.Ranked, 2)
	require.NotNil(t, snap.Best)
	// p1: higher rating and earlier slot.
	assert.Equal(t, "p1", snap.Best.ProviderID)
	require.NotNil(t, snap.Best.Score)
	assert.InDelta(t, 1.0, *snap.Best.Score, 1e-9)

	outcomes, ok := snap.Debug["provider_outcomes"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "SUCCESS", outcomes["p1"])
	assert.Equal(t, "NO_ANSWER", outcomes["p2"])
}

func TestRunCampaignHonorsMaxParallel(t *testing.T) {
	st := store.New()
	req := campaignRequest(2, false)
	state := st.CreateCampaign(req)

	caller := &scriptedCaller{delay: 100 * time.Millisecond}
	svc := newTestService(st, caller, testProviders())
	svc.RunCampaign(context.Background(), state.CampaignID)

	assert.LessOrEqual(t, caller.observedMax(), int64(2))
	assert.Greater(t, caller.observedMax(), int64(0))
}

func TestRunCampaignAllFailuresMarksFailed(t *testing.T) {
	st := store.New()
	state := st.CreateCampaign(campaignRequest(3, false))

	caller := &scriptedCaller{
		results: map[string]models.ProviderCallResult{
			"p1": {ProviderID: "p1", Outcome: models.OutcomeNoAnswer},
			"p2": {ProviderID: "p2", Outcome: models.OutcomeBusy},
			"p3": {ProviderID: "p3", Outcome: models.OutcomeFailed},
		},
	}
	svc := newTestService(st, caller, testProviders())
	svc.RunCampaign(context.Background(), state.CampaignID)

	snap, err := st.Snapshot(state.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignFailed, snap.Status)
	assert.Nil(t, snap.Best)
	assert.Empty(t, snap.Ranked)
}

func TestRunCampaignAutoBooksBestOffer(t *testing.T) {
	st := store.New()
	state := st.CreateCampaign(campaignRequest(3, true))

	best := offerAt("p1", 9)
	caller := &scriptedCaller{
		results: map[string]models.ProviderCallResult{
			"p1": {ProviderID: "p1", Outcome: models.OutcomeSuccess, Offers: []models.SlotOffer{best}},
			"p2": {ProviderID: "p2", Outcome: models.OutcomeNoSlots},
			"p3": {ProviderID: "p3", Outcome: models.OutcomeNoAnswer},
		},
	}
	svc := newTestService(st, caller, testProviders())
	svc.RunCampaign(context.Background(), state.CampaignID)

	snap, err := st.Snapshot(state.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignBooked, snap.Status)
	require.NotNil(t, snap.Booking)
	assert.Equal(t, "p1", snap.Booking.ProviderID)
	assert.True(t, best.Start.Equal(snap.Booking.Start))
	assert.NotEmpty(t, snap.Booking.ConfirmationRef)
	assert.Equal(t, "Pat Jordan", snap.Booking.ClientName)
}

// confirmDropCaller answers the negotiation call with an offer but never
// picks up again, so the auto-book confirmation call fails.
type confirmDropCaller struct {
	mu    sync.Mutex
	calls map[string]int
	offer models.SlotOffer
}

func (c *confirmDropCaller) Call(ctx context.Context, provider models.Provider, req models.AppointmentRequest, campaignID string) models.ProviderCallResult {
	c.mu.Lock()
	c.calls[provider.ID]++
	n := c.calls[provider.ID]
	c.mu.Unlock()

	if n == 1 {
		return models.ProviderCallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeSuccess,
			Offers:     []models.SlotOffer{c.offer},
		}
	}
	return models.ProviderCallResult{ProviderID: provider.ID, Outcome: models.OutcomeNoAnswer}
}

func TestRunCampaignFailedConfirmationDowngradesToCompleted(t *testing.T) {
	st := store.New()
	state := st.CreateCampaign(campaignRequest(2, true))

	caller := &confirmDropCaller{
		calls: map[string]int{},
		offer: offerAt("p1", 9),
	}
	svc := newTestService(st, caller, testProviders()[:1])
	svc.RunCampaign(context.Background(), state.CampaignID)

	snap, err := st.Snapshot(state.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignCompleted, snap.Status)
	assert.Nil(t, snap.Booking)
	// The ranked offer survives for manual confirmation.
	require.Len(t, snap.Ranked, 1)
	assert.Contains(t, snap.Debug["note"], "confirmation call failed")
}

func TestRunCampaignNoProvidersCompletes(t *testing.T) {
	st := store.New()
	state := st.CreateCampaign(campaignRequest(2, false))

	svc := newTestService(st, &scriptedCaller{}, nil)
	svc.RunCampaign(context.Background(), state.CampaignID)

	snap, err := st.Snapshot(state.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignCompleted, snap.Status)
	assert.Zero(t, snap.Progress.TotalProviders)
}

func TestRunCampaignProviderSearchError(t *testing.T) {
	st := store.New()
	state := st.CreateCampaign(campaignRequest(2, false))

	svc := newTestService(st, &scriptedCaller{}, nil)
	svc.Providers = &fakeProviderDirectory{err: errors.New("directory down")}
	svc.RunCampaign(context.Background(), state.CampaignID)

	snap, err := st.Snapshot(state.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignFailed, snap.Status)
}

func TestRunCampaignDropsInvalidOffers(t *testing.T) {
	st := store.New()
	state := st.CreateCampaign(campaignRequest(2, false))

	outside := offerAt("p1", 9)
	outside.Start = outside.Start.AddDate(0, 1, 0)
	outside.End = outside.Start.Add(30 * time.Minute)

	caller := &scriptedCaller{
		results: map[string]models.ProviderCallResult{
			"p1": {ProviderID: "p1", Outcome: models.OutcomeSuccess, Offers: []models.SlotOffer{outside}},
			"p2": {ProviderID: "p2", Outcome: models.OutcomeNoSlots},
			"p3": {ProviderID: "p3", Outcome: models.OutcomeNoSlots},
		},
	}
	svc := newTestService(st, caller, testProviders())
	svc.RunCampaign(context.Background(), state.CampaignID)

	snap, err := st.Snapshot(state.CampaignID)
	require.NoError(t, err)
	assert.Empty(t, snap.Ranked)
	assert.Nil(t, snap.Best)
	// An out-of-range offer still counts as a successful contact.
	assert.Equal(t, models.CampaignCompleted, snap.Status)
}

func TestModeDefault(t *testing.T) {
	m := NewModeDefault(true)
	assert.Equal(t, models.CallModeSimulated, m.Get())

	require.NoError(t, m.Set(models.CallModeHybrid))
	assert.Equal(t, models.CallModeHybrid, m.Get())

	assert.Error(t, m.Set(models.CallModeAuto))
	assert.Error(t, m.Set(models.CallMode("bogus")))
	assert.Equal(t, models.CallModeHybrid, m.Get())

	assert.Equal(t, models.CallModeHybrid, m.Resolve(models.CallModeAuto))
	assert.Equal(t, models.CallModeReal, m.Resolve(models.CallModeReal))
}

func TestSimulatedCallerIsDeterministic(t *testing.T) {
	caller := NewSimulatedCaller(openCalendar{})
	req := campaignRequest(2, false)
	provider := models.Provider{ID: "prov-harbor-dental", Name: "Harbor Dental"}

	first := caller.Call(context.Background(), provider, req, "camp1")
	second := caller.Call(context.Background(), provider, req, "camp2")

	assert.Equal(t, first.Outcome, second.Outcome)
	require.Equal(t, len(first.Offers), len(second.Offers))
	for i := range first.Offers {
		assert.True(t, first.Offers[i].Start.Equal(second.Offers[i].Start))
	}
	for _, offer := range first.Offers {
		assert.True(t, models.ValidOffer(offer, req))
	}
}

func TestSimulatedCallerHonorsCancellation(t *testing.T) {
	caller := NewSimulatedCaller(openCalendar{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := caller.Call(ctx, models.Provider{ID: "prov-harbor-dental"}, campaignRequest(1, false), "camp1")
	assert.Equal(t, models.OutcomeError, result.Outcome)
}
