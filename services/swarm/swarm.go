// Package swarm orchestrates a campaign: bounded-parallel fan-out of provider
// call sessions, incremental scoring of their offers, and the terminal
// auto-book step.
package swarm

import (
	"context"
	"time"

	"callpilot/config"
	"callpilot/models"
	"callpilot/services/calendar"
	"callpilot/services/distance"
	"callpilot/services/providers"
	"callpilot/services/scoring"
	"callpilot/store"
	"callpilot/utils"

	"go.uber.org/zap"
)

// Service runs campaigns to completion.
type Service interface {
	RunCampaign(ctx context.Context, campaignID string)
}

// DefaultService implements Service. It is the single writer of campaign
// state: call sessions report results over a channel and only the orchestrator
// goroutine touches the store.
type DefaultService struct {
	Store     *store.Store
	Providers providers.Service
	Distance  distance.Service
	Calendar  calendar.Service
	Modes     *ModeDefault
	Cfg       config.Config

	// Callers are swappable for tests.
	Simulated Caller
	Real      Caller
}

func NewDefaultService(
	st *store.Store,
	providerSvc providers.Service,
	distanceSvc distance.Service,
	calendarSvc calendar.Service,
	modes *ModeDefault,
	real Caller,
	cfg config.Config,
) *DefaultService {
	return &DefaultService{
		Store:     st,
		Providers: providerSvc,
		Distance:  distanceSvc,
		Calendar:  calendarSvc,
		Modes:     modes,
		Cfg:       cfg,
		Simulated: NewSimulatedCaller(calendarSvc),
		Real:      real,
	}
}

// RunCampaign executes a full campaign: provider discovery, bounded-parallel
// calling, incremental ranking, and the terminal transition. Intended to run
// in its own goroutine; all failures land in campaign status, never panic.
func (s *DefaultService) RunCampaign(ctx context.Context, campaignID string) {
	logger := utils.GetLogger()

	req, err := s.Store.GetRequest(campaignID)
	if err != nil {
		logger.Error("Campaign not found", zap.String("campaign_id", campaignID))
		return
	}

	// 1) Find providers.
	found, err := s.Providers.Search(ctx, req.Service, req.Location)
	if err != nil {
		logger.Error("Provider search failed",
			zap.String("campaign_id", campaignID), zap.Error(err))
		s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
			state.Status = models.CampaignFailed
			state.Debug["note"] = "Provider search failed"
		})
		return
	}
	candidates := dedupeProviders(found)
	if len(candidates) > req.MaxProviders {
		candidates = candidates[:req.MaxProviders]
	}

	// Travel estimates feed incremental ranking, so resolve them up front.
	travelByProvider := make(map[string]int, len(candidates))
	for i := range candidates {
		minutes, err := s.Distance.EstimateTravelMinutes(ctx, req.Location, candidates[i])
		if err != nil {
			minutes = scoring.NeutralTravelMinutes
		}
		travelByProvider[candidates[i].ID] = minutes
		m := minutes
		candidates[i].TravelMinutes = &m
	}

	s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
		state.Providers = candidates
		state.Progress = models.CampaignProgress{TotalProviders: len(candidates)}
	})

	if len(candidates) == 0 {
		s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
			state.Status = models.CampaignCompleted
			state.Debug["note"] = "No providers found for this service/location"
		})
		return
	}

	// 2) Call providers under the concurrency bound.
	mode := s.Modes.Resolve(req.CallMode)
	maxParallel := req.MaxParallel
	if maxParallel < 1 {
		maxParallel = 1
	}
	permits := make(chan struct{}, maxParallel)
	results := make(chan models.ProviderCallResult, len(candidates))

	for i, prov := range candidates {
		caller, timeout := s.callerFor(mode, i)
		go func(prov models.Provider) {
			select {
			case permits <- struct{}{}:
			case <-ctx.Done():
				results <- cancelledResult(prov.ID)
				return
			}
			defer func() { <-permits }()

			s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
				state.Progress.InProgress++
			})

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results <- caller.Call(callCtx, prov, req, campaignID)
		}(prov)
	}

	// 3) Aggregate completions; re-rank incrementally so pollers always see
	// the current best match.
	providersByID := make(map[string]models.Provider, len(candidates))
	for _, p := range candidates {
		providersByID[p.ID] = p
	}

	var allOffers []models.SlotOffer
	outcomes := make(map[string]string, len(candidates))
	successful, failed := 0, 0

	for completed := 1; completed <= len(candidates); completed++ {
		result := <-results

		valid := result.Offers[:0:0]
		for _, offer := range result.Offers {
			if models.ValidOffer(offer, req) {
				valid = append(valid, offer)
			}
		}
		result.Offers = valid

		switch result.Outcome {
		case models.OutcomeSuccess:
			successful++
			allOffers = append(allOffers, result.Offers...)
		case models.OutcomeFailed, models.OutcomeNoAnswer, models.OutcomeBusy,
			models.OutcomeVoicemail, models.OutcomeError:
			failed++
		}
		outcomes[result.ProviderID] = string(result.Outcome)

		ranked, scoringDebug := scoring.RankOffers(
			allOffers, providersByID, travelByProvider, req.Preferences,
			req.DateRangeStart, req.DateRangeEnd)

		progress := models.CampaignProgress{
			TotalProviders:  len(candidates),
			CompletedCalls:  completed,
			SuccessfulCalls: successful,
			FailedCalls:     failed,
			InProgress:      0,
		}
		res := result
		s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
			state.CallResults = append(state.CallResults, res)
			progress.InProgress = state.Progress.InProgress - 1
			if progress.InProgress < 0 {
				progress.InProgress = 0
			}
			state.Progress = progress
			state.Ranked = ranked
			state.Best = bestOf(ranked)
			state.Debug["scoring"] = scoringDebug
			state.Debug["provider_outcomes"] = copyOutcomes(outcomes)
		})
	}

	// 4) Terminal transition.
	snap, err := s.Store.Snapshot(campaignID)
	if err != nil {
		return
	}

	if len(snap.Ranked) == 0 && failed == len(candidates) {
		s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
			state.Status = models.CampaignFailed
			state.Debug["note"] = "All provider calls failed with no offers"
		})
		logger.Info("Campaign failed: no usable offers",
			zap.String("campaign_id", campaignID))
		return
	}

	if req.AutoBook && snap.Best != nil {
		s.autoBook(ctx, campaignID, req, *snap.Best)
	} else {
		s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
			state.Status = models.CampaignCompleted
		})
	}

	best := "none"
	if snap.Best != nil {
		best = snap.Best.ProviderID
	}
	logger.Info("Campaign finished",
		zap.String("campaign_id", campaignID),
		zap.Int("ranked", len(snap.Ranked)),
		zap.String("best", best))
}

// autoBook runs a confirmation call session against the best offer's
// provider and installs the booking when the provider is reached. A failed or
// cancelled confirmation falls back to completed so the client can confirm
// manually.
func (s *DefaultService) autoBook(ctx context.Context, campaignID string, req models.AppointmentRequest, best models.SlotOffer) {
	logger := utils.GetLogger()

	s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
		state.Status = models.CampaignBooking
	})

	provider, ok := s.Store.GetProvider(campaignID, best.ProviderID)
	if !ok {
		s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
			state.Status = models.CampaignCompleted
			state.Debug["note"] = "Auto-book provider no longer known; manual confirmation available"
		})
		return
	}

	// The confirmation call is a short scripted exchange; it runs simulated
	// regardless of campaign mode.
	confirmCtx, cancel := context.WithTimeout(ctx, secondsOr(s.Cfg.SimCallTimeoutSec, 30))
	defer cancel()
	result := s.Simulated.Call(confirmCtx, provider, req, campaignID)

	switch result.Outcome {
	case models.OutcomeNoAnswer, models.OutcomeBusy, models.OutcomeVoicemail,
		models.OutcomeFailed, models.OutcomeError:
		s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
			state.Status = models.CampaignCompleted
			state.Debug["note"] = "Auto-book confirmation call failed; manual confirmation available"
		})
		logger.Warn("Auto-book confirmation call failed",
			zap.String("campaign_id", campaignID),
			zap.String("provider_id", best.ProviderID),
			zap.String("outcome", string(result.Outcome)))
		return
	}

	booking := models.BookingConfirmation{
		ProviderID:      best.ProviderID,
		Start:           best.Start,
		End:             best.End,
		ConfirmationRef: store.NewConfirmationRef(),
		ConfirmedAt:     time.Now().UTC(),
		ClientName:      req.ClientName,
		Notes:           "auto-booked",
	}
	s.Store.UpdateCampaign(campaignID, func(state *store.CampaignState) {
		if state.Booking != nil {
			return
		}
		state.Booking = &booking
		state.Status = models.CampaignBooked
	})
	logger.Info("Campaign auto-booked",
		zap.String("campaign_id", campaignID),
		zap.String("provider_id", best.ProviderID),
		zap.String("ref", booking.ConfirmationRef))
}

// callerFor picks the caller and per-call timeout for the i-th provider under
// the effective mode. Hybrid runs exactly the first call for real.
func (s *DefaultService) callerFor(mode models.CallMode, index int) (Caller, time.Duration) {
	useReal := mode == models.CallModeReal ||
		(mode == models.CallModeHybrid && index == 0)
	if useReal && s.Real != nil {
		return s.Real, secondsOr(s.Cfg.RealCallTimeoutSec, 120)
	}
	return s.Simulated, secondsOr(s.Cfg.SimCallTimeoutSec, 30)
}

func secondsOr(sec, fallback int) time.Duration {
	if sec <= 0 {
		sec = fallback
	}
	return time.Duration(sec) * time.Second
}

func dedupeProviders(in []models.Provider) []models.Provider {
	seen := make(map[string]bool, len(in))
	out := make([]models.Provider, 0, len(in))
	for _, p := range in {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

func bestOf(ranked []models.SlotOffer) *models.SlotOffer {
	if len(ranked) == 0 {
		return nil
	}
	best := ranked[0]
	return &best
}

func copyOutcomes(outcomes map[string]string) map[string]string {
	out := make(map[string]string, len(outcomes))
	for k, v := range outcomes {
		out[k] = v
	}
	return out
}
