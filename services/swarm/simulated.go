package swarm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"callpilot/models"
	"callpilot/services/calendar"
	"callpilot/utils"

	"go.uber.org/zap"
)

// SimulatedCaller is a deterministic in-process receptionist. Outcomes and
// offered slots derive from a hash of the provider id, so repeated runs over
// the same providers and date range behave identically; only the artificial
// call latency is wall-clock.
type SimulatedCaller struct {
	Calendar calendar.Service
}

func NewSimulatedCaller(cal calendar.Service) *SimulatedCaller {
	return &SimulatedCaller{Calendar: cal}
}

func providerSeed(providerID string) uint64 {
	sum := sha256.Sum256([]byte(providerID))
	return binary.BigEndian.Uint64(sum[:8])
}

func (c *SimulatedCaller) Call(ctx context.Context, provider models.Provider, req models.AppointmentRequest, campaignID string) models.ProviderCallResult {
	seed := providerSeed(provider.ID)

	// ~20% of providers never pick up or have nothing open.
	switch seed % 10 {
	case 0:
		if err := sleepCtx(ctx, 300*time.Millisecond); err != nil {
			return cancelledResult(provider.ID)
		}
		return models.ProviderCallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeNoAnswer,
			Notes:      "Simulated: no answer",
		}
	case 1:
		if err := sleepCtx(ctx, 200*time.Millisecond); err != nil {
			return cancelledResult(provider.ID)
		}
		return models.ProviderCallResult{
			ProviderID: provider.ID,
			Outcome:    models.OutcomeNoSlots,
			Notes:      "Simulated: receptionist said no availability",
		}
	}

	offers := c.generateOffers(ctx, provider, req, seed)

	// Simulate a short call duration.
	latency := 200*time.Millisecond + time.Duration(seed%5)*100*time.Millisecond
	if err := sleepCtx(ctx, latency); err != nil {
		return cancelledResult(provider.ID)
	}

	if len(offers) > 0 {
		return models.ProviderCallResult{
			ProviderID:        provider.ID,
			Outcome:           models.OutcomeSuccess,
			Offers:            offers,
			TranscriptSnippet: fmt.Sprintf("Simulated call with %s; offered %d slot(s).", provider.Name, len(offers)),
			Notes:             "simulated",
		}
	}
	return models.ProviderCallResult{
		ProviderID: provider.ID,
		Outcome:    models.OutcomeCompletedNoMatch,
		Notes:      "Simulated: all candidate slots conflicted with calendar",
	}
}

// generateOffers proposes up to two calendar-checked slots seeded from the
// provider id: one candidate per day over three days, starting from 9:00 with
// a seed-derived hour offset, shifted an hour later once when the calendar
// conflicts.
func (c *SimulatedCaller) generateOffers(ctx context.Context, provider models.Provider, req models.AppointmentRequest, seed uint64) []models.SlotOffer {
	logger := utils.GetLogger()
	duration := time.Duration(req.DurationMin) * time.Minute

	rangeStart := req.DateRangeStart.UTC()
	base := time.Date(rangeStart.Year(), rangeStart.Month(), rangeStart.Day(), 9, 0, 0, 0, time.UTC)

	var offers []models.SlotOffer
	for i := 0; i < 3 && len(offers) < 2; i++ {
		offsetHours := (seed >> (i * 4)) % 8 // 0-7 hours from 9am
		start := base.AddDate(0, 0, i).Add(time.Duration(offsetHours) * time.Hour)
		end := start.Add(duration)
		if end.After(req.DateRangeEnd) {
			continue
		}

		free, err := c.Calendar.IsFree(ctx, start, end)
		if err != nil {
			logger.Warn("Calendar unavailable; skipping slot",
				zap.String("provider_id", provider.ID), zap.Error(err))
			continue
		}
		if !free {
			// Try one hour later.
			start = start.Add(time.Hour)
			end = end.Add(time.Hour)
			if end.After(req.DateRangeEnd) {
				continue
			}
			free, err = c.Calendar.IsFree(ctx, start, end)
			if err != nil || !free {
				continue
			}
		}

		offer := models.SlotOffer{
			ProviderID:   provider.ID,
			ProviderName: provider.Name,
			Start:        start,
			End:          end,
			Notes:        fmt.Sprintf("Simulated offer from %s", provider.Name),
			Confidence:   0.9 - 0.1*float64(i),
		}
		if !models.ValidOffer(offer, req) {
			continue
		}
		offers = append(offers, offer)
	}
	return offers
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cancelledResult(providerID string) models.ProviderCallResult {
	return models.ProviderCallResult{
		ProviderID: providerID,
		Outcome:    models.OutcomeError,
		Notes:      "Call cancelled",
	}
}
