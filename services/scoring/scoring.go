// Package scoring ranks slot offers by weighted criteria. Everything here is
// a pure function of its inputs so re-ranking an identical offer set always
// yields the identical order.
package scoring

import (
	"math"
	"sort"
	"time"

	"callpilot/models"
)

// Default component weights. They sum to 1.0.
const (
	DefaultEarliestWeight   = 0.5
	DefaultRatingWeight     = 0.25
	DefaultDistanceWeight   = 0.2
	DefaultPreferenceWeight = 0.05
)

// NeutralTravelMinutes is assumed when no travel estimate exists for a
// provider.
const NeutralTravelMinutes = 20

// travel times are capped at an hour for normalization
const maxTravelMinutes = 60.0

// WeightsFromPreferences builds the weight vector from caller preference
// overrides, falling back to the defaults per component. Vectors that do not
// sum to 1.0 are normalized before use.
func WeightsFromPreferences(prefs map[string]float64) models.ScoreWeights {
	w := models.ScoreWeights{
		Earliest:   DefaultEarliestWeight,
		Rating:     DefaultRatingWeight,
		Distance:   DefaultDistanceWeight,
		Preference: DefaultPreferenceWeight,
	}
	if v, ok := prefs["earliest_weight"]; ok {
		w.Earliest = math.Max(v, 0)
	}
	if v, ok := prefs["rating_weight"]; ok {
		w.Rating = math.Max(v, 0)
	}
	if v, ok := prefs["distance_weight"]; ok {
		w.Distance = math.Max(v, 0)
	}
	if v, ok := prefs["preference_weight"]; ok {
		w.Preference = math.Max(v, 0)
	}

	sum := w.Earliest + w.Rating + w.Distance + w.Preference
	if sum <= 0 {
		return models.ScoreWeights{
			Earliest:   DefaultEarliestWeight,
			Rating:     DefaultRatingWeight,
			Distance:   DefaultDistanceWeight,
			Preference: DefaultPreferenceWeight,
		}
	}
	if math.Abs(sum-1.0) > 1e-9 {
		w.Earliest /= sum
		w.Rating /= sum
		w.Distance /= sum
		w.Preference /= sum
	}
	return w
}

// ScoreOffer computes the weighted score for a single offer. Each component
// is normalized to [0,1] before weighting. Returns the raw weighted sum and
// the per-component breakdown.
func ScoreOffer(
	offer models.SlotOffer,
	provider models.Provider,
	travelMin int,
	prefs map[string]float64,
	windowStart, windowEnd time.Time,
) (float64, models.ScoreBreakdown) {
	w := WeightsFromPreferences(prefs)

	// Earliest: earlier start within the window scores higher.
	windowSeconds := math.Max(windowEnd.Sub(windowStart).Seconds(), 1)
	elapsed := offer.Start.Sub(windowStart).Seconds()
	earliest := clamp01(1.0 - elapsed/windowSeconds)

	// Rating: [0..5] -> [0..1].
	rating := clamp01(provider.Rating / 5.0)

	// Distance: shorter travel scores higher, capped at an hour.
	distance := 1.0 - math.Min(float64(travelMin), maxTravelMinutes)/maxTravelMinutes

	// Preference: the offer's confidence acts as the soft preference signal,
	// neutral when unset.
	preference := offer.Confidence
	if preference <= 0 {
		preference = 1.0
	}
	preference = clamp01(preference)

	raw := w.Earliest*earliest + w.Rating*rating + w.Distance*distance + w.Preference*preference

	breakdown := models.ScoreBreakdown{
		Earliest:   round4(earliest),
		Rating:     round4(rating),
		Distance:   round4(distance),
		Preference: round4(preference),
		Weights:    w,
		RawScore:   round4(raw),
	}
	return raw, breakdown
}

// RankOffers scores every offer and sorts descending. Scores are relative:
// the best offer gets 1.0 and the rest are scaled proportionally. Ties break
// by earliest start, then provider id, so recomputing over the same offer set
// is deterministic regardless of arrival order.
//
// Returns the sorted offers (with Score set) and the per-provider breakdowns.
func RankOffers(
	offers []models.SlotOffer,
	providersByID map[string]models.Provider,
	travelByProvider map[string]int,
	prefs map[string]float64,
	windowStart, windowEnd time.Time,
) ([]models.SlotOffer, map[string][]models.ScoreBreakdown) {
	type scored struct {
		raw       float64
		offer     models.SlotOffer
		breakdown models.ScoreBreakdown
	}

	var rankedSet []scored
	for _, offer := range offers {
		provider, ok := providersByID[offer.ProviderID]
		if !ok {
			continue
		}
		travel, ok := travelByProvider[offer.ProviderID]
		if !ok {
			travel = NeutralTravelMinutes
		}
		raw, breakdown := ScoreOffer(offer, provider, travel, prefs, windowStart, windowEnd)
		if offer.ProviderName == "" {
			offer.ProviderName = provider.Name
		}
		rankedSet = append(rankedSet, scored{raw: raw, offer: offer, breakdown: breakdown})
	}

	maxRaw := 0.0
	for _, s := range rankedSet {
		if s.raw > maxRaw {
			maxRaw = s.raw
		}
	}

	for i := range rankedSet {
		relative := 1.0
		if maxRaw > 0 {
			relative = round4(rankedSet[i].raw / maxRaw)
		}
		rankedSet[i].breakdown.RelativeScore = relative
		score := relative
		rankedSet[i].offer.Score = &score
	}

	sort.Slice(rankedSet, func(i, j int) bool {
		a, b := rankedSet[i], rankedSet[j]
		if *a.offer.Score != *b.offer.Score {
			return *a.offer.Score > *b.offer.Score
		}
		if !a.offer.Start.Equal(b.offer.Start) {
			return a.offer.Start.Before(b.offer.Start)
		}
		return a.offer.ProviderID < b.offer.ProviderID
	})

	sortedOffers := make([]models.SlotOffer, 0, len(rankedSet))
	debug := make(map[string][]models.ScoreBreakdown)
	for _, s := range rankedSet {
		sortedOffers = append(sortedOffers, s.offer)
		debug[s.offer.ProviderID] = append(debug[s.offer.ProviderID], s.breakdown)
	}
	return sortedOffers, debug
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
