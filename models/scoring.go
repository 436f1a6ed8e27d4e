package models

// ScoreWeights is the weight vector applied to the scoring components.
type ScoreWeights struct {
	Earliest   float64 `json:"earliest"`
	Rating     float64 `json:"rating"`
	Distance   float64 `json:"distance"`
	Preference float64 `json:"preference"`
}

// ScoreBreakdown exposes per-offer component scores for debugging. Each
// component is normalized to [0,1] before weighting; RelativeScore is the raw
// score divided by the campaign's best raw score.
type ScoreBreakdown struct {
	Earliest      float64      `json:"earliest"`
	Rating        float64      `json:"rating"`
	Distance      float64      `json:"distance"`
	Preference    float64      `json:"preference"`
	Weights       ScoreWeights `json:"weights"`
	RawScore      float64      `json:"raw_score"`
	RelativeScore float64      `json:"relative_score"`
}
