package models

// Provider is a callable service provider returned by the directory search.
// Immutable once fetched for a given search; referenced by ID throughout a
// campaign.
type Provider struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Address  string   `json:"address"`
	Rating   float64  `json:"rating"` // 0..5
	Lat      float64  `json:"lat,omitempty"`
	Lng      float64  `json:"lng,omitempty"`
	Services []string `json:"services,omitempty"`

	// TravelMinutes is filled in by the distance service when known.
	TravelMinutes *int `json:"travelMinutes,omitempty"`
}

// ProviderPreview is the trimmed projection exposed in campaign debug info.
type ProviderPreview struct {
	Name    string  `json:"name"`
	Rating  float64 `json:"rating"`
	Address string  `json:"address"`
	Phone   string  `json:"phone"`
}
