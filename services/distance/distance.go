// Package distance estimates travel time from the requested location to a
// provider. A deterministic hash-based mock backs the feature-flagged Google
// Distance Matrix integration.
package distance

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"callpilot/config"
	"callpilot/models"
	"callpilot/utils"

	"go.uber.org/zap"
)

// Service estimates travel minutes from an origin to a provider.
type Service interface {
	EstimateTravelMinutes(ctx context.Context, origin string, provider models.Provider) (int, error)
}

// MockService returns a stable travel time in 5-40 min derived from the
// provider id.
type MockService struct{}

func (MockService) EstimateTravelMinutes(ctx context.Context, origin string, provider models.Provider) (int, error) {
	sum := sha256.Sum256([]byte(provider.ID))
	h := binary.BigEndian.Uint64(sum[:8])
	return 5 + int(h%36), nil
}

// GoogleService queries the Google Distance Matrix API, with the mock as a
// fallback on any error. Results are cached for an hour.
type GoogleService struct {
	apiKey string
	client *http.Client

	mu    sync.Mutex
	cache map[string]cachedMinutes
}

type cachedMinutes struct {
	fetchedAt time.Time
	minutes   int
}

const distanceCacheTTL = time.Hour

func NewGoogleService(apiKey string) *GoogleService {
	return &GoogleService{
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]cachedMinutes),
	}
}

func (g *GoogleService) EstimateTravelMinutes(ctx context.Context, origin string, provider models.Provider) (int, error) {
	cacheKey := origin + "|" + provider.ID
	g.mu.Lock()
	if entry, ok := g.cache[cacheKey]; ok && time.Since(entry.fetchedAt) < distanceCacheTTL {
		g.mu.Unlock()
		return entry.minutes, nil
	}
	g.mu.Unlock()

	minutes, err := g.query(ctx, origin, provider)
	if err != nil {
		utils.GetLogger().Warn("Distance Matrix lookup failed; falling back to mock",
			zap.String("provider_id", provider.ID), zap.Error(err))
		return MockService{}.EstimateTravelMinutes(ctx, origin, provider)
	}

	g.mu.Lock()
	g.cache[cacheKey] = cachedMinutes{fetchedAt: time.Now(), minutes: minutes}
	g.mu.Unlock()
	return minutes, nil
}

func (g *GoogleService) query(ctx context.Context, origin string, provider models.Provider) (int, error) {
	params := url.Values{}
	params.Set("origins", origin)
	params.Set("destinations", fmt.Sprintf("%f,%f", provider.Lat, provider.Lng))
	params.Set("mode", "driving")
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://maps.googleapis.com/maps/api/distancematrix/json?"+params.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("distance matrix returned status %d", resp.StatusCode)
	}

	var body struct {
		Rows []struct {
			Elements []struct {
				Status   string `json:"status"`
				Duration struct {
					Value int `json:"value"` // seconds
				} `json:"duration"`
			} `json:"elements"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	if len(body.Rows) == 0 || len(body.Rows[0].Elements) == 0 {
		return 0, fmt.Errorf("distance matrix returned no elements")
	}
	element := body.Rows[0].Elements[0]
	if element.Status != "OK" {
		return 0, fmt.Errorf("distance matrix element status: %s", element.Status)
	}
	return element.Duration.Value / 60, nil
}

// GetService returns the real or mock distance service based on config.
func GetService(cfg config.Config) Service {
	if cfg.UseGoogleDistance && cfg.GoogleMapsAPIKey != "" {
		return NewGoogleService(cfg.GoogleMapsAPIKey)
	}
	return MockService{}
}
