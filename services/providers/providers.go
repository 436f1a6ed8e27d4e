// Package providers is the provider directory: demo data for local
// development, Google Places behind a feature flag, with Redis-backed search
// caching and an id cache so campaigns can re-resolve providers without a
// fresh search.
package providers

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"callpilot/config"
	"callpilot/models"
	"callpilot/utils"

	"go.uber.org/zap"
)

//go:embed data/providers_demo.json
var demoData embed.FS

// Service searches the provider directory.
type Service interface {
	Search(ctx context.Context, service, location string) ([]models.Provider, error)
	// ByIDs resolves previously returned providers; ok is false when any id
	// is unknown and the caller should re-search.
	ByIDs(ids []string) ([]models.Provider, bool)
}

// DefaultService implements Service over demo data or Google Places.
type DefaultService struct {
	cfg    config.Config
	client *http.Client

	mu      sync.RWMutex
	byID    map[string]models.Provider
	demo    []models.Provider
	demoErr error
	once    sync.Once
}

func NewDefaultService(cfg config.Config) *DefaultService {
	return &DefaultService{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		byID:   make(map[string]models.Provider),
	}
}

const searchCacheTTL = time.Hour

// Search returns providers matching the service, preferring Google Places
// when enabled and falling back to the bundled demo directory.
func (s *DefaultService) Search(ctx context.Context, service, location string) ([]models.Provider, error) {
	logger := utils.GetLogger()

	if s.cfg.UseGooglePlaces && s.cfg.GooglePlacesAPIKey != "" {
		if cached, ok := s.cachedSearch(ctx, service, location); ok {
			return cached, nil
		}
		results, err := s.searchPlaces(ctx, service, location)
		if err == nil {
			s.remember(results)
			s.cacheSearch(ctx, service, location, results)
			return results, nil
		}
		logger.Error("Google Places lookup failed; falling back to demo data", zap.Error(err))
	}

	results, err := s.searchDemo(service)
	if err != nil {
		return nil, err
	}
	s.remember(results)
	return results, nil
}

// ByIDs resolves providers from the id cache.
func (s *DefaultService) ByIDs(ids []string) ([]models.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Provider, 0, len(ids))
	for _, id := range ids {
		p, ok := s.byID[id]
		if !ok {
			return nil, false
		}
		result = append(result, p)
	}
	return result, true
}

func (s *DefaultService) remember(providers []models.Provider) {
	s.mu.Lock()
	for _, p := range providers {
		s.byID[p.ID] = p
	}
	s.mu.Unlock()
}

// ----- demo directory -----

func (s *DefaultService) loadDemo() ([]models.Provider, error) {
	s.once.Do(func() {
		raw, err := demoData.ReadFile("data/providers_demo.json")
		if err != nil {
			s.demoErr = err
			return
		}
		if err := json.Unmarshal(raw, &s.demo); err != nil {
			s.demoErr = err
			return
		}
		utils.GetLogger().Info("Loaded demo providers", zap.Int("count", len(s.demo)))
	})
	return s.demo, s.demoErr
}

func (s *DefaultService) searchDemo(service string) ([]models.Provider, error) {
	all, err := s.loadDemo()
	if err != nil {
		return nil, fmt.Errorf("failed to load demo providers: %w", err)
	}
	needle := strings.ToLower(service)
	var matched []models.Provider
	for _, p := range all {
		for _, svc := range p.Services {
			if strings.Contains(strings.ToLower(svc), needle) {
				matched = append(matched, p)
				break
			}
		}
	}
	return matched, nil
}

// ----- Redis search cache -----

func searchCacheKey(service, location string) string {
	return "providers:search:" + strings.ToLower(service) + "|" + strings.ToLower(location)
}

func (s *DefaultService) cachedSearch(ctx context.Context, service, location string) ([]models.Provider, bool) {
	cache := utils.GetCacheClient()
	if cache == nil {
		return nil, false
	}
	raw, err := cache.Get(ctx, searchCacheKey(service, location)).Result()
	if err != nil {
		return nil, false
	}
	var providers []models.Provider
	if err := json.Unmarshal([]byte(raw), &providers); err != nil {
		return nil, false
	}
	s.remember(providers)
	return providers, true
}

func (s *DefaultService) cacheSearch(ctx context.Context, service, location string, providers []models.Provider) {
	cache := utils.GetCacheClient()
	if cache == nil {
		return
	}
	data, err := json.Marshal(providers)
	if err != nil {
		return
	}
	if err := cache.Set(ctx, searchCacheKey(service, location), data, searchCacheTTL).Err(); err != nil {
		utils.GetLogger().Warn("Failed to cache provider search", zap.Error(err))
	}
}

// ----- Google Places (feature-flagged) -----

func (s *DefaultService) searchPlaces(ctx context.Context, service, location string) ([]models.Provider, error) {
	params := url.Values{}
	params.Set("query", fmt.Sprintf("%s near %s", service, location))
	params.Set("key", s.cfg.GooglePlacesAPIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://maps.googleapis.com/maps/api/place/textsearch/json?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places search returned status %d", resp.StatusCode)
	}

	var body struct {
		Results []struct {
			PlaceID          string  `json:"place_id"`
			Name             string  `json:"name"`
			FormattedAddress string  `json:"formatted_address"`
			Rating           float64 `json:"rating"`
			Geometry         struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	results := body.Results
	if len(results) > 20 {
		results = results[:20]
	}
	providers := make([]models.Provider, 0, len(results))
	for _, place := range results {
		phone, err := s.fetchPhone(ctx, place.PlaceID)
		if err != nil {
			utils.GetLogger().Warn("Could not fetch phone for place",
				zap.String("place_id", place.PlaceID), zap.Error(err))
		}
		providers = append(providers, models.Provider{
			ID:       place.PlaceID,
			Name:     place.Name,
			Phone:    phone,
			Address:  place.FormattedAddress,
			Rating:   place.Rating,
			Lat:      place.Geometry.Location.Lat,
			Lng:      place.Geometry.Location.Lng,
			Services: []string{service},
		})
	}
	utils.GetLogger().Info("Google Places search",
		zap.String("service", service), zap.Int("count", len(providers)))
	return providers, nil
}

func (s *DefaultService) fetchPhone(ctx context.Context, placeID string) (string, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "international_phone_number")
	params.Set("key", s.cfg.GooglePlacesAPIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://maps.googleapis.com/maps/api/place/details/json?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Result struct {
			InternationalPhoneNumber string `json:"international_phone_number"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	// Strip spaces and dashes to E.164 for the carrier.
	phone := strings.NewReplacer(" ", "", "-", "").Replace(body.Result.InternationalPhoneNumber)
	return phone, nil
}
