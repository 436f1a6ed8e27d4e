package distance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpilot/config"
	"callpilot/models"
)

func TestMockEstimateIsStableAndBounded(t *testing.T) {
	m := MockService{}
	ctx := context.Background()
	provider := models.Provider{ID: "prov-harbor-dental"}

	first, err := m.EstimateTravelMinutes(ctx, "Springfield", provider)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, 5)
	assert.LessOrEqual(t, first, 40)

	again, err := m.EstimateTravelMinutes(ctx, "elsewhere", provider)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestMockEstimateVariesByProvider(t *testing.T) {
	m := MockService{}
	ctx := context.Background()

	seen := map[int]bool{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		minutes, err := m.EstimateTravelMinutes(ctx, "origin", models.Provider{ID: id})
		require.NoError(t, err)
		seen[minutes] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestGetServiceSelection(t *testing.T) {
	svc := GetService(config.Config{})
	assert.IsType(t, MockService{}, svc)

	svc = GetService(config.Config{UseGoogleDistance: true, GoogleMapsAPIKey: "key"})
	assert.IsType(t, &GoogleService{}, svc)

	// Flag without a key stays on the mock.
	svc = GetService(config.Config{UseGoogleDistance: true})
	assert.IsType(t, MockService{}, svc)
}
