package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpilot/config"
)

func TestSearchDemoMatchesService(t *testing.T) {
	s := NewDefaultService(config.Config{})

	found, err := s.Search(context.Background(), "dentist", "Springfield")
	require.NoError(t, err)
	require.NotEmpty(t, found)
	for _, p := range found {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Phone)
	}
}

func TestSearchDemoIsCaseInsensitive(t *testing.T) {
	s := NewDefaultService(config.Config{})

	lower, err := s.Search(context.Background(), "dentist", "x")
	require.NoError(t, err)
	upper, err := s.Search(context.Background(), "DENTIST", "x")
	require.NoError(t, err)
	assert.Equal(t, len(lower), len(upper))
}

func TestSearchDemoUnknownServiceIsEmpty(t *testing.T) {
	s := NewDefaultService(config.Config{})

	found, err := s.Search(context.Background(), "falconry", "Springfield")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestByIDsAfterSearch(t *testing.T) {
	s := NewDefaultService(config.Config{})

	found, err := s.Search(context.Background(), "dentist", "Springfield")
	require.NoError(t, err)
	require.NotEmpty(t, found)

	resolved, ok := s.ByIDs([]string{found[0].ID})
	require.True(t, ok)
	assert.Equal(t, found[0].Name, resolved[0].Name)

	_, ok = s.ByIDs([]string{found[0].ID, "ghost"})
	assert.False(t, ok)
}
