package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/farebot/fares/catalog"
)

func TestBackendPostsToServingSource(t *testing.T) {
	bad := newUpstream(t, http.StatusOK, `{}`)
	good := newUpstream(t, http.StatusOK, sofiaBody)

	f, err := NewFetcher(Options{Sources: []Source{bad.source("Silver"), good.source("Sofia")}, Token: "Bearer t"})
	require.NoError(t, err)
	b := NewBackend(f)

	err = b.RegisterUser(context.Background(), User{FirstName: "Ann", LastName: "42", InterestedCity: "Paris", Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrNoReferenceData, "nothing is serving before the first fetch")

	_, err = f.Fetch(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.RegisterUser(context.Background(), User{FirstName: "Ann", LastName: "42", InterestedCity: "Paris", Email: "a@b.com"}))
	require.NoError(t, b.AddCity(context.Background(), catalog.CityEntry{City: "Vienna", IATACode: "VIE"}))

	good.mu.Lock()
	defer good.mu.Unlock()
	require.Len(t, good.posts, 2)

	var user User
	require.NoError(t, json.Unmarshal(good.posts[0]["user"], &user))
	assert.Equal(t, User{FirstName: "Ann", LastName: "42", InterestedCity: "Paris", Email: "a@b.com"}, user)

	var price map[string]string
	require.NoError(t, json.Unmarshal(good.posts[1]["price"], &price))
	assert.Equal(t, map[string]string{"city": "Vienna", "iataCode": "VIE"}, price)
	assert.Equal(t, "Bearer t", good.auth)
	assert.Empty(t, bad.posts)
}

type fakeLoader struct{ loaded []catalog.CityEntry }

func (l *fakeLoader) Load(entries []catalog.CityEntry) int {
	l.loaded = entries
	return len(entries)
}

func TestSeederDegradedMode(t *testing.T) {
	down := newUpstream(t, http.StatusServiceUnavailable, ``)
	f, err := NewFetcher(Options{Sources: []Source{down.source("Down")}, Policy: Policy{Attempts: 2, Delay: 1}})
	require.NoError(t, err)

	loader := &fakeLoader{}
	s := NewSeeder(f, loader)
	assert.Equal(t, "refdata", s.Name())

	require.NoError(t, s.Seed(context.Background()), "exhausted sources do not fail startup")
	assert.True(t, s.Degraded())
	assert.True(t, errors.Is(s.Reload(context.Background()), ErrNoReferenceData))
	assert.Nil(t, loader.loaded)
}

func TestSeederLoadsCatalog(t *testing.T) {
	up := newUpstream(t, http.StatusOK, sofiaBody)
	f, err := NewFetcher(Options{Sources: []Source{up.source("Sofia")}})
	require.NoError(t, err)

	loader := &fakeLoader{}
	s := NewSeeder(f, loader)
	assert.Empty(t, s.Source())
	require.NoError(t, s.Seed(context.Background()))
	assert.False(t, s.Degraded())
	assert.Len(t, loader.loaded, 2)
	assert.Equal(t, "Sofia", s.Source())
}
