package telemetryoracle_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-releng/balrogagent/internal/apperrors"
	"github.com/mozilla-releng/balrogagent/internal/telemetryoracle"
)

func TestFetchReturnsObservedUptake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/uptake", r.URL.Path)
		assert.Equal(t, "firefox", r.URL.Query().Get("product"))
		assert.Equal(t, "release", r.URL.Query().Get("channel"))
		fmt.Fprint(w, `{"uptake": 0.82}`)
	}))
	defer srv.Close()

	oracle := telemetryoracle.New(srv.URL)
	uptake, err := oracle.Fetch(context.Background(), "firefox", "release")
	require.NoError(t, err)
	assert.Equal(t, 0.82, uptake)
}

func TestFetchServerErrorIsPredicateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	oracle := telemetryoracle.New(srv.URL)
	_, err := oracle.Fetch(context.Background(), "firefox", "release")
	require.Error(t, err)
	assert.True(t, apperrors.IsPredicate(err))
}

func TestFetchMalformedBodyIsPredicateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	oracle := telemetryoracle.New(srv.URL)
	_, err := oracle.Fetch(context.Background(), "firefox", "release")
	require.Error(t, err)
	assert.True(t, apperrors.IsPredicate(err), "an undecodable uptake body degrades to not-ready, never aborts the cycle")
}
