package adminclient_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-releng/balrogagent/internal/adminclient"
	"github.com/mozilla-releng/balrogagent/internal/apperrors"
	"github.com/mozilla-releng/balrogagent/internal/config"
	"github.com/mozilla-releng/balrogagent/internal/scheduledchange"
	"github.com/mozilla-releng/balrogagent/pkg/logger"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "test-token", "token_type": "bearer", "expires_in": 3600}`)
	}))
}

func TestGetV1DecodesInventory(t *testing.T) {
	tokenSrv := newTokenServer(t)
	defer tokenSrv.Close()

	adminSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scheduled_changes/rules", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"count": 1, "scheduled_changes": [{"sc_id": 4, "when": 234}]}`)
	}))
	defer adminSrv.Close()

	client, err := adminclient.New(config.ClientCredentials{
		ClientID:     "agent",
		ClientSecret: "shh",
		TokenURL:     tokenSrv.URL,
	}, adminSrv.URL, logger.NewDefaultLogger())
	require.NoError(t, err)

	inv, err := client.GetV1(context.Background(), scheduledchange.ClassRules)
	require.NoError(t, err)
	require.Len(t, inv.ScheduledChanges, 1)
	assert.Equal(t, int64(4), inv.ScheduledChanges[0].SCID)
}

func TestEnactPostsToEndpoint(t *testing.T) {
	tokenSrv := newTokenServer(t)
	defer tokenSrv.Close()

	var gotMethod, gotPath string
	adminSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer adminSrv.Close()

	client, err := adminclient.New(config.ClientCredentials{
		ClientID:     "agent",
		ClientSecret: "shh",
		TokenURL:     tokenSrv.URL,
	}, adminSrv.URL, logger.NewDefaultLogger())
	require.NoError(t, err)

	err = client.Enact(context.Background(), "/scheduled_changes/rules/4/enact")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/scheduled_changes/rules/4/enact", gotPath)
}

func TestGetV2ReleasesDecodesReleaseInventory(t *testing.T) {
	tokenSrv := newTokenServer(t)
	defer tokenSrv.Close()

	adminSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"releases": [{"name": "Firefox-64.0-build1", "product": "Firefox"}]}`)
	}))
	defer adminSrv.Close()

	client, err := adminclient.New(config.ClientCredentials{
		ClientID:     "agent",
		ClientSecret: "shh",
		TokenURL:     tokenSrv.URL,
	}, adminSrv.URL, logger.NewDefaultLogger())
	require.NoError(t, err)

	releases, err := client.GetV2Releases(context.Background())
	require.NoError(t, err)
	require.Len(t, releases, 1)
	assert.Equal(t, "Firefox-64.0-build1", releases[0].Name)
}

func TestGetV1ServerErrorIsTransportError(t *testing.T) {
	tokenSrv := newTokenServer(t)
	defer tokenSrv.Close()

	adminSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer adminSrv.Close()

	client, err := adminclient.New(config.ClientCredentials{
		ClientID:     "agent",
		ClientSecret: "shh",
		TokenURL:     tokenSrv.URL,
	}, adminSrv.URL, logger.NewDefaultLogger())
	require.NoError(t, err)

	_, err = client.GetV1(context.Background(), scheduledchange.ClassRules)
	assert.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
}
