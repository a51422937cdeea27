package mood

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/logger"
)

func TestFetch_FromAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"value":"62","value_classification":"Greed"}]}`))
	}))
	defer server.Close()

	client := NewClient(config.MoodConfig{APIURL: server.URL}, logger.Nop())

	reading, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 62, reading.Value)
	assert.Equal(t, "Greed", reading.Label)
}

func TestFetch_FallsBackToPage(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer api.Close()

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="fng-circle">23</div></body></html>`))
	}))
	defer page.Close()

	client := NewClient(config.MoodConfig{APIURL: api.URL, PageURL: page.URL}, logger.Nop())
	client.httpClient.DisableRetry()

	reading, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 23, reading.Value)
	assert.Equal(t, "Extreme Fear", reading.Label)
}

func TestFetch_AllSourcesFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	client := NewClient(config.MoodConfig{APIURL: down.URL, PageURL: down.URL}, logger.Nop())
	client.httpClient.DisableRetry()

	_, err := client.Fetch(context.Background())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "Extreme Fear", Classify(0))
	assert.Equal(t, "Extreme Fear", Classify(24))
	assert.Equal(t, "Fear", Classify(40))
	assert.Equal(t, "Neutral", Classify(50))
	assert.Equal(t, "Greed", Classify(62))
	assert.Equal(t, "Extreme Greed", Classify(90))
}
