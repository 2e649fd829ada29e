package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/gpuheald/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init(false, false, true)
	os.Exit(m.Run())
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, 2*time.Second, logger.Default())
	require.NoError(t, err)

	return client, srv
}

func psHandler(models ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type entry struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		}
		var out struct {
			Models []entry `json:"models"`
		}
		for _, m := range models {
			out.Models = append(out.Models, entry{Name: m, Model: m})
		}
		json.NewEncoder(w).Encode(out)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, url := range []string{"", "not a url", "127.0.0.1:11434", "http://"} {
		_, err := NewClient(url, time.Second, logger.Default())
		assert.Error(t, err, url)
	}
}

func TestHealthHealthy(t *testing.T) {
	client, _ := newTestClient(t, psHandler("llama3:8b", "phi3:mini"))

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, 2, health.ModelsLoaded)
}

func TestHealthServerErrorIsCritical(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, health.Status)
}

func TestHealthClientErrorIsDegraded(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, health.Status)
}

func TestHealthTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from now on

	client, err := NewClient(srv.URL, time.Second, logger.Default())
	require.NoError(t, err)

	health, err := client.Health(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StatusUnavailable, health.Status)
}

func TestUnloadAllEvictsEachModel(t *testing.T) {
	var (
		mu       sync.Mutex
		unloaded []string
	)
	mux := http.NewServeMux()
	mux.Handle("/api/ps", psHandler("llama3:8b", "phi3:mini"))
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model     string `json:"model"`
			KeepAlive int    `json:"keep_alive"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0, req.KeepAlive)

		mu.Lock()
		unloaded = append(unloaded, req.Model)
		mu.Unlock()
	})
	client, _ := newTestClient(t, mux)

	count, err := client.UnloadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"llama3:8b", "phi3:mini"}, unloaded)
}

func TestUnloadAllNoModelsIsNoOp(t *testing.T) {
	client, _ := newTestClient(t, psHandler())

	count, err := client.UnloadAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUnloadAllPropagatesEvictionFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/api/ps", psHandler("llama3:8b"))
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, mux)

	_, err := client.UnloadAll(context.Background())
	assert.Error(t, err)
}

func TestReloadPinsModelWarm(t *testing.T) {
	var keepAlive int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			KeepAlive int `json:"keep_alive"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		keepAlive = req.KeepAlive
	})
	client, _ := newTestClient(t, mux)

	require.NoError(t, client.Reload(context.Background(), "llama3:8b"))
	assert.Equal(t, -1, keepAlive)
}

func TestReloadWithoutModelFails(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	assert.Error(t, client.Reload(context.Background(), ""))
}
