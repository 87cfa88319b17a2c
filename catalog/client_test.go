package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T, hits *atomic.Int32, gate chan struct{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/project/all", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if gate != nil {
			<-gate
		}
		json.NewEncoder(w).Encode([]Project{{ID: "p1", Name: "Website", Version: 2}})
	})
	mux.HandleFunc("/api/section/all", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Section{{ID: "s1", Name: "Backend", ProjectID: "p1"}})
	})
	mux.HandleFunc("/api/task/by-section-id/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/task/by-section-id/s1" {
			http.Error(w, "section not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode([]Task{{ID: "t1", Name: "API", SectionID: "s1"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchesCatalog(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits, nil)
	c, err := NewClient(discardLogger, srv.URL+"/", nil)
	require.NoError(t, err)
	ctx := context.Background()

	projects, err := c.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Website", projects[0].Name)
	assert.Equal(t, 2, projects[0].Version)

	sections, err := c.Sections(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p1", sections[0].ProjectID)

	tasks, err := c.TasksBySection(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", tasks[0].SectionID)
}

func TestClient_StatusError(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits, nil)
	c, err := NewClient(discardLogger, srv.URL, nil)
	require.NoError(t, err)

	_, err = c.TasksBySection(context.Background(), "missing")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, "section not found", se.Body)
}

func TestClient_ConcurrentRequestsShareRoundTrip(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	srv := newTestServer(t, &hits, gate)
	c, err := NewClient(discardLogger, srv.URL, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Projects(context.Background())
			assert.NoError(t, err)
			assert.Len(t, p, 1)
		}()
	}
	// let every caller join the in-flight request before releasing it
	deadline := time.Now().Add(time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_ContextCancel(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	srv := newTestServer(t, &hits, gate)
	defer close(gate)
	c, err := NewClient(discardLogger, srv.URL, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Projects(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
