package tui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/shellmux/internal/events"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer k" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid API key"}`))
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("POST /slots/{slot}/exec", auth(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Commands []string `json:"commands"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.PathValue("slot") != "main" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"slot not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"job_id": "j1", "code": 0, "out": []string{strings.Join(req.Commands, ";")}, "err": []string{}, "died": false,
		})
	}))
	mux.HandleFunc("GET /slots", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"slots":[{"name":"main","alive":true,"status":"root","queued":0}]}`))
	}))
	mux.HandleFunc("GET /events", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(": keep-alive\n\nid: 7\nevent: job.completed\ndata: {\"code\":0}\n\n"))
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteRunnerRun(t *testing.T) {
	srv := fakeAPI(t)
	r := RemoteRunner{BaseURL: srv.URL + "/", APIKey: "k"}

	out, err := r.Run(context.Background(), "main", "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "j1", out.JobID)
	assert.Equal(t, []string{"echo hi"}, out.Out)

	_, err = r.Run(context.Background(), "other", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slot not found")

	bad := RemoteRunner{BaseURL: srv.URL, APIKey: "wrong"}
	_, err = bad.Slots(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key")
}

func TestRemoteRunnerSlots(t *testing.T) {
	srv := fakeAPI(t)
	slots, err := RemoteRunner{BaseURL: srv.URL, APIKey: "k"}.Slots(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "main", slots[0].Name)
	assert.True(t, slots[0].Alive)
}

func TestRemoteRunnerStreamEvents(t *testing.T) {
	srv := fakeAPI(t)
	ch := make(chan events.Event, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, RemoteRunner{BaseURL: srv.URL, APIKey: "k"}.StreamEvents(ctx, ch))

	require.Len(t, ch, 1)
	ev := <-ch
	assert.EqualValues(t, 7, ev.ID)
	assert.Equal(t, events.JobCompleted, ev.Type)
	assert.JSONEq(t, `{"code":0}`, string(ev.Data))
}
