package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"socketd/internal/logging"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func TestEmit(t *testing.T) {
	var got struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/emit-event", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", 0)
	err := c.Emit(context.Background(), "roomParticipantJoined", map[string]string{"roomId": "room1"})
	require.NoError(t, err)
	require.Equal(t, "roomParticipantJoined", got.Event)
	require.Equal(t, "room1", got.Data["roomId"])
}

func TestEmit_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"data is required"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, 0).Emit(context.Background(), "x", nil)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "400"), err.Error())
	require.True(t, strings.Contains(err.Error(), "data is required"), err.Error())
}

func TestEmitBestEffort_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, 50*time.Millisecond)
	require.Error(t, c.Emit(context.Background(), "x", map[string]any{}))

	start := time.Now()
	c.EmitBestEffort(context.Background(), "x", map[string]any{})
	require.Less(t, time.Since(start), time.Second)
}
