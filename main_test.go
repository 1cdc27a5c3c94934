package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"socketd/internal/auth"
	"socketd/internal/models"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testSecret = "very-secure-test-secret"

// startServer runs the whole process on fixed local ports until the test
// ends.
func startServer(t *testing.T, port int) (apiURL, adminURL string) {
	t.Helper()
	adminAddr := fmt.Sprintf("127.0.0.1:%d", port+1)

	t.Setenv("SOCKET_PORT", fmt.Sprint(port))
	t.Setenv("ADMIN_ADDR", adminAddr)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PRESENCE_DB", filepath.Join(t.TempDir(), "presence.db"))
	t.Setenv("LOG_LEVEL", "disabled")
	t.Setenv("USE_REDIS", "false")
	t.Setenv("CLUSTER_BACKEND", "local")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, nil) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && err != context.Canceled {
				t.Errorf("Server error: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	})

	apiURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	adminURL = "http://" + adminAddr
	waitForServer(t, adminURL+"/healthz", 50)
	return apiURL, adminURL
}

func waitForServer(t *testing.T, urlStr string, retries int) {
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for i := 0; i < retries; i++ {
		resp, err := client.Get(urlStr)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server failed to start at %s after %d retries", urlStr, retries)
}

type socketClient struct {
	t      *testing.T
	conn   *websocket.Conn
	frames chan models.Frame
}

func connect(t *testing.T, apiURL, path string, header http.Header) *socketClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(apiURL, "http")+path, header)
	require.NoError(t, err)
	_ = resp.Body.Close()

	c := &socketClient{t: t, conn: conn, frames: make(chan models.Frame, 64)}
	go func() {
		defer close(c.frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f models.Frame
			if json.Unmarshal(data, &f) == nil {
				c.frames <- f
			}
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *socketClient) send(event string, data any) {
	c.t.Helper()
	frame, err := models.NewFrame(event, data)
	require.NoError(c.t, err)
	raw, err := json.Marshal(frame)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, raw))
}

// sync returns once the server has handled every frame sent so far on
// this connection.
func (c *socketClient) sync() {
	c.t.Helper()
	c.send(models.EventPing, nil)
	c.await(models.EventPong)
}

// await skips frames until event arrives.
func (c *socketClient) await(event string) json.RawMessage {
	c.t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %q", event)
			}
			if f.Event == event {
				return f.Data
			}
		case <-timeout:
			c.t.Fatalf("timed out waiting for %q", event)
		}
	}
}

func (c *socketClient) refute(event string, wait time.Duration) {
	c.t.Helper()
	timeout := time.After(wait)
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				return
			}
			if f.Event == event {
				c.t.Fatalf("unexpected %q: %s", event, f.Data)
			}
		case <-timeout:
			return
		}
	}
}

func postJSON(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(data))
}

func TestIntegration(t *testing.T) {
	apiURL, adminURL := startServer(t, 18731)

	token, err := auth.NewAuthService(context.Background(), testSecret).Mint("alice", time.Hour)
	require.NoError(t, err)

	alice := connect(t, apiURL, "/socket", http.Header{"Authorization": {"Bearer " + token}})
	bob := connect(t, apiURL, "/ws?token=garbage", nil)

	// Presence: alice comes online with her token identity.
	alice.send(models.EventUserOnline, nil)
	var online []string
	require.NoError(t, json.Unmarshal(alice.await(models.EventOnlineUsers), &online))
	require.Equal(t, []string{"alice"}, online)

	bob.send(models.EventUserOnline, "bob")
	bob.await(models.EventOnlineUsers)

	// Basic chat in a room, sender included.
	alice.send(models.EventJoinRoom, "room1")
	alice.sync()
	bob.send(models.EventJoinRoom, "room1")
	alice.await(models.EventUserJoined)

	bob.send(models.EventSendRoomMessage, map[string]any{"chatRoomId": "room1", "sender": "bob", "text": "hello"})
	for _, c := range []*socketClient{alice, bob} {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(c.await(models.EventNewRoomMessage), &msg))
		require.Equal(t, "hello", msg["text"])
	}

	// Injection scoped to room1 only.
	carol := connect(t, apiURL, "/socket", nil)
	status, body := postJSON(t, apiURL+"/emit-event", `{"event":"roomParticipantJoined","data":{"roomId":"room1","participant":"carol"}}`)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"success":true}`, body)

	var notice map[string]any
	require.NoError(t, json.Unmarshal(alice.await(models.EventRoomParticipantJoined), &notice))
	require.Equal(t, "carol", notice["participant"])
	bob.await(models.EventRoomParticipantJoined)
	carol.refute(models.EventRoomParticipantJoined, 300*time.Millisecond)

	status, _ = postJSON(t, apiURL+"/emit-event", `{"event":"x"}`)
	require.Equal(t, http.StatusBadRequest, status)

	// Malformed room message: only the origin hears about it.
	bob.send(models.EventSendRoomMessage, map[string]any{"text": "nowhere"})
	var report models.ErrorEvent
	require.NoError(t, json.Unmarshal(bob.await(models.EventError), &report))
	require.Equal(t, models.EventSendRoomMessage, report.Event)
	alice.refute(models.EventNewRoomMessage, 300*time.Millisecond)

	// Offline broadcast and the persisted last-seen.
	require.NoError(t, bob.conn.Close())
	var change models.StatusChange
	for change.UserID != "bob" || change.Status != models.UserStatusOffline {
		require.NoError(t, json.Unmarshal(alice.await(models.EventUserStatusChange), &change))
	}
	require.NotZero(t, change.LastSeen)

	resp, err := http.Get(adminURL + "/presence/bob")
	require.NoError(t, err)
	var p models.Presence
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	_ = resp.Body.Close()
	require.False(t, p.Online)
	require.Equal(t, change.LastSeen, p.LastSeen)

	resp, err = http.Get(adminURL + "/presence/last-seen")
	require.NoError(t, err)
	var history []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	_ = resp.Body.Close()
	require.Len(t, history, 1)
	require.Equal(t, "bob", history[0]["userId"])

	req, err := http.NewRequest(http.MethodDelete, adminURL+"/presence/bob", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// 404 hardening.
	for _, path := range []string{"/index.php", "/app.js", "/unknown"} {
		resp, err := http.Get(apiURL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp, err = http.Get(adminURL + "/metrics")
	require.NoError(t, err)
	metrics, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Contains(t, string(metrics), "socketd_connections_active")
}

func TestEmitFlag(t *testing.T) {
	apiURL, _ := startServer(t, 18741)
	t.Setenv("EMIT_URL", apiURL)

	listener := connect(t, apiURL, "/socket", nil)
	listener.send(models.EventPing, nil)
	listener.await(models.EventPong)

	err := run(context.Background(), []string{"-emit", "announcement", "-data", `{"text":"maintenance"}`})
	require.NoError(t, err)

	var data map[string]any
	require.NoError(t, json.Unmarshal(listener.await("announcement"), &data))
	require.Equal(t, "maintenance", data["text"])
}
