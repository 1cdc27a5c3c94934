package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"socketd/internal/config"
	"socketd/internal/logging"
	"testing"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func TestEmit(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Notify.URL = srv.URL

	var out bytes.Buffer
	if err := Emit(context.Background(), &out, cfg, "roomParticipantLeft", `{"roomId":"room1"}`); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if got := out.String(); got != "Event roomParticipantLeft sent to room room1\n" {
		t.Errorf("unexpected output %q", got)
	}
	if string(body) != `{"event":"roomParticipantLeft","data":{"roomId":"room1"}}` {
		t.Errorf("unexpected request body %s", body)
	}
}

func TestEmit_RejectsNonObject(t *testing.T) {
	cfg := &config.Config{}
	cfg.Notify.URL = "http://127.0.0.1:1"

	for _, data := range []string{"[1]", "nope", "null"} {
		if err := Emit(context.Background(), io.Discard, cfg, "x", data); err == nil {
			t.Errorf("expected error for data %q", data)
		}
	}
}
