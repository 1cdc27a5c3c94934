package logging

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestInit_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(Config{Level: "disabled", Output: io.Discard})

	Info().Str("conn_id", "c1").Msg("connection opened")

	out := buf.String()
	if !strings.Contains(out, `"conn_id":"c1"`) {
		t.Errorf("expected conn_id field, got %q", out)
	}
	if !strings.Contains(out, `"message":"connection opened"`) {
		t.Errorf("expected message field, got %q", out)
	}
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	defer Init(Config{Level: "disabled", Output: io.Discard})

	Info().Msg("hidden")
	Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn line missing")
	}
}

func TestWith_Component(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf})
	defer Init(Config{Level: "disabled", Output: io.Discard})

	l := With("hub")
	l.Info().Msg("x")

	if !strings.Contains(buf.String(), `"component":"hub"`) {
		t.Errorf("component missing: %q", buf.String())
	}
}
