package commands

import (
	"context"
	"fmt"
	"io"
	"socketd/internal/config"
	"socketd/internal/notify"
	"strings"

	"github.com/goccy/go-json"
)

// Emit sends one event through a running server's emit-event endpoint.
// data must be a JSON object; an empty string sends {}.
func Emit(ctx context.Context, out io.Writer, cfg *config.Config, event, data string) error {
	if strings.TrimSpace(data) == "" {
		data = "{}"
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil || payload == nil {
		return fmt.Errorf("data must be a JSON object: %q", data)
	}

	client := notify.New(cfg.Notify.URL, cfg.Notify.Timeout)
	if err := client.Emit(ctx, event, payload); err != nil {
		return fmt.Errorf("%w. Is the server running?", err)
	}

	scope := "everyone"
	if room, ok := payload["roomId"]; ok {
		scope = fmt.Sprintf("room %v", room)
	}
	_, _ = fmt.Fprintf(out, "Event %s sent to %s\n", event, scope)
	return nil
}
