package api

import (
	"context"
	"errors"
	"net/http"
	"socketd/internal/content"
	"socketd/internal/logging"
	"socketd/internal/models"
	"socketd/internal/storage"

	"github.com/go-chi/chi/v5"
)

type ConnectionCounter interface {
	Count() int
}

type PresenceReader interface {
	OnlineUsers(ctx context.Context) []string
	Status(ctx context.Context, userID string) (models.Presence, error)
}

// LastSeenLedger is the persisted last-seen history. It is nil when
// PRESENCE_DB is unset.
type LastSeenLedger interface {
	ListLastSeen() ([]storage.DBLastSeen, error)
	Forget(userID string) error
}

type AdminHandler struct {
	connections ConnectionCounter
	presence    PresenceReader
	ledger      LastSeenLedger
}

func NewAdminHandler(connections ConnectionCounter, presence PresenceReader, ledger LastSeenLedger) *AdminHandler {
	return &AdminHandler{connections: connections, presence: presence, ledger: ledger}
}

func (h *AdminHandler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": h.connections.Count(),
	})
}

func (h *AdminHandler) OnlineUsersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.presence.OnlineUsers(r.Context()))
}

func (h *AdminHandler) UserStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := content.ValidateID(userID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	p, err := h.presence.Status(r.Context(), userID)
	if err != nil {
		logging.Error().Err(err).Str("user_id", userID).Msg("failed to read presence")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read presence"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) LastSeenHandler(w http.ResponseWriter, _ *http.Request) {
	if h.ledger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "last-seen ledger disabled"})
		return
	}

	entries, err := h.ledger.ListLastSeen()
	if err != nil {
		logging.Error().Err(err).Msg("failed to list last-seen ledger")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read ledger"})
		return
	}
	if entries == nil {
		entries = []storage.DBLastSeen{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ForgetHandler drops a user from the last-seen ledger.
func (h *AdminHandler) ForgetHandler(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "last-seen ledger disabled"})
		return
	}

	userID := chi.URLParam(r, "userId")
	if err := content.ValidateID(userID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	switch err := h.ledger.Forget(userID); {
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	case err != nil:
		logging.Error().Err(err).Str("user_id", userID).Msg("failed to forget user")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update ledger"})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
