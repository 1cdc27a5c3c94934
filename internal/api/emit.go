package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"socketd/internal/logging"
	"socketd/internal/metrics"
	"socketd/internal/relay"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const maxEmitBody = 1 << 20

type Injector interface {
	Inject(ctx context.Context, event string, data json.RawMessage) error
}

type EmitRequest struct {
	Event string          `json:"event" validate:"required,max=128"`
	Data  json.RawMessage `json:"data" validate:"required,jsonobject"`
}

type API struct {
	injector Injector
	validate *validator.Validate
}

func New(injector Injector) *API {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("jsonobject", isJSONObject)
	return &API{injector: injector, validate: v}
}

func isJSONObject(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(string(fl.Field().Bytes()))
	return strings.HasPrefix(raw, "{")
}

// EmitHandler lets the CRUD layer push an event to connected clients.
func (a *API) EmitHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEmitBody)

	var req EmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.emitFailed(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		a.emitFailed(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if err := a.injector.Inject(r.Context(), req.Event, req.Data); err != nil {
		if isPayloadError(err) {
			a.emitFailed(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.Error().Err(err).Str("event", req.Event).Msg("failed to inject event")
		a.emitFailed(w, http.StatusInternalServerError, "failed to emit event")
		return
	}

	metrics.EmitRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) emitFailed(w http.ResponseWriter, status int, message string) {
	metrics.EmitRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	writeJSON(w, status, map[string]string{"error": message})
}

func isPayloadError(err error) bool {
	return errors.Is(err, relay.ErrMalformedPayload) ||
		errors.Is(err, relay.ErrMissingChannel) ||
		errors.Is(err, relay.ErrMissingSender)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "jsonobject":
		return fmt.Sprintf("%s must be an object", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug().Err(err).Msg("failed to write response")
	}
}
