// Package handlers holds the JSON helpers shared by the HTTP handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/api"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/rs/zerolog"
)

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().
			Err(err).
			Msg("failed to encode response")
	}
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	WriteJSON(w, r, status, api.ErrorResponse{Error: message})
}

// WriteStoreError maps repository sentinels to 404/409 and anything else to a
// logged 500 without internal detail.
func WriteStoreError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrConflict):
		WriteError(w, r, http.StatusConflict, what+" changed state, retry the request")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		WriteError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ParseDate parses an optional YYYY-MM-DD query parameter.
func ParseDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(api.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid '%s' date format. Expected format: YYYY-MM-DD", name)
	}
	return t, nil
}
