package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sharetube/officedj/internal/domain"
	roomservice "github.com/sharetube/officedj/internal/service/room"
)

const (
	authTokenQueryParam = "auth-token"
	maxBodyBytes        = 1 << 20
)

type Envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return nil
}

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		c.logger.ErrorContext(r.Context(), "request failed", "error", err)
		writeJSON(w, status, Envelope{"error": "internal error"})
		return
	}

	c.logger.DebugContext(r.Context(), "request rejected", "error", err)
	writeJSON(w, status, Envelope{"error": err.Error()})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, roomservice.ErrRoomNotFound),
		errors.Is(err, roomservice.ErrEntryNotFound),
		errors.Is(err, roomservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, roomservice.ErrRoomNameTaken):
		return http.StatusConflict
	case errors.Is(err, roomservice.ErrPermissionDenied),
		errors.Is(err, roomservice.ErrNotLeader):
		return http.StatusForbidden
	case errors.Is(err, roomservice.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, roomservice.ErrInvalidCommand),
		errors.Is(err, roomservice.ErrQueueLimitReached),
		errors.Is(err, roomservice.ErrNothingPlaying):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// getUser reads the identity from the bearer header or the auth-token query
// parameter. Browsers cannot set headers on websocket upgrades.
func (c controller) getUser(r *http.Request) (domain.User, error) {
	token := r.URL.Query().Get(authTokenQueryParam)
	if h := r.Header.Get("Authorization"); h != "" {
		token = strings.TrimPrefix(h, "Bearer ")
	}

	if token == "" {
		return domain.User{}, roomservice.ErrInvalidToken
	}

	return c.roomService.ParseJWT(token)
}

func hasToken(r *http.Request) bool {
	return r.URL.Query().Get(authTokenQueryParam) != "" || r.Header.Get("Authorization") != ""
}

func (c controller) generateTimeBasedId() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
