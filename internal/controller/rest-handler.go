package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	roomservice "github.com/sharetube/officedj/internal/service/room"
)

type issueGuestTokenInput struct {
	Name string `json:"name" validate:"required,max=32"`
}

func (c controller) issueGuestToken(w http.ResponseWriter, r *http.Request) {
	var input issueGuestTokenInput
	if err := readJSON(w, r, &input); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, Envelope{"error": err.Error()})
		return
	}
	input.Name = strings.TrimSpace(input.Name)

	if validationErrors, ok := c.validate.Validate(input); !ok {
		writeJSON(w, http.StatusBadRequest, Envelope{"errors": validationErrors})
		return
	}

	token, user, err := c.roomService.IssueGuestToken(input.Name)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{"data": map[string]any{
		"auth_token": token,
		"user":       user,
	}})
}

type createRoomInput struct {
	Name  string `json:"name" validate:"required,max=64"`
	Reuse bool   `json:"reuse"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	var input createRoomInput
	if err := readJSON(w, r, &input); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, Envelope{"error": err.Error()})
		return
	}
	input.Name = strings.TrimSpace(input.Name)

	if validationErrors, ok := c.validate.Validate(input); !ok {
		writeJSON(w, http.StatusBadRequest, Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.roomService.CreateRoom(r.Context(), &roomservice.CreateRoomParams{
		Name:  input.Name,
		User:  c.getUserFromCtx(r.Context()),
		Reuse: input.Reuse,
	})
	if err != nil {
		if errors.Is(err, roomservice.ErrRoomNameTaken) {
			writeJSON(w, http.StatusConflict, Envelope{"error": err.Error(), "room_id": resp.RoomID})
			return
		}
		c.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}

	writeJSON(w, status, Envelope{"data": resp})
}

func (c controller) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := c.roomService.ListRooms(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{"data": rooms})
}

func (c controller) getRoomState(w http.ResponseWriter, r *http.Request) {
	roomId := strings.ToUpper(chi.URLParam(r, "room-id"))

	state, err := c.roomService.GetRoomState(r.Context(), roomId, c.getUserFromCtx(r.Context()).ID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{"data": state})
}

func (c controller) getVersion(w http.ResponseWriter, r *http.Request) {
	version, err := c.roomService.GetVersion(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{"data": map[string]any{"version": version}})
}

func (c controller) getLikes(w http.ResponseWriter, r *http.Request) {
	videoId := chi.URLParam(r, "video-id")

	l, err := c.roomService.GetLikes(r.Context(), videoId, c.getUserFromCtx(r.Context()).ID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{"data": l})
}

func (c controller) topSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := c.roomService.TopSongs(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{"data": songs})
}
