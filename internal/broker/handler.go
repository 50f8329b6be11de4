package broker

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"room-broker/internal/auth"
	"room-broker/internal/platform/respond"
	"room-broker/internal/session"
	"room-broker/internal/upstream"

	"github.com/go-chi/chi/v5"
)

// expectRequestsKey marks a session that has opened a room page and may
// therefore query the room's webhook and info.
const expectRequestsKey = "expect_requests"

// maxEventBytes bounds emitted event bodies.
const maxEventBytes = 64 << 10

// Handler exposes the room API using go-chi.
type Handler struct {
	svc      *Service
	botToken string
	log      *slog.Logger
}

// NewHandler returns a Handler over svc. Bot-only endpoints require the
// Authorization header to equal botToken.
func NewHandler(svc *Service, botToken string, log *slog.Logger) *Handler {
	return &Handler{svc: svc, botToken: botToken, log: log}
}

// Routes mounts the room endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireBot)
		r.Post("/api/create/room", h.CreateRoom)
		r.Delete("/api/room/{room_id}/delete", h.DeleteRoom)
		r.Post("/api/room/{room_id}/emit", h.EmitEvent)
	})

	r.Get("/api/room/{room_id}/stats", h.RoomStats)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireLogin)
		r.Get("/room/{room_id}", h.RoomPage)
		r.Get("/api/room/{room_id}/webhook", h.RoomWebhook)
		r.Get("/api/room/{room_id}/info", h.RoomInfo)
	})
}

func (h *Handler) requireBot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		if h.botToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.botToken)) != 1 {
			h.log.Info("bot request not authorized",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))
			respond.Wrap(w, http.StatusForbidden, "not authorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// fail maps service errors to responses. notFound is the message used for
// ErrRoomNotFound.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		respond.Wrap(w, http.StatusNotFound, notFound)
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidEvent):
		respond.Wrap(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, upstream.ErrUpstream):
		h.log.Error("upstream call failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		respond.Wrap(w, http.StatusBadGateway, "upstream failure")
	default:
		h.log.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		respond.Wrap(w, http.StatusInternalServerError, "internal error")
	}
}

// CreateRoom handles POST /api/create/room.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid create room body", slog.String("error", err.Error()))
		if errors.Is(err, ErrInvalidRequest) {
			respond.Wrap(w, http.StatusBadRequest, err.Error())
			return
		}
		respond.Wrap(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.svc.CreateRoom(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, "this room does not exist")
		return
	}
	respond.Wrap(w, http.StatusOK, created)
}

// DeleteRoom handles DELETE /api/room/{room_id}/delete.
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := RoomID(chi.URLParam(r, "room_id"))
	if err := h.svc.DeleteRoom(r.Context(), id); err != nil {
		h.fail(w, r, err, "this room does not exist")
		return
	}
	respond.Wrap(w, http.StatusOK, "room deleted")
}

// EmitEvent handles POST /api/room/{room_id}/emit. The body is relayed as-is.
func (h *Handler) EmitEvent(w http.ResponseWriter, r *http.Request) {
	id := RoomID(chi.URLParam(r, "room_id"))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		respond.Wrap(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.EmitEvent(r.Context(), id, body); err != nil {
		h.fail(w, r, err, "this room does not exist")
		return
	}
	respond.Wrap(w, http.StatusOK, "event sent")
}

// RoomStats handles GET /api/room/{room_id}/stats.
func (h *Handler) RoomStats(w http.ResponseWriter, r *http.Request) {
	id := RoomID(chi.URLParam(r, "room_id"))
	stats, err := h.svc.RoomStats(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "this room does not exist")
		return
	}
	respond.Wrap(w, http.StatusOK, stats)
}

// RoomPage handles GET /room/{room_id}. Opening the page allows the session
// to query the room's webhook and info.
func (h *Handler) RoomPage(w http.ResponseWriter, r *http.Request) {
	id := RoomID(chi.URLParam(r, "room_id"))
	room, err := h.svc.Room(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "No room with this id")
		return
	}
	session.FromContext(r.Context()).Set(expectRequestsKey, true)
	respond.Wrap(w, http.StatusOK, room.ID)
}

// roomForSession loads the room for a session that has opened its page.
func (h *Handler) roomForSession(w http.ResponseWriter, r *http.Request) (Room, bool) {
	if !session.FromContext(r.Context()).GetBool(expectRequestsKey) {
		respond.Wrap(w, http.StatusForbidden, "unauthorized")
		return Room{}, false
	}
	room, err := h.svc.Room(r.Context(), RoomID(chi.URLParam(r, "room_id")))
	if err != nil {
		h.fail(w, r, err, "No room with this id")
		return Room{}, false
	}
	return room, true
}

// RoomWebhook handles GET /api/room/{room_id}/webhook. Success is a bare
// {"url": ...} object rather than the status envelope.
func (h *Handler) RoomWebhook(w http.ResponseWriter, r *http.Request) {
	room, ok := h.roomForSession(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"url": room.WebhookURL})
}

// RoomInfo handles GET /api/room/{room_id}/info. Success is a bare RoomInfo.
func (h *Handler) RoomInfo(w http.ResponseWriter, r *http.Request) {
	room, ok := h.roomForSession(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, RoomInfo{OwnerName: room.OwnerName, StreamName: room.StreamName})
}
