package compartment

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/putto11262002/compartment/core"
	"github.com/putto11262002/compartment/pkg/router"
)

// RoomHandler exposes read only diagnostics over the live rooms.
type RoomHandler struct {
	registry *core.RoomRegistry
}

func NewRoomHandler(registry *core.RoomRegistry) *RoomHandler {
	return &RoomHandler{registry: registry}
}

type ListRoomsResponse struct {
	Rooms []core.RoomInfo `json:"rooms"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

func (h *RoomHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	rooms := h.registry.Rooms()
	if rooms == nil {
		rooms = []core.RoomInfo{}
	}
	return router.JSON(w, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}

func (h *RoomHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) error {
	roomID := chi.URLParam(r, "roomID")
	info, ok := h.registry.Lookup(roomID)
	if !ok {
		return fmt.Errorf("room %q: %w", roomID, core.ErrRoomNotFound)
	}
	return router.JSON(w, http.StatusOK, info)
}

func (h *RoomHandler) HealthHandler(w http.ResponseWriter, r *http.Request) error {
	return router.JSON(w, http.StatusOK, HealthResponse{Status: "ok", Rooms: h.registry.Len()})
}
