package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/S4tyendra/public-vc/internal/application/config"
	"github.com/S4tyendra/public-vc/internal/application/constant"
	"github.com/S4tyendra/public-vc/internal/domain/models"
	"github.com/S4tyendra/public-vc/internal/infra/adapters/postgres/repository"
	"github.com/S4tyendra/public-vc/internal/infra/ports/http/dto"
	"github.com/S4tyendra/public-vc/internal/signal"
)

type RoomHandler struct {
	cfg      *config.Config
	roomRepo repository.RoomRepository
	registry *signal.Registry
	router   *signal.Router
}

func NewRoomHandler(cfg *config.Config, roomRepo repository.RoomRepository, registry *signal.Registry, router *signal.Router) *RoomHandler {
	return &RoomHandler{
		cfg:      cfg,
		roomRepo: roomRepo,
		registry: registry,
		router:   router,
	}
}

func (h *RoomHandler) Create(c echo.Context) error {
	var req dto.CreateRoomRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "cannot parse json"})
	}

	creatorID, err := uuid.Parse(req.CreatorID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid creator id"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}

	room := models.NewRoom(req.Name, req.IsPublic, creatorID)

	if err := h.roomRepo.Create(c.Request().Context(), room); err != nil {
		slog.Error("create room", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not create room"})
	}

	return c.JSON(http.StatusOK, room)
}

// ListPublic serves the lobby: public rooms with live member counts merged
// in from the registry.
func (h *RoomHandler) ListPublic(c echo.Context) error {
	rooms, err := h.roomRepo.GetPublic(c.Request().Context())
	if err != nil {
		slog.Error("get public rooms", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not get rooms"})
	}

	for _, room := range rooms {
		room.MemberCount = h.registry.MemberCount(room.ID.String())
	}

	return c.JSON(http.StatusOK, rooms)
}

func (h *RoomHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "room not found"})
	}

	room, err := h.roomRepo.GetByID(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "room not found"})
	}

	room.MemberCount = h.registry.MemberCount(room.ID.String())

	return c.JSON(http.StatusOK, room)
}

// Members serves the live roster; an idle room yields an empty list.
func (h *RoomHandler) Members(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.Members(c.Param("id")))
}

// Mute and Unmute are the admin control path. Muting is advisory: the
// target's client disables its own track on the broadcast, nothing here can
// stop a remote device from transmitting.
func (h *RoomHandler) Mute(c echo.Context) error {
	return h.setMuted(c, true)
}

func (h *RoomHandler) Unmute(c echo.Context) error {
	return h.setMuted(c, false)
}

func (h *RoomHandler) setMuted(c echo.Context, muted bool) error {
	var req dto.MuteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "cannot parse json"})
	}

	err := h.router.Mute(c.Param("id"), req.AdminUserID, req.TargetUserID, muted)

	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, signal.ErrNotAuthorized):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "not authorized"})
	case errors.Is(err, signal.ErrTargetNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "target not found"})
	case errors.Is(err, signal.ErrRoomNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "room not found"})
	default:
		slog.Error("set muted", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// IceServers hands clients the configured STUN servers.
func (h *RoomHandler) IceServers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cfg.ICEServers())
}
