package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/S4tyendra/public-vc/internal/application/config"
	"github.com/S4tyendra/public-vc/internal/application/constant"
	"github.com/S4tyendra/public-vc/internal/signal"
)

const (
	wsReadLimit    = 64 * 1024
	wsPongWait     = 60 * time.Second
	closeRoomGone  = 4004
	closeBadParams = 4000
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader
	router   *signal.Router
}

func NewWebSocketHandler(cfg *config.Config, router *signal.Router) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		router: router,
	}
}

// Handle owns one signaling connection end to end: upgrade, attach, read
// loop, detach. Errors here close this connection only.
func (h *WebSocketHandler) Handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("websocket upgrade", slog.Any(constant.Error, err))
		return err
	}

	roomID := c.Param("roomID")
	userID := c.QueryParam("userID")
	userName := c.QueryParam("userName")

	if roomID == "" || userID == "" {
		refuse(ws, closeBadParams, "roomID and userID are required")
		return nil
	}

	conn := signal.NewWSConn(ws)
	go conn.WritePump()

	member, err := h.router.Attach(c.Request().Context(), roomID, userID, userName, conn)
	if err != nil {
		if errors.Is(err, signal.ErrRoomNotFound) {
			refuse(ws, closeRoomGone, "room not found")
		} else {
			slog.Error(
				"attach signaling connection",
				slog.String(constant.RoomID, roomID),
				slog.String(constant.UserID, userID),
				slog.Any(constant.Error, err),
			)
		}

		conn.Close()

		return nil
	}

	defer h.router.Detach(member, conn)

	ws.SetReadLimit(wsReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			h.logReadError(err, member)
			return nil
		}

		env, err := signal.ParseEnvelope(data)
		if err != nil {
			slog.Warn(
				"bad envelope",
				slog.String(constant.UserID, member.UserID),
				slog.Any(constant.Error, err),
			)
			continue
		}

		if err := h.router.Route(member, env); err != nil {
			slog.Error(
				"route envelope",
				slog.String(constant.UserID, member.UserID),
				slog.String(constant.MsgType, env.Type),
				slog.Any(constant.Error, err),
			)
		}
	}
}

func (h *WebSocketHandler) logReadError(err error, member *signal.Member) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("member disconnected", slog.String(constant.UserID, member.UserID))
			return
		}
	}

	slog.Info(
		"websocket read ended",
		slog.String(constant.UserID, member.UserID),
		slog.Any(constant.Error, err),
	)
}

func refuse(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = ws.Close()
}
