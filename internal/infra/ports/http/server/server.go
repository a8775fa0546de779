package server

import (
	"github.com/labstack/echo/v4"

	"github.com/S4tyendra/public-vc/internal/infra/ports/http/handlers"
	"github.com/S4tyendra/public-vc/internal/infra/ports/http/middleware"
)

func New(
	userHandler *handlers.UserHandler,
	roomHandler *handlers.RoomHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		api.POST("/user", userHandler.Create)
		api.GET("/user/:id", userHandler.Get)

		api.GET("/rooms", roomHandler.ListPublic)
		api.POST("/room", roomHandler.Create)
		api.GET("/room/:id", roomHandler.Get)
		api.GET("/room/:id/members", roomHandler.Members)
		api.POST("/room/:id/mute", roomHandler.Mute)
		api.POST("/room/:id/unmute", roomHandler.Unmute)

		api.GET("/ice", roomHandler.IceServers)
	}

	e.GET("/ws/:roomID", wsHandler.Handle)

	return e
}
