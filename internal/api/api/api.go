package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"github.com/vilanovax/bizbuzz/cmd/middleware"
	"github.com/vilanovax/bizbuzz/internal/service"
)

type Routers struct {
	Service   service.Service
	JWTSecret string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.GET("/events/:id", r.Service.GetEventInfo)

	register := apiGroup.Group("/events")
	register.Use(middleware.OptionalAuth(r.JWTSecret))
	register.POST("/:id/register", r.Service.Register)
	register.POST("/:id/cancel", r.Service.CancelRegistration)

	apiGroup.GET("/guest/registration", r.Service.GuestRegistration)

	organizer := apiGroup.Group("/events")
	organizer.Use(middleware.RequireAuth(r.JWTSecret))
	organizer.GET("/:id/attendees", r.Service.ListAttendees)
	organizer.PATCH("/:id/attendees/:attendeeID", r.Service.UpdateAttendee)
	organizer.DELETE("/:id/attendees/:attendeeID", r.Service.RemoveAttendee)
	organizer.POST("/:id/promote", r.Service.PromoteWaitlist)

	return app
}
