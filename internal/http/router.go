// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"metro/internal/http/handlers"
	"metro/internal/http/middleware"
	"metro/internal/infra"
	"metro/internal/modules/catalog"
	"metro/internal/modules/trip"
)

type RouterConfig struct {
	Catalog     *catalog.Service
	Trips       *trip.Service
	Verifier    infra.TokenVerifier
	Log         *zap.Logger
	CORSOrigins []string
	Currency    string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(cfg.Log),
		middleware.Logging(cfg.Log),
		middleware.CORS(cfg.CORSOrigins),
	)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	routeHandler := handlers.NewRouteHandler(cfg.Catalog, cfg.Trips)
	tripHandler := handlers.NewTripHandler(cfg.Trips, cfg.Currency, cfg.Log)

	public := r.Group("/api", middleware.OptionalAuth(cfg.Verifier))
	public.GET("/routes", routeHandler.Search)
	public.GET("/routes/:id", routeHandler.Get)

	api := r.Group("/api", middleware.Auth(cfg.Verifier))
	api.POST("/routes/:id/trip", routeHandler.AddToDraft)
	api.DELETE("/routes/:id/trip", routeHandler.RemoveFromDraft)
	api.PUT("/routes/:id/trip", routeHandler.UpdateInDraft)

	api.POST("/trips/draft", tripHandler.Draft)
	api.GET("/trips", tripHandler.List)
	api.GET("/trips/:id", tripHandler.Get)
	api.PUT("/trips/:id", tripHandler.Update)
	api.DELETE("/trips/:id", tripHandler.Delete)
	api.POST("/trips/:id/form", tripHandler.Form)
	api.POST("/trips/:id/moderate", tripHandler.Moderate)
	api.GET("/trips/:id/summary.pdf", tripHandler.SummaryPDF)

	return r
}
