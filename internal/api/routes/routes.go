// internal/api/routes/routes.go
package routes

import (
	"net/http"
	"time"

	"parknet-api-server/config"
	"parknet-api-server/internal/api/handlers"
	"parknet-api-server/internal/api/middleware"
	"parknet-api-server/internal/auth"
	"parknet-api-server/internal/parking"
	"parknet-api-server/internal/socket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps is everything the router hands to its handlers.
type Deps struct {
	Config     config.Config
	Logger     *zap.Logger
	Verifier   *auth.Verifier
	Registry   *parking.Registry
	Holds      *parking.HoldManager
	Hub        *socket.Hub
	Facilities handlers.FacilityStore
	Feedbacks  handlers.FeedbackStore
	History    handlers.EventHistory
	Uploader   handlers.ImageUploader
	Limiter    *middleware.LimiterStore
	Metrics    http.Handler
}

// SetupRouter wires the public, authenticated and admin route groups.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(d.Logger))
	router.Use(middleware.RequestLogger(d.Logger))
	router.Use(cors.New(corsConfig(d.Config.Server.CORSOrigins)))

	facilityHandler := &handlers.FacilityHandler{Registry: d.Registry, Store: d.Facilities, Uploader: d.Uploader, Logger: d.Logger}
	holdHandler := &handlers.HoldHandler{Holds: d.Holds}
	feedbackHandler := &handlers.FeedbackHandler{Store: d.Feedbacks}
	eventHandler := &handlers.EventHandler{History: d.History}
	webSocketHandler := &handlers.WebSocketHandler{
		Hub:      d.Hub,
		Registry: d.Registry,
		Upgrader: handlers.NewUpgrader(d.Config.Server.CORSOrigins),
		Logger:   d.Logger,
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	apiV1 := router.Group("/api/v1")
	{
		// === Public ===
		apiV1.GET("/facilities", facilityHandler.GetAllFacilities)
		apiV1.GET("/facilities/:id", facilityHandler.GetFacilityByID)
		apiV1.GET("/facilities/:id/snapshot", facilityHandler.GetSnapshot)
		apiV1.POST("/feedbacks", feedbackHandler.CreateFeedback)

		authenticate := middleware.Authenticate(d.Verifier)
		adminOnly := middleware.Authorize(auth.RoleAdmin)

		// === Signed-in users ===
		members := apiV1.Group("/")
		members.Use(authenticate)
		members.Use(middleware.Authorize(auth.RoleUser, auth.RoleAdmin))
		{
			members.GET("/facilities/:id/ws", webSocketHandler.ServeWs)

			holds := members.Group("/holds")
			{
				holds.POST("", middleware.RateLimit(d.Limiter), holdHandler.RequestHold)
				holds.GET("/mine", holdHandler.GetMyHolds)
				holds.GET("/:id", holdHandler.GetHold)
				holds.POST("/:id/extend", holdHandler.ExtendHold)
				holds.POST("/:id/arrive", holdHandler.ConfirmArrival)
				holds.DELETE("/:id", holdHandler.ReleaseHold)
			}

			feedbacks := members.Group("/feedbacks")
			feedbacks.Use(adminOnly)
			{
				feedbacks.GET("", feedbackHandler.GetAllFeedbacks)
				feedbacks.GET("/:id", feedbackHandler.GetFeedbackByID)
				feedbacks.PUT("/:id", feedbackHandler.UpdateFeedback)
				feedbacks.DELETE("/:id", feedbackHandler.DeleteFeedback)
			}
		}

		// === Admin dashboard ===
		admin := apiV1.Group("/admin")
		admin.Use(authenticate)
		admin.Use(adminOnly)
		{
			facilities := admin.Group("/facilities")
			{
				facilities.POST("", facilityHandler.CreateFacility)
				facilities.PUT("/:id", facilityHandler.UpdateFacility)
				facilities.POST("/:id/slots", facilityHandler.AddSlots)
				facilities.PUT("/:id/slots/:number/occupancy", facilityHandler.SetOccupancy)
				facilities.POST("/:id/image", facilityHandler.UploadImage)
				facilities.GET("/:id/events", eventHandler.GetFacilityEvents)
			}
			admin.GET("/holds", holdHandler.GetActiveHolds)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
