package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"quotelens/internal/bootstrap"
	"quotelens/internal/transport/http/handler"
	"quotelens/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app))
	router.GET("/healthz", healthHandler.Check)

	cfg := app.Config
	services := app.Services
	documentHandler := handler.NewDocumentHandler(services.Ingest, services.Documents, cfg.Ingest.UploadDir, cfg.Ingest.MaxFiles, cfg.Ingest.MaxFileBytes)
	searchHandler := handler.NewSearchHandler(services.Search, cfg.Retrieval.NotFoundRetries, cfg.NotFoundRetryDelay())
	conversationHandler := handler.NewConversationHandler(services.Conversations)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(cfg.Auth.JWTSecret))

	documents := v1.Group("/documents")
	documents.POST("/upload", documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.GET("/:id", documentHandler.Get)
	documents.GET("/:id/quotes", documentHandler.Quotes)
	documents.DELETE("/:id", documentHandler.Delete)

	v1.GET("/quotes/search", searchHandler.Quotes)
	v1.POST("/search", searchHandler.Ask)
	v1.POST("/search/summary", searchHandler.Summary)

	conversations := v1.Group("/conversations")
	conversations.POST("", conversationHandler.Create)
	conversations.GET("", conversationHandler.List)
	conversations.GET("/:id", conversationHandler.Get)
	conversations.GET("/:id/quotes", conversationHandler.Quotes)
	conversations.GET("/:id/status", conversationHandler.Status)
	conversations.DELETE("/:id", conversationHandler.Delete)

	return router
}

func healthChecks(app *bootstrap.App) map[string]handler.CheckFunc {
	checks := map[string]handler.CheckFunc{
		"database": func(ctx context.Context) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		},
		"rabbitmq":    nil,
		"objectstore": nil,
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	if app.ObjectStore != nil {
		checks["objectstore"] = app.ObjectStore.Ping
	}
	return checks
}
