package server

import (
	"net/http"

	"github.com/cozy-creator/image-ingest/internal/api"
	"github.com/cozy-creator/image-ingest/internal/app"
	"github.com/gin-gonic/gin"
)

func (s *Server) SetupRoutes(app *app.App) {
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		if err := app.DB().PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := s.ginEngine.Group("/api/v1")

	images := apiV1.Group("/images")
	images.POST("/upload", handlerWrapper(app, api.UploadProductImage))
	images.GET("/gallery", handlerWrapper(app, api.ListGallery))
	images.DELETE("/:groupKey", handlerWrapper(app, api.DeleteImage))

	products := apiV1.Group("/products")
	products.GET("/image-counts", handlerWrapper(app, api.ListProductImageCounts))
	products.GET("/:productId/images", handlerWrapper(app, api.ListProductImages))
	products.PUT("/:productId/images/:groupKey/primary", handlerWrapper(app, api.SetPrimaryImage))
	products.DELETE("/:productId/images", handlerWrapper(app, api.DeleteProductImages))

	siteImages := apiV1.Group("/site-images")
	siteImages.POST("/upload", handlerWrapper(app, api.UploadSiteImage))
	siteImages.GET("/:type", handlerWrapper(app, api.GetSiteImage))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
