package api

import (
	"fmt"
	"net/http"

	"github.com/cozy-creator/image-ingest/internal/app"
	"github.com/cozy-creator/image-ingest/internal/services/ingest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func ListProductImages(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	productID, ok := parseProductID(c, c.Param("productId"))
	if !ok {
		return
	}

	images, err := app.Ingest.ListProductImages(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, images, "")
}

func SetPrimaryImage(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	productID, ok := parseProductID(c, c.Param("productId"))
	if !ok {
		return
	}
	groupKey, err := uuid.Parse(c.Param("groupKey"))
	if err != nil {
		respondError(c, validationError("groupKey must be a valid UUID"))
		return
	}

	image, err := app.Ingest.SetPrimary(c.Request.Context(), productID, groupKey)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, image, "primary image updated")
}

func DeleteProductImages(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	productID, ok := parseProductID(c, c.Param("productId"))
	if !ok {
		return
	}

	deleted, err := app.Ingest.DeleteAllForProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, nil, fmt.Sprintf("deleted %d images", deleted))
}

func ListProductImageCounts(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	counts, err := app.Ingest.ProductImageCounts(c.Request.Context(), ingest.ProductCountsQuery{
		SortBy:        c.Query("sort_by"),
		SortDirection: c.Query("sort_direction"),
		HasImages:     c.Query("has_images"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, counts, "")
}
