package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cozy-creator/image-ingest/internal/app"
	"github.com/cozy-creator/image-ingest/internal/services/ingest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func UploadProductImage(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	file, err := readUploadedFile(c, app.Config().Upload.MaxFileSize)
	if err != nil {
		respondError(c, err)
		return
	}

	productID, ok := parseProductID(c, c.PostForm("productId"))
	if !ok {
		return
	}

	upload := ingest.ProductUpload{
		ProductID:   productID,
		ContentType: file.contentType,
		Size:        file.size,
		Data:        file.data,
	}

	if value := c.PostForm("imageIndex"); value != "" {
		index, err := strconv.Atoi(value)
		if err != nil || index < 0 {
			respondError(c, validationError("imageIndex must be a non-negative integer"))
			return
		}
		upload.ImageIndex = &index
	}

	if value := c.PostForm("isPrimary"); value != "" {
		isPrimary, err := strconv.ParseBool(strings.ToLower(value))
		if err != nil {
			respondError(c, validationError("isPrimary must be a boolean"))
			return
		}
		upload.IsPrimary = isPrimary
	}

	result, err := app.Ingest.UploadProductImage(c.Request.Context(), upload)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "image uploaded"
	if result.Deduplicated {
		message = "image uploaded, existing variants reused"
	}
	respond(c, http.StatusCreated, result, message)
}

func ListGallery(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	page, err := app.Ingest.Gallery(c.Request.Context(), ingest.GalleryQuery{
		Filter:    c.Query("filter"),
		ProductID: c.Query("productId"),
		Page:      c.Query("page"),
		Limit:     c.Query("limit"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"images":     page.Images,
		"pagination": page.Pagination,
	})
}

func DeleteImage(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	groupKey, err := uuid.Parse(c.Param("groupKey"))
	if err != nil {
		respondError(c, validationError("groupKey must be a valid UUID"))
		return
	}

	if err := app.Ingest.DeleteImage(c.Request.Context(), groupKey); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, nil, "image deleted")
}
