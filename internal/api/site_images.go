package api

import (
	"net/http"

	"github.com/cozy-creator/image-ingest/internal/app"
	"github.com/cozy-creator/image-ingest/internal/services/ingest"
	"github.com/gin-gonic/gin"
)

type siteImageResponse struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

func UploadSiteImage(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	file, err := readUploadedFile(c, app.Config().Upload.MaxFileSize)
	if err != nil {
		respondError(c, err)
		return
	}

	image, err := app.Ingest.UploadSiteImage(c.Request.Context(), ingest.SiteUpload{
		Slot:        c.PostForm("type"),
		ContentType: file.contentType,
		Size:        file.size,
		Data:        file.data,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, siteImageResponse{URL: image.Url, Type: string(image.Slot)}, "site image updated")
}

func GetSiteImage(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	image, err := app.Ingest.GetSiteImage(c.Request.Context(), c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, siteImageResponse{URL: image.Url, Type: string(image.Slot)}, "")
}
