package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/cozy-creator/image-ingest/internal/services/ingest"
	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for form fields and part headers on top of the
// file itself.
const multipartOverhead = 1 << 20

type uploadedFile struct {
	contentType string
	size        int64
	data        []byte
}

// readUploadedFile reads the "file" part. A missing part yields a
// no_file_provided error; a body larger than maxSize yields a validation error.
func readUploadedFile(c *gin.Context, maxSize int64) (*uploadedFile, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return nil, validationError("file exceeds the maximum upload size")
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return nil, &ingest.PipelineError{Kind: ingest.KindNoFile, Stage: ingest.StageReceived, Message: "no file provided"}
		default:
			return nil, validationError("failed to parse multipart body")
		}
	}

	data, err := readPart(header)
	if err != nil {
		return nil, validationError("failed to read uploaded file")
	}

	return &uploadedFile{
		contentType: header.Header.Get("Content-Type"),
		size:        header.Size,
		data:        data,
	}, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
