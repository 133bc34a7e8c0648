package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/domain"
	"github.com/example/neuroscan/internal/logging"
)

// multipartOverhead leaves room for boundaries and part headers on top of
// the file itself.
const multipartOverhead = 64 << 10

func (h *Handler) predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image exceeds the maximum upload size"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
		return
	}
	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
		return
	}
	if file.Size > h.cfg.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image exceeds the maximum upload size"})
		return
	}
	if !acceptableContentType(file.Header.Get("Content-Type")) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported image format"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.cfg.MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read image"})
		return
	}

	result, err := h.predictor.Predict(c.Request.Context(), data)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEmptyUpload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
		return
	default:
		logging.WithOperation(h.logger, "handlers.predict", logging.RequestIDFrom(c.Request.Context())).
			Error("prediction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error making prediction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tumor_type":     result.Label.String(),
		"confidence":     float32(result.Confidence),
		"gemini_summary": result.Summary,
	})
}

// acceptableContentType admits image types and the generic types browsers
// and curl send when they cannot tell.
func acceptableContentType(value string) bool {
	if value == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") || mediaType == "application/octet-stream"
}
