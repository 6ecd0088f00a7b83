package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"xlsmconv/internal/convert"
)

// convertRequest accepts both field spellings that deployments have used for
// the source reference. Exactly one is required.
type convertRequest struct {
	XLSMURL string `json:"xlsm_url"`
	URL     string `json:"url"`
}

type convertResponse struct {
	Status       string `json:"status"`
	ConvertedURL string `json:"converted_url"`
}

func (s *Server) handleConvert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}
	sourceRef := req.XLSMURL
	if sourceRef == "" {
		sourceRef = req.URL
	}
	if sourceRef == "" {
		c.String(http.StatusBadRequest, "Invalid or missing 'xlsm_url'. Must reference a %s file.", convert.SourceExtension)
		return
	}

	result, err := s.pipeline.Convert(c.Request.Context(), sourceRef)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, convertResponse{
		Status:       "success",
		ConvertedURL: result.Link.URL,
	})
}

// writeError maps a pipeline failure to its caller-visible status with a
// plain-text human-readable message. Unexpected error types still produce a
// non-empty 500 body.
func (s *Server) writeError(c *gin.Context, err error) {
	var cerr *convert.Error
	if errors.As(err, &cerr) {
		c.String(cerr.HTTPStatus(), "Conversion failed: %v", cerr)
		return
	}
	c.String(http.StatusInternalServerError, "Internal error: %v", err)
}
