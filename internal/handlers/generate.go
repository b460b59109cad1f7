package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"imageforge-backend/internal/generation"
	"imageforge-backend/internal/identity"
	"imageforge-backend/internal/middleware"
	"imageforge-backend/internal/models"
)

type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

type GenerateHandler struct {
	generator Generator
}

func NewGenerateHandler(generator Generator) *GenerateHandler {
	return &GenerateHandler{generator: generator}
}

// GenerateImage godoc
// @Summary     Generate an image
// @Description Spends credits to generate one image from a prompt and stores it in the caller's gallery. Blocks until the provider job finishes or times out.
// @Tags        images
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.GenerateImageRequest true "Prompt"
// @Success     200 {object} models.GenerateImageResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     402 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /images/generate [post]
func (h *GenerateHandler) GenerateImage(c *gin.Context) {
	var req models.GenerateImageRequest
	// A malformed body is reported as a missing prompt, after authentication.
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Prompt = ""
	}

	result, err := h.generator.Generate(c.Request.Context(), generation.Request{
		Credential: identity.BearerToken(c.GetHeader("Authorization")),
		Prompt:     req.Prompt,
		RequestID:  c.GetString(middleware.RequestIDHeader),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.GenerateImageResponse{
		ImageURL: result.Image.ImageURL,
		ImageID:  result.Image.ID.String(),
	})
}

func writeError(c *gin.Context, err error) {
	genErr := generation.AsError(err)
	c.JSON(genErr.Status, models.ErrorResponse{
		Error:     genErr.Message,
		Code:      string(genErr.Code),
		Retryable: genErr.Retryable,
	})
}
