package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"imageforge-backend/internal/middleware"
	"imageforge-backend/internal/models"
)

const maxGalleryLimit = 100

type ImageLister interface {
	ListImages(ctx context.Context, userID uuid.UUID, limit int) ([]models.GeneratedImage, error)
}

type ImagesHandler struct {
	store ImageLister
}

func NewImagesHandler(store ImageLister) *ImagesHandler {
	return &ImagesHandler{store: store}
}

// ListImages godoc
// @Summary     List generated images
// @Description Returns the caller's generated images, newest first
// @Tags        images
// @Produce     json
// @Security    Bearer
// @Param       limit query int false "Maximum number of images (1-100, default 50)"
// @Success     200 {object} models.ImageListResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /images [get]
func (h *ImagesHandler) ListImages(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxGalleryLimit {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "limit must be between 1 and 100",
				Code:  "invalid_request",
			})
			return
		}
		limit = n
	}

	images, err := h.store.ListImages(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "failed to load images",
			Code:  "internal_error",
		})
		return
	}

	response := models.ImageListResponse{Images: make([]models.ImageResponse, 0, len(images))}
	for _, image := range images {
		response.Images = append(response.Images, models.ImageResponse{
			ID:        image.ID.String(),
			Prompt:    image.Prompt,
			ImageURL:  image.ImageURL,
			CreatedAt: image.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, response)
}

// userIDFromContext reads the id set by AuthMiddleware. It writes the error
// response itself when the id is missing or malformed.
func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.GetString(middleware.UserIDKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found", Code: "unauthorized"})
		return uuid.Nil, false
	}
	return userID, true
}
