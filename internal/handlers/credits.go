package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"imageforge-backend/internal/models"
)

type BalanceReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
}

type CreditsHandler struct {
	ledger BalanceReader
}

func NewCreditsHandler(ledger BalanceReader) *CreditsHandler {
	return &CreditsHandler{ledger: ledger}
}

// GetCredits godoc
// @Summary     Get credit balance
// @Description Returns the caller's remaining credits
// @Tags        credits
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.CreditsResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /credits [get]
func (h *CreditsHandler) GetCredits(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "failed to load credits",
			Code:  "internal_error",
		})
		return
	}

	c.JSON(http.StatusOK, models.CreditsResponse{Balance: balance})
}
