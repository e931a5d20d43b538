package analysis

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txbuddy/internal/chain"
	"github.com/mbd888/txbuddy/internal/validation"
)

// Handler exposes on-demand analysis.
type Handler struct {
	pipeline *Pipeline
}

// NewHandler creates a new analysis handler.
func NewHandler(p *Pipeline) *Handler {
	return &Handler{pipeline: p}
}

// RegisterRoutes sets up analysis routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/analyze", h.Analyze)
}

// AnalyzeRequest is the body of POST /v1/analyze.
type AnalyzeRequest struct {
	TxHash    string `json:"txHash" binding:"required"`
	UserLevel int    `json:"userLevel"`
}

// Analyze handles POST /v1/analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "txHash is required",
		})
		return
	}
	hash, err := validation.NormalizeTxHash(req.TxHash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_tx_hash",
			"message": "Invalid transaction hash provided",
		})
		return
	}
	if req.UserLevel == 0 {
		req.UserLevel = 1
	}
	if req.UserLevel < 1 || req.UserLevel > 100 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_user_level",
			"message": "userLevel must be between 1 and 100",
		})
		return
	}

	a, err := h.pipeline.Analyze(c.Request.Context(), hash, req.UserLevel)
	switch {
	case errors.Is(err, chain.ErrTxNotFound), errors.Is(err, chain.ErrReceiptNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "upstream_error",
			"message": "Error analyzing transaction: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, a)
}
