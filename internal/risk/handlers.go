package risk

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txbuddy/internal/validation"
)

// Handler provides HTTP endpoints for the risk audit trail.
type Handler struct {
	store Store
}

// NewHandler creates a new risk handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up risk routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/risk/:txHash", h.ListAssessments)
}

// ListAssessments handles GET /v1/risk/:txHash
func (h *Handler) ListAssessments(c *gin.Context) {
	hash, err := validation.NormalizeTxHash(c.Param("txHash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_tx_hash",
			"message": "Invalid transaction hash provided",
		})
		return
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	items, err := h.store.ListByTx(c.Request.Context(), hash, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	if items == nil {
		items = []*Assessment{}
	}
	c.JSON(http.StatusOK, gin.H{"assessments": items, "count": len(items)})
}
