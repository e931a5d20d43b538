package explanations

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txbuddy/internal/idgen"
	"github.com/mbd888/txbuddy/internal/pagination"
	"github.com/mbd888/txbuddy/internal/risk"
	"github.com/mbd888/txbuddy/internal/validation"
)

// Handler provides HTTP endpoints for explanation records.
type Handler struct {
	store Store
}

// NewHandler creates a new explanations handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up explanation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/explanations", h.CreateExplanation)
	r.GET("/explanations/:txHash", h.ListByTx)
	r.GET("/addresses/:address/explanations", h.ListByAddress)
}

// CreateExplanationRequest is the body of POST /v1/explanations.
type CreateExplanationRequest struct {
	TxHash      string       `json:"txHash" binding:"required"`
	Address     string       `json:"address"`
	UserLevel   int          `json:"userLevel" binding:"required"`
	Explanation string       `json:"explanation" binding:"required"`
	Risk        risk.Verdict `json:"riskAssessment"`
	Complexity  int          `json:"complexity"`
	Type        string       `json:"type"`
}

// CreateExplanation handles POST /v1/explanations
func (h *Handler) CreateExplanation(c *gin.Context) {
	var req CreateExplanationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "txHash, userLevel and explanation are required",
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
	address := ""
	if req.Address != "" {
		if address, err = validation.NormalizeAddress(req.Address); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "Invalid address provided",
			})
			return
		}
	}
	if req.Risk.Level == "" {
		req.Risk = risk.Fallback()
	}

	rec := &Record{
		ID:          idgen.WithPrefix("exp_"),
		TxHash:      hash,
		Address:     address,
		UserLevel:   req.UserLevel,
		Explanation: req.Explanation,
		Risk:        req.Risk,
		Complexity:  req.Complexity,
		Type:        req.Type,
		CreatedAt:   time.Now(),
	}
	if err := h.store.Append(c.Request.Context(), rec); err != nil {
		if errors.Is(err, ErrInvalidRecord) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// ListByTx handles GET /v1/explanations/:txHash
func (h *Handler) ListByTx(c *gin.Context) {
	hash, err := validation.NormalizeTxHash(c.Param("txHash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_tx_hash",
			"message": "Invalid transaction hash provided",
		})
		return
	}
	var f Filter
	if l := c.Query("userLevel"); l != "" {
		level, err := strconv.Atoi(l)
		if err != nil || level < 1 || level > 100 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_user_level",
				"message": "userLevel must be between 1 and 100",
			})
			return
		}
		f.UserLevel = level
	}
	f.Limit = queryLimit(c)

	items, err := h.store.ListByTx(c.Request.Context(), hash, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	if len(items) == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": ErrExplanationNotFound.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"explanations": items, "count": len(items)})
}

// ListByAddress handles GET /v1/addresses/:address/explanations
func (h *Handler) ListByAddress(c *gin.Context) {
	address, err := validation.NormalizeAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Invalid address provided",
		})
		return
	}
	before, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": err.Error(),
		})
		return
	}
	limit := queryLimit(c)

	items, err := h.store.ListByAddress(c.Request.Context(), address, limit+1, before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	items, next, hasMore := pagination.ComputePage(items, limit, func(r *Record) (time.Time, string) {
		return r.CreatedAt, r.ID
	})
	resp := gin.H{"explanations": items, "count": len(items), "hasMore": hasMore}
	if hasMore {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func queryLimit(c *gin.Context) int {
	limit := 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return limit
}
