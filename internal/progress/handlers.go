package progress

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txbuddy/internal/validation"
)

// Handler provides HTTP endpoints for user progress.
type Handler struct {
	service *Service
}

// NewHandler creates a new progress handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up progress routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/progress/:address", h.GetProgress)
	r.PUT("/progress/:address", h.PutProgress)
	r.POST("/progress/:address/actions", h.ApplyAction)
	r.GET("/achievements", h.ListAchievements)
}

// GetProgress handles GET /v1/progress/:address
func (h *Handler) GetProgress(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	p, err := h.service.Get(c.Request.Context(), address)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PutProgressRequest replaces stored progress.
type PutProgressRequest struct {
	XP                   uint64     `json:"xp"`
	TransactionsAnalyzed uint64     `json:"transactionsAnalyzed"`
	Achievements         []Unlocked `json:"achievements"`
}

// PutProgress handles PUT /v1/progress/:address
func (h *Handler) PutProgress(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	var req PutProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	for _, a := range req.Achievements {
		if _, known := Lookup(a.ID); !known {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_achievement",
				"message": "Unknown achievement " + a.ID,
			})
			return
		}
	}

	p, err := h.service.Put(c.Request.Context(), &UserProgress{
		Address:              address,
		XP:                   req.XP,
		TransactionsAnalyzed: req.TransactionsAnalyzed,
		Achievements:         req.Achievements,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ApplyActionRequest awards XP for one action.
type ApplyActionRequest struct {
	Action  ActionKind    `json:"action" binding:"required"`
	Context ActionContext `json:"context"`
}

// ApplyAction handles POST /v1/progress/:address/actions
func (h *Handler) ApplyAction(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	var req ApplyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "action is required",
		})
		return
	}

	res, err := h.service.Apply(c.Request.Context(), address, req.Action, req.Context)
	if errors.Is(err, ErrUnknownAction) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown_action",
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListAchievements handles GET /v1/achievements
func (h *Handler) ListAchievements(c *gin.Context) {
	out := make([]gin.H, 0, len(Catalog))
	for _, a := range Catalog {
		out = append(out, gin.H{
			"id":          a.ID,
			"name":        a.Name,
			"description": a.Description,
			"xpReward":    a.XPReward,
		})
	}
	c.JSON(http.StatusOK, gin.H{"achievements": out, "count": len(out)})
}

func addressParam(c *gin.Context) (string, bool) {
	address, err := validation.NormalizeAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Invalid address provided",
		})
		return "", false
	}
	return address, true
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": err.Error(),
	})
}
