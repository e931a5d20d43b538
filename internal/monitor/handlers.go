package monitor

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txbuddy/internal/validation"
)

// Handler is the monitoring facade over HTTP.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new monitor handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes sets up monitoring routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/monitor", h.Start)
	r.POST("/stop", h.Stop)
	r.GET("/status/:address", h.Status)
	r.GET("/addresses", h.List)
}

// AddressRequest is the body of /monitor and /stop.
type AddressRequest struct {
	Address string `json:"address"`
}

func bindAddress(c *gin.Context) (string, bool) {
	var req AddressRequest
	_ = c.ShouldBindJSON(&req)
	address, err := validation.NormalizeAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Invalid address provided",
		})
		return "", false
	}
	return address, true
}

// Start handles POST /v1/monitor
func (h *Handler) Start(c *gin.Context) {
	address, ok := bindAddress(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.manager.StartMonitoring(c.Request.Context(), address))
}

// Stop handles POST /v1/stop
func (h *Handler) Stop(c *gin.Context) {
	address, ok := bindAddress(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.manager.StopMonitoring(c.Request.Context(), address))
}

// Status handles GET /v1/status/:address
func (h *Handler) Status(c *gin.Context) {
	address, err := validation.NormalizeAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Invalid address provided",
		})
		return
	}
	s, err := h.manager.GetStatus(address)
	if errors.Is(err, ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Address not found",
		})
		return
	}
	c.JSON(http.StatusOK, s)
}

// List handles GET /v1/addresses
func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"addresses": h.manager.ListActive()})
}
