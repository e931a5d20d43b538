package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all txbuddy tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("txbuddy", "1.0.0")
	client := NewClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolMonitorAddress, h.HandleMonitorAddress)
	s.AddTool(ToolStopMonitoring, h.HandleStopMonitoring)
	s.AddTool(ToolMonitoringStatus, h.HandleMonitoringStatus)
	s.AddTool(ToolListMonitored, h.HandleListMonitored)
	s.AddTool(ToolAnalyzeTransaction, h.HandleAnalyzeTransaction)
	s.AddTool(ToolGetProgress, h.HandleGetProgress)

	return s
}
