package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/txbuddy/internal/analysis"
	"github.com/mbd888/txbuddy/internal/monitor"
	"github.com/mbd888/txbuddy/internal/progress"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleMonitorAddress starts a monitoring session.
func (h *Handlers) HandleMonitorAddress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.StartMonitoring(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start monitoring: %v", err)), nil
	}
	return facadeResult(raw)
}

// HandleStopMonitoring stops a monitoring session.
func (h *Handlers) HandleStopMonitoring(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.StopMonitoring(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to stop monitoring: %v", err)), nil
	}
	return facadeResult(raw)
}

// HandleMonitoringStatus shows one session.
func (h *Handlers) HandleMonitoringStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.GetStatus(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get status: %v", err)), nil
	}

	text, err := formatSession(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse status: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListMonitored lists active sessions.
func (h *Handlers) HandleListMonitored(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListMonitored(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list addresses: %v", err)), nil
	}

	text, err := formatSessionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse addresses: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleAnalyzeTransaction runs an on-demand analysis.
func (h *Handlers) HandleAnalyzeTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	txHash := req.GetString("tx_hash", "")
	if txHash == "" {
		return mcp.NewToolResultError("tx_hash is required"), nil
	}
	level := int(req.GetFloat("user_level", 1))
	if level < 1 || level > progress.MaxLevel {
		return mcp.NewToolResultError(fmt.Sprintf("user_level must be between 1 and %d", progress.MaxLevel)), nil
	}

	raw, err := h.client.Analyze(ctx, txHash, level)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	text, err := formatAnalysis(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetProgress shows XP, level and achievements.
func (h *Handlers) HandleGetProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.GetProgress(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get progress: %v", err)), nil
	}

	text, err := formatProgress(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse progress: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// --- formatting ---

// facadeResult maps a start/stop answer to a tool result. An unsuccessful
// answer (already monitored, not monitored) is reported as a tool error.
func facadeResult(raw json.RawMessage) (*mcp.CallToolResult, error) {
	var res monitor.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}
	if !res.Success {
		return mcp.NewToolResultError(res.Message), nil
	}
	return mcp.NewToolResultText(res.Message), nil
}

func formatSession(raw json.RawMessage) (string, error) {
	var s monitor.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	state := "stopped"
	if s.IsActive {
		state = "active"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Address: %s\n", s.Address)
	fmt.Fprintf(&sb, "Status: %s\n", state)
	fmt.Fprintf(&sb, "Last checked block: %d\n", s.LastCheckedBlock)
	fmt.Fprintf(&sb, "Transactions in analysis: %d\n", s.PendingTransactions)
	if !s.LastUpdate.IsZero() {
		fmt.Fprintf(&sb, "Last update: %s\n", s.LastUpdate.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return sb.String(), nil
}

func formatSessionList(raw json.RawMessage) (string, error) {
	var body struct {
		Addresses []monitor.Session `json:"addresses"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", err
	}
	if len(body.Addresses) == 0 {
		return "No addresses are being monitored.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Monitoring %d address(es):\n\n", len(body.Addresses))
	for i, s := range body.Addresses {
		fmt.Fprintf(&sb, "%d. %s (block %d", i+1, s.Address, s.LastCheckedBlock)
		if s.PendingTransactions > 0 {
			fmt.Fprintf(&sb, ", %d in analysis", s.PendingTransactions)
		}
		sb.WriteString(")\n")
	}
	return sb.String(), nil
}

func formatAnalysis(raw json.RawMessage) (string, error) {
	var a analysis.Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return "", err
	}
	if a.Report != "" {
		var sb strings.Builder
		sb.WriteString(a.Report)
		if a.Record != nil {
			fmt.Fprintf(&sb, "\n\nType: %s\nComplexity: %d/6", a.Record.Type, a.Record.Complexity)
		}
		return sb.String(), nil
	}
	return formatJSON(raw), nil
}

func formatProgress(raw json.RawMessage) (string, error) {
	var p progress.UserProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Address: %s\n", p.Address)
	fmt.Fprintf(&sb, "Level: %d/%d\n", p.Level, progress.MaxLevel)
	fmt.Fprintf(&sb, "XP: %d", p.XP)
	if p.Level < progress.MaxLevel {
		fmt.Fprintf(&sb, " (next level at %d)", progress.XPForLevel(p.Level+1))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Transactions analyzed: %d\n", p.TransactionsAnalyzed)

	if len(p.Achievements) == 0 {
		sb.WriteString("Achievements: none yet\n")
		return sb.String(), nil
	}
	fmt.Fprintf(&sb, "Achievements (%d):\n", len(p.Achievements))
	for _, a := range p.Achievements {
		fmt.Fprintf(&sb, "  - %s: %s\n", a.Name, a.Description)
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}
