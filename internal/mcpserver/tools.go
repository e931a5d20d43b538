package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the txbuddy MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolMonitorAddress = mcp.NewTool("monitor_address",
	mcp.WithDescription(
		"Start watching a Base address for new transactions. "+
			"Every new transaction is risk-checked and explained automatically, "+
			"and the address earns XP for each analysis."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The 0x-prefixed address to watch (e.g. '0x1234...')")),
)

var ToolStopMonitoring = mcp.NewTool("stop_monitoring",
	mcp.WithDescription(
		"Stop watching an address. Analyses already in progress still finish."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The address to stop watching")),
)

var ToolMonitoringStatus = mcp.NewTool("monitoring_status",
	mcp.WithDescription(
		"Show the monitoring session for an address: whether it is active, "+
			"the last block checked, and how many transactions are being analyzed right now."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The watched address")),
)

var ToolListMonitored = mcp.NewTool("list_monitored",
	mcp.WithDescription(
		"List every address that is currently being monitored."),
)

var ToolAnalyzeTransaction = mcp.NewTool("analyze_transaction",
	mcp.WithDescription(
		"Explain a single transaction and assess its risk without watching an address. "+
			"The explanation is tailored to the reader's experience level."),
	mcp.WithString("tx_hash",
		mcp.Required(),
		mcp.Description("The 0x-prefixed transaction hash")),
	mcp.WithNumber("user_level",
		mcp.Description("Reader experience level from 1 (beginner) to 100 (expert). Defaults to 1.")),
)

var ToolGetProgress = mcp.NewTool("get_progress",
	mcp.WithDescription(
		"Get the XP, level, and unlocked achievements of an address."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The address whose progress to show")),
)
