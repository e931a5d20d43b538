// txbuddy MCP server - exposes address monitoring and transaction analysis
// as MCP tools over stdio. Logs go to stderr; stdout carries the protocol.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/txbuddy/internal/logging"
	"github.com/mbd888/txbuddy/internal/mcpserver"
)

func main() {
	_ = godotenv.Load()
	logger := logging.NewWithWriter(os.Stderr, os.Getenv("LOG_LEVEL"), "text")

	cfg := mcpserver.Config{
		APIURL: envOrDefault("TXBUDDY_API_URL", "http://localhost:8080"),
		APIKey: os.Getenv("TXBUDDY_API_KEY"),
	}
	if cfg.APIKey == "" {
		logger.Warn("TXBUDDY_API_KEY not set, requests are sent unauthenticated")
	}

	s := mcpserver.NewMCPServer(cfg)
	errLog := slog.NewLogLogger(logger.Handler(), slog.LevelError)
	if err := server.ServeStdio(s, server.WithErrorLogger(errLog)); err != nil {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
