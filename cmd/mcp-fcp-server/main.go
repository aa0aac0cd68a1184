package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/fcpbot/internal/store/gormstore"
	"github.com/cexll/fcpbot/internal/web"
)

func main() {
	_ = godotenv.Load()

	// 1. Validate required environment variables
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatalf("[MCP FCP Server] Missing required environment variable: DATABASE_URL")
	}
	var wait time.Duration
	if days, err := strconv.Atoi(os.Getenv("FCP_WAIT_DAYS")); err == nil && days > 0 {
		wait = time.Duration(days) * 24 * time.Hour
	}

	log.Println("[MCP FCP Server] Starting FCP status MCP Server v1.0.0")

	// 2. Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := gormstore.Open(ctx, dsn)
	if err != nil {
		log.Fatalf("[MCP FCP Server] Failed to open store: %v", err)
	}
	defer st.Close()

	// 3. Create MCP server and register tools
	server := newServer(&fcpTools{board: web.NewBoard(st, wait)})

	// 4. Start server with stdio transport
	log.Println("[MCP FCP Server] Starting on stdio transport...")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatalf("[MCP FCP Server] Server error: %v", err)
	}
	log.Println("[MCP FCP Server] Server stopped gracefully")
}

func newServer(tools *fcpTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "fcp-status-server",
		Version: "v1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_pending_fcps",
		Description: "List proposals whose final comment period has not finished, with the reviewers still to sign off",
	}, tools.HandleListPending)
	log.Println("[MCP FCP Server] Registered tool: list_pending_fcps")

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fcp_status",
		Description: "Show the FCP proposal on one issue or pull request, including reviewers and concerns",
	}, tools.HandleStatus)
	log.Println("[MCP FCP Server] Registered tool: fcp_status")

	return server
}
