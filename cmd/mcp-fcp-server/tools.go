package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/fcpbot/internal/web"
)

// ListPendingParams defines the input of list_pending_fcps.
type ListPendingParams struct {
	Repository string `json:"repository,omitempty" jsonschema:"Only list proposals in this repository (owner/name)"`
}

// StatusParams defines the input of fcp_status.
type StatusParams struct {
	Repository string `json:"repository" jsonschema:"Repository as owner/name"`
	Number     int    `json:"number" jsonschema:"Issue or pull request number"`
}

type fcpTools struct {
	board *web.Board
}

// HandleListPending handles the list_pending_fcps tool call
func (t *fcpTools) HandleListPending(ctx context.Context, req *mcp.CallToolRequest, params ListPendingParams) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP FCP Server] Received list_pending_fcps request (repository=%q)", params.Repository)

	proposals, err := t.board.Open(ctx, params.Repository)
	if err != nil {
		log.Printf("[MCP FCP Server] Failed to list proposals: %v", err)
		return errorResult(err), nil, nil
	}
	for i := range proposals {
		proposals[i].Concerns = nil
	}
	return jsonResult(proposals)
}

// HandleStatus handles the fcp_status tool call
func (t *fcpTools) HandleStatus(ctx context.Context, req *mcp.CallToolRequest, params StatusParams) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP FCP Server] Received fcp_status request for %s#%d", params.Repository, params.Number)

	if strings.Count(params.Repository, "/") != 1 {
		return nil, nil, fmt.Errorf("repository must be owner/name, got %q", params.Repository)
	}
	if params.Number <= 0 {
		return nil, nil, fmt.Errorf("number must be positive")
	}

	proposal, err := t.board.Lookup(ctx, params.Repository, params.Number)
	if errors.Is(err, web.ErrNotTracked) || errors.Is(err, web.ErrNoProposal) {
		return textResult(fmt.Sprintf("%s#%d: %v", params.Repository, params.Number, err)), nil, nil
	}
	if err != nil {
		log.Printf("[MCP FCP Server] Failed to load %s#%d: %v", params.Repository, params.Number, err)
		return errorResult(err), nil, nil
	}
	return jsonResult(proposal)
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return textResult(string(data)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)},
		},
		IsError: true,
	}
}
