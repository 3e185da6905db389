package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gtjio/gtj/internal/proposal"
	"github.com/gtjio/gtj/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Generator *proposal.Generator
}

// NewMCPServer creates an MCP server exposing proposal generation and
// status lookup as tools, so assistants can drive the app over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"gtj",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("gtj - proposal generator for trade businesses."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_proposal",
			mcp.WithDescription("Generate professional proposal text for a trade business from structured job details."),
			mcp.WithString("trade", mcp.Description("Trade name, e.g. electrician, plumber (defaults to general)")),
			mcp.WithString("client_name", mcp.Description("Client's name"), mcp.Required()),
			mcp.WithString("service_type", mcp.Description("Short description of the service"), mcp.Required()),
			mcp.WithString("scope", mcp.Description("Raw scope notes, one item per line")),
			mcp.WithString("price", mcp.Description("Price exactly as it should appear")),
			mcp.WithString("tone", mcp.Description("Writing tone (default Professional)")),
			mcp.WithString("timeframe", mcp.Description("Expected timeframe")),
			mcp.WithString("your_business", mcp.Description("The trade business's name")),
		),
		mcpGenerateProposal(deps),
	)

	s.AddTool(
		mcp.NewTool("proposal_status",
			mcp.WithDescription("Look up the acceptance status of a sent proposal."),
			mcp.WithString("id", mcp.Description("Proposal id"), mcp.Required()),
		),
		mcpProposalStatus(deps),
	)

	return s
}

func mcpGenerateProposal(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clientName, err := req.RequireString("client_name")
		if err != nil {
			return mcpError("client_name is required"), nil
		}
		serviceType, err := req.RequireString("service_type")
		if err != nil {
			return mcpError("service_type is required"), nil
		}

		in := proposal.Input{
			Trade:       req.GetString("trade", ""),
			ClientName:  clientName,
			ServiceType: serviceType,
			Scope:       req.GetString("scope", ""),
			Price:       req.GetString("price", ""),
			Tone:        req.GetString("tone", ""),
			Timeframe:   req.GetString("timeframe", ""),
			Business:    req.GetString("your_business", ""),
		}

		text, source := deps.Generator.Build(ctx, in)

		b, err := json.Marshal(map[string]string{
			"proposal_text": text,
			"source":        string(source),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpProposalStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		p, err := deps.Store.GetProposal(id)
		if err == storage.ErrNotFound {
			return mcpError("proposal not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		result := map[string]any{
			"id":         p.ID,
			"status":     string(p.Status),
			"created_at": p.CreatedAt,
		}
		if p.RespondedAt != nil {
			result["responded_at"] = *p.RespondedAt
			result["responded_name"] = p.RespondedName
			if p.DeclineReason != "" {
				result["decline_reason"] = p.DeclineReason
			}
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
