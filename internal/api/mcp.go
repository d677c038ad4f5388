package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/gettor/internal/classify"
	"github.com/kalambet/gettor/internal/locale"
	"github.com/kalambet/gettor/internal/model"
	"github.com/kalambet/gettor/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Classifier *classify.Classifier
	Store      *storage.Store
	Locales    *locale.Table
	Now        func() time.Time // optional; time.Now when nil
}

// NewMCPServer creates an MCP server exposing operator tools. None of them
// touch raw requester addresses.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := server.NewMCPServer(
		"gettor",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("GetTor operator tools: dry-run classification, queue depth and request statistics."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("classify_message",
			mcp.WithDescription("Classify a message the way intake would, without queueing anything."),
			mcp.WithString("subject", mcp.Description("Message subject (empty for direct messages)")),
			mcp.WithString("body", mcp.Description("Message body text"), mcp.Required()),
		),
		mcpClassifyMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("queue_stats",
			mcp.WithDescription("Report pending requests per channel and the request counters for a day."),
			mcp.WithString("date", mcp.Description("Day bucket as YYYYMMDD (default today, UTC)")),
		),
		mcpQueueStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"gettor://locales",
			"Locales",
			mcp.WithResourceDescription("Recognized locales and whether the link catalog covers them"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLocales(deps),
	)

	return s
}

func mcpClassifyMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := req.RequireString("body")
		if err != nil {
			return mcpError("body is required"), nil
		}
		subject := req.GetString("subject", "")

		res := deps.Classifier.Classify(subject, body)
		b, err := json.Marshal(map[string]string{
			"command":  res.Command.String(),
			"platform": string(res.Platform),
			"locale":   res.Locale,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

type queueStats struct {
	Date    string              `json:"date"`
	Pending map[string]int      `json:"pending"`
	Stats   []model.StatsRecord `json:"stats"`
}

func mcpQueueStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date := req.GetString("date", "")
		if date == "" {
			date = model.DateBucket(deps.Now())
		} else if _, err := time.Parse(model.DateLayout, date); err != nil {
			return mcpError(fmt.Sprintf("invalid date %q, want YYYYMMDD", date)), nil
		}

		depth, err := deps.Store.QueueDepth(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read queue depth: %v", err)), nil
		}
		records, err := deps.Store.ListStats(ctx, date, date)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list stats: %v", err)), nil
		}

		out := queueStats{Date: date, Pending: make(map[string]int, len(model.Channels)), Stats: records}
		for _, ch := range model.Channels {
			out.Pending[string(ch)] = depth[ch]
		}
		if out.Stats == nil {
			out.Stats = []model.StatsRecord{}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceLocales(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		infos, err := collectLocales(ctx, deps.Store, deps.Locales)
		if err != nil {
			return nil, fmt.Errorf("failed to list catalog locales: %w", err)
		}

		b, err := json.Marshal(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal locales: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
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
