package thumbcache

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/thesantatitan/graphtabs/kit"
)

// RegisterMCP registers the thumbnail tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerGetTool(srv)
	s.registerStatsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// --- thumb_get ---

type thumbGetRequest struct {
	TabID int `json:"tab_id"`
}

func (s *Service) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "thumb_get",
		Description: "Look up the cached thumbnail state for a tab: found, blocked, storage key, last update time. Fetch the image itself via the HTTP surface.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": map[string]any{"type": "integer", "description": "Tab identifier"},
		}, []string{"tab_id"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		rr := req.(*thumbGetRequest)
		return s.Lookup(rr.TabID), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr thumbGetRequest
		if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- thumb_stats ---

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "thumb_stats",
		Description: "Current thumbnail cache counters: entries, byte total, configured ceilings, blocked count.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return s.Stats(), nil
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
