package graph

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/thesantatitan/graphtabs/kit"
)

// RegisterMCP registers the graph_snapshot tool on an MCP server.
func (g *Graph) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "graph_snapshot",
		Description: "Snapshot of the live tab graph: one node per open tab, one edge per opener relationship.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return g.Snapshot(), nil
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
