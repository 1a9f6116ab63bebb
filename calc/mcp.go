package calc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/matrixcalc/kit"
)

// RegisterMCP registers the calculator tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerCalculateTool(srv)
	s.registerOperationsTool(srv)
	s.registerHistoryTool(srv)
	s.registerGetEntryTool(srv)
	s.registerDeleteEntryTool(srv)
	s.registerClearHistoryTool(srv)
}

// register wraps endpoint with call logging before handing it to kit.
func (s *Service) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Chain(s.logCall(tool.Name))(endpoint), decode)
}

func (s *Service) logCall(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{"tool", name, "transport", kit.GetTransport(ctx), "duration", time.Since(start)}
			if err != nil {
				s.logger.WarnContext(ctx, "mcp tool failed", append(attrs, "error", err)...)
			} else {
				s.logger.DebugContext(ctx, "mcp tool", attrs...)
			}
			return resp, err
		}
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var matrixSchema = map[string]any{
	"type":        "array",
	"description": "Rows of cells; each cell is a number or a string such as \"3\", \"-1.5\" or \"3/4\"",
	"items": map[string]any{
		"type":  "array",
		"items": map[string]any{"type": []string{"string", "number"}},
	},
}

func decodeArgs[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

type okResp struct {
	OK bool `json:"ok"`
}

// --- calculate ---

func (s *Service) registerCalculateTool(srv *mcp.Server) {
	names := make([]string, 0, len(operations))
	for _, op := range operations {
		names = append(names, op.Name)
	}
	tool := &mcp.Tool{
		Name:        "matrix_calculate",
		Description: "Run a matrix operation on A and/or B, store it in history and return {result, id, time}.",
		InputSchema: inputSchema(map[string]any{
			"operation": map[string]any{"type": "string", "enum": names, "description": "Operation name"},
			"A":         matrixSchema,
			"B":         matrixSchema,
		}, []string{"operation"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Calculate(ctx, *req.(*Request))
	}
	s.register(srv, tool, endpoint, decodeArgs[Request])
}

// --- operations ---

func (s *Service) registerOperationsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "matrix_operations",
		Description: "List the supported operations with their labels and the operands each one uses.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"operations": s.Operations()}, nil
	}
	s.register(srv, tool, endpoint, decodeArgs[struct{}])
}

// --- history ---

type historyReq struct {
	Limit int `json:"limit"`
}

func (s *Service) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "matrix_history",
		Description: "List stored calculations in ascending id order.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum records (default 5)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		recs, err := s.History(ctx, req.(*historyReq).Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": recs}, nil
	}
	s.register(srv, tool, endpoint, decodeArgs[historyReq])
}

// --- get / delete ---

type entryReq struct {
	ID int64 `json:"id"`
}

var entrySchema = inputSchema(map[string]any{
	"id": map[string]any{"type": "integer", "description": "History entry id"},
}, []string{"id"})

func (s *Service) registerGetEntryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "matrix_get_entry",
		Description: "Fetch one stored calculation by id.",
		InputSchema: entrySchema,
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Entry(ctx, req.(*entryReq).ID)
	}
	s.register(srv, tool, endpoint, decodeArgs[entryReq])
}

func (s *Service) registerDeleteEntryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "matrix_delete_entry",
		Description: "Delete one stored calculation and its saved page.",
		InputSchema: entrySchema,
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		if err := s.DeleteEntry(ctx, req.(*entryReq).ID); err != nil {
			return nil, err
		}
		return okResp{OK: true}, nil
	}
	s.register(srv, tool, endpoint, decodeArgs[entryReq])
}

// --- clear ---

func (s *Service) registerClearHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "matrix_clear_history",
		Description: "Delete every stored calculation and every saved page.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		if err := s.ClearHistory(ctx); err != nil {
			return nil, err
		}
		return okResp{OK: true}, nil
	}
	s.register(srv, tool, endpoint, decodeArgs[struct{}])
}
