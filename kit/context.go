// Package kit holds the transport-agnostic plumbing shared by the HTTP and
// MCP surfaces: context keys and the Endpoint abstraction.
package kit

import "context"

type contextKey string

const (
	TraceIDKey    contextKey = "kit_trace_id"
	TransportKey  contextKey = "kit_transport" // "http", "mcp"
	RemoteAddrKey contextKey = "kit_remote_addr"
)

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}
