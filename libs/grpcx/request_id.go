package grpcx

import (
	"context"

	"github.com/md-rashed-zaman/courtdesk/libs/httpx"
)

// RequestIDMetadataKey is the canonical key used for request id propagation over gRPC metadata.
// Lowercase is recommended by gRPC metadata conventions.
const RequestIDMetadataKey = "x-request-id"

// RequestIDFromContext shares the HTTP request id slot so ids flow unchanged
// from an HTTP handler into outgoing gRPC calls and back.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return httpx.ContextWithRequestID(ctx, id)
}
