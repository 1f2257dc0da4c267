package qdrant

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/ricesearch/covereval/internal/pkg/logger"
)

// loggingInterceptor logs every Qdrant RPC at debug level, including the
// request body rendered as JSON.
func loggingInterceptor(log *logger.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if !log.Enabled(ctx, slog.LevelDebug) {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		if msg, ok := req.(proto.Message); ok {
			log.Debug("qdrant request", "method", method, "body", renderMessage(msg))
		}

		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		log.Debug("qdrant response",
			"method", method,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return err
	}
}

func renderMessage(msg proto.Message) string {
	b, err := protojson.MarshalOptions{EmitUnpopulated: false}.Marshal(msg)
	if err != nil {
		return "<unrenderable>"
	}
	return string(b)
}
