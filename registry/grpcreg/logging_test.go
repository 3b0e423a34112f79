package grpcreg

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	intercept := LoggingInterceptor(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: "/" + ServiceName + "/Register"}

	ok := func(context.Context, any) (any, error) { return "done", nil }
	if resp, err := intercept(context.Background(), nil, info, ok); err != nil || resp != "done" {
		t.Fatalf("got %v, %v", resp, err)
	}
	down := func(context.Context, any) (any, error) { return nil, status.Error(codes.Unavailable, "down") }
	if _, err := intercept(context.Background(), nil, info, down); status.Code(err) != codes.Unavailable {
		t.Fatalf("error not passed through: %v", err)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["code"] != "OK" {
		t.Fatalf("first entry: %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["code"] != "Unavailable" {
		t.Fatalf("second entry: %+v", entries[1])
	}
}
