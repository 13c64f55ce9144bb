package run

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"
)

func TestRun_NilErrorExitsZero(t *testing.T) {
	r := New(zap.NewNop())
	code := r.run(context.Background(), func(context.Context) error { return nil })
	if code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
}

func TestRun_ServerClosedExitsZero(t *testing.T) {
	r := New(zap.NewNop())
	code := r.run(context.Background(), func(context.Context) error { return http.ErrServerClosed })
	if code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
}

func TestRun_ErrorExitsOne(t *testing.T) {
	r := New(zap.NewNop())
	code := r.run(context.Background(), func(context.Context) error { return errors.New("boom") })
	if code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
}

func TestRun_CancelledContextExitsZero(t *testing.T) {
	r := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	defer close(block)
	code := r.run(ctx, func(context.Context) error {
		<-block
		return nil
	})
	if code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
}

func TestGraceful_ReportsError(t *testing.T) {
	r := New(zap.NewNop())
	called := false
	r.Graceful("test", func(ctx context.Context) error {
		called = true
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("expected deadline on shutdown context")
		}
		return errors.New("slow")
	})
	if !called {
		t.Fatal("expected shutdown to be called")
	}
}
