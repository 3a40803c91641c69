package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingTarget struct {
	calls atomic.Int32
	done  chan struct{}
	err   error
}

func (c *countingTarget) SweepExpiredTokens(ctx context.Context) (int, error) {
	if c.calls.Add(1) == 1 && c.done != nil {
		close(c.done)
	}
	return 3, c.err
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, Config{Interval: time.Minute}, nil); err == nil {
		t.Fatal("expected nil target to fail")
	}
	if _, err := New(&countingTarget{}, Config{}, nil); err == nil {
		t.Fatal("expected missing schedule to fail")
	}
	if _, err := New(&countingTarget{}, Config{Cron: "not a cron"}, nil); err == nil {
		t.Fatal("expected bad cron expression to fail")
	}
}

func TestRunOnStart(t *testing.T) {
	target := &countingTarget{done: make(chan struct{})}
	s, err := New(target, Config{Interval: time.Hour, RunOnStart: true}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer func() { _ = s.Shutdown() }()

	select {
	case <-target.done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected an immediate sweep")
	}
}

func TestRunLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	target := &countingTarget{err: errors.New("store down")}
	s, err := New(target, Config{Interval: time.Hour, Timeout: time.Second}, zap.New(core))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = s.Shutdown() }()

	s.Run(context.Background())
	if target.calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", target.calls.Load())
	}
	if logs.FilterMessage("sweep failed").Len() != 1 {
		t.Fatalf("expected a failure log, got %v", logs.All())
	}
}
