package event

import (
	"context"
	"errors"
	"testing"
)

func TestCleanerRunsCallablesInOrderOnce(t *testing.T) {
	c := newCleaner()
	var order []int
	c.Add(CallableFunc(func(context.Context) error { order = append(order, 1); return nil }))
	c.Add(CallableFunc(func(context.Context) error { order = append(order, 2); return errors.New("boom") }))
	c.Add(CallableFunc(func(context.Context) error { order = append(order, 3); return nil }))

	loggerClosed := 0
	c.loggerShutdown = CallableFunc(func(context.Context) error { loggerClosed++; return nil })

	c.Clean()
	c.Clean()

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected invocation order %v", order)
	}
	if loggerClosed != 1 {
		t.Fatalf("logger shutdown invoked %d times", loggerClosed)
	}
}

func TestCleanerIgnoresAddDuringCleanup(t *testing.T) {
	c := newCleaner()
	c.Clean()

	called := false
	c.Add(CallableFunc(func(context.Context) error { called = true; return nil }))
	if len(c.cleaners) != 0 || called {
		t.Fatal("cleaner accepted a callable after cleanup")
	}
}

func TestCallableReceivesDeadline(t *testing.T) {
	c := newCleaner()
	c.Add(CallableFunc(func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected context with deadline")
		}
		return nil
	}))
	c.Clean()
}
