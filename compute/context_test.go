package compute

import (
	"fmt"
	"sync/atomic"
	"testing"
)

func TestDefault(t *testing.T) {
	ctx := Default()
	if ctx.Workers <= 0 {
		t.Errorf("default context has %d workers", ctx.Workers)
	}
	if err := ctx.Validate(); err != nil {
		t.Errorf("default context invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := (Context{Workers: 0}).Validate(); err == nil {
		t.Error("expected error for zero workers")
	}
	if err := (Context{Workers: -1}).Validate(); err == nil {
		t.Error("expected error for negative workers")
	}
}

func TestParallel(t *testing.T) {
	t.Run("runs every index once", func(t *testing.T) {
		ctx := Context{Workers: 4}
		var counts [100]int32

		err := ctx.Parallel(100, func(i int) error {
			atomic.AddInt32(&counts[i], 1)
			return nil
		})
		if err != nil {
			t.Fatalf("Parallel failed: %v", err)
		}

		for i, c := range counts {
			if c != 1 {
				t.Errorf("index %d ran %d times", i, c)
			}
		}
	})

	t.Run("propagates errors", func(t *testing.T) {
		ctx := Context{Workers: 2}
		err := ctx.Parallel(10, func(i int) error {
			if i == 7 {
				return fmt.Errorf("task %d failed", i)
			}
			return nil
		})
		if err == nil {
			t.Error("expected task error to propagate")
		}
	})

	t.Run("zero tasks is a no-op", func(t *testing.T) {
		ctx := Context{Workers: 2}
		if err := ctx.Parallel(0, func(i int) error { return fmt.Errorf("should not run") }); err != nil {
			t.Errorf("expected nil for zero tasks, got %v", err)
		}
	})
}
