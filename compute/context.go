// Package compute provides the execution context shared by the feature
// materializer and the evaluator. It owns how much hardware parallelism a
// run may use, keeping the pipeline logic device-agnostic.
package compute

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Context describes the compute resources available to a run.
type Context struct {
	// Workers bounds how many tasks Parallel runs concurrently.
	Workers int
}

// Default returns a context sized to the machine.
func Default() Context {
	return Context{Workers: runtime.NumCPU()}
}

// Validate checks the context before a run starts.
func (c Context) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("compute context workers must be positive, got %d", c.Workers)
	}
	return nil
}

// Parallel runs fn for every index in [0, n) using at most Workers
// goroutines, returning the first error encountered. Tasks must not share
// mutable state other than writing to disjoint result slots.
func (c Context) Parallel(n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}

	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}
