package main

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// stage is a set of loops that start together and are stopped together.
type stage []func(ctx context.Context) error

// runStages starts every loop at once and blocks until all of them returned. Shutdown begins
// when ctx is done or any loop fails, and walks the stages in order: a stage's context is
// cancelled only after every loop of the previous stage has returned.
func runStages(ctx context.Context, stages ...stage) error {
	stopping, stop := context.WithCancel(ctx)
	defer stop()

	var mu sync.Mutex
	var errs []error
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		stop()
	}

	groups := make([]*errgroup.Group, len(stages))
	cancels := make([]context.CancelFunc, len(stages))
	for i, s := range stages {
		parent := context.WithoutCancel(ctx)
		if i == 0 {
			parent = stopping
		}
		stageCtx, cancel := context.WithCancel(parent)
		cancels[i] = cancel
		groups[i] = &errgroup.Group{}
		for _, loop := range s {
			loop := loop
			groups[i].Go(func() error {
				record(loop(stageCtx))
				return nil
			})
		}
	}

	<-stopping.Done()
	for i := range stages {
		cancels[i]()
		_ = groups[i].Wait()
	}
	return errors.Join(errs...)
}
