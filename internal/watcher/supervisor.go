package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Supervisor runs one watcher per namespace plus the watchdog, and keeps the
// watch layer alive. A panic escaping any watcher tears down and restarts the
// whole layer after a fixed delay, a deliberately coarse recovery that keeps
// the failure handling in one place.
type Supervisor struct {
	watchers     []*Watcher
	watchdog     *Watchdog
	restartDelay time.Duration
}

func NewSupervisor(watchers []*Watcher, watchdog *Watchdog, restartDelay time.Duration) *Supervisor {
	return &Supervisor{
		watchers:     watchers,
		watchdog:     watchdog,
		restartDelay: restartDelay,
	}
}

// Run blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if err := s.runLayer(ctx); err != nil {
			logrus.Errorf("Watch layer failed: %v; restarting in %s", err, s.restartDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.restartDelay):
		}
	}
}

// runLayer starts every watcher and the watchdog, then blocks until either a
// watcher panics or the parent context ends. On return all layer goroutines
// have exited.
func (s *Supervisor) runLayer(ctx context.Context) error {
	layerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := make(chan error, len(s.watchers))
	var wg sync.WaitGroup

	for _, w := range s.watchers {
		wg.Add(1)
		go func(w *Watcher) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failures <- fmt.Errorf("watcher for %s panicked: %v", w.Namespace(), r)
				}
			}()
			w.Run(layerCtx)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchdog.Run(layerCtx)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-failures:
	}

	cancel()
	wg.Wait()
	return err
}
