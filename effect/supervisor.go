package effect

import (
	"context"
	"sync"

	"github.com/on-the-ground/reactive_ive_go/log"
	"go.uber.org/zap"
)

// supervisor runs asynchronous invocations in their own goroutines and lets
// callers join them.
type supervisor struct {
	wg     sync.WaitGroup
	logger *zap.Logger
	label  string
}

// spawn runs fn in a new goroutine. A panic escaping fn is logged, never
// propagated.
func (s *supervisor) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Emit(s.logger, log.LogError, "panic in effect routine", map[string]interface{}{
					"effect": s.label,
					"error":  r,
				})
			}
		}()
		fn()
	}()
}

// wait blocks until every spawned goroutine returned or ctx is done.
func (s *supervisor) wait(ctx context.Context) error {
	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
