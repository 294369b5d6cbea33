package conversation

import (
	"context"
	"sync"
)

// lanes runs turns of the same client one after another, in arrival order.
// Each turn waits on the ticket of the turn before it; no lock is held
// while a turn runs.
type lanes struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newLanes() *lanes {
	return &lanes{tails: make(map[string]chan struct{})}
}

// acquire blocks until every earlier turn of key has finished. The returned
// release must be called exactly once when the turn is done.
func (l *lanes) acquire(ctx context.Context, key string) (func(), error) {
	done := make(chan struct{})
	l.mu.Lock()
	prev := l.tails[key]
	l.tails[key] = done
	l.mu.Unlock()

	release := func() {
		close(done)
		l.mu.Lock()
		if l.tails[key] == done {
			delete(l.tails, key)
		}
		l.mu.Unlock()
	}

	if prev == nil {
		return release, nil
	}
	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		// keep the chain intact for the turns queued behind us
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}

func (l *lanes) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tails)
}
