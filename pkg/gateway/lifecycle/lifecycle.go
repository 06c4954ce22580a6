package lifecycle

import (
	"sync"
	"sync/atomic"
)

// Lifecycle holds the process draining flag shared across handlers. Long
// lived streams watch Draining to end early during graceful shutdown.
type Lifecycle struct {
	draining atomic.Bool

	once sync.Once
	mu   sync.Mutex
	ch   chan struct{}
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
	if draining {
		ch := l.channel()
		l.mu.Lock()
		select {
		case <-ch:
		default:
			close(ch)
		}
		l.mu.Unlock()
	}
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// Draining is closed once draining starts. A nil Lifecycle never drains.
func (l *Lifecycle) Draining() <-chan struct{} {
	if l == nil {
		return nil
	}
	return l.channel()
}

func (l *Lifecycle) channel() chan struct{} {
	l.once.Do(func() { l.ch = make(chan struct{}) })
	return l.ch
}
