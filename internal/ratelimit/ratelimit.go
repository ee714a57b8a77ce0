package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter budgets requests per (action, identity) pair: at most count
// requests per window. Rejections happen before any side effect runs.
type Limiter struct {
	mu      sync.Mutex
	count   int
	window  time.Duration
	entries map[string]*entry
	stopCh  chan struct{}
}

func New(count int, window time.Duration) *Limiter {
	l := &Limiter{
		count:   count,
		window:  window,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether identity may perform action right now.
func (l *Limiter) Allow(action string, identity string) bool {
	key := fmt.Sprintf("%s:%s", action, identity)

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.count)), l.count)}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()

	return e.limiter.Allow()
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	cutoff := time.Now().Add(-2 * l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

func (l *Limiter) Stop() {
	close(l.stopCh)
}
