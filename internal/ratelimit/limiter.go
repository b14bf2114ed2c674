package ratelimit

import (
	"sync"
	"time"
)

// bucket tracks remaining tokens for one key.
type bucket struct {
	tokens   float64
	updated  time.Time
	lastSeen time.Time
}

// Limiter is a per-key token bucket. rps is the refill rate, burst the
// bucket capacity. A zero rps disables limiting.
type Limiter struct {
	rps   float64
	burst float64
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLimiter creates a rate limiter and starts its eviction worker.
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		rps:     rps,
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.evictLoop()
	return l
}

// Allow reports whether a request for key may proceed, consuming one token
// when it does.
func (l *Limiter) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, updated: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.updated).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.rps
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.updated = now
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Close stops the eviction worker.
func (l *Limiter) Close() {
	close(l.done)
	l.wg.Wait()
}

// evictLoop drops buckets idle for more than five minutes.
func (l *Limiter) evictLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := l.now().Add(-5 * time.Minute)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}
