package gateway

import (
	"net"
	"sync"
	"time"
)

const (
	DefaultRequestsPerMinute = 60
	DefaultMaxConcurrent     = 2

	reasonTooManyConcurrent = "too many concurrent streams"
	reasonRateLimited       = "rate limit exceeded"
)

// ClientRateLimiter implements sliding window rate limiting per client
type ClientRateLimiter struct {
	mu                 sync.Mutex
	requestsPerMinute  int
	maxConcurrent      int
	requests           []time.Time
	concurrentRequests int
}

// NewClientRateLimiter creates a new rate limiter with default limits
func NewClientRateLimiter() *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(DefaultRequestsPerMinute, DefaultMaxConcurrent)
}

// NewClientRateLimiterWithLimits creates a rate limiter with custom limits
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		requests:          make([]time.Time, 0),
	}
}

// prune drops requests that left the one minute window. Caller holds mu.
func (r *ClientRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	kept := r.requests[:0]
	for _, reqTime := range r.requests {
		if reqTime.After(cutoff) {
			kept = append(kept, reqTime)
		}
	}
	r.requests = kept
}

func (r *ClientRateLimiter) check(now time.Time) (bool, string) {
	if r.concurrentRequests >= r.maxConcurrent {
		return false, reasonTooManyConcurrent
	}
	r.prune(now)
	if len(r.requests) >= r.requestsPerMinute {
		return false, reasonRateLimited
	}
	return true, ""
}

// CheckRequestAllowed checks if a request is allowed under rate limits
func (r *ClientRateLimiter) CheckRequestAllowed() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.check(time.Now())
}

// Acquire checks the limits and, when allowed, records the request start in
// the same step. Every successful Acquire must be paired with
// RecordRequestEnd.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if ok, reason := r.check(now); !ok {
		return false, reason
	}
	r.requests = append(r.requests, now)
	r.concurrentRequests++
	return true, ""
}

// RecordRequestStart records the start of a request
func (r *ClientRateLimiter) RecordRequestStart() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, time.Now())
	r.concurrentRequests++
}

// RecordRequestEnd records the end of a request
func (r *ClientRateLimiter) RecordRequestEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrentRequests > 0 {
		r.concurrentRequests--
	}
}

// UpdateLimits updates the rate limits
func (r *ClientRateLimiter) UpdateLimits(requestsPerMinute, maxConcurrent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requestsPerMinute = requestsPerMinute
	r.maxConcurrent = maxConcurrent
}

// GetStats returns current rate limiter statistics
func (r *ClientRateLimiter) GetStats() (requestCount, concurrentCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(time.Now())
	return len(r.requests), r.concurrentRequests
}

// idle reports whether the limiter holds no state worth keeping
func (r *ClientRateLimiter) idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(time.Now())
	return r.concurrentRequests == 0 && len(r.requests) == 0
}

// LimiterPool hands out one ClientRateLimiter per remote host
type LimiterPool struct {
	mu                sync.Mutex
	limiters          map[string]*ClientRateLimiter
	requestsPerMinute int
	maxConcurrent     int
}

// NewLimiterPool creates a pool whose limiters share the given limits
func NewLimiterPool(requestsPerMinute, maxConcurrent int) *LimiterPool {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &LimiterPool{
		limiters:          make(map[string]*ClientRateLimiter),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
	}
}

// For returns the limiter of the host part of remoteAddr
func (p *LimiterPool) For(remoteAddr string) *ClientRateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookup(remoteAddr)
}

// Acquire takes a request slot on the host's limiter. The slot is taken
// under the pool lock, so Sweep never drops a limiter between lookup and
// acquire. On success the caller must call RecordRequestEnd on the returned
// limiter.
func (p *LimiterPool) Acquire(remoteAddr string) (*ClientRateLimiter, bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter := p.lookup(remoteAddr)
	allowed, reason := limiter.Acquire()
	return limiter, allowed, reason
}

// lookup returns or creates the limiter for remoteAddr. Caller holds mu.
func (p *LimiterPool) lookup(remoteAddr string) *ClientRateLimiter {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	limiter, ok := p.limiters[host]
	if !ok {
		limiter = NewClientRateLimiterWithLimits(p.requestsPerMinute, p.maxConcurrent)
		p.limiters[host] = limiter
	}
	return limiter
}

// Sweep forgets hosts with no recent or running requests
func (p *LimiterPool) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for host, limiter := range p.limiters {
		if limiter.idle() {
			delete(p.limiters, host)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked hosts
func (p *LimiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters)
}
