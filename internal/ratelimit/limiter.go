// Package ratelimit spaces out requests to the same vendor host.
package ratelimit

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// RateLimiter is satisfied by the in-process and Redis-backed limiters
type RateLimiter interface {
	Allow(key string) bool
	WaitContext(ctx context.Context, key string) error
}

// Limiter enforces a minimum interval between requests to the same host
// within one process.
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]time.Time
	minInterval time.Duration
}

// New creates a limiter with the given minimum interval per host
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// HostKey reduces a URL to the host it is rate limited under. Inputs that do
// not parse as absolute URLs are used as-is.
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// Allow reports whether a request may be made now, recording it if so
func (l *Limiter) Allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.hosts[host]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.hosts[host] = now
	return true
}

// Wait blocks until a request to host is allowed
func (l *Limiter) Wait(host string) {
	_ = l.WaitContext(context.Background(), host)
}

// WaitContext reserves the next slot for host and sleeps until it arrives or
// ctx is done.
func (l *Limiter) WaitContext(ctx context.Context, host string) error {
	l.mu.Lock()
	now := time.Now()
	next := now
	if last, ok := l.hosts[host]; ok {
		if earliest := last.Add(l.minInterval); earliest.After(now) {
			next = earliest
		}
	}
	l.hosts[host] = next
	l.mu.Unlock()

	delay := next.Sub(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset forgets the last request time for host
func (l *Limiter) Reset(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, host)
}

// ResetAll forgets every host
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = make(map[string]time.Time)
}

var _ RateLimiter = (*Limiter)(nil)
