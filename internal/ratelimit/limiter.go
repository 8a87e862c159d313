// Package ratelimit provides in-process rate limiting for per-connection
// actions. Each (connection, rule) pair gets its own token bucket, so a
// flooding client is throttled without affecting anyone else.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule defines a rate limiting policy: a name to key buckets by, the maximum
// number of actions allowed in the window, and the window duration.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Standard rules for the chat protocol.
var (
	// RuleMessage allows 5 chat messages per 10 seconds per connection.
	RuleMessage = Rule{Name: "msg", Limit: 5, Window: 10 * time.Second}

	// RuleMatch allows 10 match requests per minute per connection.
	RuleMatch = Rule{Name: "match", Limit: 10, Window: 1 * time.Minute}

	// RuleFriend allows 10 friend-graph operations per minute per connection.
	RuleFriend = Rule{Name: "friend", Limit: 10, Window: 1 * time.Minute}
)

type bucketKey struct {
	identifier string
	rule       string
}

// Limiter tracks token buckets per identifier and rule. Buckets are created
// lazily on first use and dropped when the identifier is forgotten.
type Limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*rate.Limiter
}

// NewLimiter creates an empty Limiter.
func NewLimiter() *Limiter {
	return &Limiter{buckets: make(map[bucketKey]*rate.Limiter)}
}

// Allow reports whether the identifier may perform one more action under the
// given rule, consuming a token if so.
func (l *Limiter) Allow(identifier string, rule Rule) bool {
	key := bucketKey{identifier: identifier, rule: rule.Name}

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(rule.Window/time.Duration(rule.Limit)), rule.Limit)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	return b.Allow()
}

// Forget drops all buckets belonging to the identifier. Called when a
// connection closes so the map does not grow without bound.
func (l *Limiter) Forget(identifier string) {
	l.mu.Lock()
	for key := range l.buckets {
		if key.identifier == identifier {
			delete(l.buckets, key)
		}
	}
	l.mu.Unlock()
}
