// Package cache provides the keyed text caches used for generated
// overviews and mastery problems.
package cache

import "time"

// Cache is a process-wide string cache. Implementations are safe for
// concurrent use. Concurrent Sets for the same key are not serialized;
// the last write wins.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Len() int
}

// Clock returns the current time.
type Clock func() time.Time

// Policy controls entry lifetime. A zero TTL means entries never expire.
type Policy struct {
	TTL time.Duration
}

func (p Policy) expired(storedAt, now time.Time) bool {
	return p.TTL > 0 && now.Sub(storedAt) >= p.TTL
}

// Option configures a cache.
type Option func(*options)

type options struct {
	clock  Clock
	policy Policy
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTTL expires entries after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.policy.TTL = ttl }
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
