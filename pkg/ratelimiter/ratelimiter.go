package ratelimiter

// KeyedRateLimiter rate-limits independently per key, e.g. per guest
// identifier on the anonymous entry path.
type KeyedRateLimiter interface {
	// AllowKey returns true if a request for the given key is allowed.
	AllowKey(key string) bool
}
