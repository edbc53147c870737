package config

import "time"

// CacheConfig tunes the quote response cache. Quotes are recomputed
// searches over the live inventory, so the TTL is short: a stale quote
// is only a hint, the commit path re-validates everything.
type CacheConfig struct {
    Enabled      bool
    TTL          time.Duration
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads the QUOTE_CACHE_* environment.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("QUOTE_CACHE_ENABLED", true),
        TTL:          envDur("QUOTE_CACHE_TTL", 15*time.Second),
        Prefix:       envStr("QUOTE_CACHE_PREFIX", "alloc:resp"),
        MaxBodyBytes: envInt("QUOTE_CACHE_MAX_BODY_BYTES", 1<<20),
    }
}
