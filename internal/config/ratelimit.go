package config

import (
    "os"
    "strconv"
    "time"
)

// RateLimitConfig tunes the per-actor token bucket in front of the
// staff allocation endpoints. Burst is the bucket size; RefillTokens
// are added every RefillInterval. TTL bounds how long an idle actor's
// bucket lives in Redis.
type RateLimitConfig struct {
    Enabled        bool
    Burst          int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    Prefix         string
}

// LoadRateLimitConfig reads the STAFF_RATE_LIMIT_* environment. The
// defaults allow a burst of 30 requests refilling one per second,
// which is generous for a human host and tight for a runaway script.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool("STAFF_RATE_LIMIT_ENABLED", true),
        Burst:          envInt("STAFF_RATE_LIMIT_BURST", 30),
        RefillTokens:   envInt("STAFF_RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("STAFF_RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("STAFF_RATE_LIMIT_TTL", 10*time.Minute),
        Prefix:         envStr("STAFF_RATE_LIMIT_PREFIX", "alloc:rl"),
    }
    if cfg.Burst < 1 {
        cfg.Burst = 1
    }
    if cfg.RefillTokens < 1 {
        cfg.RefillTokens = 1
    }
    if cfg.RefillInterval <= 0 {
        cfg.RefillInterval = time.Second
    }
    // An idle bucket must outlive several refill cycles or the limiter
    // forgets actors mid-window.
    if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
        cfg.TTL = minTTL
    }
    return cfg
}

func envStr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}

func envBool(k string, d bool) bool {
    switch os.Getenv(k) {
    case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
        return true
    case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
        return false
    }
    return d
}

func envInt(k string, d int) int {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if n, err := strconv.Atoi(v); err == nil {
        return n
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if dur, err := time.ParseDuration(v); err == nil {
        return dur
    }
    return d
}
