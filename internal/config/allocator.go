package config

import (
    "os"
    "strings"
    "time"

    "github.com/tablewise/tablewise/internal/allocator"
    "github.com/tablewise/tablewise/internal/service"
)

// LoadAllocatorConfig builds the allocation policy from environment
// variables. Defaults match a mid-size dining room: merges of up to
// three movable tables, at most two wasted seats, connected adjacency.
func LoadAllocatorConfig() allocator.Config {
    mode := allocator.AdjacencyMode(envStr("ADJACENCY_MODE", string(allocator.ModeConnected)))
    switch mode {
    case allocator.ModeConnected, allocator.ModePairwise, allocator.ModeNeighbors:
    default:
        mode = allocator.ModeConnected
    }
    return allocator.Config{
        AdjacencyMode:         mode,
        KMax:                  envInt("ALLOCATOR_KMAX", 3),
        AdjacencyRequired:     envBool("ADJACENCY_REQUIRED", true),
        AdjacencyMinPartySize: envInt("ADJACENCY_MIN_PARTY_SIZE", 2),
        MaxOverage:            envInt("MAX_OVERAGE", 2),
        MaxCombinationEvals:   envInt("MAX_COMBINATION_EVALS", 500),
        Lookahead: allocator.LookaheadConfig{
            Enabled:        envBool("LOOKAHEAD_ENABLED", true),
            Window:         envDur("LOOKAHEAD_WINDOW", 2*time.Hour),
            PenaltyWeight:  envInt("LOOKAHEAD_PENALTY_WEIGHT", 1),
            BlockThreshold: envInt("LOOKAHEAD_BLOCK_THRESHOLD", 2),
        },
    }
}

// LoadHoldConfig builds the hold policy: TTL clamp bounds and the
// per-booking proposal rate limit.
func LoadHoldConfig() service.HoldConfig {
    cfg := service.HoldConfig{
        MinTTL:          envDur("HOLD_TTL_MIN", 30*time.Second),
        MaxTTL:          envDur("HOLD_TTL_MAX", 10*time.Minute),
        DefaultTTL:      envDur("HOLD_TTL_DEFAULT", 3*time.Minute),
        RateLimitMax:    envInt("HOLD_RATE_LIMIT_MAX", 10),
        RateLimitWindow: envDur("HOLD_RATE_LIMIT_WINDOW", time.Minute),
    }
    if cfg.MinTTL <= 0 {
        cfg.MinTTL = 30 * time.Second
    }
    if cfg.MaxTTL < cfg.MinTTL {
        cfg.MaxTTL = cfg.MinTTL
    }
    if cfg.DefaultTTL < cfg.MinTTL {
        cfg.DefaultTTL = cfg.MinTTL
    }
    if cfg.DefaultTTL > cfg.MaxTTL {
        cfg.DefaultTTL = cfg.MaxTTL
    }
    return cfg
}

// LoadOrchestratorConfig builds the auto-assign retry schedule and
// cache lifetimes. RETRY_DELAYS is a comma-separated duration list;
// its length is the attempt budget.
func LoadOrchestratorConfig() service.OrchestratorConfig {
    return service.OrchestratorConfig{
        RetryDelays:    envDurList("RETRY_DELAYS", []time.Duration{0, 2 * time.Second, 5 * time.Second}),
        SearchTimeout:  envDur("SEARCH_TIMEOUT", 3*time.Second),
        ResultCacheTTL: envDur("RESULT_CACHE_TTL", 30*time.Second),
        InlineRecency:  envDur("INLINE_RESULT_RECENCY", 5*time.Minute),
    }
}

// ManualSlackBudget is the seat overage allowed on manual selections.
func ManualSlackBudget() int {
    return envInt("MANUAL_SLACK_BUDGET", 4)
}

func envDurList(k string, d []time.Duration) []time.Duration {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    var out []time.Duration
    for _, p := range strings.Split(v, ",") {
        p = strings.TrimSpace(p)
        if p == "" {
            continue
        }
        dur, err := time.ParseDuration(p)
        if err != nil {
            return d
        }
        out = append(out, dur)
    }
    if len(out) == 0 {
        return d
    }
    return out
}
