package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/clock"
	"github.com/tablewise/tablewise/internal/metrics"
	"github.com/tablewise/tablewise/internal/model"
	"github.com/tablewise/tablewise/internal/queue"
)

// HoldConfig carries the hold policy: the TTL bounds a caller-supplied
// TTL is clamped into, and the per-booking rate limit on proposals.
type HoldConfig struct {
	MinTTL          time.Duration
	MaxTTL          time.Duration
	DefaultTTL      time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// HoldRequest describes one hold proposal. ExcludeHoldID names a hold
// the caller already owns: it is ignored during the conflict check and
// atomically replaced by the new hold, which is how a session refreshes
// or reshapes its hold without a gap another actor could steal.
type HoldRequest struct {
	RestaurantID  string
	BookingID     string
	TableIDs      []string
	Window        model.Window
	TTL           time.Duration
	ExcludeHoldID string
	CreatedBy     string
}

// counter is the slice of Redis the proposal rate limiter needs.
// *redis.Client satisfies it; tests substitute an in-memory one.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
}

// HoldManager validates, rate-limits and places table holds. The Redis
// client may be nil, which disables rate limiting (used in tests and
// single-node deployments without Redis).
type HoldManager struct {
	holds HoldStore
	ctr   counter
	clk   clock.Clock
	cfg   HoldConfig
	alloc allocator.Config
}

// NewHoldManager wires the hold manager. The allocation policy is only
// read for telemetry (the adjacency rule in effect when the hold was
// taken), never enforced here.
func NewHoldManager(holds HoldStore, rdb *redis.Client, clk clock.Clock, cfg HoldConfig, alloc allocator.Config) *HoldManager {
	m := &HoldManager{holds: holds, clk: clk, cfg: cfg, alloc: alloc}
	if rdb != nil {
		m.ctr = rdb
	}
	return m
}

// Place validates the request, applies the rate limit and creates the
// hold atomically against concurrent holds and committed assignments.
// On conflict the returned error is a *allocator.HoldConflictError that
// names the offending hold and tables.
func (m *HoldManager) Place(ctx context.Context, req HoldRequest) (model.Hold, error) {
	ids, err := normalizeTableIDs(req.TableIDs)
	if err != nil {
		metrics.HoldsTotal.WithLabelValues("invalid").Inc()
		return model.Hold{}, err
	}
	if !req.Window.IsValid() {
		metrics.HoldsTotal.WithLabelValues("invalid").Inc()
		return model.Hold{}, &allocator.InputValidationError{Field: "window", Reason: "start must be before end"}
	}
	if req.RestaurantID == "" {
		metrics.HoldsTotal.WithLabelValues("invalid").Inc()
		return model.Hold{}, &allocator.InputValidationError{Field: "restaurant_id", Reason: "must not be empty"}
	}

	if err := m.allowProposal(ctx, req.BookingID); err != nil {
		metrics.HoldsTotal.WithLabelValues("rate_limited").Inc()
		m.publishOutcome(req, model.Hold{}, false, err.Error())
		return model.Hold{}, err
	}

	now := m.clk.Now()
	ttl := m.clampTTL(req.TTL)
	hold := model.Hold{
		RestaurantID: req.RestaurantID,
		BookingID:    req.BookingID,
		TableIDs:     ids,
		StartAt:      req.Window.StartAt,
		EndAt:        req.Window.EndAt,
		ExpiresAt:    now.Add(ttl),
		CreatedBy:    req.CreatedBy,
		CreatedAt:    now,
	}
	created, err := m.holds.Create(ctx, hold, req.ExcludeHoldID)
	if err != nil {
		metrics.HoldsTotal.WithLabelValues("conflict").Inc()
		m.publishOutcome(req, model.Hold{}, false, err.Error())
		return model.Hold{}, err
	}
	metrics.HoldsTotal.WithLabelValues("accepted").Inc()
	m.publishOutcome(req, created, true, "")
	return created, nil
}

// Release removes a hold. Releasing an unknown or already expired hold
// succeeds, so retries and races with the sweeper are harmless.
func (m *HoldManager) Release(ctx context.Context, holdID string) error {
	if holdID == "" {
		return &allocator.InputValidationError{Field: "hold_id", Reason: "must not be empty"}
	}
	return m.holds.Release(ctx, holdID)
}

// Sweep deletes up to limit expired holds and returns how many were
// removed. Expiry is already passive for correctness; the sweep only
// keeps the table small.
func (m *HoldManager) Sweep(ctx context.Context, limit int) (int, error) {
	return m.holds.SweepExpired(ctx, m.clk.Now(), limit)
}

// clampTTL resolves the effective hold TTL: the default when the
// caller sent none, otherwise the request clamped into [MinTTL, MaxTTL].
func (m *HoldManager) clampTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return m.cfg.DefaultTTL
	}
	if requested < m.cfg.MinTTL {
		return m.cfg.MinTTL
	}
	if requested > m.cfg.MaxTTL {
		return m.cfg.MaxTTL
	}
	return requested
}

// allowProposal enforces the per-booking proposal rate limit with a
// Redis counter that expires after the window. Fail-open on Redis
// errors: a broken limiter must not block the booking flow.
func (m *HoldManager) allowProposal(ctx context.Context, bookingID string) error {
	if m.ctr == nil || m.cfg.RateLimitMax <= 0 || bookingID == "" {
		return nil
	}
	key := fmt.Sprintf("alloc:holdrl:%s", bookingID)
	count, err := m.ctr.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("hold-manager: rate limit check failed, allowing: %v", err)
		return nil
	}
	if count == 1 {
		if err := m.ctr.Expire(ctx, key, m.cfg.RateLimitWindow).Err(); err != nil {
			log.Printf("hold-manager: rate limit expire failed: %v", err)
		}
	}
	if int(count) > m.cfg.RateLimitMax {
		return &allocator.RateLimitError{BookingID: bookingID, Limit: m.cfg.RateLimitMax, Window: m.cfg.RateLimitWindow}
	}
	return nil
}

func (m *HoldManager) publishOutcome(req HoldRequest, hold model.Hold, accepted bool, reason string) {
	ev := m.outcomeEvent(req, hold, accepted, reason)
	go func() { _ = queue.PublishHoldOutcome(context.Background(), ev) }()
}

// outcomeEvent builds the telemetry payload for one hold proposal,
// including the adjacency policy in effect when it was taken.
func (m *HoldManager) outcomeEvent(req HoldRequest, hold model.Hold, accepted bool, reason string) queue.HoldOutcomeEvent {
	return queue.HoldOutcomeEvent{
		HoldID:            hold.ID,
		BookingID:         req.BookingID,
		RestaurantID:      req.RestaurantID,
		TableIDs:          req.TableIDs,
		Accepted:          accepted,
		Reason:            reason,
		AdjacencyRequired: m.alloc.AdjacencyRequired,
		TTLSeconds:        int(m.clampTTL(req.TTL) / time.Second),
		ActorID:           req.CreatedBy,
		OccurredAt:        m.clk.Now().Format(time.RFC3339),
	}
}

// normalizeTableIDs dedupes and sorts the requested ids, rejecting an
// empty selection or blank ids.
func normalizeTableIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, &allocator.InputValidationError{Field: "table_ids", Reason: "must not be empty"}
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, &allocator.InputValidationError{Field: "table_ids", Reason: "must not contain blank ids"}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
