package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/clock"
	"github.com/tablewise/tablewise/internal/metrics"
	"github.com/tablewise/tablewise/internal/model"
	"github.com/tablewise/tablewise/internal/queue"
	"github.com/tablewise/tablewise/internal/repository"
)

// Failure categories steering the retry loop.
const (
	categoryHard      = "hard"
	categoryTransient = "transient"
	categoryUnknown   = "unknown"
)

// OrchestratorConfig tunes the auto-assign loop.
//
// RetryDelays is the attempt schedule: its length is the attempt
// budget and each entry is slept before the corresponding attempt, so
// {0s, 2s, 5s} means try immediately, retry after 2s, retry after 5s.
type OrchestratorConfig struct {
	RetryDelays    []time.Duration
	SearchTimeout  time.Duration
	ResultCacheTTL time.Duration
	InlineRecency  time.Duration
}

// AutoAssignResult is the orchestrator's answer for one booking. It is
// also the payload stored in Redis, so skipped re-runs can replay it.
type AutoAssignResult struct {
	BookingID  string    `json:"booking_id"`
	Success    bool      `json:"success"`
	TableIDs   []string  `json:"table_ids,omitempty"`
	Outcome    string    `json:"outcome"`
	Category   string    `json:"category,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Attempts   int       `json:"attempts"`
	ComputedAt time.Time `json:"computed_at"`
	FromCache  bool      `json:"from_cache,omitempty"`
}

// Orchestrator drives unattended table assignment: quote, pick the top
// plan, commit, with bounded retries for transient collisions. Hard
// failures are cached so bursts of identical requests do not hammer
// the search.
type Orchestrator struct {
	planner   *Planner
	committer *Committer
	bookings  BookingStore
	rdb       *redis.Client
	clk       clock.Clock
	cfg       OrchestratorConfig
}

// NewOrchestrator wires the orchestrator. The Redis client may be nil,
// which disables the result and last-outcome caches.
func NewOrchestrator(planner *Planner, committer *Committer, bookings BookingStore, rdb *redis.Client, clk clock.Clock, cfg OrchestratorConfig) *Orchestrator {
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = []time.Duration{0}
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 3 * time.Second
	}
	if cfg.ResultCacheTTL <= 0 {
		cfg.ResultCacheTTL = 30 * time.Second
	}
	if cfg.InlineRecency <= 0 {
		cfg.InlineRecency = 5 * time.Minute
	}
	return &Orchestrator{planner: planner, committer: committer, bookings: bookings, rdb: rdb, clk: clk, cfg: cfg}
}

// AutoAssign assigns tables to the booking without staff involvement.
// The returned error, when non-nil, is the typed failure of the final
// attempt; the result always describes the overall outcome.
func (o *Orchestrator) AutoAssign(ctx context.Context, bookingID, trigger string) (AutoAssignResult, error) {
	started := o.clk.Now()

	// A recent settled outcome for this booking short-circuits the
	// whole run: success means the booking is already seated, a hard
	// failure cannot change until the inventory does.
	if last, ok := o.loadResult(ctx, lastResultKey(bookingID)); ok {
		if o.clk.Now().Sub(last.ComputedAt) < o.cfg.InlineRecency && (last.Success || last.Category == categoryHard) {
			last.FromCache = true
			metrics.AttemptsTotal.WithLabelValues(trigger, "skipped").Inc()
			return last, resultError(last)
		}
	}

	booking, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return AutoAssignResult{BookingID: bookingID}, err
	}

	// Idempotence: a booking that already has committed links is done.
	if existing, err := o.committer.Assignments(ctx, bookingID); err == nil && len(existing) > 0 {
		ids := make([]string, 0, len(existing))
		for _, a := range existing {
			ids = append(ids, a.TableID)
		}
		res := AutoAssignResult{
			BookingID:  bookingID,
			Success:    true,
			TableIDs:   ids,
			Outcome:    "assigned",
			Reason:     "already assigned",
			ComputedAt: o.clk.Now(),
		}
		metrics.AttemptsTotal.WithLabelValues(trigger, "skipped").Inc()
		return res, nil
	}

	cacheKey := o.searchCacheKey(booking, trigger)
	if cached, ok := o.loadResult(ctx, cacheKey); ok && !cached.Success {
		cached.FromCache = true
		metrics.AttemptsTotal.WithLabelValues(trigger, "skipped").Inc()
		return cached, resultError(cached)
	}

	var (
		lastErr        error
		attempts       int
		unknownRetried bool
	)
	for _, delay := range o.cfg.RetryDelays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return AutoAssignResult{BookingID: bookingID, Attempts: attempts}, ctx.Err()
			case <-time.After(delay):
			}
		}
		attempts++

		tableIDs, err := o.attempt(ctx, bookingID)
		if err == nil {
			res := AutoAssignResult{
				BookingID:  bookingID,
				Success:    true,
				TableIDs:   tableIDs,
				Outcome:    "assigned",
				Attempts:   attempts,
				ComputedAt: o.clk.Now(),
			}
			o.storeResult(ctx, lastResultKey(bookingID), res, o.cfg.InlineRecency)
			o.publish(booking.RestaurantID, trigger, res, started)
			metrics.AttemptsTotal.WithLabelValues(trigger, "success").Inc()
			return res, nil
		}
		lastErr = err

		switch classifyFailure(err) {
		case categoryHard:
			res := o.failure(bookingID, categoryHard, attempts, err)
			o.storeResult(ctx, cacheKey, res, o.cfg.ResultCacheTTL)
			o.storeResult(ctx, lastResultKey(bookingID), res, o.cfg.InlineRecency)
			o.publish(booking.RestaurantID, trigger, res, started)
			metrics.AttemptsTotal.WithLabelValues(trigger, categoryHard).Inc()
			return res, err
		case categoryTransient:
			continue
		default:
			// Unknown failures get exactly one extra chance before the
			// run gives up without caching, so the next trigger retries.
			if unknownRetried {
				res := o.failure(bookingID, categoryUnknown, attempts, err)
				o.publish(booking.RestaurantID, trigger, res, started)
				metrics.AttemptsTotal.WithLabelValues(trigger, categoryUnknown).Inc()
				return res, err
			}
			unknownRetried = true
			continue
		}
	}

	res := o.failure(bookingID, "transient_exhausted", attempts, lastErr)
	o.publish(booking.RestaurantID, trigger, res, started)
	metrics.AttemptsTotal.WithLabelValues(trigger, "transient_exhausted").Inc()
	return res, lastErr
}

// attempt runs one quote-and-commit cycle. The search phase runs under
// its own timeout so a pathological inventory cannot stall the loop.
func (o *Orchestrator) attempt(ctx context.Context, bookingID string) ([]string, error) {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.SearchTimeout)
	quote, err := o.planner.QuoteBooking(sctx, bookingID)
	cancel()
	if err != nil {
		return nil, err
	}
	links, err := o.committer.Commit(ctx, bookingID, quote.Top.TableIDs, "system:auto-assign")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.TableID)
	}
	return ids, nil
}

func (o *Orchestrator) failure(bookingID, category string, attempts int, err error) AutoAssignResult {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return AutoAssignResult{
		BookingID:  bookingID,
		Outcome:    "failed",
		Category:   category,
		ErrorKind:  errorKind(err),
		Reason:     reason,
		Attempts:   attempts,
		ComputedAt: o.clk.Now(),
	}
}

func (o *Orchestrator) publish(restaurantID, trigger string, res AutoAssignResult, started time.Time) {
	cfg := o.planner.Config()
	ev := queue.AttemptOutcomeEvent{
		AttemptID:     uuid.NewString(),
		BookingID:     res.BookingID,
		RestaurantID:  restaurantID,
		Trigger:       trigger,
		Success:       res.Success,
		Reason:        res.Reason,
		Category:      res.Category,
		Attempts:      res.Attempts,
		TableIDs:      res.TableIDs,
		DurationMs:    o.clk.Now().Sub(started).Milliseconds(),
		AdjacencyMode: string(cfg.AdjacencyMode),
		KMax:          cfg.KMax,
		OccurredAt:    o.clk.Now().Format(time.RFC3339),
	}
	go func() { _ = queue.PublishAttemptOutcome(context.Background(), ev) }()
}

// errorKind names the typed failure of one attempt. The kind is stored
// in the cached result so a replay can rebuild an error of the same
// type.
func errorKind(err error) string {
	var (
		invalid  *allocator.InputValidationError
		capacity *allocator.CapacityError
		holdC    *allocator.HoldConflictError
		rate     *allocator.RateLimitError
		commitC  *allocator.CommitConflictError
	)
	switch {
	case errors.As(err, &invalid):
		return "invalid"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.As(err, &capacity):
		return "capacity"
	case errors.As(err, &holdC):
		return "hold_conflict"
	case errors.As(err, &rate):
		return "rate_limited"
	case errors.As(err, &commitC):
		return "commit_conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}

// classifyFailure buckets an attempt error. Hard failures cannot
// succeed on retry with unchanged inputs; transient ones are races
// over shared state and are worth retrying.
func classifyFailure(err error) string {
	switch errorKind(err) {
	case "invalid", "capacity", "not_found":
		return categoryHard
	case "hold_conflict", "rate_limited", "commit_conflict", "timeout":
		return categoryTransient
	default:
		return categoryUnknown
	}
}

// resultError reconstructs an error of the original type for a
// replayed failure result, so cached and fresh outcomes map to the
// same HTTP status.
func resultError(res AutoAssignResult) error {
	if res.Success {
		return nil
	}
	switch res.ErrorKind {
	case "invalid":
		return &allocator.InputValidationError{Field: "request", Reason: res.Reason}
	case "not_found":
		return repository.ErrNotFound
	case "hold_conflict":
		return &allocator.HoldConflictError{}
	case "rate_limited":
		return &allocator.RateLimitError{BookingID: res.BookingID}
	case "commit_conflict":
		return &allocator.CommitConflictError{BookingID: res.BookingID}
	default:
		return &allocator.CapacityError{Reason: res.Reason}
	}
}

func lastResultKey(bookingID string) string {
	return "alloc:last:" + bookingID
}

// searchCacheKey identifies a search by everything that shapes its
// outcome, so equivalent requests within the cache TTL share one
// cached failure. Only failures are stored under this key; a success
// belongs to exactly one booking and lives under lastResultKey.
func (o *Orchestrator) searchCacheKey(b model.Booking, trigger string) string {
	cfg := o.planner.Config()
	return fmt.Sprintf("alloc:result:%s:%s:%d:%d:%s:%d:%s",
		b.RestaurantID, b.BookingDate, b.StartAt.Unix(), b.PartySize, cfg.AdjacencyMode, cfg.KMax, trigger)
}

func (o *Orchestrator) loadResult(ctx context.Context, key string) (AutoAssignResult, bool) {
	if o.rdb == nil || key == "" {
		return AutoAssignResult{}, false
	}
	raw, err := o.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("orchestrator: result cache read failed: %v", err)
		}
		return AutoAssignResult{}, false
	}
	var res AutoAssignResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		log.Printf("orchestrator: result cache decode failed: %v", err)
		return AutoAssignResult{}, false
	}
	return res, true
}

func (o *Orchestrator) storeResult(ctx context.Context, key string, res AutoAssignResult, ttl time.Duration) {
	if o.rdb == nil || key == "" {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := o.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Printf("orchestrator: result cache write failed: %v", err)
	}
}
