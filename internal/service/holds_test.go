package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/model"
)

// fakeCounter stands in for the Redis client behind the proposal rate
// limiter: INCR counts per key, EXPIRE records the window.
type fakeCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	windows map[string]time.Duration
	incrErr error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, windows: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if f.incrErr != nil {
		cmd.SetErr(f.incrErr)
		return cmd
	}
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[key] = ttl
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func holdRequest(env *testEnv, tables ...string) HoldRequest {
	b := env.st.bookings["b1"]
	return HoldRequest{
		RestaurantID: testRestaurant,
		BookingID:    b.ID,
		TableIDs:     tables,
		Window:       b.Window(),
		CreatedBy:    "host-1",
	}
}

func TestHoldPlaceAndExpiry(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	hold, err := env.holds.Place(ctx, holdRequest(env, "C"))
	require.NoError(t, err)
	require.NotEmpty(t, hold.ID)
	// No TTL in the request: the default applies.
	require.Equal(t, env.clk.Now().Add(3*time.Minute), hold.ExpiresAt)
	require.True(t, hold.Live(env.clk.Now()))

	env.clk.Advance(3 * time.Minute)
	require.False(t, hold.Live(env.clk.Now()))
}

func TestHoldTTLClamping(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	short := holdRequest(env, "C")
	short.TTL = time.Second
	h1, err := env.holds.Place(ctx, short)
	require.NoError(t, err)
	require.Equal(t, env.clk.Now().Add(30*time.Second), h1.ExpiresAt)

	long := holdRequest(env, "D")
	long.TTL = time.Hour
	h2, err := env.holds.Place(ctx, long)
	require.NoError(t, err)
	require.Equal(t, env.clk.Now().Add(10*time.Minute), h2.ExpiresAt)
}

func TestHoldValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	var verr *allocator.InputValidationError

	empty := holdRequest(env)
	_, err := env.holds.Place(ctx, empty)
	require.ErrorAs(t, err, &verr)

	backwards := holdRequest(env, "C")
	backwards.Window = model.Window{StartAt: backwards.Window.EndAt, EndAt: backwards.Window.StartAt}
	_, err = env.holds.Place(ctx, backwards)
	require.ErrorAs(t, err, &verr)
}

func TestHoldConflictNamesOffendingHold(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	first, err := env.holds.Place(ctx, holdRequest(env, "C"))
	require.NoError(t, err)

	other := holdRequest(env, "C")
	other.BookingID = "b2"
	_, err = env.holds.Place(ctx, other)
	var conflict *allocator.HoldConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, first.ID, conflict.HoldID)
	require.Equal(t, []string{"C"}, conflict.TableIDs)
}

func TestHoldExclusionReplacesOwnHold(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	first, err := env.holds.Place(ctx, holdRequest(env, "C"))
	require.NoError(t, err)

	// Same tables, no exclusion: the hold blocks even its own booking.
	_, err = env.holds.Place(ctx, holdRequest(env, "C"))
	var conflict *allocator.HoldConflictError
	require.ErrorAs(t, err, &conflict)

	// With the exclusion the reshape succeeds and the old hold is gone.
	reshape := holdRequest(env, "C", "D")
	reshape.ExcludeHoldID = first.ID
	second, err := env.holds.Place(ctx, reshape)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	env.st.mu.Lock()
	_, oldExists := env.st.holds[first.ID]
	env.st.mu.Unlock()
	require.False(t, oldExists)
}

func TestHoldExpiredDoesNotConflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	_, err := env.holds.Place(ctx, holdRequest(env, "C"))
	require.NoError(t, err)

	// Past the default TTL the hold stops counting without any sweep.
	env.clk.Advance(4 * time.Minute)
	other := holdRequest(env, "C")
	other.BookingID = "b2"
	_, err = env.holds.Place(ctx, other)
	require.NoError(t, err)
}

func TestHoldProposalRateLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	ctr := newFakeCounter()
	env.holds.ctr = ctr
	env.holds.cfg.RateLimitMax = 2

	_, err := env.holds.Place(ctx, holdRequest(env, "C"))
	require.NoError(t, err)
	_, err = env.holds.Place(ctx, holdRequest(env, "D"))
	require.NoError(t, err)

	// Third proposal within the window trips the limit.
	_, err = env.holds.Place(ctx, holdRequest(env, "B"))
	var limited *allocator.RateLimitError
	require.ErrorAs(t, err, &limited)
	require.Equal(t, "b1", limited.BookingID)
	require.Equal(t, 2, limited.Limit)

	ctr.mu.Lock()
	window := ctr.windows["alloc:holdrl:b1"]
	ctr.mu.Unlock()
	require.Equal(t, time.Minute, window)

	env.st.mu.Lock()
	stored := len(env.st.holds)
	env.st.mu.Unlock()
	require.Equal(t, 2, stored)
}

func TestHoldRateLimitFailsOpen(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	ctr := newFakeCounter()
	ctr.incrErr = errors.New("connection refused")
	env.holds.ctr = ctr
	env.holds.cfg.RateLimitMax = 1

	// A broken limiter must not block the booking flow.
	_, err := env.holds.Place(ctx, holdRequest(env, "C"))
	require.NoError(t, err)
	_, err = env.holds.Place(ctx, holdRequest(env, "D"))
	require.NoError(t, err)
}

func TestHoldOutcomeEventCarriesAdjacencyPolicy(t *testing.T) {
	t.Parallel()

	env := newTestEnv()

	req := holdRequest(env, "C")
	ev := env.holds.outcomeEvent(req, model.Hold{ID: "h1"}, true, "")
	require.True(t, ev.AdjacencyRequired)
	require.Equal(t, "h1", ev.HoldID)
	require.Equal(t, "b1", ev.BookingID)
	require.Equal(t, 180, ev.TTLSeconds)
}

func TestHoldReleaseIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	hold, err := env.holds.Place(ctx, holdRequest(env, "C"))
	require.NoError(t, err)
	require.NoError(t, env.holds.Release(ctx, hold.ID))
	require.NoError(t, env.holds.Release(ctx, hold.ID))
}

func TestHoldSweepRemovesOnlyExpired(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	_, err := env.holds.Place(ctx, holdRequest(env, "C"))
	require.NoError(t, err)
	env.clk.Advance(5 * time.Minute) // first hold expires

	live, err := env.holds.Place(ctx, holdRequest(env, "D"))
	require.NoError(t, err)

	removed, err := env.holds.Sweep(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	env.st.mu.Lock()
	_, liveExists := env.st.holds[live.ID]
	remaining := len(env.st.holds)
	env.st.mu.Unlock()
	require.True(t, liveExists)
	require.Equal(t, 1, remaining)
}
