package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/model"
)

func openSession(t *testing.T, env *testEnv) (model.AssignmentSession, Quote) {
	t.Helper()
	session, quote, err := env.sessions.Open(context.Background(), "b1", "host-1")
	require.NoError(t, err)
	return session, quote
}

func TestSessionOpenCreatesActiveSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	session, quote := openSession(t, env)

	require.Equal(t, model.SessionActive, session.State)
	require.Equal(t, 0, session.SelectionVersion)
	require.NotEmpty(t, quote.ContextVersion)

	// Party of four: the exact-fit four-top beats the A+B merge.
	require.Equal(t, []string{"C"}, quote.Top.TableIDs)
	require.Equal(t, []string{"A", "B"}, quote.Plans[1].TableIDs)
}

func TestSessionProposeAdvancesVersion(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	session, quote := openSession(t, env)

	res, err := env.sessions.Propose(context.Background(), ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"C"},
		ContextVersion:   quote.ContextVersion,
		SelectionVersion: session.SelectionVersion,
		ActorID:          "host-1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Session.SelectionVersion)
	require.Equal(t, model.SessionProposed, res.Session.State)
	require.Equal(t, []string{"C"}, res.Session.SelectedTables)
	for _, check := range res.Checks {
		require.True(t, check.OK, check.Name)
	}
}

func TestSessionProposeRejectsWrongVersion(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	_, quote := openSession(t, env)

	_, err := env.sessions.Propose(context.Background(), ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"C"},
		ContextVersion:   quote.ContextVersion,
		SelectionVersion: 7,
	})
	var conflict *allocator.SessionConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "version_mismatch", conflict.Code)
	require.Equal(t, 0, conflict.Expected)
	require.Equal(t, 7, conflict.Provided)
}

func TestSessionProposeRejectsStaleContext(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	session, _ := openSession(t, env)

	_, err := env.sessions.Propose(context.Background(), ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"C"},
		ContextVersion:   "someone-elses-world",
		SelectionVersion: session.SelectionVersion,
	})
	var stale *allocator.StaleContextError
	require.ErrorAs(t, err, &stale)
	require.NotEmpty(t, stale.Expected)
	require.Equal(t, "someone-elses-world", stale.Provided)
}

func TestSessionChecklistCapacityFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	session, quote := openSession(t, env)

	res, err := env.sessions.Propose(context.Background(), ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"A"},
		ContextVersion:   quote.ContextVersion,
		SelectionVersion: session.SelectionVersion,
	})
	var capErr *allocator.CapacityError
	require.ErrorAs(t, err, &capErr)
	require.NotEmpty(t, res.Checks)
	require.Equal(t, "capacity", res.Checks[0].Name)
	require.False(t, res.Checks[0].OK)
}

func TestSessionChecklistSlackBudget(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	session, quote := openSession(t, env)

	// C+D seats 10 for a party of 4: capacity passes, slack (6 > 4) fails.
	res, err := env.sessions.Propose(context.Background(), ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"C", "D"},
		ContextVersion:   quote.ContextVersion,
		SelectionVersion: session.SelectionVersion,
	})
	var capErr *allocator.CapacityError
	require.ErrorAs(t, err, &capErr)

	byName := map[string]Check{}
	for _, c := range res.Checks {
		byName[c.Name] = c
	}
	require.True(t, byName["capacity"].OK)
	require.False(t, byName["slack"].OK)
}

func TestSessionChecklistCommittedConflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()

	// Another booking already owns C for an overlapping window.
	other := testBooking("b2", 4, 19, 21)
	env.st.mu.Lock()
	env.st.bookings[other.ID] = other
	env.st.mu.Unlock()
	_, err := env.committer.Commit(ctx, "b2", []string{"C"}, "host-2")
	require.NoError(t, err)

	session, quote := openSession(t, env)
	res, err := env.sessions.Propose(ctx, ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"C"},
		ContextVersion:   quote.ContextVersion,
		SelectionVersion: session.SelectionVersion,
	})
	var conflict *allocator.HoldConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, []string{"C"}, conflict.TableIDs)

	byName := map[string]Check{}
	for _, c := range res.Checks {
		byName[c.Name] = c
	}
	require.False(t, byName["conflict"].OK)
}

func TestSessionProposeWithHold(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	session, quote := openSession(t, env)

	res, err := env.sessions.Propose(context.Background(), ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"A", "B"},
		ContextVersion:   quote.ContextVersion,
		SelectionVersion: session.SelectionVersion,
		Hold:             true,
		ActorID:          "host-1",
	})
	require.NoError(t, err)
	require.Equal(t, model.SessionHeld, res.Session.State)
	require.Equal(t, res.Hold.ID, res.Session.HoldID)
	require.Equal(t, []string{"A", "B"}, res.Hold.TableIDs)
}

func TestSessionReproposeReplacesHold(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()
	session, quote := openSession(t, env)

	first, err := env.sessions.Propose(ctx, ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"C"},
		ContextVersion:   quote.ContextVersion,
		SelectionVersion: session.SelectionVersion,
		Hold:             true,
	})
	require.NoError(t, err)

	// Re-quote: the session's own hold is excluded, so the context
	// version still matches and C still shows as available to us.
	s2, q2, err := env.sessions.Open(ctx, "b1", "host-1")
	require.NoError(t, err)
	require.Equal(t, 1, s2.SelectionVersion)

	second, err := env.sessions.Propose(ctx, ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"A", "B"},
		ContextVersion:   q2.ContextVersion,
		SelectionVersion: s2.SelectionVersion,
		Hold:             true,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.Hold.ID, second.Hold.ID)

	env.st.mu.Lock()
	_, oldExists := env.st.holds[first.Hold.ID]
	env.st.mu.Unlock()
	require.False(t, oldExists)
}

func TestSessionConfirmCommitsAndConsumesHold(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()
	session, quote := openSession(t, env)

	held, err := env.sessions.Propose(ctx, ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"A", "B"},
		ContextVersion:   quote.ContextVersion,
		SelectionVersion: session.SelectionVersion,
		Hold:             true,
		ActorID:          "host-1",
	})
	require.NoError(t, err)

	res, err := env.sessions.Confirm(ctx, ConfirmRequest{
		BookingID:        "b1",
		SelectionVersion: held.Session.SelectionVersion,
		ActorID:          "host-1",
	})
	require.NoError(t, err)
	require.Equal(t, model.SessionConfirmed, res.Session.State)
	require.Empty(t, res.Session.HoldID)
	require.Len(t, res.Assignments, 2)
	require.NotEmpty(t, res.Assignments[0].MergeGroupID)

	// The hold was consumed by the commit.
	env.st.mu.Lock()
	holdCount := len(env.st.holds)
	linkCount := len(env.st.links)
	env.st.mu.Unlock()
	require.Zero(t, holdCount)
	require.Equal(t, 2, linkCount)
}

func TestSessionConfirmRejectsActiveState(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	session, _ := openSession(t, env)

	_, err := env.sessions.Confirm(context.Background(), ConfirmRequest{
		BookingID:        "b1",
		SelectionVersion: session.SelectionVersion,
	})
	var conflict *allocator.SessionConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "state", conflict.Code)
}

func TestSessionConfirmRejectsStaleWorld(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()
	session, quote := openSession(t, env)

	proposed, err := env.sessions.Propose(ctx, ProposeRequest{
		BookingID:        "b1",
		TableIDs:         []string{"C"},
		ContextVersion:   quote.ContextVersion,
		SelectionVersion: session.SelectionVersion,
	})
	require.NoError(t, err)

	// The world changes between propose and confirm: someone else
	// holds D for an overlapping window.
	other := holdRequest(env, "D")
	other.BookingID = "b2"
	_, err = env.holds.Place(ctx, other)
	require.NoError(t, err)

	_, err = env.sessions.Confirm(ctx, ConfirmRequest{
		BookingID:        "b1",
		SelectionVersion: proposed.Session.SelectionVersion,
	})
	var stale *allocator.StaleContextError
	require.ErrorAs(t, err, &stale)
}

func TestSessionConcurrentProposalsOneWinner(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	ctx := context.Background()
	session, quote := openSession(t, env)

	selections := [][]string{{"C"}, {"A", "B"}}
	errs := make([]error, len(selections))
	var wg sync.WaitGroup
	for i, tables := range selections {
		wg.Add(1)
		go func(i int, tables []string) {
			defer wg.Done()
			_, errs[i] = env.sessions.Propose(ctx, ProposeRequest{
				BookingID:        "b1",
				TableIDs:         tables,
				ContextVersion:   quote.ContextVersion,
				SelectionVersion: session.SelectionVersion,
			})
		}(i, tables)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var conflict *allocator.SessionConflictError
		require.ErrorAs(t, err, &conflict)
	}
	require.Equal(t, 1, winners)
}
