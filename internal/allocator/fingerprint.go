package allocator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/tablewise/tablewise/internal/model"
)

// Snapshot is the logical read set of one allocation decision: the
// inventory, the merge graph, and the holds and bookings overlapping
// the decision's window. Its fingerprint is the contextVersion that
// staleness checks compare against.
type Snapshot struct {
	Tables   []model.Table
	Graph    Graph
	Holds    []model.Hold
	Bookings []model.Booking
}

// Fingerprint hashes a canonical rendering of the snapshot. Two
// snapshots that differ in any table attribute, merge edge, live hold
// or booking window produce different versions; field order and slice
// order do not matter.
func (s Snapshot) Fingerprint() string {
	var parts []string
	for _, t := range s.Tables {
		parts = append(parts, fmt.Sprintf("t:%s|%d|%d|%d|%s|%s|%v",
			t.ID, t.Capacity, t.MinPartySize, t.MaxPartySize, t.ZoneID, t.Mobility, t.IsActive))
	}
	for id, neighbors := range s.Graph {
		ns := make([]string, 0, len(neighbors))
		for n := range neighbors {
			ns = append(ns, n)
		}
		sort.Strings(ns)
		parts = append(parts, "e:"+id+">"+strings.Join(ns, ","))
	}
	for _, h := range s.Holds {
		ids := make([]string, len(h.TableIDs))
		copy(ids, h.TableIDs)
		sort.Strings(ids)
		parts = append(parts, fmt.Sprintf("h:%s|%s|%d|%d|%d",
			h.ID, strings.Join(ids, ","), h.StartAt.Unix(), h.EndAt.Unix(), h.ExpiresAt.Unix()))
	}
	for _, b := range s.Bookings {
		parts = append(parts, fmt.Sprintf("b:%s|%d|%d|%d|%s",
			b.ID, b.PartySize, b.StartAt.Unix(), b.EndAt.Unix(), b.Status))
	}
	sort.Strings(parts)
	sum := xxh3.Hash128([]byte(strings.Join(parts, ";"))).Bytes()
	return fmt.Sprintf("%x", sum)
}

// LiveHolds filters the snapshot's holds down to the ones still in
// force at the given instant.
func (s Snapshot) LiveHolds(now time.Time) []model.Hold {
	live := make([]model.Hold, 0, len(s.Holds))
	for _, h := range s.Holds {
		if h.Live(now) {
			live = append(live, h)
		}
	}
	return live
}
