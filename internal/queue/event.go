// Package queue defines the telemetry payloads exchanged over the
// message broker and the background consumer that records them.
package queue

// AttemptOutcomeEvent is published after every allocation attempt,
// whether it succeeded, failed hard, or exhausted its transient
// retries. Downstream consumers can log, alert or aggregate without
// querying the primary database.
type AttemptOutcomeEvent struct {
	AttemptID     string   `json:"attempt_id"`
	BookingID     string   `json:"booking_id"`
	RestaurantID  string   `json:"restaurant_id"`
	Trigger       string   `json:"trigger"`
	Success       bool     `json:"success"`
	Reason        string   `json:"reason,omitempty"`
	Category      string   `json:"category,omitempty"`
	Attempts      int      `json:"attempts"`
	TableIDs      []string `json:"table_ids,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
	AdjacencyMode string   `json:"adjacency_mode"`
	KMax          int      `json:"k_max"`
	OccurredAt    string   `json:"occurred_at"`
}

// HoldOutcomeEvent is published for every hold proposal.
type HoldOutcomeEvent struct {
	HoldID            string   `json:"hold_id,omitempty"`
	BookingID         string   `json:"booking_id"`
	RestaurantID      string   `json:"restaurant_id"`
	TableIDs          []string `json:"table_ids"`
	Accepted          bool     `json:"accepted"`
	Reason            string   `json:"reason,omitempty"`
	AdjacencyRequired bool     `json:"adjacency_required"`
	TTLSeconds        int      `json:"ttl_seconds"`
	ActorID           string   `json:"actor_id,omitempty"`
	OccurredAt        string   `json:"occurred_at"`
}
