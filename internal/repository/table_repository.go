package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tablewise/tablewise/internal/model"
)

// TableRepo provides read access to a restaurant's table inventory
// and pairwise adjacency. Both reads return a static-per-request view:
// the engine treats the result as an immutable snapshot for the
// duration of one allocation decision.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo returns a TableRepo bound to the provided database.
func NewTableRepo(db *sql.DB) *TableRepo { return &TableRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions
// spanning multiple repositories.
func (r *TableRepo) DB() *sql.DB { return r.db }

// ListActive returns every active table of the restaurant.
func (r *TableRepo) ListActive(ctx context.Context, restaurantID string) ([]model.Table, error) {
	const q = `SELECT id, restaurant_id, table_number, capacity, min_party_size, max_party_size,
        zone_id, mobility, seating_type, is_active, pos_x, pos_y, updated_at
        FROM restaurant_tables WHERE restaurant_id = ? AND is_active = 1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []model.Table
	for rows.Next() {
		var t model.Table
		var posX, posY sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.RestaurantID, &t.TableNumber, &t.Capacity, &t.MinPartySize,
			&t.MaxPartySize, &t.ZoneID, &t.Mobility, &t.SeatingType, &t.IsActive, &posX, &posY, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if posX.Valid {
			v := posX.Float64
			t.PosX = &v
		}
		if posY.Valid {
			v := posY.Float64
			t.PosY = &v
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// ListAdjacency returns the merge edges among the given tables as
// directed pairs; the graph layer normalizes them to an undirected
// relation. Edges pointing at tables outside the id set are dropped so
// the graph stays scoped to the tables under consideration.
func (r *TableRepo) ListAdjacency(ctx context.Context, restaurantID string, tableIDs []string) ([][2]string, error) {
	if len(tableIDs) == 0 {
		return nil, nil
	}
	q := `SELECT table_id, neighbor_id FROM table_adjacencies
        WHERE restaurant_id = ? AND table_id IN (` + placeholders(len(tableIDs)) + `)`
	args := make([]any, 0, 1+len(tableIDs))
	args = append(args, restaurantID)
	for _, id := range tableIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	member := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		member[id] = true
	}
	var edges [][2]string
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		if member[from] && member[to] {
			edges = append(edges, [2]string{from, to})
		}
	}
	return edges, rows.Err()
}

// placeholders renders a comma-separated "?, ?, ..." list for IN
// clauses of the given length.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
