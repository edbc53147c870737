package model

import "time"

// Mobility describes whether a table can be physically moved and
// therefore participate in merged (multi-table) assignments.
type Mobility string

const (
    MobilityMovable Mobility = "movable"
    MobilityFixed   Mobility = "fixed"
)

// Table describes one physical table in a restaurant's inventory.
// A table is immutable for the duration of a single allocation
// decision; the repository layer constructs it once from a row in
// the `restaurant_tables` table and the engine never mutates it.
//
// Fields:
//  ID           – primary key (UUID).
//  RestaurantID – owning restaurant.
//  TableNumber  – display label shown to staff (e.g. "T12").
//  Capacity     – number of seats.
//  MinPartySize – smallest party the table may be given to (0 = no bound).
//  MaxPartySize – largest party the table may seat alone (0 = no bound).
//  ZoneID       – seating zone the table belongs to.
//  Mobility     – movable tables may be merged; fixed tables may not.
//  SeatingType  – category such as "standard", "booth", "outdoor".
//  IsActive     – inactive tables are invisible to the allocator.
//  PosX, PosY   – optional floor-plan position (nil when unset).
type Table struct {
    ID           string     // restaurant_tables.id
    RestaurantID string     // restaurant_tables.restaurant_id
    TableNumber  string     // restaurant_tables.table_number
    Capacity     int        // restaurant_tables.capacity
    MinPartySize int        // restaurant_tables.min_party_size
    MaxPartySize int        // restaurant_tables.max_party_size
    ZoneID       string     // restaurant_tables.zone_id
    Mobility     Mobility   // restaurant_tables.mobility
    SeatingType  string     // restaurant_tables.seating_type
    IsActive     bool       // restaurant_tables.is_active
    PosX         *float64   // restaurant_tables.pos_x (nullable)
    PosY         *float64   // restaurant_tables.pos_y (nullable)
    UpdatedAt    time.Time  // restaurant_tables.updated_at
}
