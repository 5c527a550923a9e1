// Package store holds the SQL for every table. Functions take the data-access
// handle explicitly so the same code runs against a *sqlx.DB or a *sqlx.Tx,
// on PostgreSQL or SQLite. Queries are written with ? placeholders and rebound
// for the driver in use.
package store

import (
	"time"
)

const (
	TableProfiles = "profiles"
	TableProducts = "products"
	TableOrders   = "orders"
	TableRequests = "recycle_requests"
)

// now truncates to microseconds so values survive a PostgreSQL round trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
