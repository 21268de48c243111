package postgres

import "time"

// DisableFilterScoping turns off tenant filter injection so tests can show the
// row-level security policies hold on their own.
func (g *Gateway) DisableFilterScoping() { g.scopeFilters = false }

// SetClock fixes the time stamped on audit events.
func (g *Gateway) SetClock(now func() time.Time) { g.now = now }
