// Package cache implements the TTL response cache shared by all REST
// operations.
//
// Each key carries its own TTL reflecting how volatile the underlying
// data is. Stale entries are evicted on read, never served. Clear is
// the only invalidation primitive: a single trade can touch portfolio,
// holdings, and sell-limit data at once, so everything is dropped.
package cache
