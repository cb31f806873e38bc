// Package invalidation broadcasts cache invalidations between client
// processes over Google Cloud Pub/Sub, so a mutation made in one process
// refreshes the same keys everywhere.
package invalidation

import (
	"time"

	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
)

// originAttribute carries the publishing process id, so listeners can skip
// their own events without decoding them.
const originAttribute = "origin"

// Event is one broadcast invalidation.
type Event struct {
	Key        cache.Key `json:"key"`
	Exact      bool      `json:"exact"`
	Origin     string    `json:"origin"`
	MutationID string    `json:"mutation_id"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Invalidator applies an invalidation locally. *cache.QueryCache satisfies it.
type Invalidator interface {
	Invalidate(key cache.Key, exact bool)
}
