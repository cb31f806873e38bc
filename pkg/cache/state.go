package cache

import (
	"context"
	"time"
)

// Status is the resolution status of a cache entry.
type Status int

const (
	// StatusPending means the entry has never resolved.
	StatusPending Status = iota
	// StatusSuccess means the last fetch or write produced a value.
	StatusSuccess
	// StatusError means the last fetch failed after all retry attempts.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Fetcher loads the payload for one key. It must return the resource or fail.
type Fetcher func(ctx context.Context) (any, error)

// State is an immutable snapshot of one entry as seen by a subscriber.
type State struct {
	Key        Key
	Value      any
	HasValue   bool
	Status     Status
	IsFetching bool
	IsStale    bool
	Err        error
	FetchedAt  time.Time
	// Version increases every time the entry's value changes.
	Version uint64
}

// IsLoading is true only while the first-ever fetch for the key is in flight.
func (s State) IsLoading() bool {
	return s.IsFetching && !s.HasValue && s.Status != StatusError
}

// IsError is true from a failed fetch until the next successful one.
func (s State) IsError() bool {
	return s.Status == StatusError
}

// IsSuccess is true when the entry holds a resolved value and the last
// resolution did not fail.
func (s State) IsSuccess() bool {
	return s.Status == StatusSuccess
}

// settled reports whether nothing is in flight and the entry has resolved
// at least once, successfully or not.
func (s State) settled() bool {
	return !s.IsFetching && s.Status != StatusPending
}

// EntryInfo describes one entry for diagnostics.
type EntryInfo struct {
	Key         string    `json:"key"`
	Status      string    `json:"status"`
	IsFetching  bool      `json:"is_fetching"`
	IsStale     bool      `json:"is_stale"`
	Subscribers int       `json:"subscribers"`
	FetchedAt   time.Time `json:"fetched_at,omitempty"`
	Error       string    `json:"error,omitempty"`
	Version     uint64    `json:"version"`
}
