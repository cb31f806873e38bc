// Package toggle implements optimistic boolean toggles whose truth is derived
// from cached relation lists.
package toggle

import "sync"

// Engine shows a predicted value while a toggle is in progress and server
// truth otherwise. It never stores truth itself: getValue is evaluated on
// every read.
type Engine struct {
	toggleFunction func(current bool)
	getIsPending   func() bool
	getValue       func() bool

	mu       sync.Mutex
	override bool
}

// NewEngine creates an Engine. The override starts at the current server value.
func NewEngine(toggleFunction func(current bool), getIsPending func() bool, getValue func() bool) *Engine {
	return &Engine{
		toggleFunction: toggleFunction,
		getIsPending:   getIsPending,
		getValue:       getValue,
		override:       getValue(),
	}
}

// Value returns the displayed value: the override while pending, otherwise
// the server-derived value.
func (e *Engine) Value() bool {
	if e.getIsPending() {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.override
	}
	return e.getValue()
}

// Toggle sets the override to false and fires toggleFunction with the
// server-derived value at click time, which selects the direction of the
// mutation.
//
// The override is always false, never the negation of the displayed value.
// Callers render false as "no optimistic affirmative".
func (e *Engine) Toggle() {
	e.mu.Lock()
	e.override = false
	e.mu.Unlock()

	e.toggleFunction(e.getValue())
}

// Use returns the displayed value and the toggle function as a pair.
func (e *Engine) Use() (bool, func()) {
	return e.Value(), e.Toggle
}
