// Package history implements linear undo/redo over snapshots of any type.
package history

import "reflect"

const DefaultMaxSize = 100

// History keeps a present snapshot with the superseded past and the undone
// future. Recording a new state clears the future: history is linear.
type History[T any] struct {
	past    []T
	present T
	future  []T

	maxSize      int
	suppressDups bool
	equal        func(a, b T) bool
	ignore       func(present, next T) bool
}

type Option[T any] func(*History[T])

// WithMaxSize bounds the number of past entries; the oldest are dropped
// first. Values below 1 are ignored.
func WithMaxSize[T any](n int) Option[T] {
	return func(h *History[T]) {
		if n > 0 {
			h.maxSize = n
		}
	}
}

// WithDuplicateSuppression makes SetState a no-op when next equals present.
// Enabled by default.
func WithDuplicateSuppression[T any](on bool) Option[T] {
	return func(h *History[T]) { h.suppressDups = on }
}

// WithEqual replaces the structural equality used for duplicate suppression
// (reflect.DeepEqual by default).
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(h *History[T]) { h.equal = eq }
}

// WithIgnore installs a predicate; SetState calls for which it returns true
// are dropped.
func WithIgnore[T any](fn func(present, next T) bool) Option[T] {
	return func(h *History[T]) { h.ignore = fn }
}

func New[T any](initial T, opts ...Option[T]) *History[T] {
	h := &History[T]{
		present:      initial,
		maxSize:      DefaultMaxSize,
		suppressDups: true,
		equal:        func(a, b T) bool { return reflect.DeepEqual(a, b) },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *History[T]) Present() T {
	return h.present
}

// Past returns the past entries, oldest first.
func (h *History[T]) Past() []T {
	return append([]T(nil), h.past...)
}

// Future returns the undone entries in redo order.
func (h *History[T]) Future() []T {
	return append([]T(nil), h.future...)
}

func (h *History[T]) CanUndo() bool { return len(h.past) > 0 }
func (h *History[T]) CanRedo() bool { return len(h.future) > 0 }

// SetState records next as the new present. It reports whether the state was
// recorded; duplicates and ignored states are not.
func (h *History[T]) SetState(next T) bool {
	if h.suppressDups && h.equal(h.present, next) {
		return false
	}
	if h.ignore != nil && h.ignore(h.present, next) {
		return false
	}

	h.pushPast(h.present)
	h.future = nil
	h.present = next
	return true
}

// ReplaceState overwrites present without touching past or future, for
// frames that should not be undoable on their own.
func (h *History[T]) ReplaceState(next T) {
	h.present = next
}

// Rebase rewrites every snapshot, past, present and future, with fn. It is
// how a change made outside this history is folded into it. With duplicate
// suppression on, entries that fn made equal to their neighbour towards the
// present are dropped.
func (h *History[T]) Rebase(fn func(T) T) {
	for i := range h.past {
		h.past[i] = fn(h.past[i])
	}
	h.present = fn(h.present)
	for i := range h.future {
		h.future[i] = fn(h.future[i])
	}
	if !h.suppressDups {
		return
	}

	past := h.past[:0]
	for i, s := range h.past {
		next := h.present
		if i+1 < len(h.past) {
			next = h.past[i+1]
		}
		if !h.equal(s, next) {
			past = append(past, s)
		}
	}
	clear(h.past[len(past):])
	h.past = past

	future := h.future[:0]
	prev := h.present
	for _, s := range h.future {
		if !h.equal(prev, s) {
			future = append(future, s)
			prev = s
		}
	}
	clear(h.future[len(future):])
	h.future = future
}

// Undo moves back one step. It reports false when there is nothing to undo.
func (h *History[T]) Undo() bool {
	if len(h.past) == 0 {
		return false
	}

	last := len(h.past) - 1
	prev := h.past[last]
	var zero T
	h.past[last] = zero
	h.past = h.past[:last]

	h.future = append([]T{h.present}, h.future...)
	h.present = prev
	return true
}

// Redo moves forward one step. It reports false when there is nothing to redo.
func (h *History[T]) Redo() bool {
	if len(h.future) == 0 {
		return false
	}

	next := h.future[0]
	h.future = h.future[1:]

	h.pushPast(h.present)
	h.present = next
	return true
}

// Reset discards past and future and sets present to initial.
func (h *History[T]) Reset(initial T) {
	h.past = nil
	h.future = nil
	h.present = initial
}

func (h *History[T]) pushPast(s T) {
	h.past = append(h.past, s)
	if over := len(h.past) - h.maxSize; over > 0 {
		h.past = append(h.past[:0:0], h.past[over:]...)
	}
}
