package cell

import (
	"reflect"
	"sync"
)

// Source is a mutable reactive value container.
// Reading a Source's value during a tracked evaluation (derived-cell
// computation, watch, or effect execution) automatically subscribes the
// current listener to receive notifications when the value changes.
type Source[T any] struct {
	base cellBase

	// value is the current value.
	value T

	// mu protects the value.
	mu sync.RWMutex

	// equal is the equality function used to decide whether a write
	// changed the value. If nil, uses default equality checking.
	equal func(T, T) bool
}

// NewSource creates a new source cell with the given initial value.
func NewSource[T any](initial T) *Source[T] {
	return &Source[T]{
		base:  cellBase{id: nextID()},
		value: initial,
	}
}

// Get returns the current value and subscribes the current listener.
func (s *Source[T]) Get() T {
	s.mu.RLock()
	value := s.value
	s.mu.RUnlock()

	// Track after releasing the value lock to prevent deadlock.
	s.base.track()

	return value
}

// Peek returns the current value without subscribing.
func (s *Source[T]) Peek() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set assigns the value and, if it changed under the cell's equality
// policy, synchronously propagates to all listeners and downstream
// derived cells. Set returns after the propagation wave has run.
// Writing an equal value notifies nothing.
func (s *Source[T]) Set(value T) {
	s.mu.Lock()
	changed := !s.equals(s.value, value)
	if changed {
		s.value = value
	}
	s.mu.Unlock()

	if changed {
		fire(&s.base)
	}
}

// Update atomically reads and updates the value.
// The function receives the current value and returns the new one.
func (s *Source[T]) Update(fn func(T) T) {
	s.mu.Lock()
	oldValue := s.value
	newValue := fn(oldValue)
	changed := !s.equals(oldValue, newValue)
	if changed {
		s.value = newValue
	}
	s.mu.Unlock()

	if changed {
		fire(&s.base)
	}
}

// WithEquals configures the cell with a custom equality function.
// Useful for types where reflect.DeepEqual is too expensive or has the
// wrong semantics.
func (s *Source[T]) WithEquals(fn func(T, T) bool) *Source[T] {
	s.equal = fn
	return s
}

// Watch registers fn to run on every future change of this cell (not the
// current value). Delivery order across watchers of one cell is
// registration order. The returned cancel is idempotent. The watch is
// owned by the ambient scope, if any.
func (s *Source[T]) Watch(fn func(T)) (cancel func()) {
	return newWatch[T](&s.base, s.Peek, fn)
}

// WatchNow runs fn once with the current value, then behaves like Watch.
func (s *Source[T]) WatchNow(fn func(T)) (cancel func()) {
	fn(s.Peek())
	return s.Watch(fn)
}

// ID returns the unique identifier for this cell.
func (s *Source[T]) ID() uint64 {
	return s.base.id
}

func (s *Source[T]) equals(a, b T) bool {
	if s.equal != nil {
		return s.equal(a, b)
	}
	return defaultEquals(a, b)
}

// defaultEquals provides type-appropriate equality checking.
// Uses == for the common comparable types and reflect.DeepEqual for the
// rest (slices, maps, structs).
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int8:
		return av == any(b).(int8)
	case int16:
		return av == any(b).(int16)
	case int32:
		return av == any(b).(int32)
	case int64:
		return av == any(b).(int64)
	case uint:
		return av == any(b).(uint)
	case uint8:
		return av == any(b).(uint8)
	case uint16:
		return av == any(b).(uint16)
	case uint32:
		return av == any(b).(uint32)
	case uint64:
		return av == any(b).(uint64)
	case float32:
		return av == any(b).(float32)
	case float64:
		return av == any(b).(float64)
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	default:
		return reflect.DeepEqual(a, b)
	}
}
