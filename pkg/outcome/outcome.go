// Package outcome models calls that degrade instead of failing: a value is
// either Ok with data or Failed with the reason the data is missing.
package outcome

import "errors"

var errUnknown = errors.New("failed without reason")

type Outcome[T any] struct {
	value T
	err   error
	ok    bool
}

func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{value: value, ok: true}
}

func Failed[T any](reason error) Outcome[T] {
	if reason == nil {
		reason = errUnknown
	}
	return Outcome[T]{err: reason}
}

func (o Outcome[T]) OK() bool {
	return o.ok
}

// Value returns the zero value of T for a failed outcome.
func (o Outcome[T]) Value() T {
	return o.value
}

func (o Outcome[T]) Err() error {
	return o.err
}

func (o Outcome[T]) Get() (T, error) {
	return o.value, o.err
}
