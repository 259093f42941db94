// Package rngtest provides a scripted RNG for deterministic tests.
package rngtest

import (
	"errors"
	"fmt"
	"sync"
)

// ErrExhausted is returned once every scripted value has been consumed.
var ErrExhausted = errors.New("rngtest: sequence exhausted")

// Sequence returns scripted values in order. Values are returned as-is for
// both Roll and RandomInt, so a test controls every face exactly.
type Sequence struct {
	mu     sync.Mutex
	values []int
	calls  int
	sides  []int
}

// New returns a Sequence yielding values in order.
func New(values ...int) *Sequence {
	return &Sequence{values: append([]int(nil), values...)}
}

// Push appends more scripted values.
func (s *Sequence) Push(values ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, values...)
}

// Roll returns the next scripted value. It fails if the value is not a valid
// face for sides, which catches mistakes in the script itself.
func (s *Sequence) Roll(sides int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.sides = append(s.sides, sides)
	if len(s.values) == 0 {
		return 0, ErrExhausted
	}
	v := s.values[0]
	s.values = s.values[1:]
	if v < 1 || v > sides {
		return 0, fmt.Errorf("rngtest: scripted face %d out of range for d%d", v, sides)
	}
	return v, nil
}

// RandomInt returns the next scripted value.
func (s *Sequence) RandomInt(low, high int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.values) == 0 {
		return 0, ErrExhausted
	}
	v := s.values[0]
	s.values = s.values[1:]
	return v, nil
}

// Ping always succeeds.
func (s *Sequence) Ping() bool { return true }

// Calls reports how many values were requested.
func (s *Sequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Remaining reports how many scripted values are left.
func (s *Sequence) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Sides lists the die sizes requested through Roll, in order.
func (s *Sequence) Sides() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.sides...)
}
