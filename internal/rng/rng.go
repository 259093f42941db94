// Package rng provides the random number capability used by dice resolution.
//
// Two providers satisfy RNG: Local draws from crypto/rand, Remote queries an
// rngd-compatible daemon over the line protocol. Which one is used is decided
// once, at construction time, by configuration.
package rng

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned when low > high or sides < 1.
	ErrInvalidRange = errors.New("invalid random range")
	// ErrBadResponse is returned when a remote provider answers with anything but "OK <n>".
	ErrBadResponse = errors.New("bad rng response")
)

// RNG produces uniformly distributed integers.
type RNG interface {
	// Roll returns a single die face in [1, sides].
	Roll(sides int) (int, error)
	// RandomInt returns an integer in the closed range [low, high].
	RandomInt(low, high int) (int, error)
	// Ping reports whether the provider is usable.
	Ping() bool
}

func checkSides(sides int) error {
	if sides < 1 {
		return fmt.Errorf("%w: die with %d sides", ErrInvalidRange, sides)
	}
	return nil
}

func checkRange(low, high int) error {
	if low > high {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, low, high)
	}
	return nil
}
