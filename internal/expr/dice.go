package expr

import (
	"fmt"
	"sort"

	"github.com/suderio/baator/internal/rng"
)

// RollDetail records how a dice term produced its result.
type RollDetail struct {
	Expression string `json:"expr"`
	Result     int    `json:"result"`
	Faces      []int  `json:"faces"`
	Kept       []int  `json:"kept"`
	Dropped    []int  `json:"dropped,omitempty"`
	Rerolled   []int  `json:"rerolled,omitempty"`
	Modifier   int    `json:"modifier"`
}

// Roll rolls the term against r and adds modifier to the kept faces.
//
// Each die is rolled, rerolled once if its face meets the reroll condition,
// then exploded while its newest face meets the threshold (at most
// MaxExplosions extra faces per die). Keep rules are applied to the whole
// pool afterwards.
func (d *Dice) Roll(r rng.RNG, modifier int) (RollDetail, error) {
	detail := RollDetail{Expression: d.Text, Modifier: modifier}
	if r == nil {
		return detail, newError(ErrNoRNG, d.Text, "cannot roll %s", d.Text)
	}

	roll := func() (int, error) {
		face, err := r.Roll(d.Sides)
		if err != nil {
			return 0, fmt.Errorf("roll d%d: %w", d.Sides, err)
		}
		return face, nil
	}

	for i := 0; i < d.Count; i++ {
		face, err := roll()
		if err != nil {
			return detail, err
		}
		if d.Reroll != nil && d.Reroll.Matches(face) {
			detail.Rerolled = append(detail.Rerolled, face)
			if face, err = roll(); err != nil {
				return detail, err
			}
		}
		detail.Faces = append(detail.Faces, face)

		if d.Explode == 0 {
			continue
		}
		for n := 0; face >= d.Explode && n < MaxExplosions; n++ {
			if face, err = roll(); err != nil {
				return detail, err
			}
			detail.Faces = append(detail.Faces, face)
		}
	}

	detail.Kept, detail.Dropped = keep(detail.Faces, d.Keep, d.KeepCount)
	detail.Result = modifier
	for _, f := range detail.Kept {
		detail.Result += f
	}
	return detail, nil
}

// keep selects min(n, len(faces)) faces. The pool is copied before sorting
// so Faces keeps the roll order.
func keep(faces []int, mode KeepMode, n int) (kept, dropped []int) {
	if mode == KeepAll {
		return append([]int(nil), faces...), nil
	}
	sorted := append([]int(nil), faces...)
	if mode == KeepHighest {
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	} else {
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n], sorted[n:]
}

// Advantage rolls 2dNkh1.
func Advantage(r rng.RNG, sides int) (RollDetail, error) {
	return pair(r, sides, KeepHighest)
}

// Disadvantage rolls 2dNkl1.
func Disadvantage(r rng.RNG, sides int) (RollDetail, error) {
	return pair(r, sides, KeepLowest)
}

func pair(r rng.RNG, sides int, mode KeepMode) (RollDetail, error) {
	if !AllowedSides[sides] {
		return RollDetail{}, newError(ErrInvalidSyntax, "", "d%d is not an allowed die", sides)
	}
	suffix := "kh1"
	if mode == KeepLowest {
		suffix = "kl1"
	}
	d := &Dice{Text: fmt.Sprintf("2d%d%s", sides, suffix), Count: 2, Sides: sides, Keep: mode, KeepCount: 1}
	return d.Roll(r, 0)
}
