package camera

import "math/bits"

// Env - environment hooks for resolution negotiation
type Env struct {
	// Rotation - display rotation in degrees, 90 and 270 swap target orientation
	Rotation int `json:"rotation,omitempty" yaml:"rotation"`
	// MaxArea - skip candidates with bigger area, ignored if nothing left
	MaxArea int `json:"max_area,omitempty" yaml:"max_area"`
}

func (e Env) target(size Size) Size {
	if r := (e.Rotation%360 + 360) % 360; r == 90 || r == 270 {
		return size.Rotate()
	}
	return size
}

func (e Env) filter(candidates []Size) []Size {
	if e.MaxArea <= 0 {
		return candidates
	}

	var items []Size
	for _, c := range candidates {
		if c.Area() <= e.MaxArea {
			items = append(items, c)
		}
	}
	if items == nil {
		return candidates
	}
	return items
}

// Select - choose capture resolution for target surface:
//  1. closest aspect ratio
//  2. biggest area not exceeding target area
//  3. smallest area if nothing fits
//  4. previous selection wins a tie
//
// Return false only for empty candidates list.
func Select(previous Size, candidates []Size, target Size, env Env) (Size, bool) {
	if len(candidates) == 0 || !target.Valid() {
		return Size{}, false
	}

	target = env.target(target)
	candidates = env.filter(candidates)

	var best Size
	for _, c := range candidates {
		if !c.Valid() {
			continue
		}
		if !best.Valid() || better(c, best, target) {
			best = c
		}
	}

	if !best.Valid() {
		return Size{}, false
	}

	if previous.Valid() && previous != best && Contains(candidates, previous) && tied(previous, best, target) {
		return previous, true
	}

	return best, true
}

func better(a, b, target Size) bool {
	if i := compareAspect(a, b, target); i != 0 {
		return i < 0
	}

	if i := compareArea(a, b, target); i != 0 {
		return i < 0
	}

	// same rank, landscape first, otherwise keep device order
	return a.Width > b.Width
}

func tied(a, b, target Size) bool {
	return compareAspect(a, b, target) == 0 && compareArea(a, b, target) == 0
}

// compareAspect - negative if a aspect ratio closer to target than b
func compareAspect(a, b, target Size) int {
	an, ad := aspectDistance(a, target)
	bn, bd := aspectDistance(b, target)
	// an/ad <=> bn/bd
	return compare128(an, bd, bn, ad)
}

// aspectDistance - ratio between two aspect ratios as num/den >= 1,
// same value for 4:3 and 3:4 relative to 1:1
func aspectDistance(s, target Size) (num, den uint64) {
	x := uint64(s.Width) * uint64(target.Height)
	y := uint64(target.Width) * uint64(s.Height)
	if x > y {
		return x, y
	}
	return y, x
}

// compareArea - negative if a area is better for target than b
func compareArea(a, b, target Size) int {
	limit := target.Area()
	aa, ba := a.Area(), b.Area()

	switch afit, bfit := aa <= limit, ba <= limit; {
	case afit && !bfit:
		return -1
	case !afit && bfit:
		return 1
	case afit: // both fit - bigger is better
		return ba - aa
	default: // both exceed - smaller is better
		return aa - ba
	}
}

// compare128 - compare a1*a2 with b1*b2 without overflow
func compare128(a1, a2, b1, b2 uint64) int {
	ahi, alo := bits.Mul64(a1, a2)
	bhi, blo := bits.Mul64(b1, b2)
	switch {
	case ahi < bhi:
		return -1
	case ahi > bhi:
		return 1
	case alo < blo:
		return -1
	case alo > blo:
		return 1
	}
	return 0
}
