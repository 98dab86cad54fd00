////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package preprocessing is the preprocessing manager (spec.md §4.5): per
// element-type pools of unused offsets, leader-driven batch generation
// with exponential backoff, atomic reservation, and the monotonic
// candidate-delete/delete compaction pipeline. It generalizes the
// teacher's internal/round.Manager — a sync.Map keyed by a round id,
// mutated by one leader-driven loop and read by many handlers — from
// "round bookkeeping" to "per-element offset bookkeeping".
package preprocessing

import "fmt"

// Element enumerates the preprocessing material kinds a node consumes
// (spec.md §3's PreprocessingElement enum). Each has its own Pool.
type Element int

const (
	Compare Element = iota
	DivisionIntegerSecret
	Modulo
	PublicOutputEquality
	EqualsIntegerSecret
	TruncPr
	Trunc
	RandomInteger
	RandomBoolean
)

// elements lists every Element in a stable order, used by Manager to
// seed one Pool per kind and by tests that must enumerate them all.
var elements = []Element{
	Compare, DivisionIntegerSecret, Modulo, PublicOutputEquality,
	EqualsIntegerSecret, TruncPr, Trunc, RandomInteger, RandomBoolean,
}

func (e Element) String() string {
	switch e {
	case Compare:
		return "Compare"
	case DivisionIntegerSecret:
		return "DivisionIntegerSecret"
	case Modulo:
		return "Modulo"
	case PublicOutputEquality:
		return "PublicOutputEquality"
	case EqualsIntegerSecret:
		return "EqualsIntegerSecret"
	case TruncPr:
		return "TruncPr"
	case Trunc:
		return "Trunc"
	case RandomInteger:
		return "RandomInteger"
	case RandomBoolean:
		return "RandomBoolean"
	default:
		return fmt.Sprintf("Element(%d)", int(e))
	}
}

// Elements returns every enumerated Element in the stable order Manager
// seeds its pools in, for callers outside this package (internal/transport's
// PoolStatus handler) that need to report on all of them without reaching
// into the unexported elements slice.
func Elements() []Element {
	out := make([]Element, len(elements))
	copy(out, elements)
	return out
}
