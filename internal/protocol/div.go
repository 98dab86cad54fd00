package protocol

import (
	"math"

	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// DivPublic computes floor(a/d) for a public divisor 0 < d < 2^k (spec.md
// §8's testable property: "reveal(DIV(share(a), d)) = floor(a/d)"). It
// reduces to TRUNC against a fixed-point reciprocal of d computed locally
// by every party (d is public, so 1/d is too) — no network round beyond
// the TRUNC it delegates to. fracBits sets the fixed-point scale applied
// before truncating back down.
type DivPublic struct {
	trunc *Trunc
}

// ErrPublicDivisorZero is returned for a public divisor of zero (spec.md
// §4.3: "dividing by zero is a ComputeError::DivisionByZero").
var ErrPublicDivisorZero = divisionByZeroError{}

type divisionByZeroError struct{}

func (divisionByZeroError) Error() string { return "protocol: division by zero" }

// NewDivPublic builds a DIV instance for a public divisor d.
func NewDivPublic(p Participants, threshold int, a share.Share, d uint64, fracBits uint, rLow, rHigh share.Share) (*DivPublic, error) {
	if d == 0 {
		return nil, ErrPublicDivisorZero
	}
	mod := a.Value.Modulus()
	scaled := uint64((1.0 / float64(d)) * float64(uint64(1)<<fracBits))
	recip := field.FromUint64(mod, scaled)
	scaledA := a.ScalarMul(recip)
	return &DivPublic{trunc: NewTrunc(p, threshold, scaledA, fracBits, rLow, rHigh)}, nil
}

func (d *DivPublic) CurrentState() sm.StateTag              { return d.trunc.CurrentState() }
func (d *DivPublic) Step(inbound *sm.Message) sm.StepResult { return d.trunc.Step(inbound) }

// DivPublicOutput extracts the resulting share.Share.
func DivPublicOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}

// DivSecret computes a/b for a secret divisor via Newton–Raphson (spec.md
// §4.3: "DIV with secret divisor uses Newton–Raphson with a fixed
// iteration count t = ceil(log2(-f / log2(α))), α = 3/2 − √2"). Each
// iteration refines an estimate x of 1/b by x_{n+1} = x_n*(2 - b*x_n),
// which doubles the number of correct fractional bits per round; the
// iteration count is fixed so every node performs the identical sequence
// of MULTs regardless of the actual operands. Once x has converged to
// 1/b, a final MULT against a yields the quotient.
type DivSecret struct {
	participants Participants
	threshold    int
	a, b         share.Share
	x            share.Share // current estimate of 1/b

	iterations int
	done       int
	sub        bool // false: running bx = MULT(b,x); true: running step = MULT(x, 2-bx)
	final      bool // true: running the closing a*x MULT

	bx   *Mult
	step *Mult
	mult *Mult
}

// divSecretIterations implements t = ceil(log2(-f / log2(α))).
func divSecretIterations(fracBits int) int {
	const alpha = 1.5 - 1.4142135623730951 // 3/2 - sqrt(2)
	f := float64(fracBits)
	t := math.Ceil(math.Log2(-f / math.Log2(alpha)))
	if t < 1 {
		t = 1
	}
	return int(t)
}

// NewDivSecret builds a DIV instance for a secret divisor b. fracBits
// controls the fixed-point precision, and in turn the iteration count.
// x0, the initial linear approximation of 1/b, is supplied as a
// preprocessed share derived from a public-exponent estimate of b's bit
// length, per the standard Newton–Raphson division protocols this
// mirrors; the caller is responsible for reserving it.
func NewDivSecret(p Participants, threshold int, a, b, x0 share.Share, fracBits int) *DivSecret {
	ds := &DivSecret{
		participants: p,
		threshold:    threshold,
		a:            a,
		b:            b,
		x:            x0,
		iterations:   divSecretIterations(fracBits),
	}
	ds.bx = NewMult(p, threshold, b, ds.x)
	return ds
}

func (ds *DivSecret) CurrentState() sm.StateTag {
	if ds.final {
		return "finalizing"
	}
	if !ds.sub {
		return "iterating:bx"
	}
	return "iterating:step"
}

func (ds *DivSecret) Step(inbound *sm.Message) sm.StepResult {
	if ds.final {
		result := ds.mult.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		q, _ := MultOutput(outputs)
		return sm.Terminated(q)
	}

	if !ds.sub {
		result := ds.bx.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		bx, _ := MultOutput(outputs)
		m := bx.Value.Modulus()
		twoMinusBX := field.FromUint64(m, 2).Sub(bx.Value)
		ds.step = NewMult(ds.participants, ds.threshold, ds.x, share.Share{Party: ds.x.Party, Value: twoMinusBX})
		ds.sub = true
		return ds.step.Step(nil)
	}

	result := ds.step.Step(inbound)
	outputs, failed, kind, terminal := result.Outcome()
	if !terminal {
		return result
	}
	if failed {
		return sm.Failed(kind)
	}
	next, _ := MultOutput(outputs)
	ds.x = next
	ds.done++

	if ds.done >= ds.iterations {
		ds.final = true
		ds.mult = NewMult(ds.participants, ds.threshold, ds.a, ds.x)
		return ds.mult.Step(nil)
	}
	ds.sub = false
	ds.bx = NewMult(ds.participants, ds.threshold, ds.b, ds.x)
	return ds.bx.Step(nil)
}

// DivSecretOutput extracts the resulting share.Share of the quotient.
func DivSecretOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}
