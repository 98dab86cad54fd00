////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package field implements modular arithmetic over one of the cluster's
// three well-known safe primes. Every Element belongs to a Modulus; two
// Elements of different Modulus values must never be mixed.
package field

import (
	"crypto/subtle"
	"math/big"

	"github.com/pkg/errors"
)

// Modulus is one of the cluster's configured safe primes.
type Modulus struct {
	p *big.Int
}

// NewModulus wraps a prime. The caller is responsible for primality.
func NewModulus(p *big.Int) Modulus {
	return Modulus{p: new(big.Int).Set(p)}
}

// BitLen returns the modulus's bit length, used to size bit-decomposition.
func (m Modulus) BitLen() int {
	return m.p.BitLen()
}

// Int returns a copy of the underlying prime.
func (m Modulus) Int() *big.Int {
	return new(big.Int).Set(m.p)
}

// Element is an integer in [0, P). It is immutable: every operation
// returns a new Element.
type Element struct {
	v *big.Int
	m Modulus
}

// Zero returns the additive identity of m.
func Zero(m Modulus) Element {
	return Element{v: big.NewInt(0), m: m}
}

// One returns the multiplicative identity of m.
func One(m Modulus) Element {
	return Element{v: big.NewInt(1), m: m}
}

// FromUint64 builds an Element from a non-negative machine integer,
// reducing it into [0, P).
func FromUint64(m Modulus, v uint64) Element {
	x := new(big.Int).SetUint64(v)
	x.Mod(x, m.p)
	return Element{v: x, m: m}
}

// FromBigInt reduces an arbitrary integer into [0, P). Negative inputs are
// wrapped around the modulus.
func FromBigInt(m Modulus, v *big.Int) Element {
	x := new(big.Int).Mod(v, m.p)
	return Element{v: x, m: m}
}

// FromBytes interprets bytes as a big-endian integer and reduces it.
func FromBytes(m Modulus, b []byte) Element {
	return FromBigInt(m, new(big.Int).SetBytes(b))
}

// Modulus returns the Element's modulus.
func (e Element) Modulus() Modulus { return e.m }

// Bytes returns the big-endian encoding, padded to the modulus's byte length.
func (e Element) Bytes() []byte {
	size := (e.m.p.BitLen() + 7) / 8
	out := make([]byte, size)
	e.v.FillBytes(out)
	return out
}

// Int64 returns the value as int64 when it fits; used only for test
// fixtures and logging, never on the hot path.
func (e Element) Int64() int64 {
	return e.v.Int64()
}

func (e Element) checkSameModulus(o Element) {
	if e.m.p.Cmp(o.m.p) != 0 {
		panic("field: mismatched modulus")
	}
}

// Add returns e + o mod P.
func (e Element) Add(o Element) Element {
	e.checkSameModulus(o)
	r := new(big.Int).Add(e.v, o.v)
	r.Mod(r, e.m.p)
	return Element{v: r, m: e.m}
}

// Sub returns e - o mod P.
func (e Element) Sub(o Element) Element {
	e.checkSameModulus(o)
	r := new(big.Int).Sub(e.v, o.v)
	r.Mod(r, e.m.p)
	return Element{v: r, m: e.m}
}

// Neg returns -e mod P.
func (e Element) Neg() Element {
	r := new(big.Int).Neg(e.v)
	r.Mod(r, e.m.p)
	return Element{v: r, m: e.m}
}

// Mul returns e * o mod P.
func (e Element) Mul(o Element) Element {
	e.checkSameModulus(o)
	r := new(big.Int).Mul(e.v, o.v)
	r.Mod(r, e.m.p)
	return Element{v: r, m: e.m}
}

// Pow returns e^k mod P for a public, non-secret exponent k.
func (e Element) Pow(k int64) Element {
	exp := big.NewInt(k)
	r := new(big.Int).Exp(e.v, exp, e.m.p)
	return Element{v: r, m: e.m}
}

// PowBig returns e^k mod P for a public, non-secret, arbitrary-precision
// exponent k.
func (e Element) PowBig(k *big.Int) Element {
	r := new(big.Int).Exp(e.v, k, e.m.p)
	return Element{v: r, m: e.m}
}

// IsZero reports whether e is the additive identity, in constant time.
func (e Element) IsZero() bool {
	return subtle.ConstantTimeCompare(e.v.Bytes(), []byte{}) == 1 && len(e.v.Bytes()) == 0
}

// Inv returns the multiplicative inverse of e. It returns
// ArithmeticError{NoInverse} when e is zero.
func (e Element) Inv() (Element, error) {
	if e.v.Sign() == 0 {
		return Element{}, errors.Wrap(ErrNoInverse, "field.Inv")
	}
	r := new(big.Int).ModInverse(e.v, e.m.p)
	if r == nil {
		return Element{}, errors.Wrap(ErrNoInverse, "field.Inv")
	}
	return Element{v: r, m: e.m}, nil
}

// Equal performs a constant-time comparison of two Elements, per the
// "never branch on secret values" invariant (spec.md §9).
func (e Element) Equal(o Element) bool {
	e.checkSameModulus(o)
	a := e.Bytes()
	b := o.Bytes()
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Bit returns the i-th bit (0 = least significant) of the canonical
// representative of e, used by BIT-DECOMPOSITION.
func (e Element) Bit(i int) uint {
	return e.v.Bit(i)
}

// ErrNoInverse is the ArithmeticError.NoInverse case from spec.md §7.
var ErrNoInverse = errors.New("no modular inverse: element is zero")

// ErrDivisionByZero is the ComputeError.DivisionByZero case from spec.md §4.3.
var ErrDivisionByZero = errors.New("division by zero")

// ErrOverflow is the ArithmeticError.Overflow case from spec.md §7.
var ErrOverflow = errors.New("arithmetic overflow")
