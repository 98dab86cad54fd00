////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package share implements Shamir secret sharing over a field.Modulus:
// construction, the local linear operations (add/sub/scalar-mul), and
// Lagrange reconstruction. Multiplying two shares together requires the
// MULT protocol (internal/protocol) and is intentionally not offered here.
package share

import (
	"crypto/rand"

	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/field"
)

// PartyID identifies one cluster member's evaluation point on the sharing
// polynomial. Evaluation points are 1-indexed; 0 is reserved for the secret.
type PartyID uint32

// Share is one party's point on a degree-T polynomial whose constant term
// is the secret. A Share alone reveals nothing about the secret.
type Share struct {
	Party PartyID
	Value field.Element
}

// Polynomial is a degree-T polynomial over field.Modulus, coefficients
// low-to-high, coefficients[0] is the secret.
type Polynomial struct {
	coefficients []field.Element
}

// Random builds a degree-T polynomial with the given secret as its
// constant term and uniformly random higher coefficients.
func Random(secret field.Element, degree int) (Polynomial, error) {
	m := secret.Modulus()
	coeffs := make([]field.Element, degree+1)
	coeffs[0] = secret
	for i := 1; i <= degree; i++ {
		r, err := randomElement(m)
		if err != nil {
			return Polynomial{}, errors.Wrap(err, "share.Random")
		}
		coeffs[i] = r
	}
	return Polynomial{coefficients: coeffs}, nil
}

func randomElement(m field.Modulus) (field.Element, error) {
	size := (m.BitLen() + 7) / 8
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return field.Element{}, err
	}
	return field.FromBytes(m, buf), nil
}

// Eval evaluates the polynomial at a party's evaluation point x = party.
func (p Polynomial) Eval(party PartyID) field.Element {
	m := p.coefficients[0].Modulus()
	x := field.FromUint64(m, uint64(party))
	acc := field.Zero(m)
	xPow := field.One(m)
	for _, c := range p.coefficients {
		acc = acc.Add(c.Mul(xPow))
		xPow = xPow.Mul(x)
	}
	return acc
}

// Degree returns the polynomial's degree.
func (p Polynomial) Degree() int { return len(p.coefficients) - 1 }

// Shares evaluates the polynomial at every party in parties, producing one
// Share per party — the standard "split a secret across N parties at
// threshold T" entry point.
func Shares(secret field.Element, degree int, parties []PartyID) ([]Share, error) {
	poly, err := Random(secret, degree)
	if err != nil {
		return nil, err
	}
	out := make([]Share, len(parties))
	for i, p := range parties {
		out[i] = Share{Party: p, Value: poly.Eval(p)}
	}
	return out, nil
}

// Add returns the share of a+b given shares of a and b at the same party
// and degree. Linear combinations of shares are local — no protocol run.
func (s Share) Add(o Share) Share {
	mustSameParty(s, o)
	return Share{Party: s.Party, Value: s.Value.Add(o.Value)}
}

// Sub returns the share of a-b.
func (s Share) Sub(o Share) Share {
	mustSameParty(s, o)
	return Share{Party: s.Party, Value: s.Value.Sub(o.Value)}
}

// Neg returns the share of -a.
func (s Share) Neg() Share {
	return Share{Party: s.Party, Value: s.Value.Neg()}
}

// ScalarMul returns the share of c*a for a public constant c.
func (s Share) ScalarMul(c field.Element) Share {
	return Share{Party: s.Party, Value: s.Value.Mul(c)}
}

// AddConstant returns the share of a+c for a public constant c, valid only
// when applied identically by every party: each party adds the full c to
// its own share, which shifts the polynomial's constant term by c.
func (s Share) AddConstant(c field.Element) Share {
	return Share{Party: s.Party, Value: s.Value.Add(c)}
}

func mustSameParty(a, b Share) {
	if a.Party != b.Party {
		panic("share: operands belong to different parties")
	}
}
