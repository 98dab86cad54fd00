package share

import (
	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/field"
)

// ErrInsufficientShares is ProtocolError.InsufficientShares from spec.md §7.
var ErrInsufficientShares = errors.New("fewer than T+1 shares supplied")

// Reconstruct recombines any T+1 (or more) shares into the secret using
// Lagrange interpolation at x=0. The result is independent of which
// T+1-sized subset of shares is passed in (spec.md §4.1 invariant); callers
// needing only T+1 shares should slice down to that many before calling,
// but passing more is also correct and produces the identical result.
func Reconstruct(shares []Share, threshold int) (field.Element, error) {
	if len(shares) < threshold+1 {
		return field.Element{}, errors.Wrapf(ErrInsufficientShares,
			"have %d, need %d", len(shares), threshold+1)
	}
	return reconstructAt(shares, 0)
}

// LagrangeCoefficients returns, for each party in parties, the public
// coefficient lambda_i such that secret = sum_i lambda_i * share_i
// reconstructs the polynomial's value at evaluation point x. Used
// directly by MULT's GRR resharing, which needs the coefficients without
// a concrete share value in hand yet.
func LagrangeCoefficients(m field.Modulus, parties []PartyID, x uint64) (map[PartyID]field.Element, error) {
	target := field.FromUint64(m, x)
	out := make(map[PartyID]field.Element, len(parties))
	for _, pi := range parties {
		xi := field.FromUint64(m, uint64(pi))
		num := field.One(m)
		den := field.One(m)
		for _, pj := range parties {
			if pi == pj {
				continue
			}
			xj := field.FromUint64(m, uint64(pj))
			num = num.Mul(target.Sub(xj))
			den = den.Mul(xi.Sub(xj))
		}
		denInv, err := den.Inv()
		if err != nil {
			return nil, errors.Wrap(err, "share.LagrangeCoefficients: duplicate party id")
		}
		out[pi] = num.Mul(denInv)
	}
	return out, nil
}

// reconstructAt evaluates the interpolating polynomial through `shares` at
// the point x. Reconstruct calls it with x=0 to recover the secret.
func reconstructAt(shares []Share, x uint64) (field.Element, error) {
	if len(shares) == 0 {
		return field.Element{}, errors.New("share.Reconstruct: no shares")
	}
	m := shares[0].Value.Modulus()
	target := field.FromUint64(m, x)
	acc := field.Zero(m)

	for i, si := range shares {
		xi := field.FromUint64(m, uint64(si.Party))
		num := field.One(m)
		den := field.One(m)
		for j, sj := range shares {
			if i == j {
				continue
			}
			xj := field.FromUint64(m, uint64(sj.Party))
			num = num.Mul(target.Sub(xj))
			den = den.Mul(xi.Sub(xj))
		}
		denInv, err := den.Inv()
		if err != nil {
			return field.Element{}, errors.Wrap(err, "share.Reconstruct: duplicate party id")
		}
		lagrangeCoeff := num.Mul(denInv)
		acc = acc.Add(si.Value.Mul(lagrangeCoeff))
	}
	return acc, nil
}
