package protocol

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/field"
)

// ErrNotAQuadraticResidue is returned by sqrtModP when the input has no
// square root modulo the field's prime.
var ErrNotAQuadraticResidue = errors.New("protocol: value is not a quadratic residue")

// sqrtModP returns a square root of e modulo its prime. Every safe prime
// the cluster is configured with (p = 2q+1 for prime q) satisfies
// p ≡ 3 (mod 4), so the square root is e^((p+1)/4) mod p directly —
// there is no need for the general Tonelli–Shanks algorithm here.
func sqrtModP(e field.Element) (field.Element, error) {
	m := e.Modulus()
	p := m.Int()
	if new(big.Int).Mod(p, big.NewInt(4)).Int64() != 3 {
		return field.Element{}, errors.New("protocol: sqrtModP requires a prime p = 3 (mod 4)")
	}
	exp := new(big.Int).Add(p, big.NewInt(1))
	exp.Div(exp, big.NewInt(4))
	root := e.PowBig(exp)
	if root.Mul(root).Equal(e) {
		return root, nil
	}
	return field.Element{}, ErrNotAQuadraticResidue
}
