////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package protocol

import (
	"go.dedis.ch/kyber/v3"

	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/sm"
	"github.com/NillionNetwork/nilvm/internal/share"
)

// Params carries every protocol-specific extra argument the individual
// New* constructors need beyond Participants/threshold/input shares. Only
// the fields relevant to the requested Kind are read; New validates that
// the ones it needs are present rather than guessing zero values, so a
// malformed DAG instruction fails fast instead of running with a bogus
// public parameter.
type Params struct {
	M          *uint            // MODULO2m/TRUNC/TRUNCPR's public bit-length
	D          *uint64          // DIV-PUBLIC's public divisor
	FracBits   *int             // DIV-PUBLIC/DIV-SECRET/MODULO's fixed-point scale
	K          *int             // RANDOM-BITWISE/BIT-DECOMPOSITION's bit width
	Modulus    field.Modulus    // RAN/RAN-BIT/RANDOM-BITWISE's field
	Coeffs     []field.Element  // POLY-EVAL's coefficients
	Group      kyber.Group      // ECDSA-DKG/ECDSA-SIGN's curve
	AuxVersion *uint32          // ECDSA-DKG's aux-info version, ECDSA-SIGN's local aux version
	Key        *ECDSAKeyShare   // ECDSA-SIGN's key share
	Message    []byte           // ECDSA-SIGN's message to sign
}

// New instantiates the sm.StateMachine for kind, dispatching to the
// matching New<Kind> constructor with inputs supplying the protocol's
// operand shares in the order each constructor documents. It is the
// single place the VM's DAG interpreter (internal/vm) needs to know
// about in order to run any protocol kind, keeping the interpreter
// itself free of a giant type switch over every protocol's constructor
// shape (spec.md §9's "avoid virtual-method trees" applies here too: one
// dispatch point rather than one per call site).
func New(kind Kind, p Participants, threshold int, inputs []share.Share, params Params) (sm.StateMachine, error) {
	arg := func(i int) (share.Share, error) {
		if i >= len(inputs) {
			return share.Share{}, errors.Errorf("protocol: %s needs input %d, got %d", kind, i, len(inputs))
		}
		return inputs[i], nil
	}

	switch kind {
	case KindReveal:
		a, err := arg(0)
		if err != nil {
			return nil, err
		}
		return NewReveal(p, threshold, a), nil
	case KindMult:
		a, err := arg(0)
		if err != nil {
			return nil, err
		}
		b, err := arg(1)
		if err != nil {
			return nil, err
		}
		return NewMult(p, threshold, a, b), nil
	case KindPubMult:
		a, err := arg(0)
		if err != nil {
			return nil, err
		}
		if len(params.Coeffs) != 1 {
			return nil, errors.New("protocol: PUB-MULT needs exactly one public coefficient")
		}
		return NewPubMult(p, threshold, a, params.Coeffs[0]), nil
	case KindInvRan:
		a, err := arg(0)
		if err != nil {
			return nil, err
		}
		r, err := arg(1)
		if err != nil {
			return nil, err
		}
		return NewInvRan(p, threshold, a, r), nil
	case KindRan:
		return NewRan(p, threshold, params.Modulus), nil
	case KindRanBit:
		return NewRanBit(p, threshold, params.Modulus), nil
	case KindRandomBitwise:
		if params.K == nil {
			return nil, errors.New("protocol: RANDOM-BITWISE needs K")
		}
		return NewRandomBitwise(p, threshold, params.Modulus, *params.K), nil
	case KindCompare:
		a, err := arg(0)
		if err != nil {
			return nil, err
		}
		b, err := arg(1)
		if err != nil {
			return nil, err
		}
		r, err := arg(2)
		if err != nil {
			return nil, err
		}
		topBit, err := arg(3)
		if err != nil {
			return nil, err
		}
		return NewCompare(p, threshold, a, b, r, topBit), nil
	case KindModulo2m:
		a, rLow, rHigh, err := maskedTruncArgs(arg)
		if err != nil {
			return nil, err
		}
		if params.M == nil {
			return nil, errors.New("protocol: MODULO2m needs M")
		}
		return NewModulo2m(p, threshold, a, *params.M, rLow, rHigh), nil
	case KindTrunc:
		a, rLow, rHigh, err := maskedTruncArgs(arg)
		if err != nil {
			return nil, err
		}
		if params.M == nil {
			return nil, errors.New("protocol: TRUNC needs M")
		}
		return NewTrunc(p, threshold, a, *params.M, rLow, rHigh), nil
	case KindTruncPr:
		a, rLow, rHigh, err := maskedTruncArgs(arg)
		if err != nil {
			return nil, err
		}
		if params.M == nil {
			return nil, errors.New("protocol: TRUNCPR needs M")
		}
		return NewTruncPr(p, threshold, a, *params.M, rLow, rHigh), nil
	case KindModulo:
		a, err := arg(0)
		if err != nil {
			return nil, err
		}
		b, err := arg(1)
		if err != nil {
			return nil, err
		}
		x0, err := arg(2)
		if err != nil {
			return nil, err
		}
		if params.FracBits == nil {
			return nil, errors.New("protocol: MODULO needs FracBits")
		}
		return NewModulo(p, threshold, a, b, x0, *params.FracBits), nil
	case KindDivPublic:
		a, rLow, rHigh, err := maskedTruncArgs(arg)
		if err != nil {
			return nil, err
		}
		if params.D == nil || params.FracBits == nil {
			return nil, errors.New("protocol: DIV-PUBLIC needs D and FracBits")
		}
		return NewDivPublic(p, threshold, a, *params.D, uint(*params.FracBits), rLow, rHigh)
	case KindDivSecret:
		a, err := arg(0)
		if err != nil {
			return nil, err
		}
		b, err := arg(1)
		if err != nil {
			return nil, err
		}
		x0, err := arg(2)
		if err != nil {
			return nil, err
		}
		if params.FracBits == nil {
			return nil, errors.New("protocol: DIV-SECRET needs FracBits")
		}
		return NewDivSecret(p, threshold, a, b, x0, *params.FracBits), nil
	case KindEquals:
		a, err := arg(0)
		if err != nil {
			return nil, err
		}
		b, err := arg(1)
		if err != nil {
			return nil, err
		}
		r, err := arg(2)
		if err != nil {
			return nil, err
		}
		return NewEquals(p, threshold, a, b, r), nil
	case KindIfElse:
		cond, err := arg(0)
		if err != nil {
			return nil, err
		}
		ifTrue, err := arg(1)
		if err != nil {
			return nil, err
		}
		ifFalse, err := arg(2)
		if err != nil {
			return nil, err
		}
		return NewIfElse(p, threshold, cond, ifTrue, ifFalse), nil
	case KindBitDecomposition:
		a, err := arg(0)
		if err != nil {
			return nil, err
		}
		if params.K == nil {
			return nil, errors.New("protocol: BIT-DECOMPOSITION needs K")
		}
		return NewBitDecomposition(p, threshold, a, *params.K), nil
	case KindECDSADKG:
		if params.Group == nil || params.AuxVersion == nil {
			return nil, errors.New("protocol: ECDSA-DKG needs Group and AuxVersion")
		}
		return NewECDSADKG(p, threshold, params.Group, *params.AuxVersion), nil
	case KindECDSASign:
		if params.Group == nil || params.Key == nil || params.AuxVersion == nil {
			return nil, errors.New("protocol: ECDSA-SIGN needs Group, Key and AuxVersion")
		}
		return NewECDSASign(p, threshold, params.Group, *params.Key, *params.AuxVersion, params.Message)
	default:
		return nil, errors.Errorf("protocol: %s has no factory wiring (used via a shared helper, not instantiated directly by the VM)", kind)
	}
}

func maskedTruncArgs(arg func(int) (share.Share, error)) (a, rLow, rHigh share.Share, err error) {
	if a, err = arg(0); err != nil {
		return
	}
	if rLow, err = arg(1); err != nil {
		return
	}
	rHigh, err = arg(2)
	return
}
