////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package preprocessing

import "github.com/NillionNetwork/nilvm/internal/protocol"

// ElementFromProtocol maps internal/protocol's own Element vocabulary
// (kept separate so protocol stays free of a dependency on this
// package, per protocol.go's doc comment) onto this package's Element,
// the one the Pool/Manager and the program auditor's configuration are
// keyed by. It is the single place that translation happens, used by
// both the compute orchestrator (turning a Program's Consumption into
// Requirements) and the program auditor (checking per-element limits).
func ElementFromProtocol(e protocol.Element) (Element, bool) {
	switch e {
	case protocol.ElementCompare:
		return Compare, true
	case protocol.ElementDivisionIntegerSecret:
		return DivisionIntegerSecret, true
	case protocol.ElementModulo:
		return Modulo, true
	case protocol.ElementPublicOutputEquality:
		return PublicOutputEquality, true
	case protocol.ElementEqualsIntegerSecret:
		return EqualsIntegerSecret, true
	case protocol.ElementTruncPr:
		return TruncPr, true
	case protocol.ElementTrunc:
		return Trunc, true
	case protocol.ElementRandomInteger:
		return RandomInteger, true
	case protocol.ElementRandomBoolean:
		return RandomBoolean, true
	default:
		return 0, false
	}
}
