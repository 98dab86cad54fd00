package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// IfElse selects between two secret-shared branches according to a
// secret-shared boolean condition, without ever revealing which branch
// was taken: result = ifFalse + cond*(ifTrue - ifFalse), computed with a
// single MULT of the condition against the branch difference.
type IfElse struct {
	mult    *Mult
	ifFalse share.Share
}

// NewIfElse builds an IF-ELSE instance. cond must be a share of 0 or 1.
func NewIfElse(p Participants, threshold int, cond, ifTrue, ifFalse share.Share) *IfElse {
	diff := ifTrue.Sub(ifFalse)
	return &IfElse{mult: NewMult(p, threshold, cond, diff), ifFalse: ifFalse}
}

func (ie *IfElse) CurrentState() sm.StateTag { return ie.mult.CurrentState() }

func (ie *IfElse) Step(inbound *sm.Message) sm.StepResult {
	result := ie.mult.Step(inbound)
	outputs, failed, kind, terminal := result.Outcome()
	if !terminal {
		return result
	}
	if failed {
		return sm.Failed(kind)
	}
	masked, _ := MultOutput(outputs)
	return sm.Terminated(ie.ifFalse.Add(masked))
}

// IfElseOutput extracts the resulting share.Share.
func IfElseOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}
