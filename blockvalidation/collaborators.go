package blockvalidation

import (
	"context"

	"github.com/coreledger/chaincore/model"
)

// ScriptVerifier is the script interpreter external collaborator (spec
// §6): this module never executes or interprets scripts itself, it only
// calls out to whatever implementation is wired in.
type ScriptVerifier interface {
	VerifyInput(ctx context.Context, tx *model.Transaction, inputIndex int, prevOutput *model.TxOutput) error
}

// SigOpCounter estimates the signature-operation cost of a locking or
// unlocking script without fully interpreting it, kept as its own
// collaborator for the same reason as ScriptVerifier: opcode-level
// script knowledge stays out of this module's consensus-pipeline code.
type SigOpCounter interface {
	CountSigOps(script []byte) int
}
