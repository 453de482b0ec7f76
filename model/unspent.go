package model

import "time"

// OutputState is a single output's membership in the UTXO set (spec §3).
type OutputState uint8

const (
	OutputUnspent OutputState = iota
	OutputSpent
)

// UnspentTx is the per-transaction UTXO record (spec §3): block height,
// index within the block, and a per-output state vector. The UTXO store
// keeps the record after every output is Spent; it is removed only when
// the block that created it is unwound.
type UnspentTx struct {
	BlockHeight uint32
	TxIndex     uint32
	OutputState []OutputState
}

// NewUnspentTx builds an UnspentTx with all outputs initially Unspent.
func NewUnspentTx(blockHeight, txIndex uint32, numOutputs int) *UnspentTx {
	states := make([]OutputState, numOutputs)
	return &UnspentTx{BlockHeight: blockHeight, TxIndex: txIndex, OutputState: states}
}

// AllSpent reports whether every output of this transaction has been spent.
func (u *UnspentTx) AllSpent() bool {
	for _, s := range u.OutputState {
		if s == OutputUnspent {
			return false
		}
	}
	return true
}

// Clone deep-copies the record so callers may mutate it independently of
// whatever the backend still holds (used by in-memory backends to avoid
// aliasing across transaction scopes).
func (u *UnspentTx) Clone() *UnspentTx {
	states := make([]OutputState, len(u.OutputState))
	copy(states, u.OutputState)
	return &UnspentTx{BlockHeight: u.BlockHeight, TxIndex: u.TxIndex, OutputState: states}
}

// UnconfirmedTx is a mempool-admitted transaction (spec §3), carrying its
// resolved previous outputs for cheap re-validation and an admission
// timestamp.
type UnconfirmedTx struct {
	Tx          *Transaction
	PrevOutputs []*TxOutput
	AdmittedAt  time.Time
}
