package model

import "encoding/binary"

// MaxMoney is the maximum satoshi value of any single output or their sum
// within a transaction (spec §6). Held here as a plain constant since the
// data model must be usable without a Settings instance; components that
// enforce it read from settings.ConsensusSettings.MaxMoney for the
// deployment-configurable value, which defaults to the same figure.
const MaxMoney uint64 = 2_100_000_000_000_000

// CoinbaseOutputIndex is the sentinel output index of a coinbase input.
const CoinbaseOutputIndex uint32 = 0xFFFFFFFF

// TxOutputKey is the primary key of the UTXO store (spec §3).
type TxOutputKey struct {
	TxHash      Hash
	OutputIndex uint32
}

func (k TxOutputKey) Bytes() []byte {
	b := make([]byte, 36)
	copy(b[:32], k.TxHash[:])
	binary.BigEndian.PutUint32(b[32:], k.OutputIndex)
	return b
}

// TxInput references a previous output being spent, or the coinbase
// sentinel (spec §3): prev_tx_output_key = (zero-hash, 0xFFFFFFFF).
type TxInput struct {
	PrevOutput TxOutputKey
	ScriptSig  []byte
	Sequence   uint32
}

// IsCoinbase reports whether this input is the coinbase sentinel input.
func (in *TxInput) IsCoinbase() bool {
	return in.PrevOutput.TxHash.IsZero() && in.PrevOutput.OutputIndex == CoinbaseOutputIndex
}

// TxOutput is a spendable value locked by a script (spec §3).
type TxOutput struct {
	Value        uint64
	ScriptPubKey []byte
}

// Transaction is the consensus transaction shape (spec §3). Identity is
// the double-SHA256 of its canonical (witness-stripped, segwit is out of
// scope) encoding, computed via Hash.
type Transaction struct {
	Version  uint32
	Inputs   []*TxInput
	Outputs  []*TxOutput
	LockTime uint32

	// encoded is the canonical byte encoding, supplied by the wire-codec
	// collaborator (out of scope for this module); components that need
	// a tx's size or identity in the pipeline read it off this field
	// rather than re-deriving encoding rules here.
	encoded []byte
	hash    *Hash
}

// NewTransaction builds a Transaction, pairing it with its canonical
// encoding as produced by the (external) wire codec.
func NewTransaction(version uint32, inputs []*TxInput, outputs []*TxOutput, lockTime uint32, encoded []byte) *Transaction {
	return &Transaction{Version: version, Inputs: inputs, Outputs: outputs, LockTime: lockTime, encoded: encoded}
}

// Bytes returns the transaction's canonical encoding.
func (tx *Transaction) Bytes() []byte {
	return tx.encoded
}

// Size returns the encoded transaction size in bytes, used by Stage B's
// running block-size accounting (spec §4.3).
func (tx *Transaction) Size() int {
	return len(tx.encoded)
}

// Hash computes (and caches) the transaction's identity hash.
func (tx *Transaction) Hash(codec BlockCodec) Hash {
	if tx.hash != nil {
		return *tx.hash
	}
	if codec == nil {
		codec = DefaultCodec
	}
	h := codec.DoubleSHA256(tx.encoded)
	tx.hash = &h
	return h
}

// IsCoinbase reports whether this transaction is a coinbase transaction:
// exactly one input, and that input is the coinbase sentinel.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].IsCoinbase()
}

// TotalOutputValue sums the transaction's output values.
func (tx *Transaction) TotalOutputValue() uint64 {
	var total uint64
	for _, o := range tx.Outputs {
		total += o.Value
	}
	return total
}
