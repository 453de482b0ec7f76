// Package testfixtures is a supplemented feature (not named in spec.md):
// deterministic synthetic chains, blocks, and transactions for the
// reorg/double-spend scenario tests of spec §8, so those tests don't
// each hand-roll header/tx construction. Grounded on the teacher's
// model/TestHelper.go (a package-local test-data builder with fixed
// inputs rather than per-test randomness) and scoped to this module's
// own types rather than wire-format bytes.
package testfixtures

import (
	"encoding/binary"

	"github.com/coreledger/chaincore/model"
)

// GenesisBits is a permissive compact difficulty target used throughout
// these fixtures, equivalent to regtest's minimum-difficulty target.
const GenesisBits uint32 = 0x207fffff

// Genesis returns a fixed genesis header: version 1, zero previous hash,
// a fixed time, and GenesisBits difficulty.
func Genesis() *model.BlockHeader {
	return &model.BlockHeader{
		Version: 1,
		Time:    1231006505,
		Bits:    GenesisBits,
	}
}

// CoinbaseTx builds a coinbase transaction paying reward satoshis to an
// arbitrary fixed output script, tagged with height so successive
// coinbases in a synthetic chain hash to distinct values (BIP34-style
// uniqueness) without needing a real script interpreter.
func CoinbaseTx(height uint32, reward uint64) *model.Transaction {
	tag := make([]byte, 4)
	binary.LittleEndian.PutUint32(tag, height)

	in := &model.TxInput{
		PrevOutput: model.TxOutputKey{OutputIndex: model.CoinbaseOutputIndex},
		ScriptSig:  tag,
	}
	out := &model.TxOutput{Value: reward, ScriptPubKey: []byte("fixture-coinbase-output")}

	encoded := encodeForHashing(1, []*model.TxInput{in}, []*model.TxOutput{out}, 0)
	return model.NewTransaction(1, []*model.TxInput{in}, []*model.TxOutput{out}, 0, encoded)
}

// SpendTx builds a transaction spending spend in full to a single new
// output of the same value minus fee, identified by nonce so callers can
// mint distinct transactions spending the same input (to script a
// double-spend scenario) without colliding on hash.
func SpendTx(spend model.TxOutputKey, value uint64, fee uint64, nonce uint32) *model.Transaction {
	nonceBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(nonceBytes, nonce)

	in := &model.TxInput{PrevOutput: spend, ScriptSig: nonceBytes}
	out := &model.TxOutput{Value: value - fee, ScriptPubKey: []byte("fixture-spend-output")}

	encoded := encodeForHashing(1, []*model.TxInput{in}, []*model.TxOutput{out}, 0)
	return model.NewTransaction(1, []*model.TxInput{in}, []*model.TxOutput{out}, 0, encoded)
}

// encodeForHashing is a deterministic, non-canonical stand-in for the
// wire codec this module doesn't own (spec §6): good enough to give
// fixture transactions stable, distinct identity hashes, not a real
// transaction wire format.
func encodeForHashing(version uint32, inputs []*model.TxInput, outputs []*model.TxOutput, lockTime uint32) []byte {
	buf := make([]byte, 0, 64)

	versionBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(versionBytes, version)
	buf = append(buf, versionBytes...)

	for _, in := range inputs {
		buf = append(buf, in.PrevOutput.Bytes()...)
		buf = append(buf, in.ScriptSig...)
	}
	for _, out := range outputs {
		valueBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(valueBytes, out.Value)
		buf = append(buf, valueBytes...)
		buf = append(buf, out.ScriptPubKey...)
	}

	lockTimeBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lockTimeBytes, lockTime)
	return append(buf, lockTimeBytes...)
}

// Chain builds n blocks on top of prev (exclusive), each a coinbase-only
// block, returning the headers in genesis-adjacent order and a lookup
// from header hash to that block's transactions. subsidy is the fixed
// per-block coinbase reward.
func Chain(prev *model.ChainedHeader, n int, subsidy uint64, codec model.BlockCodec) ([]*model.BlockHeader, map[model.Hash][]*model.Transaction) {
	if codec == nil {
		codec = model.DefaultCodec
	}

	headers := make([]*model.BlockHeader, 0, n)
	bodies := make(map[model.Hash][]*model.Transaction, n)

	prevHash := prev.Hash
	height := prev.Height

	for i := 0; i < n; i++ {
		height++
		coinbase := CoinbaseTx(height, subsidy)

		header := &model.BlockHeader{
			Version:      1,
			PreviousHash: prevHash,
			MerkleRoot:   coinbase.Hash(codec),
			Time:         prev.Header.Time + uint32(i+1)*600,
			Bits:         GenesisBits,
			Nonce:        uint32(i),
		}

		headers = append(headers, header)
		bodies[header.Hash(codec)] = []*model.Transaction{coinbase}
		prevHash = header.Hash(codec)
	}

	return headers, bodies
}
