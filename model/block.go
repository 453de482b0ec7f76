package model

// Block pairs a header with its ordered transaction list, tx[0] always
// the coinbase (spec §3, §4.3 Stage B).
type Block struct {
	Header       *BlockHeader
	Transactions []*Transaction
}

// ValidatableTx is one unit of pipeline input (spec §4.3): a transaction
// paired with its position in the block and its resolved previous
// outputs (nil entries for a coinbase's sentinel input).
type ValidatableTx struct {
	BlockTxIndex int
	Tx           *Transaction
	PrevOutputs  []*TxOutput // parallel to Tx.Inputs; nil for coinbase
}
