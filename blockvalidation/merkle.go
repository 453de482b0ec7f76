package blockvalidation

import "github.com/coreledger/chaincore/model"

// computeMerkleRoot builds the Bitcoin merkle tree over txHashes,
// double-SHA256'ing sibling pairs level by level and duplicating the
// final node of an odd-length level, exactly as the reference algorithm
// does. Every level's padding step is ordinary, unavoidable behavior for
// a non-power-of-two leaf count, not by itself a sign of CVE-2012-2459:
// the defense against that lives in stageA always hashing the block's
// actual raw transaction list (duplicates included) and relying on the
// root comparison against header.merkle_root as the sole discriminator.
// Grounded on the teacher's util/merkleTree.go pairwise-hash construction.
func computeMerkleRoot(codec model.BlockCodec, txHashes []model.Hash) model.Hash {
	if len(txHashes) == 0 {
		return model.ZeroHash
	}

	level := make([]model.Hash, len(txHashes))
	copy(level, txHashes)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		next := make([]model.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			buf := make([]byte, 64)
			copy(buf[:32], level[2*i][:])
			copy(buf[32:], level[2*i+1][:])
			next[i] = codec.DoubleSHA256(buf)
		}
		level = next
	}

	return level[0]
}
