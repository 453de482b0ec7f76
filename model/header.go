package model

import (
	"encoding/binary"
	"math/big"
)

// BlockHeader is the 80-byte canonical Bitcoin block header (spec §3).
type BlockHeader struct {
	Version      uint32
	PreviousHash Hash
	MerkleRoot   Hash
	Time         uint32 // seconds, unix epoch
	Bits         uint32 // compact difficulty target
	Nonce        uint32
}

// canonicalBytes produces the 80-byte little-endian encoding whose
// double-SHA256 is the header's identity hash.
func (h *BlockHeader) canonicalBytes() []byte {
	buf := make([]byte, 80)
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	copy(buf[4:36], h.PreviousHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Time)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

// Hash computes the header's double-SHA256 identity using codec (or
// DefaultCodec if nil).
func (h *BlockHeader) Hash(codec BlockCodec) Hash {
	if codec == nil {
		codec = DefaultCodec
	}
	return codec.DoubleSHA256(codec.EncodeHeader(h))
}

// ExpandBits converts the compact "bits" difficulty target encoding into
// its big.Int target form, grounded on the teacher's util/work.go
// CalculateTarget (nBits packed exponent+mantissa layout).
func ExpandBits(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := bits & 0x007fffff

	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		return big.NewInt(int64(mantissa))
	}

	target := big.NewInt(int64(mantissa))
	target.Lsh(target, uint(8*(exponent-3)))
	return target
}

// WorkFromBits returns the proof-of-work contributed by a header with the
// given compact difficulty target: floor(2^256 / (target + 1)).
func WorkFromBits(bits uint32) *big.Int {
	target := ExpandBits(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	denom := new(big.Int).Add(target, big.NewInt(1))
	numerator := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(numerator, denom)
}

// ChainedHeader is a BlockHeader augmented with its height and cumulative
// proof-of-work (spec §3). Invariants: height(genesis)=0,
// height(h)=height(prev(h))+1, total_work strictly increasing along a chain.
type ChainedHeader struct {
	Header    *BlockHeader
	Hash      Hash
	Height    uint32
	TotalWork *big.Int
}
