package blockvalidation

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// NaiveSigOpCounter is a conservative, non-executing sigop estimator: it
// scans literal OP_CHECKSIG-family opcode bytes without interpreting
// push data, matching the flavor of the legacy (pre-P2SH-recursive)
// getSigOpCount used before full script execution is available. Used
// as the SigOpCounter in this package's tests; a real deployment
// supplies its own scanner alongside its ScriptVerifier.
type NaiveSigOpCounter struct{}

const (
	opCheckSig         = 0xac
	opCheckSigVerify   = 0xad
	opCheckMultiSig    = 0xae
	opCheckMultiSigVer = 0xaf
	sigOpsPerCheckSig  = 1
	sigOpsPerMultiSig  = 20 // conservative flat cost, no pubkey-count decoding
)

// CountSigOps scans script for CHECKSIG/CHECKMULTISIG family opcodes.
func (NaiveSigOpCounter) CountSigOps(script []byte) int {
	count := 0
	for _, b := range script {
		switch b {
		case opCheckSig, opCheckSigVerify:
			count += sigOpsPerCheckSig
		case opCheckMultiSig, opCheckMultiSigVer:
			count += sigOpsPerMultiSig
		}
	}
	return count
}

// CachingSigOpCounter memoizes CountSigOps by script bytes: standard
// output script templates (P2PKH, P2SH, bare multisig) recur constantly
// across a block, so caching avoids rescanning byte-identical scripts.
// Grounded on the teacher's use of github.com/patrickmn/go-cache for
// hot-path payload caches (services/blockvalidation's subtree data
// cache follows the same expire-then-recompute shape).
type CachingSigOpCounter struct {
	inner SigOpCounter
	cache *gocache.Cache
}

// NewCachingSigOpCounter wraps inner with a 10-minute expiring cache.
func NewCachingSigOpCounter(inner SigOpCounter) *CachingSigOpCounter {
	return &CachingSigOpCounter{
		inner: inner,
		cache: gocache.New(10*time.Minute, 20*time.Minute),
	}
}

func (c *CachingSigOpCounter) CountSigOps(script []byte) int {
	key := string(script)
	if v, ok := c.cache.Get(key); ok {
		return v.(int)
	}
	count := c.inner.CountSigOps(script)
	c.cache.Set(key, count, gocache.DefaultExpiration)
	return count
}
