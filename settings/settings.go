// Package settings loads the chaincore core's tunables from the
// environment via github.com/ordishs/gocore, grounded on the teacher's
// settings package but scoped down to only what this consensus core
// needs (no per-microservice GRPC/Kafka/Aerospike sections).
package settings

import "runtime"

// Settings is the root configuration object threaded through every
// component at construction time.
type Settings struct {
	Consensus ConsensusSettings
	Policy    PolicySettings
	Pipeline  PipelineSettings
	Storage   StorageSettings
	Mempool   MempoolSettings
	LogLevel  string
}

// ConsensusSettings carries the network-wide constants of spec §6.
type ConsensusSettings struct {
	MaxBlockSize       int
	MaxBlockSigops     int
	MaxPubkeysMultisig int
	MaxMoney           uint64
	CoinbaseMaturity   uint32
	Bip16SwitchTime    uint32
	GenesisReward      uint64
	SubsidyHalvingRate uint32
}

// PolicySettings covers node-local policy toggles, distinct from
// hard consensus constants above.
type PolicySettings struct {
	IgnoreScriptErrors bool // feature flag for historical-chain fast replay, §4.3 stage D
}

// PipelineSettings controls the block validator pipeline's concurrency
// and backpressure (spec §5).
type PipelineSettings struct {
	StageCWorkers   int
	StageDWorkers   int
	StageQueueDepth int
}

// StorageSettings selects and configures the StorageBackend collaborator.
type StorageSettings struct {
	Driver string // "memory", "sqlite", "postgres"
	DSN    string
}

// MempoolSettings bounds the unconfirmed transaction set.
type MempoolSettings struct {
	MaxTxCount int
}

// NewSettings builds Settings from environment configuration, applying
// the teacher's default-with-override pattern.
func NewSettings() *Settings {
	workers := getInt("pipeline_stage_workers", runtime.NumCPU())

	return &Settings{
		Consensus: ConsensusSettings{
			MaxBlockSize:       getInt("max_block_size", 1_000_000),
			MaxBlockSigops:     getInt("max_block_sigops", 20_000),
			MaxPubkeysMultisig: getInt("max_pubkeys_multisig", 20),
			MaxMoney:           uint64(getInt("max_money_satoshis", 2_100_000_000_000_000)),
			CoinbaseMaturity:   uint32(getInt("coinbase_maturity", 100)),
			Bip16SwitchTime:    uint32(getInt("bip16_switch_time", 1_333_238_400)),
			GenesisReward:      uint64(getInt("genesis_reward_satoshis", 5_000_000_000)),
			SubsidyHalvingRate: uint32(getInt("subsidy_halving_interval", 210_000)),
		},
		Policy: PolicySettings{
			IgnoreScriptErrors: getBool("ignore_script_errors", false),
		},
		Pipeline: PipelineSettings{
			StageCWorkers:   workers,
			StageDWorkers:   workers,
			StageQueueDepth: getInt("pipeline_queue_depth", 256),
		},
		Storage: StorageSettings{
			Driver: getString("storage_driver", "memory"),
			DSN:    getString("storage_dsn", ""),
		},
		Mempool: MempoolSettings{
			MaxTxCount: getInt("mempool_max_tx_count", 100_000),
		},
		LogLevel: getString("log_level", "INFO"),
	}
}
