// Command coreharness is a demonstration binary wiring the consensus
// core against the in-memory storage backend: chain index, target chain
// selector, invalid-block cache, mempool, and UTXO store. It does not
// construct a chain state manager. It exists to exercise the module's public
// API the way an embedding node process would, not as a production
// entrypoint (P2P networking, persistence backend selection beyond the
// in-memory default, and RPC/CLI surfaces are explicitly out of this
// module's scope per spec §2 Non-goals). Grounded on the teacher's
// cmd/ layout: a urfave/cli/v2 app with subcommands delegating to
// constructed services.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coreledger/chaincore/chainindex"
	"github.com/coreledger/chaincore/chainstate"
	"github.com/coreledger/chaincore/internal/health"
	"github.com/coreledger/chaincore/invalidblocks"
	"github.com/coreledger/chaincore/lifecycle"
	"github.com/coreledger/chaincore/mempool"
	"github.com/coreledger/chaincore/metrics"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/selector"
	"github.com/coreledger/chaincore/settings"
	"github.com/coreledger/chaincore/storage"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/coreledger/chaincore/utxo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// harness bundles every constructed component the demo commands need.
type harness struct {
	logger   ulogger.Logger
	index    *chainindex.Index
	selector *selector.Selector
	invalid  *invalidblocks.Cache
	pool     *mempool.Mempool
	store    *utxo.Store
	life     *lifecycle.Lifecycle
	metrics  *metrics.Metrics
	health   *health.ChainStateCheck
}

func newHarness() (*harness, error) {
	logger := ulogger.New("coreharness")
	_ = settings.NewSettings()

	backend := storage.NewMemoryBackend()
	genesisHeader := &model.BlockHeader{Version: 1, Bits: 0x207fffff, Time: 1231006505}

	index, err := chainindex.New(logger, backend.OpenHeaderIndex(), genesisHeader, nil)
	if err != nil {
		return nil, err
	}

	invalid := invalidblocks.New(backend.OpenInvalidBlockBackend(), logger)
	sel := selector.New(logger, index, invalid)
	pool := mempool.New(logger, backend.OpenMempoolBackend())
	store := utxo.New(logger, backend.OpenUTXOBackend())

	m := metrics.New("chaincore")
	m.MustRegister(prometheus.DefaultRegisterer)

	life := lifecycle.New()
	healthCheck := health.NewChainStateCheck(30 * time.Second)

	return &harness{
		logger:   logger,
		index:    index,
		selector: sel,
		invalid:  invalid,
		pool:     pool,
		store:    store,
		life:     life,
		metrics:  m,
		health:   healthCheck,
	}, nil
}

func (h *harness) close() {
	h.invalid.Close()
}

var _ chainstate.BlockBodyProvider = (*staticBodies)(nil)

// staticBodies is a trivial BlockBodyProvider for the demo harness: it
// only ever knows about blocks the caller registered with it.
type staticBodies struct {
	byHash map[model.Hash][]*model.Transaction
}

func (b *staticBodies) GetBlockTransactions(_ context.Context, hash model.Hash) ([]*model.Transaction, error) {
	return b.byHash[hash], nil
}

func main() {
	app := &cli.App{
		Name:  "coreharness",
		Usage: "demonstration harness for the chaincore consensus core",
		Commands: []*cli.Command{
			statusCommand(),
			genesisCommand(),
			healthCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print the current target chain tip and mempool size",
		Action: func(c *cli.Context) error {
			h, err := newHarness()
			if err != nil {
				return err
			}
			defer h.close()

			if err := h.life.BeginSync(c.Context); err != nil {
				return err
			}
			if err := h.life.MarkReady(c.Context); err != nil {
				return err
			}

			tip := h.selector.Current()
			h.health.Heartbeat()
			fmt.Printf("lifecycle: %s\n", h.life.Current())
			fmt.Printf("target tip: height=%d hash=%s\n", tip.Height, tip.Hash)
			fmt.Printf("mempool size: %d\n", h.pool.Size())
			return nil
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "print the chain state manager's readiness status",
		Action: func(c *cli.Context) error {
			h, err := newHarness()
			if err != nil {
				return err
			}
			defer h.close()

			_, message, err := health.CheckAll(c.Context, false, []health.Check{h.health.Check()})
			if err != nil {
				return err
			}
			fmt.Println(message)
			return nil
		},
	}
}

func genesisCommand() *cli.Command {
	return &cli.Command{
		Name:  "genesis",
		Usage: "print the genesis header hash",
		Action: func(c *cli.Context) error {
			h, err := newHarness()
			if err != nil {
				return err
			}
			defer h.close()

			fmt.Println(h.index.GenesisHash())
			return nil
		},
	}
}
