// Package sqlstore provides a SQL-backed implementation of
// storage.HeaderIndex, supporting either PostgreSQL or SQLite as the
// deployment-selected driver (spec §6 StorageBackend collaborator).
// Grounded on the teacher's stores/blockchain/sql package: a single
// header table keyed by hash, height and cumulative work as columns for
// index-assisted tip/ancestor queries. Libraries: github.com/jackc/pgx/v5
// (via its database/sql driver) and modernc.org/sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/coreledger/chaincore/errors"
	"github.com/coreledger/chaincore/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// HeaderIndex is a database/sql-backed storage.HeaderIndex.
type HeaderIndex struct {
	db     *sql.DB
	driver string
}

// Open opens (and migrates) a HeaderIndex against driver ("pgx" or
// "sqlite") and dsn.
func Open(driver, dsn string) (*HeaderIndex, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.New(errors.ERR_STORAGE_CORRUPT, "open sql backend", err)
	}

	idx := &HeaderIndex{db: db, driver: driver}
	if err := idx.migrate(context.Background()); err != nil {
		return nil, err
	}
	return idx, nil
}

func (h *HeaderIndex) migrate(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS chain_headers (
			hash        TEXT PRIMARY KEY,
			prev_hash   TEXT NOT NULL,
			version     BIGINT NOT NULL,
			merkle_root TEXT NOT NULL,
			block_time  BIGINT NOT NULL,
			bits        BIGINT NOT NULL,
			nonce       BIGINT NOT NULL,
			height      BIGINT NOT NULL,
			total_work  TEXT NOT NULL
		)`)
	if err != nil {
		return errors.New(errors.ERR_STORAGE_CORRUPT, "migrate chain_headers table", err)
	}
	return nil
}

// ph renders the driver-appropriate positional placeholder for
// parameter index n (1-based): pgx wants $1, $2, ...; sqlite accepts ?.
func (h *HeaderIndex) ph(n int) string {
	if h.driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Get looks up a header by hash.
func (h *HeaderIndex) Get(ctx context.Context, hash model.Hash) (*model.ChainedHeader, bool) {
	query := fmt.Sprintf(`SELECT prev_hash, version, merkle_root, block_time, bits, nonce, height, total_work
		FROM chain_headers WHERE hash = %s`, h.ph(1))

	row := h.db.QueryRowContext(ctx, query, hex.EncodeToString(hash[:]))

	var prevHex, merkleHex, workStr string
	var version, blockTime, bits, nonce, height int64

	if err := row.Scan(&prevHex, &version, &merkleHex, &blockTime, &bits, &nonce, &height, &workStr); err != nil {
		return nil, false
	}

	prevHash, err := model.HashFromBytes(mustHex(prevHex))
	if err != nil {
		return nil, false
	}
	merkleRoot, err := model.HashFromBytes(mustHex(merkleHex))
	if err != nil {
		return nil, false
	}

	work, ok := new(big.Int).SetString(workStr, 10)
	if !ok {
		return nil, false
	}

	return &model.ChainedHeader{
		Header: &model.BlockHeader{
			Version:      uint32(version),
			PreviousHash: prevHash,
			MerkleRoot:   merkleRoot,
			Time:         uint32(blockTime),
			Bits:         uint32(bits),
			Nonce:        uint32(nonce),
		},
		Hash:      hash,
		Height:    uint32(height),
		TotalWork: work,
	}, true
}

// Put inserts header, a no-op if the hash is already present.
func (h *HeaderIndex) Put(ctx context.Context, header *model.ChainedHeader) error {
	conflict := "ON CONFLICT (hash) DO NOTHING"
	if h.driver != "pgx" {
		conflict = "ON CONFLICT(hash) DO NOTHING"
	}

	query := fmt.Sprintf(`INSERT INTO chain_headers
		(hash, prev_hash, version, merkle_root, block_time, bits, nonce, height, total_work)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s) %s`,
		h.ph(1), h.ph(2), h.ph(3), h.ph(4), h.ph(5), h.ph(6), h.ph(7), h.ph(8), h.ph(9), conflict)

	_, err := h.db.ExecContext(ctx, query,
		hex.EncodeToString(header.Hash[:]),
		hex.EncodeToString(header.Header.PreviousHash[:]),
		int64(header.Header.Version),
		hex.EncodeToString(header.Header.MerkleRoot[:]),
		int64(header.Header.Time),
		int64(header.Header.Bits),
		int64(header.Header.Nonce),
		int64(header.Height),
		header.TotalWork.String(),
	)
	if err != nil {
		return errors.New(errors.ERR_STORAGE_CORRUPT, "insert chain header", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (h *HeaderIndex) Close() error {
	return h.db.Close()
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
