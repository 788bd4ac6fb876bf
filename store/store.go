// Package store is the persistent relational gateway: idempotent upserts,
// one scoped transaction per block, and the range deletes the rollback
// engine and eviction policy drive. Backed by database/sql; the default
// DATABASE_URI points at an embedded sqlite3 database with the same
// WAL/busy-timeout pragmas a historical_rewards indexer would use.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cardano-dex/batcher-monitor/cardano/value"
)

// Store wraps the shared *sql.DB handle. Readers may use it directly;
// mutating block processing always goes through a Tx.
type Store struct {
	db *sql.DB
}

// Utxo mirrors the Utxo entity from the data model.
type Utxo struct {
	ID          string
	Owner       string
	Value       value.Value
	CreatedSlot uint64
	SpentSlot   *uint64
	BlockHash   string
}

// Order mirrors the Order entity.
type Order struct {
	ID            string
	Sender        string
	Recipient     string
	PlacedSlot    uint64
	TransactionID *int64
}

// Transaction mirrors the Transaction entity, with its linked Order ids.
type Transaction struct {
	ID            int64
	TxHash        string
	Slot          uint64
	BatcherID     *int64
	AdaProfit     int64
	NetworkFee    int64
	EquivalentAda int64
	NetAssets     map[value.Token]int64
	OrderIDs      []string
}

// Open parses DATABASE_URI and opens the backing database. A URI with the
// "sqlite://" scheme (or no scheme at all) is opened against the mattn
// sqlite3 driver with WAL journaling, a 5s busy timeout and foreign key
// cascades turned on, matching historical_rewards.go's pragma set. Any
// other scheme is passed straight to sql.Open under that driver name, so a
// Postgres/MySQL driver registered by the embedding binary also works.
func Open(databaseURI string) (*Store, error) {
	driver, dsn := splitDatabaseURI(databaseURI)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[store] opened %s database", driver)
	return s, nil
}

func splitDatabaseURI(uri string) (driver, dsn string) {
	if uri == "" {
		uri = "sqlite://db.sqlite"
	}
	idx := strings.Index(uri, "://")
	if strings.HasPrefix(uri, "sqlite://") || idx < 0 {
		path := strings.TrimPrefix(uri, "sqlite://")
		return "sqlite3", path + "?mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	}
	return uri[:idx], uri
}

const schema = `
CREATE TABLE IF NOT EXISTS utxo (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	value TEXT NOT NULL,
	created_slot INTEGER NOT NULL,
	spent_slot INTEGER,
	block_hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_utxo_created_slot ON utxo(created_slot);
CREATE INDEX IF NOT EXISTS idx_utxo_spent_slot ON utxo(spent_slot);
CREATE INDEX IF NOT EXISTS idx_utxo_block_hash ON utxo(block_hash);

CREATE TABLE IF NOT EXISTS batcher (
	id INTEGER PRIMARY KEY AUTOINCREMENT
);

CREATE TABLE IF NOT EXISTS batcher_address (
	address TEXT PRIMARY KEY,
	batcher_id INTEGER NOT NULL REFERENCES batcher(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_batcher_address_batcher ON batcher_address(batcher_id);

CREATE TABLE IF NOT EXISTS tx (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tx_hash TEXT NOT NULL,
	slot INTEGER NOT NULL,
	batcher_id INTEGER REFERENCES batcher(id) ON DELETE SET NULL,
	ada_profit INTEGER NOT NULL,
	network_fee INTEGER NOT NULL,
	equivalent_ada INTEGER NOT NULL,
	net_assets TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tx_batcher ON tx(batcher_id);
CREATE INDEX IF NOT EXISTS idx_tx_slot ON tx(slot);

CREATE TABLE IF NOT EXISTS "order" (
	id TEXT PRIMARY KEY REFERENCES utxo(id) ON DELETE CASCADE,
	sender TEXT NOT NULL,
	recipient TEXT NOT NULL,
	slot INTEGER NOT NULL,
	transaction_id INTEGER REFERENCES tx(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_order_transaction ON "order"(transaction_id);
`

func (s *Store) createSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// BeginBlock opens the single transaction a block's entire processing runs
// inside, per §4.2/§7's recovery discipline.
func (s *Store) BeginBlock(ctx context.Context) (*Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin block tx: %w", err)
	}
	return &Tx{tx: sqlTx}, nil
}

// Tx scopes every mutating store operation performed while processing one
// block. It either commits entirely or is discarded on error — never a
// partial write.
type Tx struct {
	tx *sql.Tx
}

// Commit commits the block's transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback discards the block's transaction. Safe to call after Commit.
func (t *Tx) Rollback() error { return t.tx.Rollback() }
