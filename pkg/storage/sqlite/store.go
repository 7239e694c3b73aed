// Package sqlite implements the storage interfaces on SQLite.
//
// The exclusive region is backed by per-collection mutexes acquired in the
// fixed storage.LockOrder, on top of a single WAL-mode database handle. The
// version clock derives stamps from the persisted per-table maximum, so they
// survive restarts and stay strictly increasing across workers sharing the
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/relaymsg/relay/pkg/storage"
)

// Store implements storage.Storage using SQLite.
type Store struct {
	db    *sql.DB
	locks map[storage.Collection]*sync.Mutex
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// New opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps the region's serialization honest: SQLite
	// write transactions would otherwise contend at the driver level.
	db.SetMaxOpenConns(1)

	locks := make(map[storage.Collection]*sync.Mutex, len(storage.LockOrder))
	for _, c := range storage.LockOrder {
		locks[c] = &sync.Mutex{}
	}

	s := &Store{db: db, locks: locks}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		balance INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_type_owner
		ON accounts(type, owner_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		created_by TEXT NOT NULL,
		status TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		debit_account_id TEXT NOT NULL,
		credit_account_id TEXT NOT NULL,
		settlement_ref TEXT NOT NULL DEFAULT '',
		linked_message_id TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_debit ON transactions(debit_account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_credit ON transactions(credit_account_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		hash TEXT NOT NULL DEFAULT '',
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		sender_address TEXT NOT NULL DEFAULT '',
		recipient_address TEXT NOT NULL DEFAULT '',
		sender_text TEXT NOT NULL DEFAULT '',
		recipient_text TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		action_params TEXT NOT NULL DEFAULT '',
		action_processed INTEGER NOT NULL DEFAULT 0,
		system_charge INTEGER NOT NULL DEFAULT 0,
		recipient_charge INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		settlement_ref TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_version ON messages(version);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		party_1 TEXT NOT NULL,
		party_2 TEXT NOT NULL,
		hidden_1 INTEGER NOT NULL DEFAULT 0,
		hidden_2 INTEGER NOT NULL DEFAULT 0,
		num_unread_1 INTEGER NOT NULL DEFAULT 0,
		num_unread_2 INTEGER NOT NULL DEFAULT 0,
		last_message_text TEXT NOT NULL DEFAULT '',
		last_timestamp TIMESTAMP NOT NULL,
		encryption_key TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
		ON conversations(party_1, party_2);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_version
		ON conversations(version);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_version ON profiles(version);

	CREATE TABLE IF NOT EXISTS pictures (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_pictures_version ON pictures(version);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Exclusive runs fn while holding the locks of every named collection.
// Locks are acquired in storage.LockOrder and released in reverse, so any two
// overlapping regions serialize without deadlock.
func (s *Store) Exclusive(ctx context.Context, collections []storage.Collection, fn func(ctx context.Context) error) error {
	want := make(map[storage.Collection]bool, len(collections))
	for _, c := range collections {
		if _, ok := s.locks[c]; !ok {
			return fmt.Errorf("unknown collection %q", c)
		}
		want[c] = true
	}

	var held []*sync.Mutex
	for _, c := range storage.LockOrder {
		if want[c] {
			s.locks[c].Lock()
			held = append(held, s.locks[c])
		}
	}
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// versionedTables maps feed collections to their backing table. Accounts and
// transactions carry no version stamp; they surface in the feed only through
// balances and message status.
var versionedTables = map[storage.Collection]string{
	storage.CollectionMessages:      "messages",
	storage.CollectionConversations: "conversations",
	storage.CollectionProfiles:      "profiles",
	storage.CollectionPictures:      "pictures",
}

// NextVersion returns MAX(version)+1 for the collection. The caller must
// hold a region covering the collection until the stamped row commits.
func (s *Store) NextVersion(ctx context.Context, collection storage.Collection) (int64, error) {
	max, err := s.MaxVersion(ctx, collection)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// MaxVersion returns the highest committed version in the collection, 0 when
// the collection is empty.
func (s *Store) MaxVersion(ctx context.Context, collection storage.Collection) (int64, error) {
	table, ok := versionedTables[collection]
	if !ok {
		return 0, fmt.Errorf("collection %q has no version stamps", collection)
	}
	var max int64
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM `+table)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to read max version of %s: %w", table, err)
	}
	return max, nil
}
