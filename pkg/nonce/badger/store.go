// Package badger implements a persistent nonce registry backed by BadgerDB.
//
// The persistent variant survives engine restarts: a client that was
// challenged shortly before a restart can still authenticate with the nonce
// it was handed. Expiry uses BadgerDB's native entry TTL, so no sweeper or
// per-nonce timer is needed.
package badger

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/marmos91/dhttpd/pkg/nonce"
)

// keyPrefix namespaces nonce entries inside the database so the store can
// share a directory with future persistent state.
const keyPrefix = "nonce/"

// Store is a nonce.Registry backed by BadgerDB.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Config holds BadgerDB-specific settings for the nonce store.
type Config struct {
	// DBPath is the directory holding the BadgerDB files.
	DBPath string `mapstructure:"db_path"`

	// TTL overrides the nonce time-to-live. Zero uses nonce.DefaultTTL.
	TTL time.Duration `mapstructure:"ttl"`
}

// New opens (or creates) the database at cfg.DBPath.
//
// The nonce workload is tiny key-value churn, so the default options are
// tuned down: no compression, warning-level logging, small caches.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("badger nonce store: db_path is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = nonce.DefaultTTL
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithBlockCacheSize(8 << 20)
	opts = opts.WithIndexCacheSize(8 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	return &Store{db: db, ttl: ttl}, nil
}

// Issue generates a 128-bit random token and stores it with the TTL.
func (s *Store) Issue(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token := uuid.NewString()

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+token), []byte{1}).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}

	return token, nil
}

// Contains reports whether the token exists and has not expired. Expired
// entries are invisible to reads before BadgerDB reclaims them.
func (s *Store) Contains(ctx context.Context, token string) bool {
	if ctx.Err() != nil {
		return false
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyPrefix + token))
		return err
	})
	return err == nil
}

// Remove invalidates the token immediately.
func (s *Store) Remove(ctx context.Context, token string) {
	if ctx.Err() != nil {
		return
	}

	_ = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + token))
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
