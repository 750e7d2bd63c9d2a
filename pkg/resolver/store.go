package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// AliasStore persists the alias table so ids and aliases survive restarts.
type AliasStore interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, rec Record) error
	Reset(ctx context.Context) error
	Close() error
}

const recordPrefix = "entity/"

// BadgerAliasStore keeps one JSON record per canonical entity in Badger.
type BadgerAliasStore struct {
	db *badger.DB
}

// OpenBadgerAliasStore opens (or creates) a store at path. An empty path
// opens an in-memory database.
func OpenBadgerAliasStore(path string) (*BadgerAliasStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open alias store: %w", err)
	}
	return &BadgerAliasStore{db: db}, nil
}

// Load reads every persisted record.
func (s *BadgerAliasStore) Load(ctx context.Context) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("corrupt alias record %s: %w", it.Item().Key(), err)
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return recs, err
}

// Save writes rec, replacing any earlier version.
func (s *BadgerAliasStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordPrefix+rec.ID), value)
	})
}

// Reset removes every record.
func (s *BadgerAliasStore) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropPrefix([]byte(recordPrefix))
}

// Close closes the database.
func (s *BadgerAliasStore) Close() error {
	return s.db.Close()
}
