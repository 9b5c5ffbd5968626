package kvstore

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// BadgerFast is the embedded, no-network fallback fast-secondary backend
// used in local dev and tests when no Redis endpoint is configured.
type BadgerFast struct {
	db *badger.DB
}

func NewBadgerFast(dir string) (*BadgerFast, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Dependency("kvstore.NewBadgerFast", "badger open failed", err)
	}
	return &BadgerFast{db: db}, nil
}

func (b *BadgerFast) Get(ctx context.Context, scopedKey string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(scopedKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Internal("kvstore.BadgerFast.Get", "badger view failed", err)
	}
	return out, true, nil
}

func (b *BadgerFast) Set(ctx context.Context, scopedKey string, value []byte, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(scopedKey), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return errs.Internal("kvstore.BadgerFast.Set", "badger update failed", err)
	}
	return nil
}

func (b *BadgerFast) Delete(ctx context.Context, scopedKey string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(scopedKey))
	})
}

func (b *BadgerFast) Close() error { return b.db.Close() }
