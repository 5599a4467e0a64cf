package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/agenthands/graphdiff/internal/core/model"
)

const checkPrefix = "check/"

func checkKey(proposedChangeID, id string) []byte {
	return []byte(checkPrefix + proposedChangeID + "\x00" + id)
}

// BadgerCheckStore keeps the conflict check records of proposed changes.
type BadgerCheckStore struct {
	db *badger.DB
}

func NewBadgerCheckStore(db *badger.DB) *BadgerCheckStore {
	return &BadgerCheckStore{db: db}
}

func (s *BadgerCheckStore) List(ctx context.Context, proposedChangeID string) ([]model.CheckRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.CheckRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return eachCheck(txn, checkKey(proposedChangeID, ""), func(rec model.CheckRecord) error {
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	return out, nil
}

func (s *BadgerCheckStore) Upsert(ctx context.Context, record model.CheckRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkKey(record.ProposedChangeID, record.ID), data)
	})
}

func (s *BadgerCheckStore) Delete(ctx context.Context, proposedChangeID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(checkKey(proposedChangeID, id))
	})
}

func (s *BadgerCheckStore) SetKeepBranch(ctx context.Context, conflictID string, keep model.KeepBranch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	updated := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		var changed []model.CheckRecord
		err := eachCheck(txn, []byte(checkPrefix), func(rec model.CheckRecord) error {
			if rec.Conflict.ConflictID == conflictID && rec.KeepBranch != keep {
				rec.KeepBranch = keep
				changed = append(changed, rec)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, rec := range changed {
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(checkKey(rec.ProposedChangeID, rec.ID), data); err != nil {
				return err
			}
		}
		updated = len(changed)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update checks of conflict %s: %w", conflictID, err)
	}
	return updated, nil
}

func eachCheck(txn *badger.Txn, prefix []byte, fn func(model.CheckRecord) error) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 32})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		var rec model.CheckRecord
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
