package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/agenthands/graphdiff/internal/core/model"
)

// BadgerConfig holds the options of the embedded diff cache.
type BadgerConfig struct {
	// Path is ignored when InMemory is true.
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens the database described by cfg. The caller closes it.
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// Key layout:
//
//	root/<uuid>                    -> JSON root
//	pair/<base>\0<diff>\0<uuid>      -> empty, untracked roots of a pair
//	tracking/<base>\0<diff>\0<id>    -> uuid
//
// Branch names may contain slashes, so pair components are NUL separated.
const (
	rootPrefix     = "root/"
	pairPrefix     = "pair/"
	trackingPrefix = "tracking/"
)

func rootKey(uuid string) []byte { return []byte(rootPrefix + uuid) }

func pairKey(base, diff, uuid string) []byte {
	return []byte(pairPrefix + base + "\x00" + diff + "\x00" + uuid)
}

func trackingKey(base, diff string, id model.TrackingID) []byte {
	return []byte(trackingPrefix + base + "\x00" + diff + "\x00" + string(id))
}

// BadgerRepository keeps enriched roots in an embedded BadgerDB.
type BadgerRepository struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewBadgerRepository(db *badger.DB, logger *slog.Logger) *BadgerRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerRepository{db: db, logger: logger}
}

func (r *BadgerRepository) Save(ctx context.Context, root *model.EnrichedDiffRoot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to encode diff root %s: %w", root.UUID, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(rootKey(root.UUID), data); err != nil {
			return err
		}
		if root.TrackingID != "" {
			return txn.Set(trackingKey(root.BaseBranchName, root.DiffBranchName, root.TrackingID), []byte(root.UUID))
		}
		return txn.Set(pairKey(root.BaseBranchName, root.DiffBranchName, root.UUID), nil)
	})
	if err != nil {
		return fmt.Errorf("failed to save diff root %s: %w", root.UUID, err)
	}
	r.logger.Debug("saved diff root", "uuid", root.UUID, "nodes", len(root.Nodes), "tracking_id", root.TrackingID)
	return nil
}

func (r *BadgerRepository) Covered(ctx context.Context, base, diff string, from, to model.Timestamp) ([]*model.EnrichedDiffRoot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*model.EnrichedDiffRoot
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := pairKey(base, diff, "")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			uuid := string(it.Item().Key()[len(prefix):])
			root, err := getRoot(txn, uuid)
			if err != nil {
				return err
			}
			if inside(root, from, to) {
				out = append(out, root)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list diff roots for %s/%s: %w", base, diff, err)
	}
	sortByWindow(out)
	return out, nil
}

func (r *BadgerRepository) ByTrackingID(ctx context.Context, base, diff string, id model.TrackingID) (*model.EnrichedDiffRoot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var root *model.EnrichedDiffRoot
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(trackingKey(base, diff, id))
		if err != nil {
			return err
		}
		uuid, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		root, err = getRoot(txn, string(uuid))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: tracking id %s", model.ErrRootNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked diff %s: %w", id, err)
	}
	return root, nil
}

func (r *BadgerRepository) Delete(ctx context.Context, uuids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		for _, uuid := range uuids {
			root, err := getRoot(txn, uuid)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if root.TrackingID != "" {
				if err := deleteTracking(txn, root); err != nil {
					return err
				}
			}
			if err := txn.Delete(pairKey(root.BaseBranchName, root.DiffBranchName, uuid)); err != nil {
				return err
			}
			if err := txn.Delete(rootKey(uuid)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete diff roots: %w", err)
	}
	return nil
}

// deleteTracking drops the tracking pointer only if it still points at root.
func deleteTracking(txn *badger.Txn, root *model.EnrichedDiffRoot) error {
	key := trackingKey(root.BaseBranchName, root.DiffBranchName, root.TrackingID)
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	current, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if string(current) != root.UUID {
		return nil
	}
	return txn.Delete(key)
}

func (r *BadgerRepository) UpdateConflictSelection(ctx context.Context, conflictID string, selection model.ConflictSelection) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	updated := 0
	err := r.db.Update(func(txn *badger.Txn) error {
		var changed []*model.EnrichedDiffRoot
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(rootPrefix), PrefetchValues: true, PrefetchSize: 16})
		for it.Rewind(); it.Valid(); it.Next() {
			root, err := decodeRoot(it.Item())
			if err != nil {
				it.Close()
				return err
			}
			if setSelection(root, conflictID, selection) {
				changed = append(changed, root)
			}
		}
		it.Close()

		for _, root := range changed {
			data, err := json.Marshal(root)
			if err != nil {
				return err
			}
			if err := txn.Set(rootKey(root.UUID), data); err != nil {
				return err
			}
		}
		updated = len(changed)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update conflict %s: %w", conflictID, err)
	}
	return updated, nil
}

func getRoot(txn *badger.Txn, uuid string) (*model.EnrichedDiffRoot, error) {
	item, err := txn.Get(rootKey(uuid))
	if err != nil {
		return nil, err
	}
	return decodeRoot(item)
}

func decodeRoot(item *badger.Item) (*model.EnrichedDiffRoot, error) {
	var root model.EnrichedDiffRoot
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &root)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", item.Key(), err)
	}
	return &root, nil
}
