// Package core exposes the diff engine's public operations on top of the
// coordinator, conflict and merge packages.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agenthands/graphdiff/internal/core/conflict"
	"github.com/agenthands/graphdiff/internal/core/coordinator"
	"github.com/agenthands/graphdiff/internal/core/merge"
	"github.com/agenthands/graphdiff/internal/core/model"
)

type Differ interface {
	GetDiff(ctx context.Context, req coordinator.DiffRequest) (*model.EnrichedDiffRoot, error)
}

// SelectionStore persists conflict selections on cached diffs.
type SelectionStore interface {
	UpdateConflictSelection(ctx context.Context, conflictID string, selection model.ConflictSelection) (int, error)
}

type ProposedChangeFinder interface {
	OpenProposedChanges(ctx context.Context, sourceBranch string) ([]string, error)
}

type Engine struct {
	Differ          Differ
	Selections      SelectionStore
	Extractor       *conflict.Extractor
	Recorder        *conflict.Recorder
	Serializer      *merge.Serializer
	ProposedChanges ProposedChangeFinder
	Logger          *slog.Logger
}

func NewEngine(differ Differ, selections SelectionStore, recorder *conflict.Recorder, serializer *merge.Serializer, proposedChanges ProposedChangeFinder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Differ:          differ,
		Selections:      selections,
		Extractor:       conflict.NewExtractor(),
		Recorder:        recorder,
		Serializer:      serializer,
		ProposedChanges: proposedChanges,
		Logger:          logger,
	}
}

func (e *Engine) GetDiff(ctx context.Context, req coordinator.DiffRequest) (*model.EnrichedDiffRoot, error) {
	return e.Differ.GetDiff(ctx, req)
}

// GetConflicts lists the conflicts of the diff, limited to ids when any are given.
func (e *Engine) GetConflicts(ctx context.Context, req coordinator.DiffRequest, ids ...string) ([]model.DataConflict, error) {
	root, err := e.Differ.GetDiff(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.Extractor.Extract(root, ids...), nil
}

// ResolveConflict stores which branch wins a conflict and mirrors the choice
// onto the proposed change checks tracking it.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, selection model.ConflictSelection) error {
	n, err := e.Selections.UpdateConflictSelection(ctx, conflictID, selection)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrConflictNotFound, conflictID)
	}
	if err := e.Recorder.MirrorSelection(ctx, conflictID, selection); err != nil {
		return err
	}
	e.Logger.Info("conflict resolved", "conflict_id", conflictID, "selection", selection, "diffs", n)
	return nil
}

// SerializeDiff streams the merge batches of the diff to yield.
func (e *Engine) SerializeDiff(ctx context.Context, req coordinator.DiffRequest, yield func(*merge.MergeBatch) error) error {
	root, err := e.Differ.GetDiff(ctx, req)
	if err != nil {
		return err
	}
	return e.Serializer.Serialize(ctx, root, yield)
}

// PreviewMerge collects every merge batch of the diff.
func (e *Engine) PreviewMerge(ctx context.Context, req coordinator.DiffRequest) ([]*merge.MergeBatch, error) {
	var batches []*merge.MergeBatch
	err := e.SerializeDiff(ctx, req, func(b *merge.MergeBatch) error {
		batches = append(batches, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// RecordConflicts mirrors the diff's conflicts into the checks of every open
// proposed change whose source is the diff branch. With no open proposed
// change nothing is computed.
func (e *Engine) RecordConflicts(ctx context.Context, req coordinator.DiffRequest) ([]*model.CheckResult, error) {
	ids, err := e.ProposedChanges.OpenProposedChanges(ctx, req.DiffBranch)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		e.Logger.Debug("no open proposed change", "branch", req.DiffBranch)
		return nil, nil
	}

	conflicts, err := e.GetConflicts(ctx, req)
	if err != nil {
		return nil, err
	}
	objects := make([]model.ObjectConflict, 0, len(conflicts))
	for _, dc := range conflicts {
		objects = append(objects, conflict.ToObjectConflict(dc))
	}

	results := make([]*model.CheckResult, 0, len(ids))
	for _, id := range ids {
		result, err := e.Recorder.RecordConflicts(ctx, id, objects)
		if err != nil {
			return nil, fmt.Errorf("failed to record conflicts for proposed change %s: %w", id, err)
		}
		results = append(results, result)
	}
	return results, nil
}
