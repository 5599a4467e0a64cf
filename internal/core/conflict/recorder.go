package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/agenthands/graphdiff/internal/core/model"
)

// CheckStore persists the validator checks that mirror conflicts.
type CheckStore interface {
	List(ctx context.Context, proposedChangeID string) ([]model.CheckRecord, error)
	Upsert(ctx context.Context, record model.CheckRecord) error
	Delete(ctx context.Context, proposedChangeID, id string) error
	// SetKeepBranch updates every check mirroring conflictID and returns how many it touched.
	SetKeepBranch(ctx context.Context, conflictID string, keep model.KeepBranch) (int, error)
}

type Recorder struct {
	store  CheckStore
	logger *slog.Logger
}

func NewRecorder(store CheckStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// RecordConflicts makes the checks of a proposed change match conflicts exactly.
// Checks are matched by conflict id first and by identical payload second, so
// recomputed conflicts do not churn their records.
func (r *Recorder) RecordConflicts(ctx context.Context, proposedChangeID string, conflicts []model.ObjectConflict) (*model.CheckResult, error) {
	existing, err := r.store.List(ctx, proposedChangeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks for %s: %w", proposedChangeID, err)
	}

	byConflictID := make(map[string]int, len(existing))
	for i, rec := range existing {
		byConflictID[rec.Conflict.ConflictID] = i
	}
	used := make(map[int]bool, len(existing))

	checks := make([]model.CheckRecord, 0, len(conflicts))
	for _, oc := range conflicts {
		idx, ok := byConflictID[oc.ConflictID]
		if !ok || used[idx] {
			idx, ok = matchContent(existing, used, oc)
		}

		var rec model.CheckRecord
		if ok {
			used[idx] = true
			rec = existing[idx]
			if rec.Conflict == oc {
				checks = append(checks, rec)
				continue
			}
			rec.Conflict = oc
		} else {
			rec = model.CheckRecord{
				ID:               uuid.NewString(),
				ProposedChangeID: proposedChangeID,
				Conflict:         oc,
				CreatedAt:        model.Now(),
			}
		}
		if err := r.store.Upsert(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to save check for conflict %s: %w", oc.ConflictID, err)
		}
		checks = append(checks, rec)
	}

	for i, rec := range existing {
		if used[i] {
			continue
		}
		if err := r.store.Delete(ctx, proposedChangeID, rec.ID); err != nil {
			return nil, fmt.Errorf("failed to delete stale check %s: %w", rec.ID, err)
		}
	}

	sort.Slice(checks, func(i, j int) bool { return checks[i].Conflict.Path < checks[j].Conflict.Path })
	r.logger.Info("recorded conflict checks",
		"proposed_change_id", proposedChangeID,
		"conflicts", len(conflicts),
		"removed", len(existing)-len(used),
	)
	return &model.CheckResult{
		ProposedChangeID: proposedChangeID,
		Success:          len(conflicts) == 0,
		Checks:           checks,
	}, nil
}

// MirrorSelection propagates a conflict selection to the checks that mirror it.
func (r *Recorder) MirrorSelection(ctx context.Context, conflictID string, selection model.ConflictSelection) error {
	n, err := r.store.SetKeepBranch(ctx, conflictID, selection.KeepBranch())
	if err != nil {
		return fmt.Errorf("failed to update checks for conflict %s: %w", conflictID, err)
	}
	r.logger.Debug("mirrored conflict selection", "conflict_id", conflictID, "selection", selection, "checks", n)
	return nil
}

func matchContent(existing []model.CheckRecord, used map[int]bool, oc model.ObjectConflict) (int, bool) {
	for i, rec := range existing {
		if !used[i] && rec.Conflict.SameContent(oc) {
			return i, true
		}
	}
	return 0, false
}
