// Package repository persists enriched diff roots so later requests can reuse them.
package repository

import (
	"context"
	"sort"

	"github.com/agenthands/graphdiff/internal/core/conflict"
	"github.com/agenthands/graphdiff/internal/core/model"
)

// Repository stores enriched diff roots keyed by branch pair and window, or by
// tracking id.
type Repository interface {
	Save(ctx context.Context, root *model.EnrichedDiffRoot) error
	// Covered returns the untracked roots of the pair lying inside [from, to],
	// ascending by FromTime.
	Covered(ctx context.Context, base, diff string, from, to model.Timestamp) ([]*model.EnrichedDiffRoot, error)
	// ByTrackingID returns model.ErrRootNotFound when nothing is tracked under id.
	ByTrackingID(ctx context.Context, base, diff string, id model.TrackingID) (*model.EnrichedDiffRoot, error)
	Delete(ctx context.Context, uuids ...string) error
	// UpdateConflictSelection sets the selection of every stored conflict with
	// the given id and returns how many it touched.
	UpdateConflictSelection(ctx context.Context, conflictID string, selection model.ConflictSelection) (int, error)
}

func sortByWindow(roots []*model.EnrichedDiffRoot) {
	sort.Slice(roots, func(i, j int) bool {
		if c := roots[i].FromTime.Compare(roots[j].FromTime); c != 0 {
			return c < 0
		}
		return roots[i].ToTime.Before(roots[j].ToTime)
	})
}

func inside(root *model.EnrichedDiffRoot, from, to model.Timestamp) bool {
	return !root.FromTime.Before(from) && !root.ToTime.After(to)
}

// setSelection updates the conflict id of root in place.
func setSelection(root *model.EnrichedDiffRoot, conflictID string, selection model.ConflictSelection) bool {
	c, _, ok := conflict.Find(root, conflictID)
	if !ok {
		return false
	}
	c.SelectedBranch = selection
	return true
}
