package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphdiff/internal/core/conflict"
	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/driver"
)

// GraphRepository stores diff roots in the graph database next to the data
// they describe. Each root keeps its full tree as a JSON payload; nodes and
// conflicts are also stored as DiffNode and DiffConflict vertices so that
// selections can be updated in place.
type GraphRepository struct {
	driver driver.GraphDriver
}

func NewGraphRepository(d driver.GraphDriver) *GraphRepository {
	return &GraphRepository{driver: d}
}

func (r *GraphRepository) Save(ctx context.Context, root *model.EnrichedDiffRoot) error {
	payload, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to encode diff root %s: %w", root.UUID, err)
	}
	_, err = r.driver.ExecuteQuery(ctx, driver.SaveDiffRootQuery, map[string]any{
		"uuid":        root.UUID,
		"base_branch": root.BaseBranchName,
		"diff_branch": root.DiffBranchName,
		"from_time":   driver.FormatTime(root.FromTime),
		"to_time":     driver.FormatTime(root.ToTime),
		"tracking_id": string(root.TrackingID),
		"payload":     string(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to save diff root %s: %w", root.UUID, err)
	}

	nodes := make([]map[string]any, 0, len(root.Nodes))
	for _, n := range root.SortedNodes() {
		nodes = append(nodes, map[string]any{
			"uuid":            n.UUID,
			"kind":            n.Kind,
			"action":          string(n.Action),
			"path_identifier": n.PathIdentifier,
		})
	}
	if len(nodes) > 0 {
		if _, err := r.driver.ExecuteQuery(ctx, driver.SaveDiffNodesQuery, map[string]any{"root_uuid": root.UUID, "nodes": nodes}); err != nil {
			return fmt.Errorf("failed to save nodes of diff root %s: %w", root.UUID, err)
		}
	}

	var conflicts []map[string]any
	conflict.Visit(root, func(path string, c *model.EnrichedDiffConflict) {
		conflicts = append(conflicts, map[string]any{
			"uuid":            c.UUID,
			"path_identifier": path,
			"selected_branch": string(c.SelectedBranch),
		})
	})
	if len(conflicts) > 0 {
		if _, err := r.driver.ExecuteQuery(ctx, driver.SaveDiffConflictsQuery, map[string]any{"root_uuid": root.UUID, "conflicts": conflicts}); err != nil {
			return fmt.Errorf("failed to save conflicts of diff root %s: %w", root.UUID, err)
		}
	}
	return nil
}

func (r *GraphRepository) Covered(ctx context.Context, base, diff string, from, to model.Timestamp) ([]*model.EnrichedDiffRoot, error) {
	result, err := r.driver.ExecuteQuery(ctx, driver.GetDiffRootsQuery, map[string]any{
		"base_branch": base,
		"diff_branch": diff,
		"from_time":   driver.FormatTime(from),
		"to_time":     driver.FormatTime(to),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list diff roots for %s/%s: %w", base, diff, err)
	}
	out := make([]*model.EnrichedDiffRoot, 0, len(result.Records))
	for _, rec := range result.Records {
		root, err := decodeRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, root)
	}
	sortByWindow(out)
	return out, nil
}

func (r *GraphRepository) ByTrackingID(ctx context.Context, base, diff string, id model.TrackingID) (*model.EnrichedDiffRoot, error) {
	result, err := r.driver.ExecuteQuery(ctx, driver.GetDiffRootByTrackingIDQuery, map[string]any{
		"base_branch": base,
		"diff_branch": diff,
		"tracking_id": string(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked diff %s: %w", id, err)
	}
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("%w: tracking id %s", model.ErrRootNotFound, id)
	}
	return decodeRecord(result.Records[0])
}

func (r *GraphRepository) Delete(ctx context.Context, uuids ...string) error {
	if len(uuids) == 0 {
		return nil
	}
	if _, err := r.driver.ExecuteQuery(ctx, driver.DeleteDiffRootsQuery, map[string]any{"uuids": uuids}); err != nil {
		return fmt.Errorf("failed to delete diff roots: %w", err)
	}
	return nil
}

func (r *GraphRepository) UpdateConflictSelection(ctx context.Context, conflictID string, selection model.ConflictSelection) (int, error) {
	result, err := r.driver.ExecuteQuery(ctx, driver.UpdateConflictSelectionQuery, map[string]any{
		"uuid":            conflictID,
		"selected_branch": string(selection),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update conflict %s: %w", conflictID, err)
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	n, _, err := neo4j.GetRecordValue[int64](result.Records[0], "updated")
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// decodeRecord rebuilds a root from its payload and overlays the selections
// stored on its DiffConflict vertices, which may be newer than the payload.
func decodeRecord(rec *neo4j.Record) (*model.EnrichedDiffRoot, error) {
	payload, _, err := neo4j.GetRecordValue[string](rec, "payload")
	if err != nil {
		return nil, fmt.Errorf("column payload: %w", err)
	}
	var root model.EnrichedDiffRoot
	if err := json.Unmarshal([]byte(payload), &root); err != nil {
		return nil, fmt.Errorf("failed to decode diff root: %w", err)
	}

	raw, _ := rec.Get("selections")
	pairs, _ := raw.([]any)
	for _, p := range pairs {
		pair, ok := p.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		id, _ := pair[0].(string)
		sel, _ := pair[1].(string)
		if id == "" {
			continue
		}
		selection, err := model.ParseConflictSelection(sel)
		if err != nil {
			return nil, err
		}
		setSelection(&root, id, selection)
	}
	return &root, nil
}
