// Package coordinator answers diff requests from cached roots, calculating
// only the parts of the window that are not cached yet.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/agenthands/graphdiff/internal/core/combiner"
	"github.com/agenthands/graphdiff/internal/core/conflict"
	"github.com/agenthands/graphdiff/internal/core/enrich"
	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/core/repository"
	"github.com/agenthands/graphdiff/internal/metrics"
	"github.com/agenthands/graphdiff/internal/tracing"
)

type DiffCalculator interface {
	Calculate(ctx context.Context, base, diff model.Branch, from, to model.Timestamp, fields ...model.NodeFieldSpecifier) (*model.CalculatedDiffs, error)
}

type BranchGetter interface {
	Branch(ctx context.Context, name string) (model.Branch, error)
}

// DiffRequest asks for the diff of DiffBranch against BaseBranch. A zero From
// starts at the diff branch's creation and a zero To means now. With a
// TrackingID the tracked diff is extended instead of the window cache.
type DiffRequest struct {
	BaseBranch string
	DiffBranch string
	From       model.Timestamp
	To         model.Timestamp
	TrackingID model.TrackingID
}

type Coordinator struct {
	repo       repository.Repository
	calculator DiffCalculator
	pipeline   *enrich.Pipeline
	combiner   *combiner.Combiner
	conflicts  *conflict.Enricher
	transferer *conflict.Transferer
	branches   BranchGetter
	group      singleflight.Group
	logger     *slog.Logger
}

func New(
	repo repository.Repository,
	calculator DiffCalculator,
	pipeline *enrich.Pipeline,
	combiner *combiner.Combiner,
	conflicts *conflict.Enricher,
	branches BranchGetter,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		repo:       repo,
		calculator: calculator,
		pipeline:   pipeline,
		combiner:   combiner,
		conflicts:  conflicts,
		transferer: conflict.NewTransferer(),
		branches:   branches,
		logger:     logger,
	}
}

// GetDiff returns the enriched diff for exactly the requested window, with
// conflicts against the base branch attached and labels resolved. Callers own
// the returned tree.
func (c *Coordinator) GetDiff(ctx context.Context, req DiffRequest) (*model.EnrichedDiffRoot, error) {
	ctx, span := tracing.Start(ctx, "coordinator.get_diff",
		attribute.String("graphdiff.base_branch", req.BaseBranch),
		attribute.String("graphdiff.diff_branch", req.DiffBranch),
		attribute.String("graphdiff.tracking_id", string(req.TrackingID)),
	)
	defer span.End()

	base, diff, from, to, err := c.resolve(ctx, req)
	if err != nil {
		metrics.DiffRequests.WithLabelValues("error").Inc()
		return nil, tracing.Fail(span, err)
	}

	key := strings.Join([]string{base.Name, diff.Name, from.String(), to.String(), string(req.TrackingID)}, "|")
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.build(ctx, base, diff, from, to, req.TrackingID)
	})
	if err != nil {
		metrics.DiffRequests.WithLabelValues("error").Inc()
		return nil, tracing.Fail(span, err)
	}
	span.SetAttributes(attribute.Bool("graphdiff.shared", shared))
	return v.(*model.EnrichedDiffRoot).Clone(), nil
}

// UpdateBranchDiff refreshes the tracked diff of a branch up to to.
func (c *Coordinator) UpdateBranchDiff(ctx context.Context, base, diff string, from, to model.Timestamp, trackingID model.TrackingID) (*model.EnrichedDiffRoot, error) {
	if trackingID == "" {
		return nil, errors.New("tracking id is required to update a branch diff")
	}
	return c.GetDiff(ctx, DiffRequest{BaseBranch: base, DiffBranch: diff, From: from, To: to, TrackingID: trackingID})
}

func (c *Coordinator) resolve(ctx context.Context, req DiffRequest) (model.Branch, model.Branch, model.Timestamp, model.Timestamp, error) {
	var none model.Timestamp
	base, err := c.branches.Branch(ctx, req.BaseBranch)
	if err != nil {
		return model.Branch{}, model.Branch{}, none, none, err
	}
	diff := base
	if req.DiffBranch != req.BaseBranch {
		if diff, err = c.branches.Branch(ctx, req.DiffBranch); err != nil {
			return model.Branch{}, model.Branch{}, none, none, err
		}
	}

	from, to := req.From, req.To
	if from.IsZero() {
		if diff.IsDefault {
			return model.Branch{}, model.Branch{}, none, none, fmt.Errorf("%w: branch %s", model.ErrMissingFromTime, diff.Name)
		}
		from = model.NewTimestamp(diff.CreatedAt)
	}
	if to.IsZero() {
		to = model.Now()
	}
	if to.Before(from) {
		return model.Branch{}, model.Branch{}, none, none, fmt.Errorf("%w: to %s is before from %s", model.ErrInvalidTimeRange, to, from)
	}
	return base, diff, from, to, nil
}

func (c *Coordinator) build(ctx context.Context, base, diff model.Branch, from, to model.Timestamp, trackingID model.TrackingID) (*model.EnrichedDiffRoot, error) {
	var (
		root      *model.EnrichedDiffRoot
		persisted bool
		err       error
	)
	if trackingID != "" {
		root, err = c.fillTracked(ctx, base, diff, from, to, trackingID)
		persisted = true
	} else {
		root, persisted, err = c.fill(ctx, base, diff, from, to)
	}
	if err != nil {
		return nil, err
	}

	if base.Name != diff.Name {
		baseDiff, err := c.fillBase(ctx, base, root.FromTime, root.ToTime)
		if err != nil {
			return nil, fmt.Errorf("failed to build base branch diff: %w", err)
		}
		c.conflicts.AddConflicts(baseDiff, root)

		n := 0
		conflict.Visit(root, func(string, *model.EnrichedDiffConflict) { n++ })
		metrics.ConflictsDetected.Set(float64(n))
		if persisted {
			if err := c.repo.Save(ctx, root); err != nil {
				return nil, err
			}
		}
	}

	if err := c.pipeline.Finish(ctx, root); err != nil {
		return nil, err
	}
	c.logger.Info("diff ready",
		"base_branch", base.Name,
		"diff_branch", diff.Name,
		"from", root.FromTime.String(),
		"to", root.ToTime.String(),
		"nodes", len(root.Nodes),
		"conflicts", root.NumConflicts,
	)
	return root, nil
}

// fillBase fills the base branch's own chain over [from, to). Concurrent
// requests for different diff branches share one fill; the result is read-only.
func (c *Coordinator) fillBase(ctx context.Context, base model.Branch, from, to model.Timestamp) (*model.EnrichedDiffRoot, error) {
	key := strings.Join([]string{"base", base.Name, from.String(), to.String()}, "|")
	v, err, _ := c.group.Do(key, func() (any, error) {
		root, _, err := c.fill(ctx, base, base, from, to)
		return root, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.EnrichedDiffRoot), nil
}

// fillTracked extends the diff stored under trackingID so that it reaches to.
func (c *Coordinator) fillTracked(ctx context.Context, base, diff model.Branch, from, to model.Timestamp, trackingID model.TrackingID) (*model.EnrichedDiffRoot, error) {
	existing, err := c.repo.ByTrackingID(ctx, base.Name, diff.Name, trackingID)
	if err != nil && !errors.Is(err, model.ErrRootNotFound) {
		return nil, err
	}

	if existing == nil {
		root, _, err := c.fill(ctx, base, diff, from, to)
		if err != nil {
			return nil, err
		}
		root = root.Clone()
		root.UUID = uuid.NewString()
		root.TrackingID = trackingID
		if err := c.repo.Save(ctx, root); err != nil {
			return nil, err
		}
		return root, nil
	}

	if !existing.ToTime.Before(to) {
		metrics.DiffRequests.WithLabelValues("cached").Inc()
		metrics.CachedRootsUsed.Inc()
		return existing, nil
	}

	next, _, err := c.fill(ctx, base, diff, existing.ToTime, to)
	if err != nil {
		return nil, err
	}
	combined := c.combiner.Combine(existing, next)
	combined.TrackingID = trackingID
	if err := c.repo.Save(ctx, combined); err != nil {
		return nil, err
	}
	if err := c.repo.Delete(ctx, existing.UUID); err != nil {
		return nil, err
	}
	c.logger.Debug("extended tracked diff", "tracking_id", trackingID, "from", existing.ToTime.String(), "to", to.String())
	return combined, nil
}

// fill assembles [from, to) for one branch pair from cached roots plus fresh
// calculations of the gaps between them. The second result reports whether
// the returned root is stored in the repository.
func (c *Coordinator) fill(ctx context.Context, base, diff model.Branch, from, to model.Timestamp) (*model.EnrichedDiffRoot, bool, error) {
	cached, err := c.repo.Covered(ctx, base.Name, diff.Name, from, to)
	if err != nil {
		return nil, false, err
	}

	var (
		roots   []*model.EnrichedDiffRoot
		overlap []*model.EnrichedDiffRoot
		cursor  = from
		gaps    int
	)
	calculate := func(gapFrom, gapTo model.Timestamp) error {
		root, err := c.calculate(ctx, base, diff, gapFrom, gapTo)
		if err != nil {
			return err
		}
		roots = append(roots, root)
		gaps++
		return nil
	}
	for _, root := range cached {
		if root.FromTime.Before(cursor) {
			overlap = append(overlap, root)
			continue
		}
		if cursor.Before(root.FromTime) {
			if err := calculate(cursor, root.FromTime); err != nil {
				return nil, false, err
			}
		}
		roots = append(roots, root)
		cursor = root.ToTime
	}
	if cursor.Before(to) {
		if err := calculate(cursor, to); err != nil {
			return nil, false, err
		}
	}

	metrics.CachedRootsUsed.Add(float64(len(roots) - gaps))
	outcome := "cached"
	if gaps > 0 {
		outcome = "calculated"
	}
	metrics.DiffRequests.WithLabelValues(outcome).Inc()

	if len(roots) == 0 {
		return model.NewEnrichedRoot(uuid.NewString(), base.Name, diff.Name, from, to), false, nil
	}
	if len(roots) == 1 && len(overlap) == 0 {
		return roots[0], true, nil
	}

	// the result spans [from, to), so it supersedes every overlapping root too
	result := roots[0]
	stale := make([]string, 0, len(roots)+len(overlap))
	if len(roots) > 1 {
		for _, next := range roots[1:] {
			result = c.combiner.Combine(result, next)
		}
		for _, r := range roots {
			stale = append(stale, r.UUID)
		}
	}
	for _, r := range overlap {
		c.transferer.Transfer(r, result)
		stale = append(stale, r.UUID)
	}
	if err := c.repo.Save(ctx, result); err != nil {
		return nil, false, err
	}
	if err := c.repo.Delete(ctx, stale...); err != nil {
		return nil, false, err
	}
	metrics.CompactedRoots.Add(float64(len(stale)))
	c.logger.Debug("compacted diff roots", "base_branch", base.Name, "diff_branch", diff.Name, "roots", len(stale), "overlapping", len(overlap), "calculated", gaps)
	return result, true, nil
}

func (c *Coordinator) calculate(ctx context.Context, base, diff model.Branch, from, to model.Timestamp) (*model.EnrichedDiffRoot, error) {
	timer := prometheus.NewTimer(metrics.CalculationDuration)
	defer timer.ObserveDuration()

	diffs, err := c.calculator.Calculate(ctx, base, diff, from, to)
	if err != nil {
		return nil, err
	}
	root := enrich.Convert(diffs).DiffBranchDiff
	if err := c.pipeline.Prepare(ctx, root); err != nil {
		return nil, err
	}
	if err := c.repo.Save(ctx, root); err != nil {
		return nil, err
	}
	metrics.RangesCalculated.Inc()
	return root, nil
}
