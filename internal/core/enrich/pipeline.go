// Package enrich turns raw diff trees into the client-facing enriched shape.
package enrich

import (
	"context"
	"fmt"

	"github.com/agenthands/graphdiff/internal/core/model"
)

// Stage is one ordered mutation over an enriched tree.
type Stage interface {
	Name() string
	Enrich(ctx context.Context, root *model.EnrichedDiffRoot) error
}

// Pipeline runs the structural stages on freshly calculated trees and the
// presentation stages on every tree handed to callers.
type Pipeline struct {
	structural   []Stage
	presentation []Stage
}

func NewPipeline(cardinality *CardinalityOne, hierarchy *Hierarchy, labels *Labels) *Pipeline {
	return &Pipeline{
		structural:   []Stage{cardinality, hierarchy, PathIdentifiers{}},
		presentation: []Stage{labels, Summary{}},
	}
}

// Enrich converts a calculation and prepares both of its trees.
func (p *Pipeline) Enrich(ctx context.Context, diffs *model.CalculatedDiffs) (*model.EnrichedDiffs, error) {
	out := Convert(diffs)
	if err := p.Prepare(ctx, out.BaseBranchDiff); err != nil {
		return nil, err
	}
	if err := p.Prepare(ctx, out.DiffBranchDiff); err != nil {
		return nil, err
	}
	return out, nil
}

// Prepare runs cardinality consolidation, hierarchy injection and path assignment.
func (p *Pipeline) Prepare(ctx context.Context, root *model.EnrichedDiffRoot) error {
	return run(ctx, root, p.structural)
}

// Finish resolves labels and recomputes summaries.
func (p *Pipeline) Finish(ctx context.Context, root *model.EnrichedDiffRoot) error {
	return run(ctx, root, p.presentation)
}

func run(ctx context.Context, root *model.EnrichedDiffRoot, stages []Stage) error {
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stage.Enrich(ctx, root); err != nil {
			return fmt.Errorf("enrichment stage %s failed: %w", stage.Name(), err)
		}
	}
	return nil
}
