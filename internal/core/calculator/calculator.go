// Package calculator runs one raw path query for a window and parses it into diff trees.
package calculator

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/core/parser"
	"github.com/agenthands/graphdiff/internal/schema"
	"github.com/agenthands/graphdiff/internal/tracing"
)

// PathQuerier answers "what changed on these branches between two timestamps".
type PathQuerier interface {
	QueryPaths(ctx context.Context, req model.PathQueryRequest) ([]model.DatabasePath, error)
}

// Filters narrow the raw query to a subset of the schema.
type Filters struct {
	NamespacesInclude []string
	NamespacesExclude []string
	KindsInclude      []string
	KindsExclude      []string
}

type Calculator struct {
	querier PathQuerier
	schema  schema.Provider
	filters Filters
	logger  *slog.Logger
}

func New(querier PathQuerier, provider schema.Provider, filters Filters, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		querier: querier,
		schema:  provider,
		filters: filters,
		logger:  logger,
	}
}

// Calculate computes the base and feature trees for [from, to). A zero from on a
// non-default branch starts at the branch's creation time.
func (c *Calculator) Calculate(ctx context.Context, base, diff model.Branch, from, to model.Timestamp, fields ...model.NodeFieldSpecifier) (*model.CalculatedDiffs, error) {
	if from.IsZero() {
		if diff.IsDefault {
			return nil, fmt.Errorf("%w: branch %s", model.ErrMissingFromTime, diff.Name)
		}
		from = model.NewTimestamp(diff.CreatedAt)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to %s is before from %s", model.ErrInvalidTimeRange, to, from)
	}

	ctx, span := tracing.Start(ctx, "calculator.calculate",
		attribute.String("graphdiff.base_branch", base.Name),
		attribute.String("graphdiff.diff_branch", diff.Name),
		attribute.String("graphdiff.from", from.String()),
		attribute.String("graphdiff.to", to.String()),
	)
	defer span.End()

	req := model.PathQueryRequest{
		BaseBranch:        base.Name,
		DiffBranch:        diff.Name,
		FromTime:          from,
		ToTime:            to,
		NamespacesInclude: c.filters.NamespacesInclude,
		NamespacesExclude: c.filters.NamespacesExclude,
		KindsInclude:      c.filters.KindsInclude,
		KindsExclude:      c.filters.KindsExclude,
		FieldSpecifiers:   fields,
	}
	paths, err := c.querier.QueryPaths(ctx, req)
	if err != nil {
		return nil, tracing.Fail(span, fmt.Errorf("failed to query diff paths: %w", err))
	}
	span.SetAttributes(attribute.Int("graphdiff.paths", len(paths)))

	p := parser.New(base.Name, diff.Name, from, to, c.schema, c.logger)
	if err := p.Parse(parser.Executed(paths)); err != nil {
		return nil, tracing.Fail(span, fmt.Errorf("failed to parse diff paths: %w", err))
	}

	diffs := p.Diffs()
	c.logger.Debug("calculated diff",
		"base_branch", base.Name,
		"diff_branch", diff.Name,
		"from", from.String(),
		"to", to.String(),
		"paths", len(paths),
		"nodes", diffs.DiffRoot.Len(),
		"base_changed", diffs.BaseRoot != nil,
	)
	return diffs, nil
}
