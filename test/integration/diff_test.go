//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphdiff/internal/app"
	"github.com/agenthands/graphdiff/internal/config"
	"github.com/agenthands/graphdiff/internal/core/coordinator"
	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/driver"
	"github.com/agenthands/graphdiff/internal/schema"
)

const seedQuery = `
	CREATE (root:Root {uuid: $root})
	CREATE (:Branch {name: $main, created_at: $created_main, is_default: true})
	CREATE (:Branch {name: $feature, created_at: $created_feature, origin_branch: $main, is_default: false})
	CREATE (n:Node {uuid: $node, kind: "TestPerson", namespace: "Test"})
	CREATE (n)-[:IS_PART_OF {branch: $main, status: "active", from: $created_main}]->(root)
	CREATE (a:Attribute {uuid: $attr, name: "height"})
	CREATE (n)-[:HAS_ATTRIBUTE {branch: $main, status: "active", from: $created_main}]->(a)
	CREATE (v170:AttributeValue {value: "170"})
	CREATE (v175:AttributeValue {value: "175"})
	CREATE (v180:AttributeValue {value: "180"})
	CREATE (a)-[:HAS_VALUE {branch: $main, status: "active", from: $created_main, to: $main_change}]->(v170)
	CREATE (a)-[:HAS_VALUE {branch: $main, status: "active", from: $main_change}]->(v175)
	CREATE (a)-[:HAS_VALUE {branch: $feature, status: "deleted", from: $feature_change}]->(v170)
	CREATE (a)-[:HAS_VALUE {branch: $feature, status: "active", from: $feature_change}]->(v180)
`

type seeded struct {
	main    string
	feature string
	node    string
	start   model.Timestamp
}

func setup(t *testing.T) (*app.App, seeded) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	uri := os.Getenv("MEMGRAPH_URI")
	if uri == "" {
		t.Skip("Skipping integration test: MEMGRAPH_URI not set")
	}
	ctx := context.Background()

	d, err := driver.NewMemgraphDriver(ctx, uri, os.Getenv("MEMGRAPH_USER"), os.Getenv("MEMGRAPH_PASSWORD"), nil)
	require.NoError(t, err)
	require.NoError(t, d.BuildIndices(ctx))

	suffix := uuid.NewString()[:8]
	start := model.NewTimestamp(time.Now().UTC().Add(-time.Hour).Truncate(time.Second))
	s := seeded{
		main:    "main-" + suffix,
		feature: "feature-" + suffix,
		node:    uuid.NewString(),
		start:   start,
	}
	_, err = d.ExecuteQuery(ctx, seedQuery, map[string]any{
		"root":            uuid.NewString(),
		"main":            s.main,
		"feature":         s.feature,
		"node":            s.node,
		"attr":            uuid.NewString(),
		"created_main":    driver.FormatTime(start.Add(-time.Hour)),
		"created_feature": driver.FormatTime(start),
		"feature_change":  driver.FormatTime(start.Add(10 * time.Minute)),
		"main_change":     driver.FormatTime(start.Add(20 * time.Minute)),
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Diff.DefaultBranch = s.main
	cfg.Diff.KindsInclude = []string{"TestPerson"}
	cfg.Badger.InMemory = true
	registry := schema.NewRegistry(schema.NodeSchema{
		Kind:       "TestPerson",
		Namespace:  "Test",
		Attributes: []schema.AttributeSchema{{Name: "height", Kind: schema.KindNumber}},
	})

	a, err := app.Build(cfg, d, registry, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a, s
}

func TestBranchDiffWithConflict(t *testing.T) {
	a, s := setup(t)
	ctx := context.Background()
	req := coordinator.DiffRequest{BaseBranch: s.main, DiffBranch: s.feature, To: s.start.Add(30 * time.Minute)}

	root, err := a.Engine.GetDiff(ctx, req)
	require.NoError(t, err)

	node, ok := root.Node(s.node)
	require.True(t, ok)
	prop := node.Attributes["height"].Properties[model.PropertyHasValue]
	require.NotNil(t, prop)
	assert.Equal(t, "180", *prop.NewValue)
	require.NotNil(t, prop.Conflict)
	assert.Equal(t, "175", *prop.Conflict.BaseBranchValue)

	conflicts, err := a.Engine.GetConflicts(ctx, req)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	_, err = a.Engine.PreviewMerge(ctx, req)
	assert.ErrorIs(t, err, model.ErrUnresolvedConflict)

	require.NoError(t, a.Engine.ResolveConflict(ctx, conflicts[0].ID, model.SelectionDiffBranch))
	batches, err := a.Engine.PreviewMerge(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, batches)
	assert.Equal(t, int64(180), batches[0].Properties[len(batches[0].Properties)-1].Value)
}

func TestBranchDiffReusesCache(t *testing.T) {
	a, s := setup(t)
	ctx := context.Background()

	first, err := a.Engine.GetDiff(ctx, coordinator.DiffRequest{BaseBranch: s.main, DiffBranch: s.feature, To: s.start.Add(15 * time.Minute)})
	require.NoError(t, err)
	second, err := a.Engine.GetDiff(ctx, coordinator.DiffRequest{BaseBranch: s.main, DiffBranch: s.feature, To: s.start.Add(30 * time.Minute)})
	require.NoError(t, err)

	assert.True(t, second.FromTime.Equal(first.FromTime))
	assert.True(t, second.ToTime.Equal(s.start.Add(30*time.Minute)))
	_, ok := second.Node(s.node)
	assert.True(t, ok)
}
