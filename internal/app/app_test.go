package app

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphdiff/internal/config"
	"github.com/agenthands/graphdiff/internal/core/coordinator"
	"github.com/agenthands/graphdiff/internal/core/model"
	"github.com/agenthands/graphdiff/internal/core/repository"
	"github.com/agenthands/graphdiff/internal/schema"
)

type MockDriver struct {
	Queries []string
	Closed  bool
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error) {
	m.Queries = append(m.Queries, query)
	return neo4j.EagerResult{}, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error { return nil }

func (m *MockDriver) Close(ctx context.Context) error {
	m.Closed = true
	return nil
}

func testConfig(cache string) *config.Config {
	cfg := config.Default()
	cfg.Badger.InMemory = true
	cfg.Diff.Cache = cache
	return cfg
}

func TestBuildWithBadgerCache(t *testing.T) {
	d := &MockDriver{}
	a, err := Build(testConfig("badger"), d, schema.NewRegistry(), nil)
	require.NoError(t, err)

	assert.IsType(t, &repository.BadgerRepository{}, a.Repository)

	_, err = a.Engine.GetDiff(context.Background(), coordinator.DiffRequest{BaseBranch: "main", DiffBranch: "feature"})
	assert.ErrorIs(t, err, model.ErrBranchNotFound)
	assert.NotEmpty(t, d.Queries)

	require.NoError(t, a.Close(context.Background()))
	assert.True(t, d.Closed)
}

func TestBuildWithGraphCache(t *testing.T) {
	a, err := Build(testConfig("graph"), &MockDriver{}, schema.NewRegistry(), nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.IsType(t, &repository.GraphRepository{}, a.Repository)
}
