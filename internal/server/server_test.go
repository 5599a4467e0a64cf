package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphdiff/internal/core/merge"
	"github.com/agenthands/graphdiff/internal/core/model"
)

const conflictID = "6f1c1e5e-8d0a-5a55-9a4e-2b7a6f0c9d11"

var t0 = model.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

func setup(svc *MockService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewServer(svc, "main", nil).SetupRouter()
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]["code"].(string)
}

func TestGetDiff(t *testing.T) {
	svc := &MockService{Root: model.NewEnrichedRoot("r1", "main", "feature", t0, t0.Add(time.Hour))}
	r := setup(svc)

	w := do(r, http.MethodGet, "/diff?diff_branch=feature&from=2026-01-01T00:00:00Z&to=2026-01-01T01:00:00Z&tracking_id=pc-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.Requests, 1)
	req := svc.Requests[0]
	assert.Equal(t, "main", req.BaseBranch)
	assert.Equal(t, "feature", req.DiffBranch)
	assert.True(t, req.From.Equal(t0))
	assert.True(t, req.To.Equal(t0.Add(time.Hour)))
	assert.Equal(t, model.TrackingID("pc-1"), req.TrackingID)

	var root model.EnrichedDiffRoot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &root))
	assert.Equal(t, "r1", root.UUID)
}

func TestGetDiffRejectsBadInput(t *testing.T) {
	r := setup(&MockService{})

	w := do(r, http.MethodGet, "/diff", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/diff?diff_branch=feature&from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", errorCode(t, w))
}

func TestGetDiffMapsEngineErrors(t *testing.T) {
	r := setup(&MockService{Err: fmt.Errorf("%w: feature", model.ErrBranchNotFound)})

	w := do(r, http.MethodGet, "/diff?diff_branch=feature", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "branch_not_found", errorCode(t, w))
}

func TestGetConflicts(t *testing.T) {
	svc := &MockService{Conflicts: []model.DataConflict{{ID: conflictID, Path: "data/p1/height/value"}}}
	r := setup(svc)

	w := do(r, http.MethodGet, "/conflicts?diff_branch=feature&ids=a,b", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b"}, svc.IDs)
	var body struct {
		Conflicts []model.DataConflict `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, conflictID, body.Conflicts[0].ID)
}

func TestResolveConflict(t *testing.T) {
	svc := &MockService{}
	r := setup(svc)

	w := do(r, http.MethodPost, "/conflicts/"+conflictID+"/resolve", `{"selection":"diff_branch"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.SelectionDiffBranch, svc.Resolved[conflictID])

	w = do(r, http.MethodPost, "/conflicts/not-a-uuid/resolve", `{"selection":"diff_branch"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/conflicts/"+conflictID+"/resolve", `{"selection":"theirs"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveUnknownConflict(t *testing.T) {
	r := setup(&MockService{Err: fmt.Errorf("%w: %s", model.ErrConflictNotFound, conflictID)})

	w := do(r, http.MethodPost, "/conflicts/"+conflictID+"/resolve", `{"selection":"base_branch"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "conflict_not_found", errorCode(t, w))
}

func TestPreviewMerge(t *testing.T) {
	svc := &MockService{Batches: []*merge.MergeBatch{
		{
			Nodes:      []merge.NodeOperation{{UUID: "d1", Kind: "InfraDevice", Action: model.ActionAdded}},
			Properties: []merge.PropertyOperation{{NodeUUID: "d1", FieldName: "name", Action: model.ActionAdded, Value: "edge-1"}},
		},
		{
			Nodes: []merge.NodeOperation{{UUID: "d2", Kind: "InfraDevice", Action: model.ActionRemoved}},
		},
	}}
	r := setup(svc)

	w := do(r, http.MethodPost, "/merge/preview", `{"diff_branch":"feature"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Batches []struct {
			Stats merge.Stats           `json:"stats"`
			Nodes []merge.NodeOperation `json:"nodes"`
		} `json:"batches"`
		Total merge.Stats `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Batches, 2)
	assert.Equal(t, "d1", body.Batches[0].Nodes[0].UUID)
	assert.Equal(t, merge.Stats{Nodes: 2, Properties: 1}, body.Total)
	assert.Equal(t, "main", svc.Requests[0].BaseBranch)
}

func TestPreviewMergeUnresolved(t *testing.T) {
	r := setup(&MockService{Err: &model.PathError{Op: "merge", Path: "data/d1/name/value", Err: model.ErrUnresolvedConflict}})

	w := do(r, http.MethodPost, "/merge/preview", `{"diff_branch":"feature"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "unresolved_conflict", errorCode(t, w))
}

func TestRecordConflicts(t *testing.T) {
	svc := &MockService{}
	r := setup(svc)

	w := do(r, http.MethodPost, "/conflicts/record", `{"base_branch":"main","diff_branch":"feature"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[]}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	r := setup(&MockService{})

	w := do(r, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
