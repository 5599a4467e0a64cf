package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agenthands/graphdiff/internal/apperror"
	"github.com/agenthands/graphdiff/internal/core/coordinator"
	"github.com/agenthands/graphdiff/internal/core/merge"
	"github.com/agenthands/graphdiff/internal/core/model"
)

// Service is the engine surface the HTTP API exposes.
type Service interface {
	GetDiff(ctx context.Context, req coordinator.DiffRequest) (*model.EnrichedDiffRoot, error)
	GetConflicts(ctx context.Context, req coordinator.DiffRequest, ids ...string) ([]model.DataConflict, error)
	ResolveConflict(ctx context.Context, conflictID string, selection model.ConflictSelection) error
	PreviewMerge(ctx context.Context, req coordinator.DiffRequest) ([]*merge.MergeBatch, error)
	RecordConflicts(ctx context.Context, req coordinator.DiffRequest) ([]*model.CheckResult, error)
}

type Server struct {
	Service       Service
	DefaultBranch string
	Logger        *slog.Logger
}

func NewServer(service Service, defaultBranch string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Service: service, DefaultBranch: defaultBranch, Logger: logger}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()
	r.Use(apperror.Middleware(s.Logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/diff", s.GetDiff)
	r.GET("/conflicts", s.GetConflicts)
	r.POST("/conflicts/:id/resolve", s.ResolveConflict)
	r.POST("/conflicts/record", s.RecordConflicts)
	r.POST("/merge/preview", s.PreviewMerge)

	return r
}

// DiffQuery selects a diff. Times are RFC3339; empty means the default.
type DiffQuery struct {
	BaseBranch string `form:"base_branch" json:"base_branch"`
	DiffBranch string `form:"diff_branch" json:"diff_branch" binding:"required"`
	From       string `form:"from" json:"from"`
	To         string `form:"to" json:"to"`
	TrackingID string `form:"tracking_id" json:"tracking_id"`
}

func (q DiffQuery) request(defaultBranch string) (coordinator.DiffRequest, error) {
	req := coordinator.DiffRequest{
		BaseBranch: q.BaseBranch,
		DiffBranch: q.DiffBranch,
		TrackingID: model.TrackingID(q.TrackingID),
	}
	if req.BaseBranch == "" {
		req.BaseBranch = defaultBranch
	}
	var err error
	if q.From != "" {
		if req.From, err = model.ParseTimestamp(q.From); err != nil {
			return req, apperror.NewBadRequest("invalid from time").WithInternal(err)
		}
	}
	if q.To != "" {
		if req.To, err = model.ParseTimestamp(q.To); err != nil {
			return req, apperror.NewBadRequest("invalid to time").WithInternal(err)
		}
	}
	return req, nil
}

func (s *Server) bindQuery(c *gin.Context) (coordinator.DiffRequest, bool) {
	var q DiffQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(apperror.NewBadRequest("diff_branch is required").WithInternal(err))
		return coordinator.DiffRequest{}, false
	}
	req, err := q.request(s.DefaultBranch)
	if err != nil {
		_ = c.Error(err)
		return req, false
	}
	return req, true
}

func (s *Server) bindBody(c *gin.Context) (coordinator.DiffRequest, bool) {
	var q DiffQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		_ = c.Error(apperror.NewBadRequest("Invalid request").WithInternal(err))
		return coordinator.DiffRequest{}, false
	}
	req, err := q.request(s.DefaultBranch)
	if err != nil {
		_ = c.Error(err)
		return req, false
	}
	return req, true
}

func (s *Server) GetDiff(c *gin.Context) {
	req, ok := s.bindQuery(c)
	if !ok {
		return
	}
	root, err := s.Service.GetDiff(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, root)
}

func (s *Server) GetConflicts(c *gin.Context) {
	req, ok := s.bindQuery(c)
	if !ok {
		return
	}
	var ids []string
	if raw := c.Query("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}
	conflicts, err := s.Service.GetConflicts(c.Request.Context(), req, ids...)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if conflicts == nil {
		conflicts = []model.DataConflict{}
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}

type ResolveRequest struct {
	Selection string `json:"selection"`
}

func (s *Server) ResolveConflict(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		_ = c.Error(apperror.NewBadRequest("conflict id must be a UUID").WithInternal(err))
		return
	}
	var body ResolveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(apperror.NewBadRequest("Invalid request").WithInternal(err))
		return
	}
	selection, err := model.ParseConflictSelection(body.Selection)
	if err != nil {
		_ = c.Error(apperror.NewBadRequest("selection must be base_branch, diff_branch or empty").WithInternal(err))
		return
	}
	if err := s.Service.ResolveConflict(c.Request.Context(), id, selection); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflict_id": id, "selected_branch": selection})
}

func (s *Server) RecordConflicts(c *gin.Context) {
	req, ok := s.bindBody(c)
	if !ok {
		return
	}
	results, err := s.Service.RecordConflicts(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if results == nil {
		results = []*model.CheckResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type previewBatch struct {
	Stats merge.Stats `json:"stats"`
	*merge.MergeBatch
}

func (s *Server) PreviewMerge(c *gin.Context) {
	req, ok := s.bindBody(c)
	if !ok {
		return
	}
	batches, err := s.Service.PreviewMerge(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]previewBatch, 0, len(batches))
	var total merge.Stats
	for _, b := range batches {
		st := b.Stats()
		total.Nodes += st.Nodes
		total.Attributes += st.Attributes
		total.Links += st.Links
		total.Properties += st.Properties
		out = append(out, previewBatch{Stats: st, MergeBatch: b})
	}
	c.JSON(http.StatusOK, gin.H{"batches": out, "total": total})
}
