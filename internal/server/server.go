package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evoapps/evotrees/internal/app"
	"github.com/evoapps/evotrees/internal/core"
	"github.com/evoapps/evotrees/internal/driver"
)

type Server struct {
	App *app.App

	// mu keeps a single writer on the graph.
	mu sync.Mutex
}

func NewServer(a *app.App) *Server {
	return &Server{App: a}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/articles", s.ImportArticles)
	r.POST("/qualities", s.ApplyQualities)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.App.Registry, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

type ImportRequest struct {
	Titles []string `json:"titles" binding:"required,min=1"`
}

type ArticleResult struct {
	core.DocumentResult
	Error string `json:"error,omitempty"`
}

func (s *Server) ImportArticles(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	s.mu.Lock()
	results, err := s.App.Importer.ImportArticles(c.Request.Context(), req.Titles)
	s.mu.Unlock()

	out := make([]ArticleResult, len(results))
	for i, r := range results {
		out[i] = ArticleResult{DocumentResult: r}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}

	status := http.StatusOK
	if errors.Is(err, driver.ErrUnavailable) {
		s.App.Logger.WithError(err).Error("import aborted")
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"run_id": s.App.Importer.RunID, "results": out})
}

type QualitiesRequest struct {
	// Scores by revision id. When empty the configured database is used.
	Scores map[int64]float64 `json:"scores"`
}

func (s *Server) ApplyQualities(c *gin.Context) {
	var req QualitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := c.Request.Context()
	var err error
	var report any
	if len(req.Scores) > 0 {
		report, err = s.App.Enricher.Apply(ctx, req.Scores)
	} else {
		report, err = s.App.Enrich(ctx, "")
	}
	if err != nil {
		s.App.Logger.WithError(err).Error("failed to apply qualities")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply qualities"})
		return
	}

	c.JSON(http.StatusOK, report)
}
