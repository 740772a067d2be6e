package opsapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ares_api/internal/cascade"
	"ares_api/internal/coordinator"
	"ares_api/internal/models"
	"ares_api/internal/orchestrator"
)

// addSymbolRequest is the wire shape for POST /admin/symbols, mirroring
// coordinator.Request without exposing its internal orchestrator.Period type
// directly to JSON callers.
type addSymbolRequest struct {
	Symbol              string                 `json:"symbol" binding:"required"`
	ExecutionMode       models.ExecutionMode   `json:"execution_mode"`
	SelectedStrategyIDs []uint                 `json:"selected_strategy_ids"`
	FilterParams        map[string]interface{} `json:"filter_params"`
	Backtest            *backtestWindow        `json:"backtest"`
}

type backtestWindow struct {
	Start time.Time     `json:"start"`
	End   time.Time     `json:"end"`
	Step  time.Duration `json:"step_seconds"`
}

func (s *Server) handleAddSymbol(c *gin.Context) {
	var req addSymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ExecutionMode == "" {
		req.ExecutionMode = models.ModeDefault
	}

	coordReq := coordinator.Request{
		Symbol:              req.Symbol,
		ExecutionMode:       req.ExecutionMode,
		SelectedStrategyIDs: req.SelectedStrategyIDs,
		FilterParams:        req.FilterParams,
	}
	if req.Backtest != nil {
		coordReq.CustomPeriod = &orchestrator.Period{
			Start: req.Backtest.Start,
			End:   req.Backtest.End,
			Step:  req.Backtest.Step * time.Second,
		}
	}

	executionID, err := s.coord.AddSymbol(c.Request.Context(), coordReq)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"execution_id": executionID})
}

func (s *Server) handleGetExecutionProgress(c *gin.Context) {
	id := c.Param("id")
	record, found := s.progress.GetProgress(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no progress record for execution id"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleListActiveExecutions(c *gin.Context) {
	records, err := s.progress.GetActiveExecutions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": records})
}

type cascadeRequest struct {
	ExecutionIDs []string `json:"execution_ids" binding:"required"`
	DeleteFiles  bool     `json:"delete_files"`
	SkipBackup   bool     `json:"skip_backup"`
}

func (s *Server) handleCascadePreview(c *gin.Context) {
	var req cascadeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	impact, err := s.cascade.AnalyzeImpact(req.ExecutionIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, impact)
}

func (s *Server) handleCascadeDelete(c *gin.Context) {
	var req cascadeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.cascade.Delete(req.ExecutionIDs, cascade.Options{
		DeleteFiles: req.DeleteFiles,
		SkipBackup:  req.SkipBackup,
	})
	if err != nil {
		if _, ok := err.(*cascade.ErrExecutionRunning); ok {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
