package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dshills/whispernote/pkg/types"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// indexDirectory handles POST /api/v1/index
func (s *Server) indexDirectory(c *gin.Context) {
	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	metrics, err := s.backend.IndexDirectory(c.Request.Context(), req.Directory, req.FileExtensions)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("indexing failed", "directory", req.Directory, "error", err)
		}
		abortWithError(c, status, err)
		return
	}
	c.JSON(http.StatusOK, NewMetricsResponse(metrics))
}

// indexStatus handles GET /api/v1/index
func (s *Server) indexStatus(c *gin.Context) {
	metrics, err := s.backend.Status(c.Request.Context())
	if err != nil {
		s.logger.Error("status failed", "error", err)
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, NewMetricsResponse(metrics))
}

// query handles POST /api/v1/query
func (s *Server) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	result, err := s.backend.Query(c.Request.Context(), req.Query, req.MaxResults)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		abortWithError(c, statusFor(err), err)
		return
	}

	resp := QueryResponse{Answer: result.Answer, Context: result.Context}
	if resp.Context == nil {
		resp.Context = []types.ContextChunk{}
	}
	c.JSON(http.StatusOK, resp)
}
