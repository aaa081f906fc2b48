package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// statusHandler reports aggregate system health (spec.md §6.3 "GET
// /status"): "healthy" iff every monitored dependency is up.
func (s *Server) statusHandler(c *gin.Context) {
	deps, agg := s.health.Snapshot()
	c.JSON(http.StatusOK, statusView{Status: agg, Dependencies: deps})
}
