package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) getNarratorConfigHandler(c *gin.Context) {
	c.JSON(http.StatusOK, narratorConfigView{
		Enabled:         s.narrator != nil,
		Model:           s.cfg.Narrator.Model,
		IntervalMinutes: s.cfg.Narrator.IntervalMinutes,
	})
}

// putNarratorConfigHandler updates the model/interval in the server's
// in-memory config, which GET then reports. The running narrator keeps the
// model and interval it was constructed with, and the new values are not
// written to disk.
func (s *Server) putNarratorConfigHandler(c *gin.Context) {
	var body narratorConfigView
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	if body.Model != "" {
		s.cfg.Narrator.Model = body.Model
	}
	if body.IntervalMinutes > 0 {
		s.cfg.Narrator.IntervalMinutes = body.IntervalMinutes
	}
	c.Status(http.StatusOK)
}

func (s *Server) narrationHandler(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if s.narrator == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, s.narrator.Entries(limit))
}
