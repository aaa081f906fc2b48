package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

func (s *Server) listCreaturesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) spawnCreatureHandler(c *gin.Context) {
	var req SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	sup, err := s.registry.Spawn(c.Request.Context(), req)
	if err != nil {
		if err == ErrAlreadyExists {
			c.JSON(http.StatusConflict, errorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, sup.Status())
}

// lifecycleHandler dispatches one of start/stop/restart/rebuild/wake to the
// named creature's supervisor (spec.md §6.3).
func (s *Server) lifecycleHandler(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		sup, ok := s.registry.Get(name)
		if !ok {
			c.JSON(http.StatusNotFound, errorResponse("creature not found"))
			return
		}

		var err error
		switch action {
		case "start":
			sup.Start(context.Background())
		case "stop":
			err = sup.StopCreature(c.Request.Context())
		case "restart":
			err = sup.Restart(c.Request.Context())
		case "rebuild":
			err = sup.Rebuild(c.Request.Context())
		case "wake":
			err = sup.Wake(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusOK, sup.Status())
	}
}

func (s *Server) archiveCreatureHandler(c *gin.Context) {
	name := c.Param("name")
	if err := s.registry.Archive(c.Request.Context(), name); err != nil {
		if err == ErrNotFound {
			c.JSON(http.StatusNotFound, errorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) creatureEventsHandler(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.registry.Get(name); !ok {
		c.JSON(http.StatusNotFound, errorResponse("creature not found"))
		return
	}
	n := 50
	if v := c.Query("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	c.JSON(http.StatusOK, s.events.ReadRecent(name, n))
}

func (s *Server) inboundEventHandler(c *gin.Context) {
	name := c.Param("name")
	var evt models.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid event body"))
		return
	}
	if err := s.registry.ObserveInbound(name, evt); err != nil {
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) evolveHandler(c *gin.Context) {
	name := c.Param("name")
	cr, ok := s.registry.GetCreator(name)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse("creature not found"))
		return
	}

	var req evolveRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "api request"
	}

	// Evaluate runs up to 30 LLM turns (spec.md §4.11); it is enqueued
	// asynchronously so the request returns immediately, matching §6.3's
	// "enqueue a creator evaluation" semantics.
	go func() {
		if err := cr.Evaluate(context.Background(), req.Reason); err != nil {
			s.log.Warn().Err(err).Str("creature", name).Msg("creator evaluation failed")
		}
	}()
	c.Status(http.StatusAccepted)
}
