package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

func (s *Server) getCreatureBudgetHandler(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.registry.Get(name); !ok {
		c.JSON(http.StatusNotFound, errorResponse("creature not found"))
		return
	}
	b := s.cfg.EffectiveBudget(name)
	c.JSON(http.StatusOK, budgetView{
		DailyCapUSD:   b.DailyCapUSD,
		DailySpentUSD: s.cost.GetCreatureDailyCost(name),
		Action:        b.Action,
	})
}

func (s *Server) putCreatureBudgetHandler(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.registry.Get(name); !ok {
		c.JSON(http.StatusNotFound, errorResponse("creature not found"))
		return
	}
	var body budgetView
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	s.cfg.SetCreatureBudget(name, models.Budget{DailyCapUSD: body.DailyCapUSD, Action: body.Action})
	c.Status(http.StatusOK)
}

func (s *Server) getGlobalBudgetHandler(c *gin.Context) {
	b := s.cfg.GlobalBudget()
	c.JSON(http.StatusOK, budgetView{DailyCapUSD: b.DailyCapUSD, Action: b.Action})
}

func (s *Server) putGlobalBudgetHandler(c *gin.Context) {
	var body budgetView
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	s.cfg.SetGlobalBudget(models.Budget{DailyCapUSD: body.DailyCapUSD, Action: body.Action})
	c.Status(http.StatusOK)
}

func (s *Server) usageHandler(c *gin.Context) {
	c.JSON(http.StatusOK, usageView{
		Usage: s.cost.GetAll(),
		Total: s.cost.GetTotal(),
	})
}
