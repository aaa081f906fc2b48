package llmproxy

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/metrics"
)

// identityContextKey is where Middleware stashes the resolved identity for
// the handler to read (SPEC_FULL.md §5 "validates the admission JWT and
// stuffs the decoded identity into the Gin context before the handler
// runs").
const identityContextKey = "llmproxy.identity"

// Middleware resolves the creature identity from IdentityHeader and stores
// it on the Gin context.
func (p *Proxy) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := p.ExtractIdentity(c.GetHeader(IdentityHeader))
		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// IdentityFromContext reads the identity Middleware stored.
func IdentityFromContext(c *gin.Context) string {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return unknownIdentity
	}
	s, _ := v.(string)
	return s
}

// Handler adapts Proxy.HandleRequest to a gin.HandlerFunc mounted at the
// proxy's single endpoint (spec.md §4.7, §4.9 "LLM proxy mount point").
func (p *Proxy) Handler(m *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := IdentityFromContext(c)

		result, err := p.HandleRequest(c.Request.Context(), identity, c.Request.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if m != nil {
			route := "source"
			if result.StatusCode == http.StatusTooManyRequests {
				m.BudgetBlocksTotal.WithLabelValues(identity).Inc()
			}
			m.LLMRequestsTotal.WithLabelValues(route).Inc()
		}

		contentType := result.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(result.StatusCode, contentType, result.Body)
	}
}
