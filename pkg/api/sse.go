package api

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// heartbeatInterval keeps idle SSE connections from being reaped by
// intermediate proxies (spec.md §4.9 "heartbeats... recommended at ~20s").
const heartbeatInterval = 20 * time.Second

// sseQueueSize bounds one subscriber's pending-event queue; overflow drops
// the oldest event (spec.md §4.9 "per-subscriber bounded queue; overflow
// drops oldest with a logged warning").
const sseQueueSize = 256

// sseHandler streams every orchestrator event as it is appended
// (spec.md §6.3 "GET /events", SSE). Live events only — no history replay;
// clients fetch recent windows via GET /creatures/:name/events separately.
func (s *Server) sseHandler(c *gin.Context) {
	connID := uuid.New().String()
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	s.log.Debug().Str("conn_id", connID).Msg("SSE subscriber connected")
	defer s.log.Debug().Str("conn_id", connID).Msg("SSE subscriber disconnected")

	queue := make(chan models.Event, sseQueueSize)
	unsubscribe := s.events.Subscribe(func(evt models.Event) {
		select {
		case queue <- evt:
		default:
			select {
			case <-queue:
			default:
			}
			select {
			case queue <- evt:
			default:
				s.log.Warn().Str("conn_id", connID).Str("creature", evt.Creature).Msg("SSE subscriber queue overflow, dropping event")
			}
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-queue:
			if !ok {
				return false
			}
			b, err := json.Marshal(evt)
			if err != nil {
				return true
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(b)
			_, _ = w.Write([]byte("\n\n"))
			return true
		case <-ticker.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
