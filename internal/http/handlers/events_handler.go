// Live calendar stream.
//
//   - GET /events  (text/event-stream of calendar_update messages)
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/turnos-backend/internal/events"
	"github.com/tbourn/turnos-backend/internal/http/middleware"
)

// StreamEvents godoc
// @ID          streamEvents
// @Summary     Live calendar updates (SSE)
// @Description Streams `event: calendar_update` messages whose data is {type, appointment} for
// @Description new and status_change, or {type, id} for deleted. Comment heartbeats keep proxies
// @Description from closing idle streams. No history is replayed; clients re-fetch on reconnect.
// @Tags        Events
// @Produce     text/event-stream
// @Success     200  {string}  string  "event stream"
// @Router      /events [get]
func (h *Handlers) StreamEvents(c *gin.Context) {
	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)

	// The server-wide write timeout would cut long streams.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	lg := middleware.LoggerFrom(c)
	lg.Debug().Msg("calendar stream opened")

	tick := time.NewTicker(h.heartbeat)
	defer tick.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			lg.Debug().Msg("calendar stream closed by client")
			return
		case msg, open := <-sub.C:
			if !open {
				// Dropped as a slow consumer or the bus shut down.
				lg.Debug().Msg("calendar stream ended by server")
				return
			}
			c.SSEvent(events.Name, json.RawMessage(msg))
			c.Writer.Flush()
		case <-tick.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
