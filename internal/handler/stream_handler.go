package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"Meetpulse/internal/poller"
)

// StreamHandler serves the per-meeting SSE change feed.
type StreamHandler interface {
	Stream(c *gin.Context)
}

type streamHandler struct {
	pollers *poller.Manager
}

func NewStreamHandler(pollers *poller.Manager) StreamHandler {
	return &streamHandler{pollers: pollers}
}

// Stream subscribes the request to the meeting's change feed and relays
// events until the client goes away. The subscription teardown stops the
// polling loop when this was the last listener.
func (h *streamHandler) Stream(c *gin.Context) {
	meetingID := c.Query("meetingId")
	if meetingID == "" {
		meetingID = c.Param("meetingId")
	}
	if meetingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meetingId is required"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	sub := h.pollers.Subscribe(meetingID)
	defer sub.Close()

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(ev.Category, ev.Payload)
			return true
		}
	})
}
