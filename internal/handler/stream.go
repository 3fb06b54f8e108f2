package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 25 * time.Second

// streamSnapshots writes each snapshot from ch as a server-sent event until
// the client goes away or the feed closes. stop is always called.
func streamSnapshots[T any](c *gin.Context, event string, ch <-chan T, stop func(), view func(T) any) {
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ping := time.NewTicker(keepAliveInterval)
	defer ping.Stop()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(event, view(snap))
			return true
		case <-ping.C:
			c.SSEvent("ping", gin.H{})
			return true
		}
	})
}
