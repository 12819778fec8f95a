package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

// Hub maintains per-owner subscribers listening for publish job events.
type Hub struct {
	mu     sync.RWMutex
	owners map[string]map[chan model.JobEvent]struct{}
}

func NewJobHub() *Hub {
	return &Hub{owners: make(map[string]map[chan model.JobEvent]struct{})}
}

var _ repository.IJobEventPublisher = (*Hub)(nil)

// Serve registers an SSE stream for the authenticated owner (owner_id set by middleware).
func (h *Hub) Serve(c *gin.Context) {
	ownerID := c.GetString("owner_id")
	if ownerID == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	ch := make(chan model.JobEvent, 8)
	h.addSubscriber(ownerID, ch)
	defer h.removeSubscriber(ownerID, ch)

	// Initial comment to keep connection open
	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt := <-ch:
			data, _ := json.Marshal(evt)
			_, _ = c.Writer.Write([]byte("event: " + evt.Type + "\n"))
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// PublishJobEvent broadcasts to all subscribers of the job's owner. Slow subscribers
// miss events rather than block the publisher.
func (h *Hub) PublishJobEvent(_ context.Context, evt model.JobEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.owners[evt.OwnerID] {
		select { // non-blocking
		case ch <- evt:
		default:
		}
	}
	return nil
}

func (h *Hub) subscribers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners[ownerID])
}

func (h *Hub) addSubscriber(ownerID string, ch chan model.JobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owners[ownerID] == nil {
		h.owners[ownerID] = make(map[chan model.JobEvent]struct{})
	}
	h.owners[ownerID][ch] = struct{}{}
}

func (h *Hub) removeSubscriber(ownerID string, ch chan model.JobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.owners[ownerID]; subs != nil {
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.owners, ownerID)
		}
	}
}
