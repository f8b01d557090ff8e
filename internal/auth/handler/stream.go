package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/securesteps/auth-service/internal/events"
	autherror "github.com/securesteps/auth-service/internal/errors"
)

const defaultHeartbeat = 25 * time.Second

// StreamHandler serves a server-sent-events feed of the caller's events.
type StreamHandler struct {
	hub       *events.Hub
	heartbeat time.Duration
}

func NewStreamHandler(hub *events.Hub, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &StreamHandler{hub: hub, heartbeat: heartbeat}
}

func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	claims := ClaimsFrom(c)
	if claims == nil {
		return autherror.ErrAuthenticationRequired
	}

	sub := h.hub.Subscribe(claims.UserID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if w.Flush() != nil {
			return
		}

		for {
			select {
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				payload, err := json.Marshal(event)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			// A failed flush means the client went away.
			if w.Flush() != nil {
				return
			}
		}
	})

	return nil
}
