package server

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dbxagent/internal/logging"
	"dbxagent/internal/supervisor"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 64 << 10
)

// handleStream answers InvokeRequest frames one at a time. Each query yields
// a routed frame followed by a result frame; bad frames yield an error frame
// and the connection stays open.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.FromContext(c.Request.Context(), s.logger).Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	logger := logging.FromContext(ctx, s.logger)

	conn.SetReadLimit(wsMaxMessage)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	frames := make(chan StreamMessage, 4)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeFrames(ctx, conn, frames)
	}()
	defer func() {
		close(frames)
		<-writerDone
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		var req InvokeRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Websocket read failed: %v", err)
			}
			return
		}

		id := uuid.NewString()
		if strings.TrimSpace(req.Query) == "" {
			frames <- StreamMessage{Type: StreamError, RequestID: id, Error: "query is required", Timestamp: time.Now()}
			continue
		}

		opts := append(invokeOptions(id, req), supervisor.OnRouted(func(agent string) {
			frames <- StreamMessage{Type: StreamRouted, RequestID: id, Data: gin.H{"agent": agent}, Timestamp: time.Now()}
		}))
		state := s.supervisor.Invoke(logging.ContextWithLogID(ctx, id), req.Query, opts...)
		frames <- StreamMessage{Type: StreamResult, RequestID: id, Data: state, Timestamp: time.Now()}
	}
}

// writeFrames owns all writes to conn, interleaving keepalive pings.
func (s *Server) writeFrames(ctx context.Context, conn *websocket.Conn, frames <-chan StreamMessage) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				logging.FromContext(ctx, s.logger).Warn("Websocket write failed: %v", err)
				for range frames {
				}
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				for range frames {
				}
				return
			}
		}
	}
}
