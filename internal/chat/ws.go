package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// NewUpgrader returns a websocket upgrader accepting the given browser
// origins. Requests without an Origin header are accepted.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed = append(allowed, strings.TrimRight(strings.ToLower(o), "/"))
	}
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return false
			}
			return slices.Contains(allowed, "*") || slices.Contains(allowed, strings.ToLower(u.Scheme+"://"+u.Host))
		},
	}
}

// Serve runs one chat connection for user until the peer disconnects or ctx
// is done. Each inbound text frame is persisted and broadcast. Serve closes
// conn.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, user string, messages *Service) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := h.Subscribe()
	defer sub.Close()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		h.readLoop(ctx, conn, user, messages)
	}()

	h.writeLoop(ctx, conn, sub)
	_ = conn.Close()
	<-readDone
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, user string, messages *Service) {
	conn.SetReadLimit(MaxMessageLength * 4)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("user", user).Msg("Chat connection closed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		msg, err := messages.Save(ctx, user, string(data))
		if err != nil {
			if errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrMessageTooLong) {
				continue
			}
			h.logger.Error().Err(err).Str("user", user).Msg("Failed to persist chat message")
			continue
		}

		frame, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to encode chat message")
			continue
		}
		if err := h.Publish(ctx, frame); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
