package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-dev/storefront/internal/database"
	"github.com/storefront-dev/storefront/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "chat.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return NewService(db, zerolog.Nop())
}

func runHub(t *testing.T, buffer int) *Hub {
	t.Helper()
	hub := NewHub(zerolog.Nop(), buffer)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestService_SaveAndRecent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for i := 0; i < HistoryLimit+5; i++ {
		_, err := s.Save(ctx, "ada@shop.test", fmt.Sprintf("line %d", i))
		require.NoError(t, err)
	}

	msgs, err := s.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, HistoryLimit)
	assert.Equal(t, "line 5", msgs[0].Message)
	assert.Equal(t, fmt.Sprintf("line %d", HistoryLimit+4), msgs[len(msgs)-1].Message)

	_, err = s.Save(ctx, "ada@shop.test", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = s.Save(ctx, "ada@shop.test", strings.Repeat("x", MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestHub_Broadcast(t *testing.T) {
	hub := runHub(t, 4)
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	require.NoError(t, hub.Publish(context.Background(), []byte("hola")))

	for _, sub := range []*Subscription{a, b} {
		select {
		case got := <-sub.C:
			assert.Equal(t, "hola", string(got))
		case <-time.After(time.Second):
			t.Fatal("frame not delivered")
		}
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := runHub(t, 1)
	slow := hub.Subscribe()

	require.NoError(t, hub.Publish(context.Background(), []byte("first")))
	require.NoError(t, hub.Publish(context.Background(), []byte("second")))

	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)

	got, ok := <-slow.C
	require.True(t, ok)
	assert.Equal(t, "first", string(got))
	_, ok = <-slow.C
	assert.False(t, ok)

	slow.Close()
}

func TestUpgrader_CheckOrigin(t *testing.T) {
	up := NewUpgrader([]string{"http://localhost:5173/"})

	tests := map[string]struct {
		origin string
		want   bool
	}{
		"no origin":    {"", true},
		"allowed":      {"http://localhost:5173", true},
		"case differs": {"HTTP://LOCALHOST:5173", true},
		"other port":   {"http://localhost:3000", false},
		"foreign":      {"https://evil.test", false},
		"not an url":   {"::", false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, up.CheckOrigin(r))
		})
	}
}

func TestServe_PersistsAndBroadcasts(t *testing.T) {
	messages := newTestService(t)
	hub := runHub(t, 8)
	up := NewUpgrader(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), conn, r.URL.Query().Get("user"), messages)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial := func(user string) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?user="+user, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}
	sender := dial("ada@shop.test")
	listener := dial("bob@shop.test")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte("who sells yerba?")))

	for _, conn := range []*websocket.Conn{sender, listener} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg models.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "ada@shop.test", msg.User)
		assert.Equal(t, "who sells yerba?", msg.Message)
	}

	stored, err := messages.Recent(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "ada@shop.test", stored[0].User)
}
