package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
)

type recorder struct {
	events []string
}

func (r *recorder) NotifySuccess(count int) { r.events = append(r.events, "success") }
func (r *recorder) NotifyError(count int)   { r.events = append(r.events, "error") }
func (r *recorder) NotifyConnectivityChanged(online bool) {
	r.events = append(r.events, "connectivity")
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}

	m.NotifySuccess(2)
	m.NotifyError(1)
	m.NotifyConnectivityChanged(true)

	want := []string{"success", "error", "connectivity"}
	assert.Equal(t, want, a.events)
	assert.Equal(t, want, b.events)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := &Log{log: logging.New(&buf, logging.LevelDebug)}

	l.NotifySuccess(3)
	l.NotifyError(1)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry logging.LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Changes synced", entry.Message)
	assert.EqualValues(t, 3, entry.Context["count"])
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_broadcast(t *testing.T) {
	h := NewHub()
	defer h.Close()
	conn := dialHub(t, h)

	h.NotifySuccess(4)

	msg := readEnvelope(t, conn)
	assert.Equal(t, EventSyncSucceeded, msg["type"])
	data, _ := msg["data"].(map[string]interface{})
	assert.EqualValues(t, 4, data["count"])
}

func TestHub_subscriptions(t *testing.T) {
	h := NewHub()
	defer h.Close()
	conn := dialHub(t, h)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "subscribe",
		"events": []string{EventConnectivityChanged},
	}))
	ack := readEnvelope(t, conn)
	assert.Equal(t, "subscribe_ack", ack["action"])

	h.NotifySuccess(1)
	h.NotifyConnectivityChanged(false)

	msg := readEnvelope(t, conn)
	assert.Equal(t, EventConnectivityChanged, msg["type"])
}

func TestHub_ping(t *testing.T) {
	h := NewHub()
	defer h.Close()
	conn := dialHub(t, h)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	msg := readEnvelope(t, conn)
	assert.Equal(t, "pong", msg["action"])
}

func TestHub_close(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)

	h.Close()
	h.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// Broadcasting after close must not block.
	done := make(chan struct{})
	go func() {
		h.NotifyError(1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked after Close")
	}
}

func TestLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8090", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := localOrigin(r); got != tt.want {
			t.Errorf("localOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
