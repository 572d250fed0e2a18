package api

import (
	"net"
	"testing"
	"time"

	"github.com/fasthttp/websocket"

	"github.com/review-moderation/backend/internal/reviewform"
)

type wsFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

func dialSession(t *testing.T, app *testApp, id string) *websocket.Conn {
	t.Helper()
	server := NewApp(Options{MaxReviewChars: 50, IsDevelopment: true}, app.controller)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go server.Listener(ln)
	t.Cleanup(func() { server.Shutdown() })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/sessions/"+id, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f wsFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestWebSocketSubmit(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)
	conn := dialSession(t, app, app.createSession())

	err := conn.WriteJSON(map[string]interface{}{
		"type": "submit", "review": "Great service!", "stakeholder": "Acme Diner", "platform": "Yelp", "selection": 4,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if f := readFrame(t, conn); f.Type != "status" || f.Content != "Analyzing Review..." {
		t.Fatalf("first frame = %+v, want status", f)
	}
	if f := readFrame(t, conn); f.Type != "complete" {
		t.Fatalf("second frame = %+v, want complete", f)
	}
}

func TestWebSocketInvalidSubmitSkipsStatus(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)
	conn := dialSession(t, app, app.createSession())

	if err := conn.WriteJSON(map[string]interface{}{"type": "submit", "review": "Great service!"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := readFrame(t, conn)
	if f.Type != "error" || f.Error != reviewform.ValidationNotice {
		t.Fatalf("first frame = %+v, want validation error", f)
	}
	if mod.calls != 0 {
		t.Fatal("invalid submission must not call moderation")
	}
}
