package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arefin-aareef/talksy/internal/app/registry"
	"github.com/arefin-aareef/talksy/internal/app/server/ws"
	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/internal/core/services"
	"github.com/arefin-aareef/talksy/pkg/middleware"

	"github.com/gorilla/websocket"
)

const (
	aliceID = "11111111-1111-4111-8111-111111111111"
	bobID   = "22222222-2222-4222-8222-222222222222"
)

type testApp struct {
	srv    *httptest.Server
	dir    *registry.Registry
	msgs   *memMessages
	tokens *services.TokenService
	wsh    *WSHandler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := newMemUsers(
		&domain.User{ID: aliceID, Email: "alice@example.com", Username: "alice"},
		&domain.User{ID: bobID, Email: "bob@example.com", Username: "bob"},
	)
	app := &testApp{
		dir:    registry.NewRegistry(),
		msgs:   &memMessages{},
		tokens: services.NewTokenService("test-secret", "talksy", time.Hour),
	}
	userSvc := services.NewUserService(log, users, noTx{})
	msgSvc := services.NewMessageService(log, app.dir, app.msgs, nil, time.Second)
	presence := services.NewPresenceService(log, app.dir, time.Second)
	manager := services.NewManagerService(log, app.dir, users, app.tokens, msgSvc, presence, time.Minute, nil, nil, time.Minute)

	opts := ws.Options{HandshakeTimeout: time.Second, PushTimeout: time.Second}
	app.wsh = NewWSHandler(log, manager, opts, []string{"*"})
	auth := middleware.AuthMiddleware(app.tokens)
	userH := NewUserHandler(userSvc, manager)
	messages := NewMessageHandler(msgSvc, userSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", app.wsh.Handler)
	mux.Handle("GET /api/users/online", auth(http.HandlerFunc(userH.Online)))
	mux.Handle("POST /api/messages", auth(http.HandlerFunc(messages.Send)))
	mux.Handle("GET /api/messages/unread-count", auth(http.HandlerFunc(messages.UnreadCount)))
	app.srv = httptest.NewServer(mux)
	t.Cleanup(app.srv.Close)
	return app
}

func (a *testApp) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := a.tokens.GenerateToken(userID, userID+"@example.com")
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// dial opens a socket and waits until the directory holds it.
func (a *testApp) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/ws?token=" + a.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := a.dir.Lookup(userID); ok {
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never registered", userID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type frame struct {
	Event string          `json:"event"`
	Ack   json.RawMessage `json:"ack"`
	Data  json.RawMessage `json:"data"`
}

// await reads frames until one named event arrives.
func await(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		if f.Event == event {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatal(err)
	}
}

func TestLiveMessagingBetweenTwoUsers(t *testing.T) {
	app := newTestApp(t)
	alice := app.dial(t, aliceID)
	bob := app.dial(t, bobID)

	var online domain.UserOnlineEvent
	_ = json.Unmarshal(await(t, alice, domain.EventUserOnline).Data, &online)
	if online.UserID != bobID || online.DisplayName != "bob" {
		t.Fatalf("alice saw user-online %+v", online)
	}

	send(t, alice, `{"event":"send-message","ack":1,"data":{"receiverId":"`+bobID+`","content":"hi","clientCorrelationId":"c1"}}`)

	var incoming domain.NewMessageEvent
	_ = json.Unmarshal(await(t, bob, domain.EventNewMessage).Data, &incoming)
	if incoming.Content != "hi" || incoming.Sender.ID != aliceID || incoming.Sender.Username != "alice" {
		t.Fatalf("bob got %+v", incoming)
	}

	var accepted domain.MessageAcceptedEvent
	_ = json.Unmarshal(await(t, alice, domain.EventMessageAccepted).Data, &accepted)
	if accepted.ClientCorrelationID != "c1" || accepted.ID != incoming.ID {
		t.Fatalf("alice got accepted %+v", accepted)
	}

	reply := await(t, alice, domain.EventAck)
	var ack domain.Ack
	_ = json.Unmarshal(reply.Data, &ack)
	if string(reply.Ack) != "1" || !ack.Success || ack.MessageID != incoming.ID {
		t.Fatalf("ack %s %+v", reply.Ack, ack)
	}

	send(t, bob, `{"event":"mark-as-read","ack":"r1","data":{"messageId":"`+incoming.ID+`"}}`)
	reply = await(t, bob, domain.EventAck)
	_ = json.Unmarshal(reply.Data, &ack)
	if string(reply.Ack) != `"r1"` || !ack.Success {
		t.Fatalf("mark-as-read ack %s %+v", reply.Ack, ack)
	}

	_ = bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	var offline domain.UserOfflineEvent
	_ = json.Unmarshal(await(t, alice, domain.EventUserOffline).Data, &offline)
	if offline.UserID != bobID {
		t.Fatalf("alice saw user-offline %+v", offline)
	}
}

func TestTypingIsPointToPoint(t *testing.T) {
	app := newTestApp(t)
	alice := app.dial(t, aliceID)
	bob := app.dial(t, bobID)

	send(t, alice, `{"event":"typing-start","data":{"receiverId":"`+bobID+`"}}`)
	var typing domain.UserTypingEvent
	_ = json.Unmarshal(await(t, bob, domain.EventUserTyping).Data, &typing)
	if typing.UserID != aliceID {
		t.Fatalf("bob saw %+v", typing)
	}
	send(t, alice, `{"event":"typing-stop","data":{"receiverId":"`+bobID+`"}}`)
	await(t, bob, domain.EventUserStopTyping)
}

func TestErrorReplies(t *testing.T) {
	app := newTestApp(t)
	alice := app.dial(t, aliceID)

	cases := []struct {
		name  string
		frame string
		want  string
	}{
		{"unknown event", `{"event":"dance","ack":1,"data":{}}`, "Unknown event: dance"},
		{"non object data", `{"event":"mark-as-read","ack":2,"data":[1]}`, "Invalid payload"},
		{"bad receiver", `{"event":"send-message","ack":3,"data":{"receiverId":"x","content":"hi"}}`, "Invalid receiver ID"},
		{"empty content", `{"event":"send-message","ack":4,"data":{"receiverId":"` + bobID + `","content":"  "}}`, "Message content is required"},
		{"typing failure", `{"event":"typing-start","ack":5,"data":{"receiverId":"x"}}`, "Invalid receiver ID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			send(t, alice, tc.frame)
			var ack domain.Ack
			_ = json.Unmarshal(await(t, alice, domain.EventAck).Data, &ack)
			if ack.Error != tc.want || ack.Success {
				t.Fatalf("ack = %+v, want error %q", ack, tc.want)
			}
		})
	}
	if n := app.msgs.count(); n != 0 {
		t.Errorf("%d messages stored from invalid frames", n)
	}
}

func TestBadTokenClosesWithPolicyViolation(t *testing.T) {
	app := newTestApp(t)
	url := "ws" + strings.TrimPrefix(app.srv.URL, "http") + "/ws?token=garbage"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("read err = %v, want close 1008", err)
	}
	if len(app.dir.ListAll()) != 0 {
		t.Error("rejected connection registered")
	}
}

func TestSlowHandshakeClosesWithPolicyViolation(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := &stallingManager{called: make(chan struct{})}
	h := NewWSHandler(log, mgr, ws.Options{HandshakeTimeout: 50 * time.Millisecond}, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.Handler))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token=slow", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	select {
	case <-mgr.called:
	case <-time.After(time.Second):
		t.Fatal("authenticate never called")
	}
	started := time.Now()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("read err = %v, want close 1008", err)
	}
	if waited := time.Since(started); waited > time.Second {
		t.Errorf("closed after %v, want the handshake timeout", waited)
	}
}

func TestRestSendReachesLiveReceiver(t *testing.T) {
	app := newTestApp(t)
	bob := app.dial(t, bobID)

	body := bytes.NewBufferString(`{"receiver":"` + bobID + `","content":"from rest"}`)
	req, _ := http.NewRequest(http.MethodPost, app.srv.URL+"/api/messages", body)
	req.Header.Set("Authorization", "Bearer "+app.token(t, aliceID))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var incoming domain.NewMessageEvent
	_ = json.Unmarshal(await(t, bob, domain.EventNewMessage).Data, &incoming)
	if incoming.Content != "from rest" {
		t.Fatalf("bob got %+v", incoming)
	}

	req, _ = http.NewRequest(http.MethodGet, app.srv.URL+"/api/messages/unread-count", nil)
	req.Header.Set("Authorization", "Bearer "+app.token(t, bobID))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var count map[string]int
	_ = json.NewDecoder(resp.Body).Decode(&count)
	if count["count"] != 1 {
		t.Errorf("unread count = %v", count)
	}
}

func TestOnlineUsersAndShutdown(t *testing.T) {
	app := newTestApp(t)
	alice := app.dial(t, aliceID)
	app.dial(t, bobID)

	req, _ := http.NewRequest(http.MethodGet, app.srv.URL+"/api/users/online", nil)
	req.Header.Set("Authorization", "Bearer "+app.token(t, aliceID))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var online []userResponse
	_ = json.NewDecoder(resp.Body).Decode(&online)
	resp.Body.Close()
	if len(online) != 2 {
		t.Fatalf("online = %+v", online)
	}

	if err := app.wsh.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := app.wsh.Active(); n != 0 {
		t.Errorf("%d sessions left after shutdown", n)
	}
	if len(app.dir.ListAll()) != 0 {
		t.Error("directory not empty after shutdown")
	}
	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("close err = %v, want going away", err)
			}
			break
		}
	}
}
