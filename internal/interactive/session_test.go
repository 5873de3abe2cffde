package interactive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/router-for-me/MixPlay/sdk/mixerr"
	"github.com/tidwall/gjson"
)

func newWebsocketServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// drain keeps reading until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeText(t *testing.T, conn *websocket.Conn, packet string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(packet)); err != nil {
		t.Errorf("server write: %v", err)
	}
}

func pumpUntil(t *testing.T, s *Session, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !done() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for dispatched events")
		}
		if err := s.Pump(100); err != nil {
			t.Fatalf("Pump: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func openSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := NewDialer(opts).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConnect_SendsHandshakeHeadersAndDispatchesEvents(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := newWebsocketServer(t, func(conn *websocket.Conn, r *http.Request) {
		headers <- r.Header.Clone()
		writeText(t, conn, `{"type":"method","id":0,"method":"hello","params":{},"discard":true}`)
		writeText(t, conn, `{"type":"method","id":1,"method":"onParticipantJoin","params":{"participants":[`+
			`{"sessionID":"s1","userID":7,"username":"ana","level":3,"groupID":"default"},`+
			`{"sessionID":"s2","userID":8,"username":"bo","level":1,"groupID":"default","disabled":true}]},"discard":true}`)
		writeText(t, conn, `{"type":"method","id":2,"method":"giveInput","params":{"participantID":"s1","transactionID":"tx-1",`+
			`"input":{"controlID":"jump","event":"mousedown","button":0}},"discard":true}`)
		writeText(t, conn, `{"type":"method","id":3,"method":"onGroupCreate","params":{},"discard":true}`)
		writeText(t, conn, `{"type":"reply","id":99,"result":null,"error":{"code":4019,"message":"unknown control"}}`)
		drain(conn)
	})

	var (
		states       []State
		participants []Participant
		actions      []ParticipantAction
		inputs       []Input
		unhandled    []string
		errorCodes   []int
	)
	s := openSession(t, Options{
		SocketAddress: wsURL(srv),
		Handlers: Handlers{
			OnStateChanged: func(_, current State) { states = append(states, current) },
			OnParticipantsChanged: func(action ParticipantAction, p Participant) {
				actions = append(actions, action)
				participants = append(participants, p)
			},
			OnInput:           func(in Input) { inputs = append(inputs, in) },
			OnUnhandledMethod: func(method string, _ []byte) { unhandled = append(unhandled, method) },
			OnError:           func(code int, _ string) { errorCodes = append(errorCodes, code) },
		},
	})

	if err := s.Connect(context.Background(), "Bearer token", "1234", "share", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case h := <-headers:
		if h.Get("Authorization") != "Bearer token" {
			t.Fatalf("Authorization = %q", h.Get("Authorization"))
		}
		if h.Get("X-Protocol-Version") != ProtocolVersion {
			t.Fatalf("X-Protocol-Version = %q", h.Get("X-Protocol-Version"))
		}
		if h.Get("X-Interactive-Version") != "1234" || h.Get("X-Interactive-Sharecode") != "share" {
			t.Fatalf("unexpected experience headers: %v", h)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never saw the handshake")
	}

	pumpUntil(t, s, func() bool { return len(errorCodes) == 1 })

	if len(states) != 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Fatalf("states = %v, want [connecting connected]", states)
	}
	if len(participants) != 2 || actions[0] != ParticipantJoin || actions[1] != ParticipantJoin {
		t.Fatalf("participants = %+v actions = %v", participants, actions)
	}
	if participants[0].Username != "ana" || participants[0].UserID != 7 || participants[0].Level != 3 || participants[0].Disabled {
		t.Fatalf("unexpected first participant %+v", participants[0])
	}
	if !participants[1].Disabled {
		t.Fatalf("expected second participant disabled, got %+v", participants[1])
	}
	if len(inputs) != 1 {
		t.Fatalf("inputs = %+v", inputs)
	}
	in := inputs[0]
	if in.ControlID != "jump" || in.Kind != "button" || in.Event != "mousedown" || in.ParticipantID != "s1" || in.TransactionID != "tx-1" {
		t.Fatalf("unexpected input %+v", in)
	}
	if gjson.GetBytes(in.Raw, "input.button").Int() != 0 || !gjson.GetBytes(in.Raw, "input.button").Exists() {
		t.Fatalf("raw input lost fields: %s", in.Raw)
	}
	if len(unhandled) != 1 || unhandled[0] != "onGroupCreate" {
		t.Fatalf("unhandled = %v", unhandled)
	}
	if errorCodes[0] != 4019 {
		t.Fatalf("error codes = %v", errorCodes)
	}
	if s.State() != StateConnected {
		t.Fatalf("State() = %v", s.State())
	}
}

func TestConnect_SetReadyWaitsForReply(t *testing.T) {
	readyParams := make(chan string, 1)
	srv := newWebsocketServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		packet := gjson.ParseBytes(data)
		readyParams <- packet.Get("method").String() + " " + packet.Get("params").Raw
		writeText(t, conn, `{"type":"reply","id":`+packet.Get("id").Raw+`,"result":null,"error":null}`)
		writeText(t, conn, `{"type":"method","id":5,"method":"onReady","params":{"isReady":true},"discard":true}`)
		drain(conn)
	})

	var states []State
	s := openSession(t, Options{
		SocketAddress: wsURL(srv),
		Handlers:      Handlers{OnStateChanged: func(_, current State) { states = append(states, current) }},
	})

	if err := s.Connect(context.Background(), "Bearer token", "1234", "", true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := <-readyParams; got != `ready {"isReady":true}` {
		t.Fatalf("ready packet = %q", got)
	}

	pumpUntil(t, s, func() bool { return len(states) > 0 && states[len(states)-1] == StateReady })
}

func TestConnect_RejectedReadyClosesSession(t *testing.T) {
	srv := newWebsocketServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		id := gjson.GetBytes(data, "id").Raw
		writeText(t, conn, `{"type":"reply","id":`+id+`,"result":null,"error":{"code":4010,"message":"not allowed"}}`)
		drain(conn)
	})

	s := openSession(t, Options{SocketAddress: wsURL(srv)})
	err := s.Connect(context.Background(), "Bearer token", "1234", "", true)
	if mixerr.CodeOf(err) != mixerr.TransportClosed {
		t.Fatalf("Connect = %v, want TransportClosed", err)
	}
	var replyErr *ReplyError
	if !errors.As(err, &replyErr) || replyErr.Code != 4010 {
		t.Fatalf("Connect = %v, want ReplyError 4010 as cause", err)
	}
	if s.State() != StateDisconnected {
		t.Fatalf("State() = %v, want disconnected", s.State())
	}

	err = s.Connect(context.Background(), "Bearer token", "1234", "", true)
	if mixerr.CodeOf(err) != mixerr.TransportClosed {
		t.Fatalf("second Connect = %v, want TransportClosed", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for err = s.Pump(10); mixerr.CodeOf(err) != mixerr.TransportClosed; err = s.Pump(10) {
		if time.Now().After(deadline) {
			t.Fatalf("Pump = %v, want TransportClosed", err)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConnect_HandshakeConflictIsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "already connected", http.StatusConflict)
	}))
	defer srv.Close()

	s := openSession(t, Options{SocketAddress: wsURL(srv)})
	err := s.Connect(context.Background(), "Bearer token", "1234", "", false)
	if !mixerr.IsHTTP(err) || mixerr.HTTPStatusOf(err) != http.StatusConflict {
		t.Fatalf("Connect error = %v, want HttpFailure(409)", err)
	}
	if s.State() != StateDisconnected {
		t.Fatalf("State() = %v, want disconnected", s.State())
	}
}

func TestConnect_UnreachableHostIsConnectFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := wsURL(srv)
	srv.Close()

	s := openSession(t, Options{SocketAddress: addr})
	err := s.Connect(context.Background(), "Bearer token", "1234", "", false)
	if mixerr.CodeOf(err) != mixerr.ConnectFailed {
		t.Fatalf("Connect error = %v, want ConnectFailed", err)
	}
}

func TestPump_NotConnected(t *testing.T) {
	s := openSession(t, Options{SocketAddress: "ws://127.0.0.1:1"})
	if err := s.Pump(10); !errors.Is(err, mixerr.ErrNotConnected) {
		t.Fatalf("Pump before Connect = %v, want NotConnected", err)
	}
}

func TestPump_TransportClosedAfterServerHangup(t *testing.T) {
	srv := newWebsocketServer(t, func(conn *websocket.Conn, _ *http.Request) {
		writeText(t, conn, `{"type":"method","id":0,"method":"hello","params":{},"discard":true}`)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	})

	hellos := 0
	s := openSession(t, Options{
		SocketAddress: wsURL(srv),
		Handlers: Handlers{OnStateChanged: func(_, current State) {
			if current == StateConnected {
				hellos++
			}
		}},
	})
	if err := s.Connect(context.Background(), "Bearer token", "1234", "", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		err := s.Pump(100)
		if err != nil {
			if !errors.Is(err, mixerr.ErrTransportClosed) {
				t.Fatalf("Pump = %v, want TransportClosed", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Pump never reported the closed transport")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if hellos != 1 {
		t.Fatalf("queued hello must be dispatched before TransportClosed, got %d", hellos)
	}
}

func TestPump_InvalidPacketIsReported(t *testing.T) {
	srv := newWebsocketServer(t, func(conn *websocket.Conn, _ *http.Request) {
		writeText(t, conn, `{not json`)
		drain(conn)
	})
	s := openSession(t, Options{SocketAddress: wsURL(srv)})
	if err := s.Connect(context.Background(), "Bearer token", "1234", "", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		err := s.Pump(10)
		if err != nil {
			if mixerr.CodeOf(err) != mixerr.JsonParseError {
				t.Fatalf("Pump = %v, want JsonParseError", err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("invalid packet never surfaced")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCall_ReplyErrorAndGetTime(t *testing.T) {
	srv := newWebsocketServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			packet := gjson.ParseBytes(data)
			id := packet.Get("id").Raw
			switch packet.Get("method").String() {
			case MethodGetTime:
				writeText(t, conn, `{"type":"reply","id":`+id+`,"result":{"time":1500000000000},"error":null}`)
			case MethodCapture:
				writeText(t, conn, `{"type":"reply","id":`+id+`,"result":null,"error":{"code":4006,"message":"no such transaction"}}`)
			}
		}
	})
	s := openSession(t, Options{SocketAddress: wsURL(srv)})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Connect(ctx, "Bearer token", "1234", "", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	now, err := s.GetTime(ctx)
	if err != nil {
		t.Fatalf("GetTime: %v", err)
	}
	if now.UnixMilli() != 1500000000000 {
		t.Fatalf("GetTime = %v", now)
	}

	err = s.Capture(ctx, "tx-404")
	var replyErr *ReplyError
	if !errors.As(err, &replyErr) || replyErr.Code != 4006 {
		t.Fatalf("Capture error = %v, want ReplyError 4006", err)
	}
}

func TestCall_NotConnected(t *testing.T) {
	s := openSession(t, Options{SocketAddress: "ws://127.0.0.1:1"})
	if err := s.SetReady(context.Background(), true); !errors.Is(err, mixerr.ErrNotConnected) {
		t.Fatalf("SetReady before Connect = %v, want NotConnected", err)
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	srv := newWebsocketServer(t, func(conn *websocket.Conn, _ *http.Request) { drain(conn) })
	s := openSession(t, Options{SocketAddress: wsURL(srv)})
	if err := s.Connect(context.Background(), "Bearer token", "1234", "", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := s.Connect(context.Background(), "Bearer token", "1234", "", false); err == nil {
		t.Fatal("Connect after Close should fail")
	}
}
