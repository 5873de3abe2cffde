package interactive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/router-for-me/MixPlay/internal/util"
	"github.com/router-for-me/MixPlay/sdk/mixerr"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	readTimeout          = 60 * time.Second
	writeTimeout         = 10 * time.Second
	maxInboundMessageLen = 16 << 20 // 16 MiB
	heartbeatInterval    = 30 * time.Second
)

var errSessionClosed = errors.New("interactive: session closed")

// ReplyError is an error object returned by the service in a reply packet.
type ReplyError struct {
	Code    int
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("interactive: reply error %d: %s", e.Code, e.Message)
}

type inbound struct {
	packet []byte
}

type stateChange struct {
	from, to State
}

type pendingReply struct {
	ch        chan []byte
	closeOnce sync.Once
}

func (pr *pendingReply) close() {
	if pr == nil {
		return
	}
	pr.closeOnce.Do(func() {
		close(pr.ch)
	})
}

// Session is one protocol connection. Connect, Pump and Close are driven by a single
// owner; the method calls (SetReady, Capture, GetTime, Call) are safe from any goroutine
// except a handler running inside Pump.
type Session struct {
	dialer   *Dialer
	id       string
	handlers Handlers

	mu         sync.Mutex
	conn       *websocket.Conn
	state      State
	states     []stateChange
	readErr    error
	readerDone chan struct{}

	queue      chan inbound
	closed     chan struct{}
	closeOnce  sync.Once
	writeMutex sync.Mutex
	nextID     atomic.Uint32
	pending    sync.Map // map[uint32]*pendingReply
}

// ID returns the correlation id used in this session's log lines.
func (s *Session) ID() string { return s.id }

// State returns the latest protocol state, including transitions not yet dispatched by Pump.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect performs the websocket handshake and starts the reader and heartbeat.
// With setReady the session announces itself ready before returning; if that fails
// the session is closed and TransportClosed is returned.
func (s *Session) Connect(ctx context.Context, authorization, experienceID, shareCode string, setReady bool) error {
	select {
	case <-s.closed:
		return mixerr.New(mixerr.TransportClosed, "interactive: session is closed")
	default:
	}
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return mixerr.New(mixerr.InvalidOperation, "interactive: session is already connected")
	}
	s.mu.Unlock()

	logger := log.WithField("request_id", s.id)
	s.transition(StateConnecting)

	addr, err := s.dialer.resolveAddress(ctx)
	if err != nil {
		s.transition(StateDisconnected)
		return err
	}

	logger.Debugf("interactive: dialing %s as %s", addr, util.MaskAuthorization(authorization))
	conn, resp, err := s.dialer.opts.WebsocketDialer.DialContext(ctx, addr, handshakeHeaders(authorization, experienceID, shareCode))
	if err != nil {
		s.transition(StateDisconnected)
		err = classifyDialError(ctx, resp, err)
		logger.WithError(err).Warn("interactive: handshake failed")
		return err
	}

	conn.SetReadLimit(maxInboundMessageLen)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.readerDone = done
	s.mu.Unlock()

	go s.read(conn, done)
	s.startHeartbeat(conn)
	logger.Debug("interactive: connected")

	if setReady {
		if err = s.SetReady(ctx, true); err != nil {
			s.cleanup(err)
			return mixerr.WithCause(mixerr.TransportClosed, "interactive: ready failed, session closed", err)
		}
	}
	return nil
}

// Pump dispatches up to maxEvents queued packets to the handlers without waiting for
// the network. It returns the first dispatch error of the batch, NotConnected before
// Connect, and TransportClosed once the connection is gone and the queue is empty.
func (s *Session) Pump(maxEvents int) error {
	s.mu.Lock()
	conn := s.conn
	done := s.readerDone
	s.mu.Unlock()
	if conn == nil {
		return mixerr.New(mixerr.NotConnected, "interactive: session is not connected")
	}

	s.flushStates()

	var firstErr error
batch:
	for i := 0; i < maxEvents; i++ {
		select {
		case item := <-s.queue:
			if err := s.dispatch(item.packet); err != nil && firstErr == nil {
				firstErr = err
			}
			s.flushStates()
		default:
			break batch
		}
	}
	if firstErr != nil {
		return firstErr
	}

	if len(s.queue) == 0 {
		select {
		case <-done:
			s.flushStates()
			return mixerr.WithCause(mixerr.TransportClosed, "interactive: connection closed", s.readError())
		default:
		}
	}
	return nil
}

// Close shuts the connection down and waits for the reader to exit. It is idempotent.
func (s *Session) Close() error {
	s.cleanup(errSessionClosed)
	s.mu.Lock()
	done := s.readerDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// SetReady tells the service whether participants may start giving input.
func (s *Session) SetReady(ctx context.Context, ready bool) error {
	params, err := sjson.Set("", "isReady", ready)
	if err != nil {
		return mixerr.WithCause(mixerr.MethodCreateFailed, "interactive: build ready params", err)
	}
	_, err = s.Call(ctx, MethodReady, params)
	return err
}

// Capture charges the spark cost of the input identified by transactionID.
func (s *Session) Capture(ctx context.Context, transactionID string) error {
	params, err := sjson.Set("", "transactionID", transactionID)
	if err != nil {
		return mixerr.WithCause(mixerr.MethodCreateFailed, "interactive: build capture params", err)
	}
	_, err = s.Call(ctx, MethodCapture, params)
	return err
}

// GetTime returns the service clock.
func (s *Session) GetTime(ctx context.Context) (time.Time, error) {
	result, err := s.Call(ctx, MethodGetTime, "")
	if err != nil {
		return time.Time{}, err
	}
	ms := result.Get("time")
	if !ms.Exists() {
		return time.Time{}, mixerr.New(mixerr.PropertyNotFound, "interactive: getTime reply has no time")
	}
	return time.UnixMilli(ms.Int()), nil
}

// Call sends a method packet and waits for its reply. params is a JSON object or empty.
func (s *Session) Call(ctx context.Context, method, params string) (gjson.Result, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return gjson.Result{}, mixerr.New(mixerr.NotConnected, "interactive: session is not connected")
	}

	id := s.nextID.Add(1)
	packet, err := buildMethod(id, method, params, false)
	if err != nil {
		return gjson.Result{}, mixerr.WithCause(mixerr.MethodCreateFailed, "interactive: build method packet", err)
	}

	req := &pendingReply{ch: make(chan []byte, 1)}
	s.pending.Store(id, req)
	if err = s.write(conn, packet); err != nil {
		if actual, loaded := s.pending.LoadAndDelete(id); loaded {
			actual.(*pendingReply).close()
		}
		return gjson.Result{}, err
	}

	select {
	case raw, ok := <-req.ch:
		if !ok {
			return gjson.Result{}, mixerr.New(mixerr.TransportClosed, "interactive: connection closed before reply")
		}
		reply := gjson.ParseBytes(raw)
		if e := reply.Get("error"); e.Exists() && e.Type != gjson.Null {
			replyErr := &ReplyError{Code: int(e.Get("code").Int()), Message: e.Get("message").String()}
			return gjson.Result{}, mixerr.WithCause(mixerr.GeneralError, fmt.Sprintf("interactive: %s rejected", method), replyErr)
		}
		return reply.Get("result"), nil
	case <-ctx.Done():
		if actual, loaded := s.pending.LoadAndDelete(id); loaded {
			actual.(*pendingReply).close()
		}
		return gjson.Result{}, mixerr.Wrap(ctx.Err())
	case <-s.closed:
		return gjson.Result{}, mixerr.New(mixerr.TransportClosed, "interactive: connection closed before reply")
	}
}

func (s *Session) write(conn *websocket.Conn, packet []byte) error {
	select {
	case <-s.closed:
		return mixerr.New(mixerr.TransportClosed, "interactive: session is closed")
	default:
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return mixerr.WithCause(mixerr.SendFailed, "interactive: set write deadline", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, packet); err != nil {
		return mixerr.WithCause(mixerr.SendFailed, "interactive: write packet", err)
	}
	return nil
}

func (s *Session) startHeartbeat(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.closed:
				return
			case <-ticker.C:
				s.writeMutex.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
				s.writeMutex.Unlock()
				if err != nil {
					s.cleanup(err)
					return
				}
			}
		}
	}()
}

func (s *Session) read(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if s.readErr == nil {
				s.readErr = err
			}
			s.mu.Unlock()
			s.cleanup(err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if messageType != websocket.TextMessage {
			continue
		}
		if s.deliverReply(data) {
			continue
		}
		select {
		case s.queue <- inbound{packet: data}:
		case <-s.closed:
			return
		}
	}
}

// deliverReply hands a reply straight to its waiting caller. Unclaimed replies go through Pump.
func (s *Session) deliverReply(data []byte) bool {
	if gjson.GetBytes(data, "type").String() != PacketTypeReply {
		return false
	}
	id := gjson.GetBytes(data, "id")
	if !id.Exists() {
		return false
	}
	value, loaded := s.pending.LoadAndDelete(uint32(id.Uint()))
	if !loaded {
		return false
	}
	req := value.(*pendingReply)
	select {
	case req.ch <- data:
	default:
	}
	req.close()
	return true
}

func (s *Session) dispatch(packet []byte) error {
	if !gjson.ValidBytes(packet) {
		return mixerr.New(mixerr.JsonParseError, "interactive: received invalid JSON packet")
	}
	root := gjson.ParseBytes(packet)
	switch packetType := root.Get("type").String(); packetType {
	case PacketTypeMethod:
		s.dispatchMethod(root.Get("method").String(), root.Get("params"), packet)
	case PacketTypeReply:
		if e := root.Get("error"); e.Exists() && e.Type != gjson.Null {
			log.WithField("request_id", s.id).Debugf("interactive: reply %d carried error %d", root.Get("id").Int(), e.Get("code").Int())
			if s.handlers.OnError != nil {
				s.handlers.OnError(int(e.Get("code").Int()), e.Get("message").String())
			}
		}
	default:
		return mixerr.Newf(mixerr.UnrecognizedDataFormat, "interactive: unknown packet type %q", packetType)
	}
	return nil
}

func (s *Session) dispatchMethod(method string, params gjson.Result, packet []byte) {
	switch method {
	case MethodHello:
		s.transition(StateConnected)
	case MethodOnReady:
		if params.Get("isReady").Bool() {
			s.transition(StateReady)
		} else {
			s.transition(StateConnected)
		}
	case MethodOnParticipantJoin, MethodOnParticipantLeave, MethodOnParticipantUpdate:
		if s.handlers.OnParticipantsChanged == nil {
			return
		}
		action := ParticipantUpdate
		switch method {
		case MethodOnParticipantJoin:
			action = ParticipantJoin
		case MethodOnParticipantLeave:
			action = ParticipantLeave
		}
		for _, p := range params.Get("participants").Array() {
			s.handlers.OnParticipantsChanged(action, parseParticipant(p))
		}
	case MethodGiveInput:
		if s.handlers.OnInput != nil {
			s.handlers.OnInput(parseInput(params))
		}
	default:
		if s.handlers.OnUnhandledMethod != nil {
			s.handlers.OnUnhandledMethod(method, packet)
		}
	}
}

// transition records a state change; OnStateChanged sees it on the next Pump.
func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == to {
		return
	}
	s.states = append(s.states, stateChange{from: s.state, to: to})
	s.state = to
}

func (s *Session) flushStates() {
	s.mu.Lock()
	changes := s.states
	s.states = nil
	s.mu.Unlock()
	if s.handlers.OnStateChanged == nil {
		return
	}
	for _, c := range changes {
		s.handlers.OnStateChanged(c.from, c.to)
	}
}

func (s *Session) readError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

func (s *Session) cleanup(cause error) {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.pending.Range(func(key, value any) bool {
			value.(*pendingReply).close()
			s.pending.Delete(key)
			return true
		})

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			s.writeMutex.Lock()
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			s.writeMutex.Unlock()
			_ = conn.Close()
		}
		s.transition(StateDisconnected)

		logger := log.WithField("request_id", s.id)
		if cause != nil && !errors.Is(cause, errSessionClosed) && !websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
			logger.WithError(cause).Warn("interactive: connection lost")
		} else {
			logger.Debug("interactive: connection closed")
		}
	})
}
