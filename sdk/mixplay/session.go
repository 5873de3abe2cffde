package mixplay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/router-for-me/MixPlay/sdk/mixerr"
	log "github.com/sirupsen/logrus"
)

// Session identifies an open connection in a SessionManager's session table. Zero means "not open".
type Session uint64

// SessionState is the lifecycle of the managed session.
type SessionState int

const (
	SessionClosed SessionState = iota
	SessionOpening
	SessionOpen
	SessionConnecting
	SessionConnected
)

func (s SessionState) String() string {
	switch s {
	case SessionClosed:
		return "closed"
	case SessionOpening:
		return "opening"
	case SessionOpen:
		return "open"
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// RunLoopState is the state of the background worker.
type RunLoopState int

const (
	RunLoopIdle RunLoopState = iota
	RunLoopRunning
	RunLoopStopRequested
	RunLoopStopped
)

func (s RunLoopState) String() string {
	switch s {
	case RunLoopIdle:
		return "idle"
	case RunLoopRunning:
		return "running"
	case RunLoopStopRequested:
		return "stop-requested"
	case RunLoopStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// DefaultBatchSize is the number of queued events processed per pump call.
	DefaultBatchSize = 1000
	// DefaultPumpInterval is the pause between pump calls.
	DefaultPumpInterval = 16 * time.Millisecond
)

// pumpFailureLogEvery limits warn-level logging of a failure streak to its first
// failure and every Nth one after that. Every failure is still reported.
const pumpFailureLogEvery = 100

// RunLoopPolicy tunes the background worker.
type RunLoopPolicy struct {
	// BatchSize caps the events processed by one pump call.
	BatchSize int
	// Interval is the pause after each pump call.
	Interval time.Duration
	// MaxConsecutiveFailures stops the worker after that many failed pumps in a row.
	// Zero keeps pumping forever and only reports.
	MaxConsecutiveFailures int
	// BackoffMax enables an exponential pause after failed pumps, capped at this value.
	// Zero keeps the fixed Interval.
	BackoffMax time.Duration
}

// DefaultRunLoopPolicy reports failures and keeps looping at a fixed interval.
func DefaultRunLoopPolicy() RunLoopPolicy {
	return RunLoopPolicy{BatchSize: DefaultBatchSize, Interval: DefaultPumpInterval}
}

func (p RunLoopPolicy) normalized() RunLoopPolicy {
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.Interval <= 0 {
		p.Interval = DefaultPumpInterval
	}
	if p.MaxConsecutiveFailures < 0 {
		p.MaxConsecutiveFailures = 0
	}
	if p.BackoffMax > 0 && p.BackoffMax < p.Interval {
		p.BackoffMax = p.Interval
	}
	return p
}

// PumpErrorHandler receives run-loop failures. It runs on the worker goroutine.
type PumpErrorHandler func(Session, error)

// tokenSource is the part of AuthClient the session manager needs.
type tokenSource interface {
	IsAuthorized() bool
	AccessToken() (string, error)
}

type sessionEntry struct {
	id            Session
	conn          Conn
	correlationID string
	stop          chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

func (e *sessionEntry) requestStop() {
	if e.stop == nil {
		return
	}
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *sessionEntry) workerAlive() bool {
	if e == nil || e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// SessionManager owns at most one protocol session and the worker that pumps it.
// Its methods are meant to be called from a single owning goroutine; the worker is
// the only concurrent actor.
type SessionManager struct {
	mu          sync.Mutex
	auth        tokenSource
	transport   Transport
	policy      RunLoopPolicy
	onPumpError PumpErrorHandler

	nextID   uint64
	sessions map[Session]*sessionEntry
	current  Session
	state    SessionState
	runState RunLoopState
}

// NewSessionManager builds a manager that takes tokens from auth and connections from transport.
func NewSessionManager(auth *AuthClient, transport Transport, policy RunLoopPolicy) *SessionManager {
	return newSessionManager(auth, transport, policy)
}

func newSessionManager(auth tokenSource, transport Transport, policy RunLoopPolicy) *SessionManager {
	return &SessionManager{
		auth:      auth,
		transport: transport,
		policy:    policy.normalized(),
		sessions:  make(map[Session]*sessionEntry),
	}
}

// SetPumpErrorHandler installs the side channel for run-loop failures.
func (m *SessionManager) SetPumpErrorHandler(fn PumpErrorHandler) {
	m.mu.Lock()
	m.onPumpError = fn
	m.mu.Unlock()
}

// State returns the session lifecycle state.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RunLoopState returns the worker state.
func (m *SessionManager) RunLoopState() RunLoopState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runState
}

// Session returns the open session id, or zero.
func (m *SessionManager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Conn returns the connection behind the open session, or nil.
func (m *SessionManager) Conn() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry := m.sessions[m.current]; entry != nil {
		return entry.conn
	}
	return nil
}

// HasValidSession reports whether a session is open and its worker is still running.
func (m *SessionManager) HasValidSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.sessions[m.current]
	return entry != nil && entry.workerAlive()
}

// Open creates the session. Only one session may be open per manager.
func (m *SessionManager) Open(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.auth == nil || !m.auth.IsAuthorized() {
		m.mu.Unlock()
		return 0, mixerr.New(mixerr.InvalidOperation, "mixplay: not authenticated")
	}
	if m.current != 0 || m.state != SessionClosed {
		m.mu.Unlock()
		return 0, mixerr.New(mixerr.ObjectExists, "mixplay: a session is already open")
	}
	m.state = SessionOpening
	m.mu.Unlock()

	conn, err := m.transport.Open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = SessionClosed
		return 0, mixerr.Wrap(err)
	}
	if conn == nil {
		m.state = SessionClosed
		return 0, mixerr.SDK("mixplay: transport returned no connection")
	}

	m.nextID++
	entry := &sessionEntry{
		id:            Session(m.nextID),
		conn:          conn,
		correlationID: uuid.NewString()[:8],
	}
	m.sessions[entry.id] = entry
	m.current = entry.id
	m.state = SessionOpen
	m.runState = RunLoopIdle
	log.WithField("request_id", entry.correlationID).Debugf("mixplay: session %d opened", entry.id)
	return entry.id, nil
}

// Connect joins the experience and starts the run-loop. It returns once the worker is running.
func (m *SessionManager) Connect(ctx context.Context, experienceID, shareCode string, setReady bool) error {
	m.mu.Lock()
	entry := m.sessions[m.current]
	if entry == nil {
		m.mu.Unlock()
		return mixerr.New(mixerr.InvalidOperation, "mixplay: no session is open")
	}
	if m.state != SessionOpen {
		state := m.state
		m.mu.Unlock()
		return mixerr.Newf(mixerr.InvalidOperation, "mixplay: cannot connect a session in state %s", state)
	}
	token, err := m.auth.AccessToken()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = SessionConnecting
	m.mu.Unlock()

	logger := log.WithField("request_id", entry.correlationID)
	if err = entry.conn.Connect(ctx, token, experienceID, shareCode, setReady); err != nil {
		m.mu.Lock()
		if m.current == entry.id {
			m.state = SessionOpen
		}
		m.mu.Unlock()
		err = mixerr.Wrap(err)
		logger.WithError(err).Warn("mixplay: connect failed")
		return err
	}

	started := make(chan struct{})
	m.mu.Lock()
	entry.stop = make(chan struct{})
	entry.done = make(chan struct{})
	m.runState = RunLoopRunning
	policy := m.policy
	m.mu.Unlock()

	go m.run(entry, policy, started)
	<-started
	logger.Infof("mixplay: session %d connected (experience %s)", entry.id, experienceID)
	return nil
}

// Close stops the worker, waits for it to exit, and releases the session. Closing
// when nothing is open is a no-op. If ctx ends before the worker exits, the session
// stays in the stop-requested state and Close may be called again.
func (m *SessionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	entry := m.sessions[m.current]
	if entry == nil {
		m.mu.Unlock()
		return nil
	}
	if entry.workerAlive() {
		m.runState = RunLoopStopRequested
	}
	entry.requestStop()
	done := entry.done
	m.mu.Unlock()

	if done != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		select {
		case <-done:
		case <-ctx.Done():
			return mixerr.Wrap(ctx.Err())
		}
	}

	errClose := entry.conn.Close()

	m.mu.Lock()
	delete(m.sessions, entry.id)
	if m.current == entry.id {
		m.current = 0
		m.state = SessionClosed
		m.runState = RunLoopStopped
	}
	m.mu.Unlock()

	logger := log.WithField("request_id", entry.correlationID)
	if errClose != nil {
		logger.WithError(errClose).Warnf("mixplay: session %d close failed", entry.id)
		return mixerr.WithCause(mixerr.DisconnectFailed, "mixplay: close session", errClose)
	}
	logger.Debugf("mixplay: session %d closed", entry.id)
	return nil
}

func (m *SessionManager) run(entry *sessionEntry, policy RunLoopPolicy, started chan<- struct{}) {
	defer close(entry.done)
	defer m.markStopped(entry)

	m.mu.Lock()
	if m.current == entry.id {
		m.state = SessionConnected
	}
	m.mu.Unlock()
	close(started)

	logger := log.WithField("request_id", entry.correlationID)

	var bo *backoff.ExponentialBackOff
	if policy.BackoffMax > 0 {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = policy.Interval
		bo.MaxInterval = policy.BackoffMax
		bo.Reset()
	}

	failures := 0
	for {
		select {
		case <-entry.stop:
			return
		default:
		}

		delay := policy.Interval
		if err := entry.conn.Pump(policy.BatchSize); err != nil {
			failures++
			err = mixerr.Wrap(err)
			if failures == 1 || failures%pumpFailureLogEvery == 0 {
				logger.WithError(err).Warnf("mixplay: pump failed (%d consecutive)", failures)
			} else {
				logger.WithError(err).Debugf("mixplay: pump failed (%d consecutive)", failures)
			}
			m.report(entry.id, err)

			if policy.MaxConsecutiveFailures > 0 && failures >= policy.MaxConsecutiveFailures {
				dead := mixerr.WithCause(mixerr.TransportClosed,
					fmt.Sprintf("mixplay: session %d stopped after %d consecutive pump failures", entry.id, failures), err)
				logger.Error(dead.Error())
				m.report(entry.id, dead)
				return
			}
			if bo != nil {
				delay = bo.NextBackOff()
			}
		} else if failures > 0 {
			failures = 0
			if bo != nil {
				bo.Reset()
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-entry.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *SessionManager) markStopped(entry *sessionEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == entry.id {
		m.runState = RunLoopStopped
	}
}

func (m *SessionManager) report(id Session, err error) {
	m.mu.Lock()
	fn := m.onPumpError
	m.mu.Unlock()
	if fn != nil {
		fn(id, err)
	}
}
