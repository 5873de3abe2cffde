package mixplay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeAuthService struct {
	mu sync.Mutex

	code, handle string
	requestErr   error

	awaitToken   string
	awaitErr     error
	awaitHandles []string

	refreshToken string
	refreshErr   error
	refreshCalls int
	refreshedOld []string

	parseErr error
}

func newFakeAuthService() *fakeAuthService {
	return &fakeAuthService{
		code:         "ABC123",
		handle:       "handle-1",
		awaitToken:   "first",
		refreshToken: "second",
	}
}

func (f *fakeAuthService) RequestShortCode(_ context.Context, _, _ string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code, f.handle, f.requestErr
}

func (f *fakeAuthService) AwaitShortCode(ctx context.Context, _, _, handle string) (string, error) {
	f.mu.Lock()
	f.awaitHandles = append(f.awaitHandles, handle)
	token, err := f.awaitToken, f.awaitErr
	f.mu.Unlock()
	if errCtx := ctx.Err(); errCtx != nil {
		return "", errCtx
	}
	return token, err
}

func (f *fakeAuthService) ParseRefreshToken(token string) (string, error) {
	if f.parseErr != nil {
		return "", f.parseErr
	}
	return "Bearer " + token, nil
}

func (f *fakeAuthService) IsTokenStale(token string) (bool, error) {
	return strings.HasPrefix(token, "stale"), nil
}

func (f *fakeAuthService) RefreshToken(_ context.Context, _, _, stale string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	f.refreshedOld = append(f.refreshedOld, stale)
	return f.refreshToken, f.refreshErr
}

type fakeConn struct {
	connectErr error
	pumpErr    error
	closeErr   error
	// block, when set, makes Pump wait until it is closed.
	block chan struct{}

	mu          sync.Mutex
	connectArgs []string
	setReady    bool

	pumps  atomic.Int32
	closed atomic.Int32
}

func (c *fakeConn) Connect(_ context.Context, authorization, experienceID, shareCode string, setReady bool) error {
	c.mu.Lock()
	c.connectArgs = []string{authorization, experienceID, shareCode}
	c.setReady = setReady
	c.mu.Unlock()
	return c.connectErr
}

func (c *fakeConn) Pump(_ int) error {
	c.pumps.Add(1)
	if c.block != nil {
		<-c.block
	}
	return c.pumpErr
}

func (c *fakeConn) Close() error {
	c.closed.Add(1)
	return c.closeErr
}

type fakeTransport struct {
	conn  *fakeConn
	err   error
	opens atomic.Int32
}

func (t *fakeTransport) Open(_ context.Context) (Conn, error) {
	t.opens.Add(1)
	if t.err != nil {
		return nil, t.err
	}
	return t.conn, nil
}

type staticTokens struct {
	authorized bool
	token      string
}

func (s staticTokens) IsAuthorized() bool { return s.authorized }

func (s staticTokens) AccessToken() (string, error) {
	if !s.authorized {
		return "", errors.New("not authorized")
	}
	return s.token, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
