package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontroller/padbridge/pkg/types"
)

// fakeSession records sends and lets tests kill the connection.
type fakeSession struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
	inbound chan string
	once    sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{inbound: make(chan string, 8)}
}

func (s *fakeSession) Send(out string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, out)
	return nil
}

func (s *fakeSession) Inbound() <-chan string { return s.inbound }

func (s *fakeSession) Close() error {
	s.kill()
	return nil
}

func (s *fakeSession) kill() {
	s.once.Do(func() { close(s.inbound) })
}

func (s *fakeSession) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fakeTransport scripts dial outcomes: each entry is either a session or
// an error.
type fakeTransport struct {
	mu       sync.Mutex
	failures int // dials that fail before the first success
	dials    int
	sessions []*fakeSession
}

func (t *fakeTransport) Dial(ctx context.Context) (Session[string, string], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.dials <= t.failures {
		return nil, errors.New("dial refused")
	}
	s := newFakeSession()
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) session(i int) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.sessions) {
		return nil
	}
	return t.sessions[i]
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{Initial: time.Millisecond, Factor: 2, Max: 5 * time.Millisecond, Ceiling: 3}
}

func waitForState(t *testing.T, h *Handler[string, string], want types.ConnectionState) Status {
	t.Helper()
	ch, cancel := h.Status().Watch()
	defer cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				t.Fatalf("status closed waiting for %s", want)
			}
			if st.State == want {
				return st
			}
		case <-deadline:
			st, _ := h.Status().Get()
			t.Fatalf("timed out waiting for %s, at %s", want, st.State)
		}
	}
}

func TestHandlerStartsDisconnected(t *testing.T) {
	h := New[string, string]("test", &fakeTransport{}, fastPolicy())
	h.Start()
	defer h.Close()

	st := waitForState(t, h, types.ConnDisconnected)
	assert.NoError(t, st.Err)
}

func TestHandlerSendWhenNotConnected(t *testing.T) {
	h := New[string, string]("test", &fakeTransport{}, fastPolicy())
	h.Start()
	defer h.Close()

	assert.ErrorIs(t, h.Send("payload"), types.ErrNotConnected)
}

func TestHandlerConnectAndSend(t *testing.T) {
	tr := &fakeTransport{}
	h := New[string, string]("test", tr, fastPolicy())
	h.Start()
	defer h.Close()

	require.NoError(t, h.Connect(context.Background()))
	waitForState(t, h, types.ConnConnected)

	require.NoError(t, h.Send("hello"))

	sess := tr.session(0)
	require.NotNil(t, sess)
	assert.Eventually(t, func() bool { return sess.sentCount() == 1 }, 2*time.Second, time.Millisecond)
}

func TestHandlerReconnectsAfterSessionLoss(t *testing.T) {
	tr := &fakeTransport{}
	h := New[string, string]("test", tr, fastPolicy())
	h.Start()
	defer h.Close()

	require.NoError(t, h.Connect(context.Background()))
	waitForState(t, h, types.ConnConnected)

	// Kill the live session: the handler must redial and come back
	// Connected on a fresh session.
	tr.session(0).kill()
	assert.Eventually(t, func() bool {
		st, ok := h.Status().Get()
		return ok && st.State == types.ConnConnected && tr.dialCount() >= 2
	}, 2*time.Second, time.Millisecond)

	// The replacement session carries sends now.
	require.NoError(t, h.Send("again"))
	assert.Eventually(t, func() bool {
		s := tr.session(1)
		return s != nil && s.sentCount() == 1
	}, 2*time.Second, time.Millisecond)
}

func TestHandlerReportsPersistentFailureAndKeepsRetrying(t *testing.T) {
	tr := &fakeTransport{failures: 1000}
	h := New[string, string]("test", tr, fastPolicy())
	h.Start()
	defer h.Close()

	require.NoError(t, h.Connect(context.Background()))

	// Ceiling is 3: attempts past it carry the flag while retries keep
	// going at the capped interval.
	ch, cancel := h.Status().Watch()
	defer cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.PersistentFailure {
				assert.Equal(t, types.ConnReconnecting, st.State)
				assert.Error(t, st.Err)
				assert.GreaterOrEqual(t, st.Attempt, 3)
				assert.Greater(t, tr.dialCount(), 3, "retries continue past the ceiling")
				return
			}
		case <-deadline:
			t.Fatal("persistent failure never reported")
		}
	}
}

func TestHandlerDisconnectStopsRetrying(t *testing.T) {
	tr := &fakeTransport{failures: 1000}
	h := New[string, string]("test", tr, fastPolicy())
	h.Start()
	defer h.Close()

	require.NoError(t, h.Connect(context.Background()))
	waitForState(t, h, types.ConnReconnecting)

	require.NoError(t, h.Disconnect(context.Background()))
	waitForState(t, h, types.ConnDisconnected)

	dials := tr.dialCount()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, tr.dialCount(), dials+1, "no further dials after disconnect")
}

func TestHandlerDisconnectWhileConnected(t *testing.T) {
	tr := &fakeTransport{}
	h := New[string, string]("test", tr, fastPolicy())
	h.Start()
	defer h.Close()

	require.NoError(t, h.Connect(context.Background()))
	waitForState(t, h, types.ConnConnected)

	require.NoError(t, h.Disconnect(context.Background()))
	waitForState(t, h, types.ConnDisconnected)

	assert.ErrorIs(t, h.Send("late"), types.ErrNotConnected)
}

func TestHandlerInboundDelivery(t *testing.T) {
	tr := &fakeTransport{}
	h := New[string, string]("test", tr, fastPolicy())
	h.Start()
	defer h.Close()

	require.NoError(t, h.Connect(context.Background()))
	waitForState(t, h, types.ConnConnected)

	tr.session(0).inbound <- "telemetry"

	select {
	case got := <-h.Inbound().C():
		assert.Equal(t, "telemetry", got)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound payload never surfaced")
	}
}

func TestHandlerSendFailureTriggersReconnect(t *testing.T) {
	tr := &fakeTransport{}
	h := New[string, string]("test", tr, fastPolicy())
	h.Start()
	defer h.Close()

	require.NoError(t, h.Connect(context.Background()))
	waitForState(t, h, types.ConnConnected)

	sess := tr.session(0)
	sess.mu.Lock()
	sess.sendErr = errors.New("broken pipe")
	sess.mu.Unlock()

	require.NoError(t, h.Send("doomed"))
	assert.Eventually(t, func() bool {
		st, ok := h.Status().Get()
		return ok && st.State == types.ConnConnected && tr.dialCount() >= 2
	}, 2*time.Second, time.Millisecond)
}

func TestHandlerCloseIsTerminal(t *testing.T) {
	tr := &fakeTransport{}
	h := New[string, string]("test", tr, fastPolicy())
	h.Start()

	require.NoError(t, h.Connect(context.Background()))
	waitForState(t, h, types.ConnConnected)

	h.Close()
	h.Close() // idempotent

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit")
	}

	assert.ErrorIs(t, h.Connect(context.Background()), types.ErrChannelClosed)
	assert.ErrorIs(t, h.Send("after close"), types.ErrNotConnected)

	_, ok := <-h.Inbound().C()
	assert.False(t, ok, "inbound closes on handler close")
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{7, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}
