package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/metrics"
	"github.com/opencontroller/padbridge/pkg/types"
)

// RetryPolicy controls reconnection backoff. After Ceiling consecutive
// failures the status reports a persistent failure, but retries continue
// at the capped interval until a disconnect or close.
type RetryPolicy struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
	Ceiling int
}

// DefaultRetryPolicy is 500ms doubling to a 30s cap, with the persistent
// failure flag raised after 10 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial: 500 * time.Millisecond,
		Factor:  2,
		Max:     30 * time.Second,
		Ceiling: 10,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.Initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Status is the latest-value connection status a handler broadcasts.
// Watchers always see the current state; intermediate flaps may be
// skipped.
type Status struct {
	State             types.ConnectionState
	Err               error
	Attempt           int
	PersistentFailure bool
}

// Session is one live connection produced by a Transport.
type Session[Out, In any] interface {
	// Send transmits one payload.
	Send(out Out) error

	// Inbound returns the received-payload channel. It closes when the
	// session dies, which the handler treats as connection loss.
	Inbound() <-chan In

	// Close tears the session down.
	Close() error
}

// Transport dials sessions on behalf of a handler. Dial must honor
// context cancellation.
type Transport[Out, In any] interface {
	Dial(ctx context.Context) (Session[Out, In], error)
}

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdDisconnect
	cmdClose
)

type command struct {
	kind  cmdKind
	reply *flow.Reply[struct{}]
}

// Handler drives one protocol connection through its lifecycle:
//
//	Disconnected → Connecting → Connected → Reconnecting → …
//
// with Closing terminal from any state. All connection state lives in the
// run loop; callers interact through commands, the send queue, and the
// status broadcast. Send is rejected immediately with ErrNotConnected
// unless the handler is Connected.
type Handler[Out, In any] struct {
	name      string
	transport Transport[Out, In]
	policy    RetryPolicy

	sendQ  *flow.Queue[Out]
	inQ    *flow.Queue[In]
	status *flow.Value[Status]

	cmdCh  chan command
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	doneCh    chan struct{}
	logger    zerolog.Logger
}

// New creates a handler. Start must be called before any commands.
func New[Out, In any](name string, tr Transport[Out, In], policy RetryPolicy) *Handler[Out, In] {
	if policy.Initial <= 0 {
		policy = DefaultRetryPolicy()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler[Out, In]{
		name:      name,
		transport: tr,
		policy:    policy,
		sendQ:     flow.NewQueue[Out](64),
		inQ:       flow.NewQueue[In](64),
		status:    flow.NewValue[Status](),
		cmdCh:     make(chan command),
		ctx:       ctx,
		cancel:    cancel,
		doneCh:    make(chan struct{}),
		logger:    log.WithHandler(name),
	}
}

// Start launches the run loop in the Disconnected state.
func (h *Handler[Out, In]) Start() {
	go h.run()
}

// Status returns the latest-value status broadcast.
func (h *Handler[Out, In]) Status() *flow.Value[Status] {
	return h.status
}

// Inbound returns the queue of received payloads. It closes when the
// handler closes.
func (h *Handler[Out, In]) Inbound() *flow.Queue[In] {
	return h.inQ
}

// Connect requests a connection. It returns once the run loop has
// accepted the request; progress is observed on Status.
func (h *Handler[Out, In]) Connect(ctx context.Context) error {
	return h.command(ctx, cmdConnect)
}

// Disconnect requests an orderly disconnect. Reconnection stops.
func (h *Handler[Out, In]) Disconnect(ctx context.Context) error {
	return h.command(ctx, cmdDisconnect)
}

func (h *Handler[Out, In]) command(ctx context.Context, kind cmdKind) error {
	reply := flow.NewReply[struct{}]()
	select {
	case h.cmdCh <- command{kind: kind, reply: reply}:
	case <-h.doneCh:
		return types.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err := reply.Wait(ctx)
	return err
}

// Send queues a payload for transmission. It fails immediately with
// ErrNotConnected unless the handler is currently Connected; a payload
// accepted here can still be lost if the connection drops before it is
// written.
func (h *Handler[Out, In]) Send(out Out) error {
	st, ok := h.status.Get()
	if !ok || st.State != types.ConnConnected {
		return types.ErrNotConnected
	}
	if _, err := h.sendQ.Push(out); err != nil {
		return types.ErrChannelClosed
	}
	return nil
}

// Close tears the handler down from any state and waits for the run loop
// to exit. It is idempotent.
func (h *Handler[Out, In]) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		reply := flow.NewReply[struct{}]()
		select {
		case h.cmdCh <- command{kind: cmdClose, reply: reply}:
		case <-h.doneCh:
		}
	})
	<-h.doneCh
}

// Done is closed when the run loop has exited.
func (h *Handler[Out, In]) Done() <-chan struct{} {
	return h.doneCh
}

func (h *Handler[Out, In]) publish(st Status) {
	h.status.Set(st)
	metrics.SetConnectionState(h.name, string(st.State))
	ev := h.logger.Info()
	if st.Err != nil {
		ev = h.logger.Warn().Err(st.Err).Int("attempt", st.Attempt)
	}
	ev.Str("state", string(st.State)).Bool("persistent_failure", st.PersistentFailure).Msg("connection state")
}

func (h *Handler[Out, In]) run() {
	defer func() {
		h.publish(Status{State: types.ConnClosing})
		h.inQ.Close()
		h.sendQ.Close()
		h.status.Close()
		close(h.doneCh)
	}()

	var (
		sess    Session[Out, In]
		lastErr error
		attempt int
	)
	state := types.ConnDisconnected
	h.publish(Status{State: state})

	closeSession := func() {
		if sess != nil {
			if err := sess.Close(); err != nil {
				h.logger.Debug().Err(err).Msg("session close")
			}
			sess = nil
		}
	}
	defer closeSession()

	for {
		switch state {
		case types.ConnDisconnected:
			c := <-h.cmdCh
			switch c.kind {
			case cmdConnect:
				state = types.ConnConnecting
				attempt = 0
				lastErr = nil
				h.publish(Status{State: state})
			case cmdDisconnect:
				// Already disconnected.
			case cmdClose:
				c.reply.Deliver(struct{}{}, nil)
				return
			}
			c.reply.Deliver(struct{}{}, nil)

		case types.ConnConnecting, types.ConnReconnecting:
			s, err := h.transport.Dial(h.ctx)
			if err != nil {
				attempt++
				lastErr = err
				metrics.ReconnectAttemptsTotal.WithLabelValues(h.name).Inc()
				state = types.ConnReconnecting
				h.publish(Status{
					State:             state,
					Err:               lastErr,
					Attempt:           attempt,
					PersistentFailure: attempt >= h.policy.Ceiling,
				})
				if stop := h.backoffWait(attempt, &state); stop {
					return
				}
				continue
			}
			sess = s
			attempt = 0
			lastErr = nil
			state = types.ConnConnected
			h.publish(Status{State: state})

		case types.ConnConnected:
			if done := h.serve(sess, &state); done {
				return
			}
			if state != types.ConnConnected {
				closeSession()
			}
		}
	}
}

// backoffWait sleeps the backoff interval while staying responsive to
// commands. It may flip state to Disconnected; it returns true when the
// handler must exit.
func (h *Handler[Out, In]) backoffWait(attempt int, state *types.ConnectionState) bool {
	timer := time.NewTimer(h.policy.backoff(attempt))
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return false
		case c := <-h.cmdCh:
			switch c.kind {
			case cmdConnect:
				// Already retrying; treat as satisfied.
				c.reply.Deliver(struct{}{}, nil)
			case cmdDisconnect:
				*state = types.ConnDisconnected
				h.publish(Status{State: *state})
				c.reply.Deliver(struct{}{}, nil)
				return false
			case cmdClose:
				c.reply.Deliver(struct{}{}, nil)
				return true
			}
			if *state == types.ConnDisconnected {
				return false
			}
		}
	}
}

// serve runs the Connected state until a command, a send failure, or
// session loss changes it. It returns true when the handler must exit.
func (h *Handler[Out, In]) serve(sess Session[Out, In], state *types.ConnectionState) bool {
	for {
		select {
		case c := <-h.cmdCh:
			switch c.kind {
			case cmdConnect:
				c.reply.Deliver(struct{}{}, nil)
			case cmdDisconnect:
				*state = types.ConnDisconnected
				h.publish(Status{State: *state})
				c.reply.Deliver(struct{}{}, nil)
				return false
			case cmdClose:
				c.reply.Deliver(struct{}{}, nil)
				return true
			}

		case out, ok := <-h.sendQ.C():
			if !ok {
				return true
			}
			if err := sess.Send(out); err != nil {
				metrics.SendErrorsTotal.WithLabelValues(h.name).Inc()
				*state = types.ConnReconnecting
				h.publish(Status{State: *state, Err: err, Attempt: 1})
				metrics.ReconnectAttemptsTotal.WithLabelValues(h.name).Inc()
				return false
			}
			metrics.MessagesSentTotal.WithLabelValues(h.name).Inc()

		case in, ok := <-sess.Inbound():
			if !ok {
				*state = types.ConnReconnecting
				h.publish(Status{State: *state, Err: types.ErrChannelClosed, Attempt: 1})
				metrics.ReconnectAttemptsTotal.WithLabelValues(h.name).Inc()
				return false
			}
			metrics.MessagesReceivedTotal.WithLabelValues(h.name).Inc()
			_, _ = h.inQ.Push(in)
		}
	}
}
