package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bitmex-client/internal/errs"
	"bitmex-client/internal/metrics"
	"bitmex-client/pkg/types"
)

// Config holds every transport knob the module's external interfaces
// describe: connection URL, credentials, keepalive, reconnect, and
// send-buffer limits.
type Config struct {
	URL        string
	ApiKey     string
	ApiSecret  string
	AuthSkewSec int

	PingInterval time.Duration
	PongTimeout  time.Duration

	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int

	SendBufferLimit int
	AuthTimeout     time.Duration
}

// FrameHandler receives every table frame delivered over the socket, in
// arrival order.
type FrameHandler func(types.TableFrame)

// AuthResultHandler is notified whenever an authentication attempt
// completes, successfully or not.
type AuthResultHandler func(source string, err error)

// Transport owns one WebSocket connection's lifecycle: connect, reconnect
// with backoff, ping/pong keepalive, the authentication sub-state-machine,
// and the outbound send buffer. All registry-visible side effects flow
// through the FrameHandler callback supplied at construction; Transport
// itself holds no reference to the applicator or registries.
type Transport struct {
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Sink
	dialer  *websocket.Dialer

	onFrame      FrameHandler
	onAuthResult AuthResultHandler

	connMu sync.Mutex
	conn   *websocket.Conn

	stateMu   sync.RWMutex
	state     State
	authState AuthState

	buffer *SendBuffer
	subs   *SubscriptionTracker

	reconnectMu      sync.Mutex
	reconnectAttempt int
	shouldRelogin    bool
	manualDisconnect bool

	pendingMu   sync.Mutex
	pendingAuth *authAttempt

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Transport. onFrame is invoked synchronously from the read
// loop for every table frame; callers must not block in it.
func New(cfg Config, sink metrics.Sink, logger *slog.Logger, onFrame FrameHandler) *Transport {
	return &Transport{
		cfg:           cfg,
		logger:        logger.With("component", "transport"),
		metrics:       sink,
		dialer:        websocket.DefaultDialer,
		onFrame:       onFrame,
		state:         StateIdle,
		authState:     AuthUnauthed,
		buffer:        NewSendBuffer(cfg.SendBufferLimit),
		subs:          NewSubscriptionTracker(),
		shouldRelogin: cfg.ApiKey != "" && cfg.ApiSecret != "",
	}
}

// State returns the current top-level connection state.
func (t *Transport) State() State {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.state
}

// AuthState returns the current authentication sub-state.
func (t *Transport) AuthState() AuthState {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.authState
}

func (t *Transport) setState(s State) {
	t.stateMu.Lock()
	t.state = s
	t.stateMu.Unlock()
}

func (t *Transport) setAuthState(s AuthState) {
	t.stateMu.Lock()
	t.authState = s
	t.stateMu.Unlock()
}

// Connect dials the socket and starts the event loop. It blocks until the
// connection is open (or dialing fails); the caller's ctx governs the
// connection's entire lifetime, including reconnects.
func (t *Transport) Connect(ctx context.Context) error {
	t.reconnectMu.Lock()
	t.manualDisconnect = false
	t.reconnectMu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	if err := t.dial(loopCtx); err != nil {
		return err
	}

	t.wg.Add(1)
	go t.supervise(loopCtx)

	return nil
}

// Disconnect closes the socket, cancels reconnect/keepalive/auth timers, and
// suppresses automatic reconnection.
func (t *Transport) Disconnect() {
	t.reconnectMu.Lock()
	t.manualDisconnect = true
	t.reconnectMu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	t.connMu.Lock()
	if t.conn != nil {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.conn.Close()
		t.conn = nil
	}
	t.connMu.Unlock()

	t.pendingMu.Lock()
	if t.pendingAuth != nil {
		t.pendingAuth.resolve(errs.NewAuth(errs.AuthNetwork, "disconnected"))
	}
	t.pendingMu.Unlock()

	t.setState(StateIdle)
	t.setAuthState(AuthUnauthed)
	t.wg.Wait()
}

func (t *Transport) dial(ctx context.Context) error {
	t.setState(StateConnecting)

	conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		t.setState(StateIdle)
		return errs.Wrap(errs.Network, err, "dial websocket")
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	t.setState(StateOpen)
	t.setAuthState(AuthUnauthed)

	t.reconnectMu.Lock()
	attempt := t.reconnectAttempt
	t.reconnectAttempt = 0
	relogin := t.shouldRelogin
	t.reconnectMu.Unlock()

	source := authSourceManual
	if attempt > 0 {
		source = authSourceReconnect
		if err := t.flushBuffer(); err != nil {
			t.logger.Warn("flush after reconnect failed", "error", err)
		}
	}

	if relogin && t.cfg.ApiKey != "" {
		go func() {
			if err := t.Authenticate(source); err != nil {
				t.logger.Warn("automatic relogin failed", "error", err)
			}
		}()
	} else {
		_ = t.flushBuffer()
	}

	return nil
}

// supervise runs ping/pong keepalive and the read loop for one connection,
// and drives reconnection when the connection drops abnormally.
func (t *Transport) supervise(ctx context.Context) {
	defer t.wg.Done()

	for {
		connDone := make(chan struct{})
		connCtx, connCancel := context.WithCancel(ctx)

		go t.pingLoop(connCtx)
		closeErr := t.readLoop(connCtx)
		close(connDone)
		connCancel()

		if ctx.Err() != nil {
			return
		}

		t.reconnectMu.Lock()
		manual := t.manualDisconnect
		t.reconnectMu.Unlock()
		if manual {
			return
		}

		if websocket.IsCloseError(closeErr, websocket.CloseNormalClosure) {
			t.logger.Info("socket closed normally, not reconnecting")
			return
		}

		t.setState(StateReconnecting)
		t.setAuthState(AuthUnauthed)

		t.reconnectMu.Lock()
		t.reconnectAttempt++
		attempt := t.reconnectAttempt
		maxAttempts := t.cfg.ReconnectMaxAttempts
		t.reconnectMu.Unlock()

		if maxAttempts > 0 && attempt > maxAttempts {
			t.logger.Error("reconnect attempts exhausted", "attempts", attempt)
			t.setState(StateIdle)
			return
		}

		delay := reconnectDelay(attempt, t.cfg.ReconnectBaseDelay, t.cfg.ReconnectMaxDelay)
		t.logger.Warn("socket closed, reconnecting", "error", closeErr, "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := t.dial(ctx); err != nil {
			t.logger.Warn("reconnect dial failed", "error", err)
			continue
		}
	}
}

func (t *Transport) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()
	if conn == nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.cfg.PongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(t.cfg.PongTimeout))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.connMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			t.connMu.Unlock()
			if err != nil {
				t.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (t *Transport) readLoop(ctx context.Context) error {
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("no active connection")
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		t.dispatch(msg)
	}
}

func (t *Transport) dispatch(msg []byte) {
	var envelope struct {
		Info    string          `json:"info"`
		Success *bool           `json:"success"`
		Table   string          `json:"table"`
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		t.logger.Debug("malformed frame", "error", err)
		return
	}

	switch {
	case envelope.Table != "":
		var frame types.TableFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			t.logger.Debug("malformed table frame", "error", err)
			return
		}
		t.onFrame(frame)

	case envelope.Success != nil && len(envelope.Request) > 0:
		var req struct {
			Op string `json:"op"`
		}
		_ = json.Unmarshal(envelope.Request, &req)
		if req.Op != "authKeyExpires" {
			return
		}
		var auth types.AuthResponse
		if err := json.Unmarshal(msg, &auth); err != nil {
			t.logger.Debug("malformed auth response", "error", err)
			return
		}
		t.completeAuth(auth.Success, auth.Error)

	case envelope.Info != "":
		t.logger.Info("welcome", "info", envelope.Info)

	default:
		t.logger.Debug("unrecognized frame", "raw", string(msg))
	}
}

// Authenticate sends an authKeyExpires request and blocks until it
// completes or times out. Only one attempt may be outstanding.
func (t *Transport) Authenticate(source authSource) error {
	t.pendingMu.Lock()
	if t.pendingAuth != nil {
		t.pendingMu.Unlock()
		return errAuthInProgress
	}
	attempt := newAuthAttempt(source)
	t.pendingAuth = attempt
	t.pendingMu.Unlock()

	t.setAuthState(AuthAuthing)
	started := time.Now()

	expires := authExpires(time.Now(), t.cfg.AuthSkewSec)
	sig := signWSAuth(t.cfg.ApiSecret, expires)

	payload, _ := json.Marshal(types.OutboundOp{
		Op:   "authKeyExpires",
		Args: []interface{}{t.cfg.ApiKey, expires, sig},
	})

	if err := t.sendRaw(payload); err != nil {
		t.finishAuth(attempt, err, started)
		return err
	}

	timer := time.NewTimer(t.cfg.AuthTimeout)
	defer timer.Stop()

	select {
	case err := <-attempt.done:
		t.finishAuth(attempt, err, started)
		return err
	case <-timer.C:
		err := errs.NewAuth(errs.AuthTimeout, "auth timeout")
		t.finishAuth(attempt, err, started)
		return err
	}
}

func (t *Transport) completeAuth(success bool, reason string) {
	t.pendingMu.Lock()
	attempt := t.pendingAuth
	t.pendingMu.Unlock()
	if attempt == nil {
		return
	}

	if success {
		attempt.resolve(nil)
		return
	}
	attempt.resolve(classifyAuthFailure(reason))
}

func (t *Transport) finishAuth(attempt *authAttempt, err error, started time.Time) {
	t.pendingMu.Lock()
	if t.pendingAuth == attempt {
		t.pendingAuth = nil
	}
	t.pendingMu.Unlock()

	latencyMs := float64(time.Since(started).Milliseconds())
	t.metrics.ObserveHistogram(metrics.AuthLatencyMs, latencyMs)

	if err == nil {
		t.setAuthState(AuthAuthed)
		t.metrics.IncrementCounter(metrics.AuthSuccessTotal, 1)
		_ = t.flushBuffer()
		if attempt.source == authSourceReconnect {
			t.resendPrivateSubscriptions()
		}
		if t.onAuthResult != nil {
			t.onAuthResult(string(attempt.source), nil)
		}
		return
	}

	t.setAuthState(AuthUnauthed)
	reason := "unknown"
	if e, ok := err.(*errs.Error); ok {
		reason = string(e.Reason)
	}
	t.metrics.IncrementCounter(metrics.AuthErrorTotal, 1, "reason", reason)

	if shouldStopRelogin(err) {
		t.reconnectMu.Lock()
		t.shouldRelogin = false
		t.reconnectMu.Unlock()
	}
	if t.onAuthResult != nil {
		t.onAuthResult(string(attempt.source), err)
	}
}

func (t *Transport) resendPrivateSubscriptions() {
	channels := t.subs.Snapshot()
	if len(channels) == 0 {
		return
	}
	args := make([]interface{}, len(channels))
	for i, c := range channels {
		args[i] = c
	}
	payload, _ := json.Marshal(types.OutboundOp{Op: "subscribe", Args: args})
	if err := t.sendRaw(payload); err != nil {
		t.logger.Warn("resubscribe after reconnect failed", "error", err)
	}
}

// Subscribe sends a subscribe op for channels, buffering/gating as needed.
func (t *Transport) Subscribe(channels ...string) error { return t.sendOp("subscribe", channels) }

// Unsubscribe sends an unsubscribe op for channels.
func (t *Transport) Unsubscribe(channels ...string) error { return t.sendOp("unsubscribe", channels) }

// Resubscribe implements applicator.Resubscriber: it unsubscribes then
// resubscribes a single channel, used to recover an out-of-sync order book.
func (t *Transport) Resubscribe(channel string) {
	_ = t.Unsubscribe(channel)
	_ = t.Subscribe(channel)
}

func (t *Transport) sendOp(op string, channels []string) error {
	args := make([]interface{}, len(channels))
	for i, c := range channels {
		args[i] = c
	}
	payload, err := json.Marshal(types.OutboundOp{Op: op, Args: args})
	if err != nil {
		return errs.Wrap(errs.Validation, err, "encode outbound frame")
	}

	requiresAuth := RequiresAuth(channels)
	if op == "subscribe" {
		t.subs.Add(filterPrivate(channels)...)
	} else {
		t.subs.Remove(filterPrivate(channels)...)
	}

	open := t.State() == StateOpen
	authed := t.AuthState() == AuthAuthed
	return t.buffer.Dispatch(payload, requiresAuth, open, authed, t.sendRaw)
}

func filterPrivate(channels []string) []string {
	out := make([]string, 0, len(channels))
	for _, c := range channels {
		if _, ok := privateChannels[channelPrefix(c)]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (t *Transport) flushBuffer() error {
	return t.buffer.Flush(t.AuthState() == AuthAuthed, t.sendRaw)
}

func (t *Transport) sendRaw(payload []byte) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return errs.New(errs.Network, "socket not connected")
	}
	t.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}
