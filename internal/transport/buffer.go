package transport

import (
	"strings"
	"sync"

	"bitmex-client/internal/errs"
)

// privateChannels are the table names that require authentication before a
// subscribe/unsubscribe frame naming them can be sent. Channel arguments are
// matched by prefix (the portion before the first ':') so a per-symbol
// channel like "orderBookL2:XBTUSD" is correctly treated as public.
var privateChannels = map[string]struct{}{
	"position":    {},
	"wallet":      {},
	"order":       {},
	"execution":   {},
	"margin":      {},
	"liquidation": {},
	"settlement":  {},
	"transact":    {},
}

func channelPrefix(channel string) string {
	if idx := strings.IndexByte(channel, ':'); idx >= 0 {
		return channel[:idx]
	}
	return channel
}

// RequiresAuth reports whether any of channels names a private table.
func RequiresAuth(channels []string) bool {
	for _, c := range channels {
		if _, ok := privateChannels[channelPrefix(c)]; ok {
			return true
		}
	}
	return false
}

type bufferedFrame struct {
	payload      []byte
	requiresAuth bool
}

// SendBuffer is the bounded outbound queue described in the module's
// outbound-frame design: frames are sent immediately when the socket is
// open and (they don't require auth, or authentication is complete);
// otherwise they wait here. Private-auth frames are deduplicated by exact
// payload equality.
type SendBuffer struct {
	mu      sync.Mutex
	items   []bufferedFrame
	limit   int
	pending map[string]struct{}
}

// NewSendBuffer creates a buffer bounded at limit items.
func NewSendBuffer(limit int) *SendBuffer {
	return &SendBuffer{limit: limit, pending: make(map[string]struct{})}
}

// Len returns the number of frames currently buffered.
func (b *SendBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dispatch applies the send-or-buffer rule for one frame: if open and
// (!requiresAuth || authed), send is invoked immediately; otherwise the
// frame is enqueued. A duplicate auth-requiring payload already queued is
// discarded silently, matching the module's dedup rule.
func (b *SendBuffer) Dispatch(payload []byte, requiresAuth, open, authed bool, send func([]byte) error) error {
	if open && (!requiresAuth || authed) {
		return send(payload)
	}
	return b.Enqueue(payload, requiresAuth)
}

// Enqueue buffers a frame without attempting to send it.
func (b *SendBuffer) Enqueue(payload []byte, requiresAuth bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := string(payload)
	if requiresAuth {
		if _, dup := b.pending[key]; dup {
			return nil
		}
	}

	if len(b.items) >= b.limit {
		return errs.New(errs.Validation, "send buffer full")
	}
	if requiresAuth {
		b.pending[key] = struct{}{}
	}
	b.items = append(b.items, bufferedFrame{payload: payload, requiresAuth: requiresAuth})
	return nil
}

// Flush drains the buffer in order, sending each frame via send. An item
// that still requires auth while authed is false is re-appended along with
// every frame after it, preserving order, and Flush returns. A send error
// re-appends the remainder (including the failed item) and returns the
// error.
func (b *SendBuffer) Flush(authed bool, send func([]byte) error) error {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()

	for i, item := range items {
		if item.requiresAuth && !authed {
			b.requeue(items[i:])
			return nil
		}
		if err := send(item.payload); err != nil {
			b.requeue(items[i:])
			return err
		}
		if item.requiresAuth {
			b.mu.Lock()
			delete(b.pending, string(item.payload))
			b.mu.Unlock()
		}
	}
	return nil
}

func (b *SendBuffer) requeue(remainder []bufferedFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(append([]bufferedFrame{}, remainder...), b.items...)
}

// SubscriptionTracker remembers which private channels are currently
// subscribed so they can be re-sent verbatim as one subscribe payload after
// a reconnect completes authentication.
type SubscriptionTracker struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewSubscriptionTracker creates an empty tracker.
func NewSubscriptionTracker() *SubscriptionTracker {
	return &SubscriptionTracker{set: make(map[string]struct{})}
}

// Add records channels as subscribed.
func (t *SubscriptionTracker) Add(channels ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range channels {
		t.set[c] = struct{}{}
	}
}

// Remove forgets channels.
func (t *SubscriptionTracker) Remove(channels ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range channels {
		delete(t.set, c)
	}
}

// Snapshot returns every currently tracked channel.
func (t *SubscriptionTracker) Snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.set))
	for c := range t.set {
		out = append(out, c)
	}
	return out
}
