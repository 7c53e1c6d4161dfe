package chat

import (
	"sync"

	"github.com/parkpal/tagchat/backend/internal/model/chat"
)

// hub fans each appended message list out to every live subscriber of a
// session. Delivery is full-state: subscribers always receive the complete
// ordered list, never deltas, so a dropped intermediate update can never
// leave a viewer with a partial transcript.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscriber]struct{})}
}

// subscriber holds a one-slot coalescing mailbox. Publishers replace any
// undelivered snapshot instead of blocking; since every snapshot is complete
// state, skipping a superseded one loses nothing.
type subscriber struct {
	fn     func([]chat.Message)
	latest chan []chat.Message
	stop   chan struct{} // immediate cancel via unsubscribe
	done   chan struct{} // graceful close on session end, flushes final state

	stopOnce sync.Once
	doneOnce sync.Once
}

func (sub *subscriber) push(msgs []chat.Message) {
	for {
		select {
		case sub.latest <- msgs:
			return
		default:
			// Mailbox full: discard the superseded snapshot and retry.
			select {
			case <-sub.latest:
			default:
			}
		}
	}
}

func (sub *subscriber) run() {
	for {
		select {
		case <-sub.stop:
			return
		case msgs := <-sub.latest:
			sub.fn(msgs)
		case <-sub.done:
			// Session ended: deliver the final (purged) state if queued.
			select {
			case msgs := <-sub.latest:
				sub.fn(msgs)
			default:
			}
			return
		}
	}
}

// subscribe registers a listener, delivers the initial snapshot, and returns
// an idempotent cancel func. Callbacks for one subscriber run on a dedicated
// goroutine, in order, and stop after cancellation.
func (h *hub) subscribe(sessionID string, initial []chat.Message, fn func([]chat.Message)) func() {
	sub := &subscriber{
		fn:     fn,
		latest: make(chan []chat.Message, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	sub.push(initial)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	go sub.run()

	return func() {
		sub.stopOnce.Do(func() { close(sub.stop) })
		h.remove(sessionID, sub)
	}
}

// publish pushes a fresh full snapshot to every subscriber of the session.
func (h *hub) publish(sessionID string, msgs []chat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		sub.push(msgs)
	}
}

// closeSession delivers the post-purge empty state to remaining subscribers
// and releases them.
func (h *hub) closeSession(sessionID string) {
	h.mu.Lock()
	subs := h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()

	for sub := range subs {
		sub.push([]chat.Message{})
		sub.doneOnce.Do(func() { close(sub.done) })
	}
}

func (h *hub) remove(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.subs[sessionID]; m != nil {
		delete(m, sub)
		if len(m) == 0 {
			delete(h.subs, sessionID)
		}
	}
}
