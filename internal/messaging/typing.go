package messaging

import (
	"sync"
	"time"
)

type typingKey struct {
	sender, receiver string
}

// TypingCoordinator relays typing indicators. It keeps a mark per
// (sender, receiver) so a stream of keystrokes produces one typing push until
// the mark goes stale. There is no server-side timer; clients send stopTyping
// when their own idle timer elapses.
type TypingCoordinator struct {
	pusher Pusher
	idle   time.Duration
	now    func() time.Time

	mu    sync.Mutex
	marks map[typingKey]time.Time
}

func NewTypingCoordinator(p Pusher, idle time.Duration, now func() time.Time) *TypingCoordinator {
	if idle <= 0 {
		idle = 3 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &TypingCoordinator{pusher: p, idle: idle, now: now, marks: make(map[typingKey]time.Time)}
}

// StartTyping pushes typing to the receiver unless the sender already has a
// fresh mark for them, in which case the mark is renewed. It reports whether
// a push was delivered.
func (t *TypingCoordinator) StartTyping(sender, receiver string) bool {
	if sender == "" || receiver == "" || sender == receiver {
		return false
	}
	k := typingKey{sender, receiver}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	if at, ok := t.marks[k]; ok && now.Sub(at) < t.idle {
		t.marks[k] = now
		return false
	}
	if !t.pusher.PushToUser(receiver, EventTyping, TypingPayload{UserID: sender}) {
		// offline receiver: try again on the next keystroke
		delete(t.marks, k)
		return false
	}
	t.marks[k] = now
	return true
}

// StopTyping clears the mark and tells the receiver.
func (t *TypingCoordinator) StopTyping(sender, receiver string) bool {
	if sender == "" || receiver == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.marks, typingKey{sender, receiver})
	return t.pusher.PushToUser(receiver, EventStopTyping, TypingPayload{UserID: sender})
}

// ClearSender drops every mark held by sender, sending stopTyping for the
// ones still fresh. Called when the sender disconnects.
func (t *TypingCoordinator) ClearSender(sender string) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, at := range t.marks {
		if k.sender != sender {
			continue
		}
		if now.Sub(at) < t.idle {
			t.pusher.PushToUser(k.receiver, EventStopTyping, TypingPayload{UserID: sender})
		}
		delete(t.marks, k)
	}
}

// Active reports whether sender has a fresh mark for receiver.
func (t *TypingCoordinator) Active(sender, receiver string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.marks[typingKey{sender, receiver}]
	return ok && t.now().Sub(at) < t.idle
}
