package messaging

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type sentEvent struct {
	Type string
	Data any
}

// recordingConn keeps every event it is sent.
type recordingConn struct {
	mu         sync.Mutex
	events     []sentEvent
	refuse     bool
	refuseType string // drops only events of this type
}

func (c *recordingConn) Send(eventType string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refuse || (c.refuseType != "" && c.refuseType == eventType) {
		return ErrSlowConsumer
	}
	c.events = append(c.events, sentEvent{eventType, data})
	return nil
}

func (c *recordingConn) ofType(t string) []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentEvent
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// memoryStore is an in-memory MessageStore.
type memoryStore struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (s *memoryStore) SaveMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, *m)
	return nil
}

func (s *memoryStore) ListBetween(_ context.Context, a, b string, since time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	key := PairKey(a, b)
	var out []Message
	for _, m := range s.msgs {
		if m.PairKey == key && m.CreatedAt.After(since) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) LatestPerCounterpart(_ context.Context, userID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := map[string]Message{}
	for _, m := range s.msgs {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		if cur, ok := latest[m.PairKey]; !ok || m.CreatedAt.After(cur.CreatedAt) {
			latest[m.PairKey] = m
		}
	}
	out := make([]Message, 0, len(latest))
	for _, m := range latest {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type offlineRecorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (o *offlineRecorder) MessageForOffline(_ context.Context, m Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, m)
	return o.err
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errStoreDown = errors.New("store down")
