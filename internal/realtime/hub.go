// Package realtime fans row-change notifications out to subscribers. A
// notification carries no row data: subscribers react by re-running their
// list query.
package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/metrics"
)

type Change struct {
	Table      string `json:"table"`
	Op         string `json:"op"`
	ID         string `json:"id"`
	RecyclerID string `json:"recycler_id"`

	// Resync is set after the change source lost events; it matches every
	// filter.
	Resync bool `json:"-"`
}

// Filter selects changes on one table, optionally narrowed to the requests
// addressed to one recycler.
type Filter struct {
	Table      string
	RecyclerID string
}

func (f Filter) Matches(c Change) bool {
	if c.Resync {
		return true
	}
	if f.Table != c.Table {
		return false
	}
	return f.RecyclerID == "" || f.RecyclerID == c.RecyclerID
}

type Publisher interface {
	Publish(ctx context.Context, c Change)
}

type discard struct{}

func (discard) Publish(context.Context, Change) {}

// Discard drops every change. Workflows use it when the database itself emits
// notifications.
var Discard Publisher = discard{}

type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewHub(buffer int, log *zap.Logger, m *metrics.Metrics) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		buffer:  buffer,
		log:     log.With(zap.String("component", "realtime")),
		metrics: m,
	}
}

type Subscription struct {
	filter Filter
	ch     chan struct{}
	hub    *Hub
	once   sync.Once
}

// C delivers one signal per burst of matching changes. It is closed by Close.
func (s *Subscription) C() <-chan struct{} {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

func (h *Hub) Subscribe(f Filter) *Subscription {
	s := &Subscription{filter: f, ch: make(chan struct{}, h.buffer), hub: h}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	return s
}

// Publish signals every matching subscription without blocking. A subscriber
// whose buffer is full already has a refetch pending, so the signal is dropped.
func (h *Hub) Publish(ctx context.Context, c Change) {
	h.mu.RLock()
	delivered := 0
	for s := range h.subs {
		if !s.filter.Matches(c) {
			continue
		}
		select {
		case s.ch <- struct{}{}:
			delivered++
		default:
		}
	}
	h.mu.RUnlock()

	table := c.Table
	if c.Resync {
		table = "resync"
	}
	h.metrics.RealtimeEvent(table)
	h.log.Debug("change_published",
		zap.String("table", table),
		zap.String("op", c.Op),
		zap.String("id", c.ID),
		zap.Int("delivered", delivered),
	)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
