// Package fanout relays realtime chat events to every connected client.
//
// Delivery is fire-and-forget: nothing is persisted, deduplicated or
// replayed, and a subscriber that cannot keep up is dropped instead of
// slowing down the publisher.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"blogchat/internal/common"
	"blogchat/internal/config"
)

const (
	EventSendMessage    = "send-message"
	EventReceiveMessage = "receive-message"

	ScopeGlobal       = "global"
	ScopeParticipants = "participants"
)

var (
	ErrClosed       = errors.New("fanout: subscriber closed")
	ErrBufferFull   = errors.New("fanout: send buffer full")
	ErrUnknownEvent = fmt.Errorf("%w: unknown event", common.ErrValidation)
	ErrHubClosed    = errors.New("fanout: hub closed")
)

// Event is the wire frame: {"event": "...", "data": {...}}.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Route holds the addressing fields read from an event payload.
type Route struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type Subscriber interface {
	ID() string
	// UserID is empty for anonymous connections.
	UserID() string
	// Send must not block; a subscriber that cannot accept a frame returns an error.
	Send(payload []byte) error
	Close()
}

// DeliveryFilter decides whether sub receives an event addressed by route.
type DeliveryFilter func(sub Subscriber, route Route) bool

func deliverToAll(Subscriber, Route) bool { return true }

func deliverToParticipants(sub Subscriber, route Route) bool {
	uid := sub.UserID()
	return uid != "" && (uid == route.SenderID || uid == route.ReceiverID)
}

// Backplane carries published frames between hub instances.
type Backplane interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe blocks, handing every received frame to fn, until ctx ends.
	Subscribe(ctx context.Context, fn func(payload []byte)) error
	Close() error
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	closed      bool

	filter    DeliveryFilter
	scope     string
	backplane Backplane
	log       *slog.Logger
}

// NewHub builds a hub for the configured scope. backplane may be nil, in
// which case publishing delivers in-process.
func NewHub(cfg *config.Config, backplane Backplane, log *slog.Logger) *Hub {
	h := &Hub{
		subscribers: make(map[string]Subscriber),
		scope:       ScopeGlobal,
		filter:      deliverToAll,
		backplane:   backplane,
		log:         log,
	}

	switch cfg.Chat.FanoutScope {
	case "", ScopeGlobal:
	case ScopeParticipants:
		h.scope = ScopeParticipants
		h.filter = deliverToParticipants
	default:
		log.Warn("unknown fanout scope, using global", "scope", cfg.Chat.FanoutScope)
	}
	return h
}

func (h *Hub) Scope() string { return h.scope }

func (h *Hub) Attach(sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.subscribers[sub.ID()] = sub
	h.log.Debug("subscriber attached", "subscriber_id", sub.ID(), "user_id", sub.UserID())
	return nil
}

func (h *Hub) Detach(sub Subscriber) {
	h.mu.Lock()
	if current, ok := h.subscribers[sub.ID()]; ok && current == sub {
		delete(h.subscribers, sub.ID())
	}
	h.mu.Unlock()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// HandleInbound processes a frame received from a client. A send-message
// frame is re-emitted as receive-message to every subscriber in scope,
// the sender included.
func (h *Hub) HandleInbound(ctx context.Context, frame []byte) error {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return fmt.Errorf("%w: malformed frame: %v", common.ErrValidation, err)
	}
	if ev.Name != EventSendMessage {
		return fmt.Errorf("%w %q", ErrUnknownEvent, ev.Name)
	}
	return h.Publish(ctx, Event{Name: EventReceiveMessage, Data: ev.Data})
}

// Publish hands ev to the backplane when one is configured, otherwise
// delivers it to the local subscribers directly.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if h.backplane != nil {
		return h.backplane.Publish(ctx, payload)
	}
	h.deliver(payload, routeOf(ev))
	return nil
}

// Run pumps backplane frames into local delivery until ctx ends. Without a
// backplane it just waits.
func (h *Hub) Run(ctx context.Context) error {
	if h.backplane == nil {
		<-ctx.Done()
		return nil
	}

	err := h.backplane.Subscribe(ctx, func(payload []byte) {
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			h.log.Warn("dropping malformed backplane frame", "error", err)
			return
		}
		h.deliver(payload, routeOf(ev))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("fanout backplane: %w", err)
	}
	return nil
}

func (h *Hub) deliver(payload []byte, route Route) int {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		if h.filter(sub, route) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if err := sub.Send(payload); err != nil {
			h.log.Debug("dropping subscriber", "subscriber_id", sub.ID(), "error", err)
			h.Detach(sub)
			continue
		}
		delivered++
	}
	return delivered
}

// Close closes every subscriber and the backplane. Further attaches fail.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	if h.backplane != nil {
		return h.backplane.Close()
	}
	return nil
}

func routeOf(ev Event) Route {
	var r Route
	if len(ev.Data) > 0 {
		_ = json.Unmarshal(ev.Data, &r)
	}
	return r
}
