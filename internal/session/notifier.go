package session

import (
	"fmt"
	"sync"

	"github.com/asaskevich/EventBus"

	"epics/internal/domain"
)

const (
	topicNotice = "session:notice"
	topicState  = "session:state"
)

// Notifier fans notices and state snapshots out to listeners.
// Listeners run asynchronously, one event at a time each, in publish order.
//
// Every registration gets its own bus topic, so the same function may be
// registered more than once and each cancel removes only its own entry.
type Notifier struct {
	bus EventBus.Bus

	pubMu  sync.Mutex // keeps publish order identical across listeners
	mu     sync.Mutex
	nextID uint64
	topics map[string]map[uint64]string // base topic -> id -> listener topic
}

// NewNotifier creates a notifier backed by an event bus.
func NewNotifier() *Notifier {
	return &Notifier{
		bus: EventBus.New(),
		topics: map[string]map[uint64]string{
			topicNotice: {},
			topicState:  {},
		},
	}
}

// OnNotice registers fn for notices and returns its cancel function.
func (n *Notifier) OnNotice(fn func(domain.Notice)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe notices: nil listener")
	}
	cancel, err := n.register(topicNotice, func(notice domain.Notice) { fn(notice) })
	if err != nil {
		return nil, fmt.Errorf("subscribe notices: %w", err)
	}
	return cancel, nil
}

// OnState registers fn for state snapshots and returns its cancel function.
func (n *Notifier) OnState(fn func(Snapshot)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe state: nil listener")
	}
	cancel, err := n.register(topicState, func(s Snapshot) { fn(s) })
	if err != nil {
		return nil, fmt.Errorf("subscribe state: %w", err)
	}
	return cancel, nil
}

func (n *Notifier) register(base string, handler interface{}) (func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	topic := fmt.Sprintf("%s:%d", base, id)
	if err := n.bus.SubscribeAsync(topic, handler, true); err != nil {
		return nil, err
	}
	n.topics[base][id] = topic

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.topics[base], id)
			n.mu.Unlock()
			_ = n.bus.Unsubscribe(topic, handler)
		})
	}, nil
}

func (n *Notifier) publish(base string, arg interface{}) {
	n.pubMu.Lock()
	defer n.pubMu.Unlock()

	n.mu.Lock()
	topics := make([]string, 0, len(n.topics[base]))
	for _, topic := range n.topics[base] {
		topics = append(topics, topic)
	}
	n.mu.Unlock()

	for _, topic := range topics {
		n.bus.Publish(topic, arg)
	}
}

func (n *Notifier) publishNotice(notice domain.Notice) {
	n.publish(topicNotice, notice)
}

func (n *Notifier) publishState(s Snapshot) {
	n.publish(topicState, s)
}

// Wait blocks until every delivered event has been handled.
func (n *Notifier) Wait() {
	n.bus.WaitAsync()
}
