package smbus

import "sync"

// notifyQueueSize bounds the events pending for one device
const notifyQueueSize = 16

// notifier hands host notify events from the interrupt handler to a
// consumer on its own goroutine
type notifier struct {
	mu       sync.Mutex
	consumer NotifyConsumer
	events   chan HostNotify
	done     chan struct{}
	once     sync.Once
}

func newNotifier() *notifier {
	n := &notifier{
		events: make(chan HostNotify, notifyQueueSize),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) run() {
	defer close(n.done)
	for ev := range n.events {
		if c := n.get(); c != nil {
			c.HandleHostNotify(ev)
		}
	}
}

func (n *notifier) set(c NotifyConsumer) {
	n.mu.Lock()
	n.consumer = c
	n.mu.Unlock()
}

func (n *notifier) get() NotifyConsumer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.consumer
}

type postResult int

const (
	posted postResult = iota
	noConsumer
	queueFull
)

// post never blocks
func (n *notifier) post(ev HostNotify) postResult {
	if n.get() == nil {
		return noConsumer
	}
	select {
	case n.events <- ev:
		return posted
	default:
		return queueFull
	}
}

// close stops the goroutine once queued events are delivered. The caller
// guarantees no post runs concurrently or afterwards.
func (n *notifier) close() {
	n.once.Do(func() { close(n.events) })
}
