package registry

import (
	"sync"

	"github.com/mcpgate/mcpgate/internal/logging"
)

// StatusEvent describes one server status transition.
type StatusEvent struct {
	Key       ServerKey
	Status    Status
	Err       string
	ToolCount int
}

// StatusListener receives status transitions. Implementations must be
// comparable (typically pointers) so they can be unsubscribed.
type StatusListener interface {
	OnServerStatusChanged(ev StatusEvent)
}

// notifier fans status events out to subscribers. Dispatch is
// synchronous; a panicking listener is recovered and logged so it
// cannot break the transition or starve other listeners.
type notifier struct {
	mu   sync.Mutex
	subs map[StatusListener]struct{}
	log  logging.Logger
}

func newNotifier(log logging.Logger) *notifier {
	return &notifier{
		subs: make(map[StatusListener]struct{}),
		log:  log,
	}
}

func (n *notifier) subscribe(l StatusListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[l] = struct{}{}
}

func (n *notifier) unsubscribe(l StatusListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, l)
}

func (n *notifier) dispatch(ev StatusEvent) {
	// Iterate over a defensive copy so listeners may subscribe or
	// unsubscribe from within their callback.
	n.mu.Lock()
	listeners := make([]StatusListener, 0, len(n.subs))
	for l := range n.subs {
		listeners = append(listeners, l)
	}
	n.mu.Unlock()

	for _, l := range listeners {
		n.notifyOne(l, ev)
	}
}

func (n *notifier) notifyOne(l StatusListener, ev StatusEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("status listener panicked",
				"server", ev.Key.String(),
				"status", string(ev.Status),
				"panic", r,
			)
		}
	}()
	l.OnServerStatusChanged(ev)
}
