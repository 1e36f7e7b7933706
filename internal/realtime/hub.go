package realtime

import (
	"sync"

	"github.com/mindline/platform/pkg/logging"
)

// Sender is one live client connection. Send must not block; it reports
// whether the frame was queued.
type Sender interface {
	Send(data []byte) bool
}

// Hub routes events to identity channels (user:<id>, doctor:<id>,
// room:<id>). An identity may have several simultaneous connections (tabs);
// all of them receive emitted events. Delivery is best-effort: emitting to
// an identity nobody has joined is a silent no-op.
//
// The hub is the process-wide dispatch table. It is constructed once and
// passed to every component that emits; nothing reaches it through a global.
type Hub struct {
	mu         sync.RWMutex
	identities map[string]map[Sender]struct{}
	members    map[Sender]map[string]struct{}
	logger     *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		identities: make(map[string]map[Sender]struct{}),
		members:    make(map[Sender]map[string]struct{}),
		logger:     logger,
	}
}

// Join registers a connection under an identity channel.
func (h *Hub) Join(identity string, c Sender) {
	if identity == "" || c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.identities[identity] == nil {
		h.identities[identity] = make(map[Sender]struct{})
	}
	h.identities[identity][c] = struct{}{}

	if h.members[c] == nil {
		h.members[c] = make(map[string]struct{})
	}
	h.members[c][identity] = struct{}{}
}

// Leave removes the connection from every identity it joined. Callers do
// not need to know which identities those were.
func (h *Hub) Leave(c Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for identity := range h.members[c] {
		delete(h.identities[identity], c)
		if len(h.identities[identity]) == 0 {
			delete(h.identities, identity)
		}
	}
	delete(h.members, c)
}

// Identities returns the channels the connection is currently joined to.
func (h *Hub) Identities(c Sender) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.members[c]))
	for identity := range h.members[c] {
		out = append(out, identity)
	}
	return out
}

// Emit delivers the event to every connection joined to the identity.
func (h *Hub) Emit(identity string, evt Event) {
	h.emit(identity, nil, evt)
}

// EmitExcept delivers the event to every connection on the identity except
// the sender. Used by the room relay so a peer never echoes to itself.
func (h *Hub) EmitExcept(identity string, except Sender, evt Event) {
	h.emit(identity, except, evt)
}

func (h *Hub) emit(identity string, except Sender, evt Event) {
	data, err := evt.Encode()
	if err != nil {
		h.logger.Error("hub: failed to encode event", "error", err, "event", evt.Name)
		return
	}

	h.mu.RLock()
	conns := make([]Sender, 0, len(h.identities[identity]))
	for c := range h.identities[identity] {
		if c == except {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !c.Send(data) {
			h.logger.Warn("hub: dropped event for slow connection", "event", evt.Name, "identity", identity)
		}
	}
}

// Broadcast delivers the event to every connected client. Used for
// platform-wide emergency alerts.
func (h *Hub) Broadcast(evt Event) {
	data, err := evt.Encode()
	if err != nil {
		h.logger.Error("hub: failed to encode broadcast", "error", err, "event", evt.Name)
		return
	}

	h.mu.RLock()
	conns := make([]Sender, 0, len(h.members))
	for c := range h.members {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !c.Send(data) {
			h.logger.Warn("hub: dropped broadcast for slow connection", "event", evt.Name)
		}
	}
}
