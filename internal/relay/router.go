package relay

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// Peer is the router's view of the connection a message came from.
type Peer interface {
	Identity() string
	Bind(id string)
	Channel() Channel
}

// Router decodes inbound payloads and dispatches them to the matching send
// pattern.
type Router struct {
	registry        *Registry
	presence        *Presence
	log             *slog.Logger
	evictSuperseded bool
}

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithEvictSuperseded makes INIT close the channel previously registered under
// the same identity instead of silently orphaning it.
func WithEvictSuperseded(evict bool) RouterOption {
	return func(r *Router) { r.evictSuperseded = evict }
}

// NewRouter builds a router over the shared registry and presence broadcaster.
func NewRouter(registry *Registry, presence *Presence, log *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{registry: registry, presence: presence, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route handles one raw payload from peer. Returned errors wrap ErrProtocol;
// delivery failures are logged and never returned.
func (r *Router) Route(peer Peer, raw []byte) error {
	msg, err := Decode(raw)
	if err != nil {
		return err
	}

	switch msg.Type {
	case TypeInit:
		r.handleInit(peer, msg.ID)
		return nil
	case TypeText, TypeDM:
		if peer.Identity() == "" {
			return ErrNotIdentified
		}
		if msg.Type == TypeText {
			r.handleText(peer, msg.To, msg.Text)
		} else {
			r.handleDirect(peer, msg.To, msg.Text)
		}
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownType, msg.Type)
	}
}

func (r *Router) handleInit(peer Peer, id string) {
	ch := peer.Channel()

	if old := peer.Identity(); old != "" && old != id {
		if r.registry.Unregister(old, ch) {
			r.presence.AnnounceLeave(old, ch)
		}
		r.log.Info("Connection re-identified", "from", old, "to", id)
	}

	peer.Bind(id)
	prev, replaced, others := r.registry.Register(id, ch)
	if replaced {
		r.log.Warn("Identity registered again; previous connection superseded", "id", id, "previous", prev.RemoteAddr())
		if r.evictSuperseded {
			if err := prev.Close(); err != nil {
				r.log.Debug("Closing superseded connection failed", "id", id, "error", err)
			}
		}
	}

	r.log.Info("User entered", "id", id, "online", r.registry.Len())
	r.presence.Join(id, ch, others)
}

// handleText delivers to one resolved recipient other than the sender, or
// broadcasts to everyone except the sender. A superseded connection still
// speaking for from must not reach the channel that now owns from.
func (r *Router) handleText(peer Peer, to, text string) {
	from := peer.Identity()
	payload := encodeChat(TypeMsg, from, text)

	if to != "" && to != from {
		if target, ok := r.registry.Lookup(to); ok {
			if err := send(target, payload); err != nil {
				r.log.Debug("Targeted message not delivered", "from", from, "to", to, "error", err)
			}
			return
		}
	}

	origin := peer.Channel()
	recipients := lo.Filter(r.registry.Snapshot(), func(e Entry, _ int) bool {
		return e.Channel != origin && e.ID != from
	})
	delivered := fanOut(r.log, recipients, payload)
	r.log.Debug("Broadcast message", "from", from, "recipients", len(recipients), "delivered", delivered)
}

// handleDirect delivers privately, echoing back to the sender when the
// recipient is not online.
func (r *Router) handleDirect(peer Peer, to, text string) {
	from := peer.Identity()
	payload := encodeChat(TypeDM, from, text)

	target, ok := Channel(nil), false
	if to != "" {
		target, ok = r.registry.Lookup(to)
	}
	if !ok {
		r.log.Debug("Direct message recipient not online; echoing to sender", "from", from, "to", to)
		target = peer.Channel()
	}

	if err := send(target, payload); err != nil {
		r.log.Debug("Direct message not delivered", "from", from, "to", to, "error", err)
	}
}
