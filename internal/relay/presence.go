package relay

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// Presence announces identities entering and leaving the relay.
type Presence struct {
	registry *Registry
	log      *slog.Logger
}

// NewPresence returns a broadcaster reading recipients from registry.
func NewPresence(registry *Registry, log *slog.Logger) *Presence {
	return &Presence{registry: registry, log: log}
}

// AnnounceEnter sends USER_ENTER for id to every registered channel except origin.
func (p *Presence) AnnounceEnter(id string, origin Channel) int {
	return p.announce(TypeUserEnter, id, origin)
}

// AnnounceLeave sends USER_LEAVE for id to every registered channel except origin.
func (p *Presence) AnnounceLeave(id string, origin Channel) int {
	return p.announce(TypeUserLeave, id, origin)
}

// Join introduces a newly registered identity: ch is greeted with others,
// and others are told that id entered. others must be the snapshot returned by
// Registry.Register so that concurrent joins announce each pair exactly once.
func (p *Presence) Join(id string, ch Channel, others []Entry) int {
	p.Greet(id, ch, others)

	delivered := fanOut(p.log, others, encodePresence(TypeUserEnter, id))
	p.log.Debug("Presence announced", "mtype", TypeUserEnter, "id", id, "recipients", len(others), "delivered", delivered)
	return delivered
}

// Greet tells a freshly identified connection who is in roster, then
// confirms its own entry.
func (p *Presence) Greet(id string, ch Channel, roster []Entry) {
	for _, e := range roster {
		if e.Channel == ch {
			continue
		}
		if err := send(ch, encodePresence(TypeUserEnter, e.ID)); err != nil {
			p.log.Debug("Roster delivery failed", "to", id, "entry", e.ID, "error", err)
			return
		}
	}
	if err := send(ch, encodePresence(TypeUserEnter, id)); err != nil {
		p.log.Debug("Enter confirmation failed", "to", id, "error", err)
	}
}

func (p *Presence) announce(t MessageType, id string, origin Channel) int {
	payload := encodePresence(t, id)
	recipients := lo.Filter(p.registry.Snapshot(), func(e Entry, _ int) bool {
		return e.Channel != origin
	})

	delivered := fanOut(p.log, recipients, payload)
	p.log.Debug("Presence announced", "mtype", t, "id", id, "recipients", len(recipients), "delivered", delivered)
	return delivered
}

// fanOut sends payload to each entry and returns how many sends succeeded.
// A failing recipient never aborts the loop.
func fanOut(log *slog.Logger, recipients []Entry, payload []byte) int {
	delivered := 0
	for _, e := range recipients {
		if err := send(e.Channel, payload); err != nil {
			log.Debug("Delivery failed", "to", e.ID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// send delivers payload to one channel, converting a panic inside a broken
// transport into a DeliveryError.
func send(ch Channel, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during send: %v", ErrDelivery, r)
		}
	}()
	if err := ch.Send(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}
