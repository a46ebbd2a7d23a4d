package events

import (
	"fmt"

	"github.com/filmclub/cinema-service/internal/types"
)

// Publisher interface for publishing schedule events
type Publisher interface {
	PublishEventScheduled(ev types.Event) error
}

// Broadcaster is the subset of the room hub the publisher needs.
type Broadcaster interface {
	Announce(text string)
}

// EventPublisher implements the Publisher interface over the room hub.
type EventPublisher struct {
	hub Broadcaster
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(hub Broadcaster) *EventPublisher {
	return &EventPublisher{
		hub: hub,
	}
}

// PublishEventScheduled announces a newly scheduled screening to everyone
// currently connected to a room.
func (p *EventPublisher) PublishEventScheduled(ev types.Event) error {
	text := fmt.Sprintf("New screening scheduled: %s (%s)", ev.Title, ev.StartsAt.Format("Jan 2 15:04 MST"))
	p.hub.Announce(text)
	return nil
}
