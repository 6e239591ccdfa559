package realtime

import (
	"fmt"
	"sync"
)

// Event is what travels over the bus: a pre-marshaled client frame plus the
// routing metadata sessions need for de-duplication and delivery tracking.
type Event struct {
	Frame          string // outbound frame type ("message", "typing", ...)
	ConversationID int64
	MessageID      int64
	SenderID       int64
	Payload        []byte
}

// ConvGroup names the broadcast group of a conversation's active viewers.
func ConvGroup(conversationID int64) string { return fmt.Sprintf("conv:%d", conversationID) }

// UserGroup names a member's personal inbox group. Every live connection of
// the user subscribes to it, so members who never joined a conversation view
// still receive its messages.
func UserGroup(userID int64) string { return fmt.Sprintf("user:%d", userID) }

// Bus is a group-based publish/subscribe fabric for live connections.
// Publish is fire-and-forget: a subscriber whose queue is full simply misses
// the event. Reliability is layered on at the gateway via watermarks and
// connection-local de-duplication, not here.
//
// Membership changes take effect for events published afterwards; there is
// no buffering for events published before a subscribe.
type Bus struct {
	mu     sync.RWMutex
	groups map[string]map[string]chan<- Event // group -> sessionID -> queue
	bySess map[string]map[string]struct{}     // sessionID -> groups joined
}

func NewBus() *Bus {
	return &Bus{
		groups: make(map[string]map[string]chan<- Event),
		bySess: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds the session's queue to the group. Idempotent.
func (b *Bus) Subscribe(group, sessionID string, queue chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members := b.groups[group]
	if members == nil {
		members = make(map[string]chan<- Event)
		b.groups[group] = members
	}
	members[sessionID] = queue

	joined := b.bySess[sessionID]
	if joined == nil {
		joined = make(map[string]struct{})
		b.bySess[sessionID] = joined
	}
	joined[group] = struct{}{}
}

// Unsubscribe removes the session from the group. No-op if not subscribed.
func (b *Bus) Unsubscribe(group, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(group, sessionID)
}

// UnsubscribeAll detaches the session from every group it joined.
// Called on disconnect; in-flight store mutations are unaffected.
func (b *Bus) UnsubscribeAll(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for group := range b.bySess[sessionID] {
		b.unsubscribeLocked(group, sessionID)
	}
}

func (b *Bus) unsubscribeLocked(group, sessionID string) {
	members := b.groups[group]
	if members == nil {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(b.groups, group)
	}
	if joined, ok := b.bySess[sessionID]; ok {
		delete(joined, group)
		if len(joined) == 0 {
			delete(b.bySess, sessionID)
		}
	}
}

// Publish delivers the event to every subscriber of the group without
// blocking. Returns the number of queues the event was handed to.
func (b *Bus) Publish(group string, ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, queue := range b.groups[group] {
		select {
		case queue <- ev:
			delivered++
		default:
			// slow subscriber; drop rather than stall the publisher
		}
	}
	return delivered
}
