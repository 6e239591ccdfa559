package realtime

import "testing"

func recv(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	default:
		t.Fatal("expected a buffered event")
		return Event{}
	}
}

func TestPublishReachesEveryGroupSubscriber(t *testing.T) {
	bus := NewBus()
	a := make(chan Event, 4)
	b := make(chan Event, 4)
	bus.Subscribe(ConvGroup(7), "sess-a", a)
	bus.Subscribe(ConvGroup(7), "sess-b", b)

	n := bus.Publish(ConvGroup(7), Event{Frame: "message", ConversationID: 7, MessageID: 1})
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	if ev := recv(t, a); ev.MessageID != 1 {
		t.Fatalf("sess-a got message id %d", ev.MessageID)
	}
	if ev := recv(t, b); ev.MessageID != 1 {
		t.Fatalf("sess-b got message id %d", ev.MessageID)
	}
}

func TestPublishSkipsOtherGroups(t *testing.T) {
	bus := NewBus()
	a := make(chan Event, 4)
	bus.Subscribe(ConvGroup(1), "sess-a", a)

	if n := bus.Publish(ConvGroup(2), Event{Frame: "message"}); n != 0 {
		t.Fatalf("delivered = %d, want 0", n)
	}
	if len(a) != 0 {
		t.Fatal("subscriber of conv:1 received conv:2 traffic")
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	bus := NewBus()
	full := make(chan Event, 1)
	full <- Event{Frame: "message", MessageID: 99}
	bus.Subscribe(UserGroup(3), "sess", full)

	if n := bus.Publish(UserGroup(3), Event{Frame: "message", MessageID: 100}); n != 0 {
		t.Fatalf("delivered = %d, want 0 for a full queue", n)
	}
	if ev := recv(t, full); ev.MessageID != 99 {
		t.Fatalf("queued event overwritten, got id %d", ev.MessageID)
	}
}

func TestUnsubscribeAllDetachesEveryGroup(t *testing.T) {
	bus := NewBus()
	ch := make(chan Event, 4)
	bus.Subscribe(ConvGroup(1), "sess", ch)
	bus.Subscribe(ConvGroup(2), "sess", ch)
	bus.Subscribe(UserGroup(9), "sess", ch)

	bus.UnsubscribeAll("sess")

	for _, group := range []string{ConvGroup(1), ConvGroup(2), UserGroup(9)} {
		if n := bus.Publish(group, Event{Frame: "message"}); n != 0 {
			t.Fatalf("group %s still delivered after UnsubscribeAll", group)
		}
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	ch := make(chan Event, 4)
	bus.Subscribe(ConvGroup(5), "sess", ch)
	bus.Subscribe(ConvGroup(5), "sess", ch)

	if n := bus.Publish(ConvGroup(5), Event{Frame: "message", MessageID: 1}); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	recv(t, ch)
	if len(ch) != 0 {
		t.Fatal("duplicate subscription delivered the event twice")
	}
}

func TestDedupeReportsRepeats(t *testing.T) {
	d := NewDedupe(3)
	if d.Seen(1) {
		t.Fatal("first sighting of 1 reported as repeat")
	}
	if !d.Seen(1) {
		t.Fatal("second sighting of 1 not reported")
	}
}

func TestDedupeEvictsOldestBeyondCapacity(t *testing.T) {
	d := NewDedupe(2)
	d.Seen(1)
	d.Seen(2)
	d.Seen(3) // evicts 1

	if d.Seen(1) {
		t.Fatal("evicted id still reported as seen")
	}
	if !d.Seen(3) {
		t.Fatal("retained id not reported as seen")
	}
}
