package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	model "github.com/parkpal/tagchat/backend/internal/model/chat"
)

// collector receives fan-out deliveries on a channel so tests can wait with
// a deadline instead of sleeping.
type collector struct {
	ch chan []model.Message
}

func newCollector() *collector {
	return &collector{ch: make(chan []model.Message, 16)}
}

func (c *collector) onMessages(msgs []model.Message) {
	c.ch <- msgs
}

// next waits for a delivery whose last message text matches want, tolerating
// coalesced intermediate states.
func (c *collector) waitFor(t *testing.T, match func([]model.Message) bool) []model.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msgs := <-c.ch:
			if match(msgs) {
				return msgs
			}
		case <-deadline:
			t.Fatal("timed out waiting for fan-out delivery")
			return nil
		}
	}
}

func TestSubscribeDeliversInitialState(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	session, _ := svc.GetOrCreateSession(ctx, "veh-1")
	if _, err := svc.Append(ctx, session.ID, model.SenderOwner, "already here"); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	col := newCollector()
	cancel, err := svc.Subscribe(session.ID, col.onMessages)
	if err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}
	defer cancel()

	msgs := col.waitFor(t, func(m []model.Message) bool { return len(m) == 1 })
	if msgs[0].Text != "already here" {
		t.Fatalf("unexpected initial snapshot: %+v", msgs)
	}
}

func TestSubscribeDeliversFullListPerAppend(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	session, _ := svc.GetOrCreateSession(ctx, "veh-1")

	col := newCollector()
	cancel, err := svc.Subscribe(session.ID, col.onMessages)
	if err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}
	defer cancel()

	if _, err := svc.Append(ctx, session.ID, model.SenderOwner, "first"); err != nil {
		t.Fatalf("Append err: %v", err)
	}
	if _, err := svc.Append(ctx, session.ID, model.SenderOwner, "second"); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	// Deliveries are full state; the final one carries both in append order.
	msgs := col.waitFor(t, func(m []model.Message) bool { return len(m) == 2 })
	if msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Fatalf("unexpected ordering: %+v", msgs)
	}
}

func TestMultipleSubscribersReceiveIndependently(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	session, _ := svc.GetOrCreateSession(ctx, "veh-1")

	owner := newCollector()
	scanner := newCollector()
	cancelOwner, err := svc.Subscribe(session.ID, owner.onMessages)
	if err != nil {
		t.Fatalf("Subscribe owner err: %v", err)
	}
	defer cancelOwner()
	cancelScanner, err := svc.Subscribe(session.ID, scanner.onMessages)
	if err != nil {
		t.Fatalf("Subscribe scanner err: %v", err)
	}
	defer cancelScanner()

	if _, err := svc.Append(ctx, session.ID, model.SenderOwner, "hello both"); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	for _, col := range []*collector{owner, scanner} {
		msgs := col.waitFor(t, func(m []model.Message) bool { return len(m) == 1 })
		if msgs[0].Text != "hello both" {
			t.Fatalf("unexpected delivery: %+v", msgs)
		}
	}
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	session, _ := svc.GetOrCreateSession(ctx, "veh-1")

	col := newCollector()
	cancel, err := svc.Subscribe(session.ID, col.onMessages)
	if err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}
	col.waitFor(t, func(m []model.Message) bool { return len(m) == 0 })

	cancel()
	cancel() // safe to call repeatedly

	if _, err := svc.Append(ctx, session.ID, model.SenderOwner, "into the void"); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	select {
	case msgs := <-col.ch:
		if len(msgs) > 0 {
			t.Fatalf("delivery after unsubscribe: %+v", msgs)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionEndDetachesSubscribers(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	session, _ := svc.GetOrCreateSession(ctx, "veh-1")
	if _, err := svc.Append(ctx, session.ID, model.SenderOwner, "soon gone"); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	col := newCollector()
	cancel, err := svc.Subscribe(session.ID, col.onMessages)
	if err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}
	defer cancel()
	col.waitFor(t, func(m []model.Message) bool { return len(m) == 1 })

	if err := svc.EndSession(ctx, "veh-1", session.ID); err != nil {
		t.Fatalf("EndSession err: %v", err)
	}

	// The purge is delivered as a final empty state.
	col.waitFor(t, func(m []model.Message) bool { return len(m) == 0 })
}

func TestConcurrentAppendsNeverRegressSnapshots(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	session, _ := svc.GetOrCreateSession(ctx, "veh-1")
	_ = svc.SetScannerLabel(ctx, "veh-1", "Sam")

	col := newCollector()
	cancel, err := svc.Subscribe(session.ID, col.onMessages)
	if err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}
	defer cancel()

	const writers = 4
	const perWriter = 20
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			sender := model.SenderOwner
			if w%2 == 1 {
				sender = model.SenderScanner
			}
			for i := 0; i < perWriter; i++ {
				if _, err := svc.Append(ctx, session.ID, sender, "ping"); err != nil {
					t.Errorf("writer %d append %d: %v", w, i, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// Snapshots enter the mailbox in append order and coalescing only drops
	// older ones, so observed sizes never shrink and the last delivery must
	// hold the complete log.
	prev := -1
	col.waitFor(t, func(m []model.Message) bool {
		if len(m) < prev {
			t.Fatalf("snapshot regressed from %d to %d messages", prev, len(m))
		}
		prev = len(m)
		return len(m) == writers*perWriter
	})
}

func TestSubscribeRacingAppendOpensCurrent(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		session, err := svc.GetOrCreateSession(ctx, "veh-race")
		if err != nil {
			t.Fatalf("GetOrCreateSession err: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Append(ctx, session.ID, model.SenderOwner, "racing"); err != nil {
				t.Errorf("Append err: %v", err)
			}
		}()

		col := newCollector()
		cancel, err := svc.Subscribe(session.ID, col.onMessages)
		if err != nil {
			t.Fatalf("Subscribe err: %v", err)
		}
		wg.Wait()

		// Whichever side wins the race, the subscriber either opened with
		// the message in its snapshot or receives the publish that follows;
		// it must never need a later append to catch up.
		col.waitFor(t, func(m []model.Message) bool { return len(m) == 1 })
		cancel()

		if err := svc.EndSession(ctx, "veh-race", session.ID); err != nil {
			t.Fatalf("EndSession err: %v", err)
		}
	}
}

func TestSubscribeToDeadSessionFails(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if _, err := svc.Subscribe("chat_nope_0_00000000", func([]model.Message) {}); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}
