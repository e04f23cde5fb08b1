package eventstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"chronoscope/internal/core/domain"
)

// capturePublisher records published events in order.
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturePublisher) Publish(ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *capturePublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.ID
	}
	return out
}

func startEvent(agent string) domain.Event {
	return domain.Event{Type: domain.EventAgentStart, SessionID: "s1", AgentID: agent, AgentType: "researcher"}
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	now := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)
	store := New(WithClock(func() time.Time { return now }))

	id, err := store.Append(startEvent("A"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if id == "" {
		t.Fatal("Append did not assign an event ID")
	}

	events := store.EventsFor("A", "", 0)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].ID != id {
		t.Errorf("stored ID = %q, want %q", events[0].ID, id)
	}
	if !events[0].Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", events[0].Timestamp, now)
	}
}

func TestAppendRejectsMalformedEvent(t *testing.T) {
	store := New()

	_, err := store.Append(domain.Event{Type: "nonsense"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !domain.IsValidation(err) {
		t.Errorf("expected ValidationError, got %T", err)
	}
	if store.Len() != 0 {
		t.Error("rejected event must not be stored")
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	store := New()

	ev := startEvent("A")
	ev.Nonce = "retry-token-1"

	first, err := store.Append(ev)
	if err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	second, err := store.Append(ev)
	if err != nil {
		t.Fatalf("retried append failed: %v", err)
	}

	if first != second {
		t.Errorf("retry returned %q, want original id %q", second, first)
	}
	if store.Len() != 1 {
		t.Errorf("store size = %d after retry, want 1", store.Len())
	}
}

func TestOrderingPreservation(t *testing.T) {
	pub := &capturePublisher{}
	store := New(WithPublisher(pub))

	var ids []string
	for i := 0; i < 10; i++ {
		ev := startEvent("A")
		ev.Message = fmt.Sprintf("event %d", i)
		id, err := store.Append(ev)
		if err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	events := store.EventsFor("A", "", len(ids))
	for i, ev := range events {
		if ev.ID != ids[i] {
			t.Fatalf("EventsFor order mismatch at %d: %q != %q", i, ev.ID, ids[i])
		}
	}

	published := pub.ids()
	if len(published) != len(ids) {
		t.Fatalf("published %d events, want %d", len(published), len(ids))
	}
	for i := range ids {
		if published[i] != ids[i] {
			t.Fatalf("publish order mismatch at %d", i)
		}
	}
}

func TestConcurrentAppendsAllLand(t *testing.T) {
	store := New()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ev := startEvent(fmt.Sprintf("agent-%d", p))
				ev.Message = fmt.Sprintf("%d/%d", p, i)
				if _, err := store.Append(ev); err != nil {
					t.Errorf("append failed: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	if store.Len() != producers*perProducer {
		t.Errorf("store size = %d, want %d", store.Len(), producers*perProducer)
	}
}

func TestEventsForFiltersAndLimits(t *testing.T) {
	store := New()

	for i := 0; i < 5; i++ {
		ev := startEvent("A")
		ev.Message = fmt.Sprintf("a%d", i)
		if i%2 == 0 {
			ev.Labels = map[string]string{"feature": "auth"}
		}
		if _, err := store.Append(ev); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Append(startEvent("B")); err != nil {
		t.Fatal(err)
	}

	if got := len(store.EventsFor("A", "", 100)); got != 5 {
		t.Errorf("unfiltered count = %d, want 5", got)
	}
	if got := len(store.EventsFor("A", "feature=auth", 100)); got != 3 {
		t.Errorf("label-filtered count = %d, want 3", got)
	}
	if got := len(store.EventsFor("A", "feature", 100)); got != 3 {
		t.Errorf("label-exists count = %d, want 3", got)
	}

	limited := store.EventsFor("A", "", 2)
	if len(limited) != 2 {
		t.Fatalf("limited count = %d, want 2", len(limited))
	}
	if limited[1].Message != "a4" {
		t.Errorf("limit should keep the most recent events, got %q", limited[1].Message)
	}

	if got := store.EventsFor("nobody", "", 10); len(got) != 0 {
		t.Errorf("unknown agent should yield empty result, got %d events", len(got))
	}
}

func TestLogCapacityEviction(t *testing.T) {
	store := New(WithMaxEvents(3))

	for i := 0; i < 5; i++ {
		ev := startEvent("A")
		ev.Message = fmt.Sprintf("event %d", i)
		if _, err := store.Append(ev); err != nil {
			t.Fatal(err)
		}
	}

	if store.Len() != 3 {
		t.Errorf("store size = %d, want capacity 3", store.Len())
	}
	events := store.EventsFor("A", "", 10)
	if events[0].Message != "event 2" {
		t.Errorf("oldest survivor = %q, want event 2", events[0].Message)
	}
}

func TestLifecycleScenario(t *testing.T) {
	store := New()

	if _, err := store.Append(startEvent("A")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(domain.Event{
		Type:        domain.EventInteraction,
		Interaction: domain.InteractionDelegation,
		Source:      domain.ParticipantMainAgent,
		Target:      "A",
		Summary:     "investigate X",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(domain.Event{Type: domain.EventAgentStop, SessionID: "s1", AgentID: "A"}); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()

	card, ok := snap.Agents["A"]
	if !ok {
		t.Fatal("no card for A")
	}
	if card.State != domain.StateCompleted {
		t.Errorf("A state = %s, want completed", card.State)
	}
	if card.TaskSummary != "investigate X" {
		t.Errorf("A task summary = %q", card.TaskSummary)
	}

	if snap.Hierarchy["A"].Parent != domain.ParticipantMainAgent {
		t.Errorf("A parent = %q, want main_agent", snap.Hierarchy["A"].Parent)
	}

	if len(snap.Interactions) != 1 {
		t.Errorf("timeline has %d interactions, want 1", len(snap.Interactions))
	}
	if snap.EventCount != 3 {
		t.Errorf("event count = %d, want 3", snap.EventCount)
	}

	raw := store.EventsFor("A", "", 10)
	if len(raw) != 2 {
		t.Errorf("raw events for A = %d, want 2 (start, stop)", len(raw))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	store := New()
	if _, err := store.Append(startEvent("A")); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	card := snap.Agents["A"]
	card.State = domain.StateFailed
	snap.Agents["A"] = card
	snap.RecentEvents[0].Message = "mutated"

	fresh := store.Snapshot()
	if fresh.Agents["A"].State != domain.StateRunning {
		t.Error("mutating a snapshot card leaked into the store")
	}
	if fresh.RecentEvents[0].Message == "mutated" {
		t.Error("mutating snapshot events leaked into the store")
	}
}

func TestSweepOrphans(t *testing.T) {
	now := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)
	current := now
	store := New(WithClock(func() time.Time { return current }))

	if _, err := store.Append(startEvent("A")); err != nil {
		t.Fatal(err)
	}

	current = now.Add(time.Hour)
	if swept := store.SweepOrphans(15 * time.Minute); swept != 1 {
		t.Fatalf("swept %d agents, want 1", swept)
	}

	card, _ := store.Card("A")
	if card.State != domain.StateOrphaned {
		t.Errorf("A state = %s, want orphaned", card.State)
	}
}
