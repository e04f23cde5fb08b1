package derive

import (
	"testing"
	"time"

	"chronoscope/internal/core/domain"
)

func ts(sec int) time.Time {
	return time.Date(2026, 2, 9, 10, 0, sec, 0, time.UTC)
}

func start(agent string, at time.Time) domain.Event {
	return domain.Event{Type: domain.EventAgentStart, AgentID: agent, AgentType: "researcher", SessionID: "s1", Timestamp: at}
}

func stop(agent string, at time.Time) domain.Event {
	return domain.Event{Type: domain.EventAgentStop, AgentID: agent, AgentType: "researcher", SessionID: "s1", Timestamp: at}
}

func delegate(source, target, summary string, at time.Time) domain.Event {
	return domain.Event{
		Type:        domain.EventInteraction,
		Interaction: domain.InteractionDelegation,
		Source:      source,
		Target:      target,
		Summary:     summary,
		Timestamp:   at,
	}
}

func TestStartThenStop(t *testing.T) {
	s := NewState()
	s.Apply(start("A", ts(0)))

	card, ok := s.Card("A")
	if !ok {
		t.Fatal("card not created on start")
	}
	if card.State != domain.StateRunning {
		t.Errorf("state after start = %s, want running", card.State)
	}
	if card.AgentType != "researcher" {
		t.Errorf("agent type = %q, want researcher", card.AgentType)
	}

	s.Apply(stop("A", ts(5)))
	card, _ = s.Card("A")
	if card.State != domain.StateCompleted {
		t.Errorf("state after stop = %s, want completed", card.State)
	}
	if !card.StoppedAt.Equal(ts(5)) {
		t.Errorf("stopped at = %v, want %v", card.StoppedAt, ts(5))
	}
}

func TestStopWithoutStartIsOrphaned(t *testing.T) {
	s := NewState()
	s.Apply(stop("A", ts(0)))

	card, ok := s.Card("A")
	if !ok {
		t.Fatal("stop without start should still be recorded")
	}
	if card.State != domain.StateOrphaned {
		t.Errorf("state = %s, want orphaned", card.State)
	}
}

func TestErrorMarksFailed(t *testing.T) {
	s := NewState()
	s.Apply(start("A", ts(0)))
	s.Apply(domain.Event{Type: domain.EventError, AgentID: "A", Message: "exploded", Timestamp: ts(1)})

	card, _ := s.Card("A")
	if card.State != domain.StateFailed {
		t.Errorf("state = %s, want failed", card.State)
	}
	if card.LastMessage != "exploded" {
		t.Errorf("last message = %q", card.LastMessage)
	}

	// A late stop must not resurrect the failed card.
	s.Apply(stop("A", ts(2)))
	card, _ = s.Card("A")
	if card.State != domain.StateFailed {
		t.Errorf("state after late stop = %s, want failed", card.State)
	}
}

func TestPhaseCreatesPlaceholderCard(t *testing.T) {
	s := NewState()
	s.Apply(domain.Event{
		Type:        domain.EventPhaseTransition,
		AgentType:   "researcher",
		Phase:       2,
		TotalPhases: 6,
		PhaseName:   "discovery",
		Message:     "scanned 40 files",
		Timestamp:   ts(0),
	})

	card, ok := s.Card("researcher")
	if !ok {
		t.Fatal("phase line for unknown agent should create a placeholder card")
	}
	if card.State != domain.StateRunning {
		t.Errorf("placeholder state = %s, want running", card.State)
	}
	if card.CurrentPhase != "discovery" {
		t.Errorf("current phase = %q, want discovery", card.CurrentPhase)
	}
	if card.Phase != 2 || card.TotalPhases != 6 {
		t.Errorf("phase = %d/%d, want 2/6", card.Phase, card.TotalPhases)
	}
}

func TestDelegationHierarchy(t *testing.T) {
	s := NewState()
	s.Apply(delegate(domain.ParticipantUser, "A", "top-level ask", ts(0)))
	s.Apply(delegate("A", "B", "subtask one", ts(1)))
	s.Apply(delegate("A", "C", "subtask two", ts(2)))

	forest := s.Forest()
	if forest["A"].Parent != domain.ParticipantUser {
		t.Errorf("A parent = %q, want user", forest["A"].Parent)
	}
	if forest[domain.ParticipantUser].Parent != "" {
		t.Error("user should be a root")
	}
	children := forest["A"].Children
	if len(children) != 2 || children[0] != "B" || children[1] != "C" {
		t.Errorf("A children = %v, want [B C]", children)
	}
	if forest["B"].Parent != "A" || forest["C"].Parent != "A" {
		t.Error("B and C should hang under A")
	}

	chain := s.Chain()
	if len(chain) != 3 {
		t.Fatalf("chain length = %d, want 3", len(chain))
	}
	if chain[1].Parent != "A" || chain[1].Child != "B" || chain[1].Reason != "subtask one" {
		t.Errorf("unexpected chain entry: %+v", chain[1])
	}
}

func TestDelegationRetargetLastWins(t *testing.T) {
	s := NewState()
	s.Apply(delegate("A", "B", "first", ts(0)))
	s.Apply(delegate("C", "B", "second", ts(1)))

	forest := s.Forest()
	if forest["B"].Parent != "C" {
		t.Errorf("B parent = %q, want C (most recent delegation wins)", forest["B"].Parent)
	}
	for _, child := range forest["A"].Children {
		if child == "B" {
			t.Error("B should have been removed from A's children")
		}
	}
	if len(forest["C"].Children) != 1 || forest["C"].Children[0] != "B" {
		t.Errorf("C children = %v, want [B]", forest["C"].Children)
	}
}

func TestDelegationBeforeStartSetsTaskSummary(t *testing.T) {
	s := NewState()
	s.Apply(delegate(domain.ParticipantMainAgent, "A", "investigate X", ts(0)))
	s.Apply(start("A", ts(1)))

	card, _ := s.Card("A")
	if card.TaskSummary != "investigate X" {
		t.Errorf("task summary = %q, want the pending delegation summary", card.TaskSummary)
	}
}

func TestDelegationAfterStartSetsTaskSummary(t *testing.T) {
	s := NewState()
	s.Apply(start("A", ts(0)))
	s.Apply(delegate(domain.ParticipantMainAgent, "A", "investigate X", ts(1)))

	card, _ := s.Card("A")
	if card.TaskSummary != "investigate X" {
		t.Errorf("task summary = %q, want investigate X", card.TaskSummary)
	}
}

func TestNonDelegationInteractionsLeaveHierarchyAlone(t *testing.T) {
	s := NewState()
	s.Apply(domain.Event{
		Type:        domain.EventInteraction,
		Interaction: domain.InteractionQuery,
		Source:      domain.ParticipantUser,
		Target:      domain.ParticipantMainAgent,
		Timestamp:   ts(0),
	})

	if len(s.Forest()) != 0 {
		t.Error("query interactions must not create hierarchy nodes")
	}
	if len(s.Chain()) != 0 {
		t.Error("query interactions must not extend the delegation chain")
	}
}

func TestMarkStale(t *testing.T) {
	s := NewState()
	s.Apply(start("A", ts(0)))
	s.Apply(start("B", ts(0)))
	s.Apply(stop("B", ts(1)))

	stale := s.MarkStale(ts(0).Add(time.Hour), 15*time.Minute)
	if len(stale) != 1 || stale[0] != "A" {
		t.Fatalf("stale = %v, want [A]", stale)
	}

	card, _ := s.Card("A")
	if card.State != domain.StateOrphaned {
		t.Errorf("A state = %s, want orphaned", card.State)
	}
	card, _ = s.Card("B")
	if card.State != domain.StateCompleted {
		t.Errorf("B state = %s, want completed (terminal cards are never swept)", card.State)
	}

	// Zero grace disables the sweep.
	if got := s.MarkStale(ts(0).Add(24*time.Hour), 0); got != nil {
		t.Errorf("sweep with zero grace = %v, want nil", got)
	}
}

func TestCardsReturnsCopies(t *testing.T) {
	s := NewState()
	s.Apply(start("A", ts(0)))

	cards := s.Cards()
	card := cards["A"]
	card.State = domain.StateFailed
	cards["A"] = card

	fresh, _ := s.Card("A")
	if fresh.State != domain.StateRunning {
		t.Error("mutating a returned card must not affect internal state")
	}
}
