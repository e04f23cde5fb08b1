// Package derive computes the agent status cards and delegation forest from
// the event log. Application is incremental: each event touches only the
// cards and nodes it names, keeping append O(1) in the log size. The package
// does no locking and no I/O; the store calls it under its own lock.
package derive

import (
	"time"

	"chronoscope/internal/core/domain"
)

// State holds the derived views. Not safe for concurrent use; ownership
// belongs to the event store.
type State struct {
	cards map[string]*domain.AgentCard
	nodes map[string]*domain.DelegationNode
	chain []domain.DelegationLink

	// pending remembers delegation summaries whose target has not started
	// yet, so the card picks them up when the start arrives.
	pending map[string]string
}

// NewState returns an empty derived-state accumulator.
func NewState() *State {
	return &State{
		cards:   make(map[string]*domain.AgentCard),
		nodes:   make(map[string]*domain.DelegationNode),
		pending: make(map[string]string),
	}
}

// Apply folds one event into the derived views.
func (s *State) Apply(ev domain.Event) {
	switch ev.Type {
	case domain.EventAgentStart:
		s.applyStart(ev)
	case domain.EventAgentStop:
		s.applyStop(ev)
	case domain.EventPhaseTransition:
		s.applyPhase(ev)
	case domain.EventError:
		s.applyError(ev)
	case domain.EventInteraction:
		if ev.Interaction == domain.InteractionDelegation {
			s.applyDelegation(ev)
		}
	case domain.EventToolUse:
		s.touch(ev)
	}
}

func (s *State) applyStart(ev domain.Event) {
	key := ev.AgentKey()
	card := s.cards[key]
	if card == nil {
		card = &domain.AgentCard{State: domain.StateSpawned}
		s.cards[key] = card
	}
	card.AgentID = ev.AgentID
	card.AgentType = ev.AgentType
	if ev.SessionID != "" {
		card.SessionID = ev.SessionID
	}
	// A spawned card advances to running immediately: by the time the start
	// hook fires the process is already executing.
	if !card.State.Terminal() {
		card.State = domain.StateRunning
	}
	card.StartedAt = ev.Timestamp
	card.LastUpdate = ev.Timestamp
	mergeLabels(card, ev.Labels)

	if summary, ok := s.pending[key]; ok {
		if card.TaskSummary == "" {
			card.TaskSummary = summary
		}
		delete(s.pending, key)
	}
}

func (s *State) applyStop(ev domain.Event) {
	key := ev.AgentKey()
	card, ok := s.cards[key]
	if !ok {
		// A stop with no recorded start: surface the agent as orphaned
		// rather than synthesizing a start that never happened.
		s.cards[key] = &domain.AgentCard{
			AgentID:    ev.AgentID,
			AgentType:  ev.AgentType,
			SessionID:  ev.SessionID,
			State:      domain.StateOrphaned,
			StoppedAt:  ev.Timestamp,
			LastUpdate: ev.Timestamp,
		}
		return
	}
	if !card.State.Terminal() {
		card.State = domain.StateCompleted
	}
	card.StoppedAt = ev.Timestamp
	card.LastUpdate = ev.Timestamp
	if ev.Message != "" {
		card.LastMessage = ev.Message
	}
}

func (s *State) applyPhase(ev domain.Event) {
	key := ev.AgentKey()
	card, ok := s.cards[key]
	if !ok {
		// The lifecycle hook for this agent may not have fired yet. Create a
		// placeholder running card so the phase line is never dropped.
		card = &domain.AgentCard{
			AgentID:   ev.AgentID,
			AgentType: ev.AgentType,
			SessionID: ev.SessionID,
			State:     domain.StateRunning,
		}
		s.cards[key] = card
	}
	card.Phase = ev.Phase
	card.TotalPhases = ev.TotalPhases
	card.CurrentPhase = ev.PhaseName
	if ev.Message != "" {
		card.LastMessage = ev.Message
	}
	card.LastUpdate = ev.Timestamp
	mergeLabels(card, ev.Labels)
}

func (s *State) applyError(ev domain.Event) {
	key := ev.AgentKey()
	card, ok := s.cards[key]
	if !ok {
		card = &domain.AgentCard{
			AgentID:   ev.AgentID,
			AgentType: ev.AgentType,
			SessionID: ev.SessionID,
		}
		s.cards[key] = card
	}
	card.State = domain.StateFailed
	if ev.Message != "" {
		card.LastMessage = ev.Message
	}
	card.LastUpdate = ev.Timestamp
}

func (s *State) applyDelegation(ev domain.Event) {
	source, target := ev.Source, ev.Target

	parent := s.node(source)
	child := s.node(target)

	// The most recent delegation wins: a re-target moves the child under its
	// new caller instead of flagging a contradiction.
	if child.Parent != "" && child.Parent != source {
		if old, ok := s.nodes[child.Parent]; ok {
			old.Children = remove(old.Children, target)
		}
	}
	child.Parent = source
	if !contains(parent.Children, target) {
		parent.Children = append(parent.Children, target)
	}

	s.chain = append(s.chain, domain.DelegationLink{
		Parent:    source,
		Child:     target,
		Reason:    ev.Summary,
		Timestamp: ev.Timestamp,
	})

	if card, ok := s.cards[target]; ok {
		if card.TaskSummary == "" {
			card.TaskSummary = ev.Summary
		}
		card.LastUpdate = ev.Timestamp
	} else {
		s.pending[target] = ev.Summary
	}
}

func (s *State) touch(ev domain.Event) {
	if card, ok := s.cards[ev.AgentKey()]; ok {
		card.LastUpdate = ev.Timestamp
	}
}

func (s *State) node(key string) *domain.DelegationNode {
	n, ok := s.nodes[key]
	if !ok {
		n = &domain.DelegationNode{Key: key}
		s.nodes[key] = n
	}
	return n
}

// MarkStale transitions non-terminal cards that have gone quiet past the
// grace period to orphaned, returning the affected keys. A start hook whose
// matching stop never arrives is surfaced this way instead of being dropped.
func (s *State) MarkStale(now time.Time, grace time.Duration) []string {
	if grace <= 0 {
		return nil
	}
	var stale []string
	for key, card := range s.cards {
		if card.State.Terminal() {
			continue
		}
		if card.LastUpdate.IsZero() || now.Sub(card.LastUpdate) < grace {
			continue
		}
		card.State = domain.StateOrphaned
		stale = append(stale, key)
	}
	return stale
}

// Cards returns a deep copy of every status card.
func (s *State) Cards() map[string]domain.AgentCard {
	out := make(map[string]domain.AgentCard, len(s.cards))
	for key, card := range s.cards {
		c := *card
		c.Labels = copyLabels(card.Labels)
		out[key] = c
	}
	return out
}

// Card returns a copy of one card by agent key.
func (s *State) Card(key string) (domain.AgentCard, bool) {
	card, ok := s.cards[key]
	if !ok {
		return domain.AgentCard{}, false
	}
	c := *card
	c.Labels = copyLabels(card.Labels)
	return c, true
}

// Forest returns a deep copy of the delegation forest.
func (s *State) Forest() map[string]domain.DelegationNode {
	out := make(map[string]domain.DelegationNode, len(s.nodes))
	for key, node := range s.nodes {
		n := *node
		n.Children = append([]string(nil), node.Children...)
		out[key] = n
	}
	return out
}

// Chain returns a copy of the delegation links in recorded order.
func (s *State) Chain() []domain.DelegationLink {
	return append([]domain.DelegationLink(nil), s.chain...)
}

func mergeLabels(card *domain.AgentCard, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	if card.Labels == nil {
		card.Labels = make(map[string]string, len(labels))
	}
	for k, v := range labels {
		card.Labels[k] = v
	}
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
