package domain

import "time"

// LifecycleState tracks an agent through its observed lifetime. Transitions
// are monotonic: spawned -> running -> {completed, failed}; orphaned marks an
// agent whose lifecycle evidence was incomplete (a stop with no prior start,
// or a start that went silent past the grace period).
type LifecycleState string

const (
	StateSpawned   LifecycleState = "spawned"
	StateRunning   LifecycleState = "running"
	StateCompleted LifecycleState = "completed"
	StateFailed    LifecycleState = "failed"
	StateOrphaned  LifecycleState = "orphaned"
)

// Terminal reports whether no further lifecycle transitions are allowed.
func (s LifecycleState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateOrphaned:
		return true
	}
	return false
}

// AgentCard is the derived, per-agent status projection. Cards are recomputed
// from the event log and never independently mutated; the store hands out
// copies only.
type AgentCard struct {
	AgentID   string         `json:"agent_id,omitempty"`
	AgentType string         `json:"agent_type,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	State     LifecycleState `json:"lifecycle_state"`

	// Phase progress, last observed from the progress log.
	Phase        int    `json:"current_phase,omitempty"`
	TotalPhases  int    `json:"total_phases,omitempty"`
	CurrentPhase string `json:"phase_name,omitempty"`

	// TaskSummary is what the agent was delegated to do.
	TaskSummary string `json:"task_summary,omitempty"`
	// LastMessage is the most recent progress or error line.
	LastMessage string `json:"last_message,omitempty"`

	Labels map[string]string `json:"labels,omitempty"`

	StartedAt  time.Time `json:"started_at,omitzero"`
	StoppedAt  time.Time `json:"stopped_at,omitzero"`
	LastUpdate time.Time `json:"last_update,omitzero"`
}

// DelegationNode is one node in the derived delegation forest. Parent is
// taken from the most recent delegation interaction naming this node as
// target; a node with no recorded delegation is a root.
type DelegationNode struct {
	Key      string   `json:"key"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`
}

// DelegationLink is one edge of the delegation chain, in the order the
// delegations were recorded.
type DelegationLink struct {
	Parent    string    `json:"parent"`
	Child     string    `json:"child"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PipelineSnapshot is a consistent point-in-time view of everything the
// store has derived: status cards, the delegation forest, the interaction
// timeline, and a tail of the raw log.
type PipelineSnapshot struct {
	Agents          map[string]AgentCard      `json:"agents"`
	Hierarchy       map[string]DelegationNode `json:"hierarchy"`
	Interactions    []Event                   `json:"interactions"`
	DelegationChain []DelegationLink          `json:"delegation_chain"`
	EventCount      int                       `json:"event_count"`
	RecentEvents    []Event                   `json:"recent_events"`
}

// Roots returns the keys of delegation nodes with no recorded parent.
// Order is unspecified; callers needing stable output should sort.
func (s PipelineSnapshot) Roots() []string {
	var roots []string
	for key, node := range s.Hierarchy {
		if node.Parent == "" {
			roots = append(roots, key)
		}
	}
	return roots
}
