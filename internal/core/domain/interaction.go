package domain

// InteractionType classifies a directed exchange between two pipeline
// participants. The set is closed: adapters reject anything outside it.
type InteractionType string

const (
	// InteractionQuery is the user asking the main agent something.
	InteractionQuery InteractionType = "query"
	// InteractionDelegation is an agent handing work to a sub-agent. Only
	// delegations create edges in the hierarchy.
	InteractionDelegation InteractionType = "delegation"
	// InteractionResult is an agent returning findings to its caller.
	InteractionResult InteractionType = "result"
	// InteractionDecision is a routing decision made by the main agent.
	InteractionDecision InteractionType = "decision"
	// InteractionResponse is the main agent answering the user.
	InteractionResponse InteractionType = "response"
)

// ValidInteractionType reports whether t is in the closed interaction set.
func ValidInteractionType(t InteractionType) bool {
	switch t {
	case InteractionQuery, InteractionDelegation, InteractionResult, InteractionDecision, InteractionResponse:
		return true
	}
	return false
}

// Well-known participant names. Anything else is treated as a named agent.
const (
	ParticipantUser      = "user"
	ParticipantMainAgent = "main_agent"
)
