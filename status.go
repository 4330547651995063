package loom

// Status is the lifecycle state of a session.
//
//	ideas → todo ─────────────────→ doing ──→ review ──→ accepted
//	                ↑                  │                 └→ rejected
//	                └── need_clarification ←┘
type Status string

const (
	StatusIdeas             Status = "ideas"
	StatusTodo              Status = "todo"
	StatusDoing             Status = "doing"
	StatusReview            Status = "review"
	StatusNeedClarification Status = "need_clarification"
	StatusAccepted          Status = "accepted"
	StatusRejected          Status = "rejected"
)

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusIdeas, StatusTodo, StatusDoing, StatusReview,
		StatusNeedClarification, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// transitions is the complete set of legal status transitions. Any request
// outside this table is refused with an IllegalTransitionError before any
// mutation takes place.
var transitions = map[Status][]Status{
	StatusIdeas:             {StatusTodo},
	StatusTodo:              {StatusDoing},
	StatusDoing:             {StatusReview, StatusNeedClarification},
	StatusNeedClarification: {StatusTodo, StatusDoing},
	StatusReview:            {StatusAccepted, StatusRejected},
}

// CanTransition reports whether the transition from one status to another is
// permitted by the lifecycle state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an IllegalTransitionError if moving from one
// status to another is not permitted.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}
