package engagement

// edges enumerates the only legal status transitions. Anything not listed
// here must surface as ErrInvalidTransition, never reach the database.
var edges = map[Status][]Status{
	StatusPending:           {StatusActive, StatusRejected},
	StatusActive:            {StatusActive, StatusRevisionRequested, StatusCompleted, StatusRejected, StatusExhausted},
	StatusRevisionRequested: {StatusActive, StatusRejected, StatusExhausted},
	StatusExhausted:         {StatusDisputed},
}

// ValidTransition reports whether from -> to is an edge of the lifecycle
// graph. Self-transition on active covers submit while already active.
func ValidTransition(from, to Status) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}
