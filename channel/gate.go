package channel

import "gigflow/engagement"

// AccessFor derives the channel access state from the engagement status.
// Pure function: open only while work can still be exchanged; every closed
// engagement status forces read_only with a matching reason.
func AccessFor(status engagement.Status) (AccessState, string) {
	switch status {
	case engagement.StatusActive, engagement.StatusRevisionRequested:
		return AccessOpen, ""
	case engagement.StatusCompleted:
		return AccessReadOnly, CloseReasonCompleted
	case engagement.StatusRejected:
		return AccessReadOnly, CloseReasonRejected
	case engagement.StatusExhausted:
		return AccessReadOnly, CloseReasonExhausted
	case engagement.StatusDisputed:
		return AccessReadOnly, CloseReasonDisputed
	default:
		// pending: no channel exists yet, but a stray row stays locked.
		return AccessReadOnly, ""
	}
}

// CanWrite reports whether participants may post new messages.
func CanWrite(state AccessState) bool {
	return state == AccessOpen
}
