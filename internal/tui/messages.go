package tui

// changedMsg is sent when the session reports a state change.
type changedMsg struct{}

// resultMsg carries the outcome of a lifecycle request.
type resultMsg struct {
	op  string
	err error
}

// clearErrorMsg hides the operation error shown by the resultMsg with the
// same sequence number.
type clearErrorMsg struct {
	seq int
}
