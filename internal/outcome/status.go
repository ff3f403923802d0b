package outcome

// Status is a progress notification emitted while an operation runs.
type Status struct {
	Op      string // "update" or "record"
	Stage   string // e.g. "download", "verify", "extract", "install"
	Message string
}

// Reporter receives status notifications. A nil Reporter discards them.
type Reporter func(Status)

// Report delivers a status to r if r is non-nil.
func (r Reporter) Report(op, stage, message string) {
	if r == nil {
		return
	}
	r(Status{Op: op, Stage: stage, Message: message})
}
