package app

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopSignal      StopReason = "signal"
	StopCompleted   StopReason = "completed"
	StopStartFailed StopReason = "start_failed"
)
