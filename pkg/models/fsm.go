package models

import "fmt"

// validTransitions maps a build chroot state to the states the backend may move it to
var validTransitions = map[BuildStatus]map[BuildStatus]bool{
	StatusImporting: {
		StatusPending:  true, // dist-git import finished
		StatusFailed:   true, // import failed
		StatusCanceled: true,
	},
	StatusPending: {
		StatusStarting:  true, // backend picked the task
		StatusRunning:   true,
		StatusFailed:    true,
		StatusSucceeded: true, // backend reports a finished task in one update
		StatusSkipped:   true, // package already built in this chroot
		StatusCanceled:  true,
	},
	StatusStarting: {
		StatusRunning:  true,
		StatusPending:  true, // worker vanished before the build started
		StatusFailed:   true,
		StatusCanceled: true,
	},
	StatusRunning: {
		StatusSucceeded: true,
		StatusFailed:    true,
		StatusCanceled:  true,
		StatusPending:   true, // timed out task handed out again
	},
	// Terminal states
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCanceled:  {},
	StatusSkipped:   {},
	StatusForked:    {},
}

// ValidateTransition checks if a build chroot may move from one state to another.
// Re-reporting the current state is always accepted.
func ValidateTransition(from, to BuildStatus) error {
	if from == to {
		return nil
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsFinished returns true for states the backend never changes again
func IsFinished(s BuildStatus) bool {
	switch s {
	case StatusFailed, StatusSucceeded, StatusCanceled, StatusSkipped, StatusForked:
		return true
	}
	return false
}

// IsActive returns true if a worker may currently be processing the chroot
func IsActive(s BuildStatus) bool {
	return s == StatusStarting || s == StatusRunning
}
