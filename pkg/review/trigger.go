// Package review decides when a project needs a deep quality review in
// addition to the quick check every session gets.
package review

// Deep review thresholds
const (
	// IntervalSessions triggers a deep review every Nth session
	IntervalSessions = 5

	// QualityFloor triggers a deep review when the last rating fell below it
	QualityFloor = 7

	// MaxGap triggers a deep review when this many sessions passed
	// without one
	MaxGap = 5
)

// Signal carries the facts the trigger decision is made from
type Signal struct {
	// SessionNumber is the 1-based number of the session that just ended
	SessionNumber int

	// LastQuality is the most recent quality rating, 0 when none exists
	LastQuality int

	// SessionsSinceDeepReview counts sessions since the last deep
	// review; meaningful only when DeepReviewed is true
	SessionsSinceDeepReview int

	// DeepReviewed reports whether any deep review has happened
	DeepReviewed bool

	// FinalSession marks the session that completed the backlog
	FinalSession bool
}

// ShouldTrigger reports whether a deep review is due. Initializer
// sessions set up the project and produce nothing worth reviewing, so
// session 1 never triggers.
func ShouldTrigger(sig Signal) bool {
	if sig.SessionNumber <= 1 {
		return false
	}

	if sig.SessionNumber%IntervalSessions == 0 {
		return true
	}
	if sig.LastQuality > 0 && sig.LastQuality < QualityFloor {
		return true
	}
	if sig.DeepReviewed && sig.SessionsSinceDeepReview >= MaxGap {
		return true
	}
	if !sig.DeepReviewed && sig.SessionNumber >= MaxGap {
		return true
	}
	if sig.FinalSession {
		return true
	}
	return false
}
