package risk

// Violation is one reason an admission check failed.
type Violation struct {
	Code string
	Msg  string
}

// Decision is the typed result of an admission check. A position is only
// created when Allowed is true; rejections carry the full violation list so
// callers can log or surface every failed limit.
type Decision struct {
	Allowed    bool
	Violations []Violation
}

// Allow returns a passing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny adds a violation and marks the decision rejected.
func (d *Decision) Deny(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Guard is consulted before the risk manager creates a position. The
// portfolio manager implements it; a nil guard admits everything.
type Guard interface {
	// CanAdd judges whether adding the candidate position would keep the
	// portfolio within its limits. It must not mutate any state.
	CanAdd(symbol string, candidate *Position, balance float64) Decision

	// PositionOpened and PositionClosed keep the guard's view of open
	// positions in sync with the risk manager's.
	PositionOpened(symbol string, p *Position)
	PositionClosed(symbol string, realizedPnL float64)
}
