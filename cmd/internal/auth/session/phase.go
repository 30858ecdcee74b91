package session

// Phase is the lifecycle phase of the session. It is never persisted.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseHydrating
	PhaseAuthenticated
	PhaseRevalidating
	// PhaseInvalidated follows an authoritative rejection. Like
	// PhaseUnauthenticated it carries no token and grants no access.
	PhaseInvalidated
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseHydrating:
		return "hydrating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRevalidating:
		return "revalidating"
	case PhaseInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Active reports whether the phase carries a usable session.
func (p Phase) Active() bool {
	return p == PhaseAuthenticated || p == PhaseRevalidating
}

// Snapshot is an immutable copy of the session state handed to readers.
type Snapshot struct {
	Phase   Phase
	Token   string
	Profile *Profile

	// Epoch changes on every commit and clear, never on profile merges.
	Epoch uint64

	// SessionID correlates logs and events for one logged-in session.
	// It is local to this process and never persisted.
	SessionID string
}

// Authenticated reports whether the snapshot carries an active session.
func (s Snapshot) Authenticated() bool {
	return s.Phase.Active() && s.Token != "" && s.Profile != nil
}

func (s Snapshot) clone() Snapshot {
	if s.Profile != nil {
		p := *s.Profile
		s.Profile = &p
	}
	return s
}
