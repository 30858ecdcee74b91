package realtime

import (
	"jobmarket/cmd/internal/auth/session"
	v1 "jobmarket/shared/contracts/session/v1"
)

// StatePayload renders a snapshot for the wire. The token is never included.
func StatePayload(snap session.Snapshot, loading bool) v1.SessionStatePayload {
	out := v1.SessionStatePayload{
		Phase:         snap.Phase.String(),
		Authenticated: snap.Authenticated(),
		Loading:       loading || snap.Phase == session.PhaseHydrating,
		SessionID:     snap.SessionID,
		Epoch:         snap.Epoch,
	}
	if snap.Profile != nil {
		p := snap.Profile
		out.Profile = &v1.ProfilePayload{
			SubjectID:   p.SubjectID,
			Role:        string(p.Role),
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			DisplayName: p.DisplayName,
			Verified:    p.Verified,
		}
	}
	return out
}
