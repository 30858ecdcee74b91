package session

import "context"

// Outcome is the verdict of one verification attempt.
type Outcome int

const (
	// OutcomeConfirmed means the identity service accepted the token.
	OutcomeConfirmed Outcome = iota + 1
	// OutcomeRejected is an authoritative denial: the session must end.
	OutcomeRejected
	// OutcomeTransient means no verdict was reached. The session is left alone.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Result is the tagged verification result. Callers switch on Outcome.
//
// Patch is only meaningful for OutcomeConfirmed and may be empty. Reason is a
// short machine-readable cause; Err carries the underlying failure, if any.
type Result struct {
	Outcome Outcome
	Patch   ProfilePatch
	Reason  string
	Err     error
}

// Confirmed builds a confirmed result.
func Confirmed(patch ProfilePatch) Result {
	return Result{Outcome: OutcomeConfirmed, Patch: patch}
}

// Rejected builds an authoritative rejection.
func Rejected(reason string) Result {
	return Result{Outcome: OutcomeRejected, Reason: reason}
}

// Transient builds a transient failure.
func Transient(reason string, err error) Result {
	return Result{Outcome: OutcomeTransient, Reason: reason, Err: err}
}

// Verifier asks the identity service whether a token is still valid.
// Implementations must enforce their own timeout and must never return
// OutcomeRejected for a failure they could not attribute to the token.
type Verifier interface {
	Verify(ctx context.Context, token string) Result
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) Result

func (f VerifierFunc) Verify(ctx context.Context, token string) Result { return f(ctx, token) }
