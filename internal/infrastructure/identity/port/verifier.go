package port

import (
	"context"
	"errors"
)

// ErrInvalidToken signals that a credential could not be verified.
var ErrInvalidToken = errors.New("identity: invalid token")

// Verifier turns a bearer credential into a verified user id. Token issuing
// and account management live in another subsystem; the chat layer only ever
// consumes verified identities.
type Verifier interface {
	Verify(ctx context.Context, token string) (int64, error)
}
