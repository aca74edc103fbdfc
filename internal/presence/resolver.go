package presence

import (
	"context"

	"github.com/lumenhq/beacon/internal/hub"
)

// Profile is the enriched identity returned by an external identity
// collaborator.
type Profile struct {
	Name  string
	Email string
}

// Resolver matches a bare connection to a richer profile. Implementations
// typically call an identity service; returning (nil, nil) means no match,
// which falls through to the client-supplied fields.
type Resolver interface {
	Resolve(ctx context.Context, snap hub.Snapshot) (*Profile, error)
}

// NoopResolver never matches. It is the default when no identity
// collaborator is wired in.
type NoopResolver struct{}

// Resolve implements Resolver.
func (NoopResolver) Resolve(context.Context, hub.Snapshot) (*Profile, error) {
	return nil, nil
}
