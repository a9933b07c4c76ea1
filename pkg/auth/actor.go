package auth

import "context"

// Actor identifies who is making a request. There are two trust paths:
//
//   - an end-user session (JWT): UserID and Staff are set, Service is false;
//   - a machine-to-machine credential (service API key): Service is true and
//     UserID is zero — owning users are then inferred from the records being
//     acted on, not from the caller.
type Actor struct {
	UserID  uint
	Staff   bool
	Service bool
}

type actorKey struct{}

// WithActor stores the actor in ctx. Called by the auth middleware.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromCtx returns the actor stored in ctx. ok is false when the request
// passed through no auth middleware.
func ActorFromCtx(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
