package shared

import "context"

// ActorIdentity is the caller identity forwarded by the auth gateway in
// front of this service. The core never authenticates; it only records who
// acted.
type ActorIdentity struct {
	ID   string
	Name string
}

type actorContextKey struct{}

// ContextWithActor stores the actor identity in context.
func ContextWithActor(ctx context.Context, actor ActorIdentity) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor identity from context.
func ActorFromContext(ctx context.Context) ActorIdentity {
	actor, _ := ctx.Value(actorContextKey{}).(ActorIdentity)
	return actor
}
