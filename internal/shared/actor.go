package shared

import "context"

// Actor identifies who performs a mutating operation. It is threaded
// explicitly through every service call for ledger and trace attribution;
// nothing in the core reads identity from ambient globals.
type Actor struct {
	ID   int64
	Name string
}

// Valid reports whether the actor carries a usable identity.
func (a Actor) Valid() bool {
	return a.ID > 0
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context for the HTTP edge.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
