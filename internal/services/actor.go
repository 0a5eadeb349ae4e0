package services

import "context"

type actorKey struct{}

// Actor identifies who triggered an operation, for the audit trail
type Actor struct {
	UserID    uint
	IP        string
	UserAgent string
}

// WithActor adds the acting user to the context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the acting user, or a zero Actor for system jobs
func ActorFrom(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}
