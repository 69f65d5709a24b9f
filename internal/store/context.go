package store

import "context"

type actorKey struct{}

// WithActor attaches the username responsible for the following changes to ctx.
// Observers read it with ActorFrom.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

// ActorFrom returns the username attached by WithActor.
func ActorFrom(ctx context.Context) string {
	username, _ := ctx.Value(actorKey{}).(string)
	return username
}
