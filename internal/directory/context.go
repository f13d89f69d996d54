package directory

import "context"

type actorContextKey struct{}

// ContextWithActor attaches the authenticated actor to the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext extracts the authenticated actor from the context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*Actor)
	if !ok || v == nil {
		return Actor{}, false
	}
	return *v, true
}
