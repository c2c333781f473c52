package task

import "context"

type entityTagKey struct{}

// ContextWithEntity tags a context as executing on behalf of the given
// entity. Dispatch consults the tag to detect reentrant effector calls.
func ContextWithEntity(ctx context.Context, entityID string) context.Context {
	return context.WithValue(ctx, entityTagKey{}, entityID)
}

// EntityFromContext returns the entity id the current unit of work is tagged
// with, if any.
func EntityFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(entityTagKey{}).(string)
	return id, ok && id != ""
}
