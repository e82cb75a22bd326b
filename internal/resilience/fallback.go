package resilience

import "context"

// Fallback runs primary and, when it fails, substitutes secondary. The
// optional when predicate gates which errors trigger the fallback; a nil
// predicate falls back on every error.
func Fallback[T any](
	ctx context.Context,
	primary func(ctx context.Context) (T, error),
	secondary func(ctx context.Context) (T, error),
	when func(err error) bool,
) (T, error) {
	result, err := primary(ctx)
	if err == nil {
		return result, nil
	}
	if when != nil && !when(err) {
		return result, err
	}
	return secondary(ctx)
}

// FallbackTo runs primary and substitutes a static default value on failure,
// optionally gated by the when predicate. Errors absorbed by the fallback are
// not propagated; callers that need to observe them should use Fallback with
// a logging secondary.
func FallbackTo[T any](
	ctx context.Context,
	primary func(ctx context.Context) (T, error),
	defaultValue T,
	when func(err error) bool,
) (T, error) {
	result, err := primary(ctx)
	if err == nil {
		return result, nil
	}
	if when != nil && !when(err) {
		return result, err
	}
	return defaultValue, nil
}
