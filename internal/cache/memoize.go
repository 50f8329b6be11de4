package cache

import "context"

// Memoize wraps fn so that results are cached in c under the key derived from
// each call's argument. key reports false when the argument carries no usable
// key; the wrapped function then returns ErrMissingKey without calling fn.
func Memoize[A any, K comparable, V any](
	c *TTL[K, V],
	key func(A) (K, bool),
	fn func(context.Context, A) (V, error),
) func(context.Context, A) (V, error) {
	return func(ctx context.Context, arg A) (V, error) {
		k, ok := key(arg)
		if !ok {
			var zero V
			return zero, ErrMissingKey
		}
		return c.GetOrCompute(ctx, k, func(ctx context.Context) (V, error) {
			return fn(ctx, arg)
		})
	}
}

// StringKey is a key extractor for string arguments that treats the empty
// string as absent.
func StringKey(s string) (string, bool) {
	return s, s != ""
}
