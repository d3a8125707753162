package keyv

import (
	"context"

	"github.com/LavishGent/keyv/internal/types"
)

// GetOrCreate returns the value under key, calling factory on a miss and
// storing its result. Concurrent misses for the same key share one factory
// call, which is not cancelled when any single caller's ctx is. A failure to
// store the created value is reported but does not fail the call.
func (k *Keyv[V]) GetOrCreate(ctx context.Context, key string, factory func(ctx context.Context) (V, error), opts ...types.Option) (V, error) {
	v, found, err := k.Get(ctx, key)
	if err != nil || found {
		return v, err
	}

	shared := context.WithoutCancel(ctx)
	result, err, _ := k.sfGroup.Do(k.view().key(key), func() (any, error) {
		// another caller may have filled the key while this one waited
		if v, found, err := k.Get(shared, key); err != nil || found {
			return v, err
		}
		created, err := factory(shared)
		if err != nil {
			return created, err
		}
		if _, err := k.Set(shared, key, created, opts...); err != nil {
			k.logger.Debug("Failed to cache factory result", "key", key, "error", err)
		}
		return created, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	created, _ := result.(V)
	return created, nil
}
