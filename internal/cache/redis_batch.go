package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/LavishGent/keyv/internal/types"
)

// groups returns one group per slot on a cluster client and a single group
// otherwise.
func (s *RedisStore) groups(keys []string) []slotGroup {
	if s.cluster {
		return partitionBySlot(keys)
	}
	indexes := make([]int, len(keys))
	for i := range indexes {
		indexes[i] = i
	}
	return []slotGroup{{keys: keys, indexes: indexes}}
}

// eachGroup runs fn for every group concurrently. Groups write results by
// index so no ordering between them is needed.
func (s *RedisStore) eachGroup(ctx context.Context, groups []slotGroup, fn func(ctx context.Context, g slotGroup) error) error {
	if len(groups) == 1 {
		return s.do(ctx, func(ctx context.Context) error { return fn(ctx, groups[0]) })
	}
	eg, egCtx := errgroup.WithContext(ctx)
	for _, g := range groups {
		eg.Go(func() error {
			return s.do(egCtx, func(ctx context.Context) error { return fn(ctx, g) })
		})
	}
	return eg.Wait()
}

// GetMany issues one MGET per slot and returns values in key order.
func (s *RedisStore) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	prefixed := prefixAll(keys, s.Namespace(), s.opts.Separator)

	err := s.eachGroup(ctx, s.groups(prefixed), func(ctx context.Context, g slotGroup) error {
		values, err := s.client.MGet(ctx, g.keys...).Result()
		if err != nil {
			return err
		}
		for j, v := range values {
			if str, ok := v.(string); ok {
				out[g.indexes[j]] = []byte(str)
			}
		}
		return nil
	})
	if err != nil {
		return make([][]byte, len(keys)), s.handle("getMany", "", err)
	}
	return out, nil
}

// SetMany pipelines one SET per entry, one pipeline per slot.
func (s *RedisStore) SetMany(ctx context.Context, entries []types.RawEntry) ([]bool, error) {
	out := make([]bool, len(entries))
	if len(entries) == 0 {
		return out, nil
	}
	ns := s.Namespace()
	prefixed := make([]string, len(entries))
	for i, e := range entries {
		prefixed[i] = KeyPrefix(e.Key, ns, s.opts.Separator)
	}

	err := s.eachGroup(ctx, s.groups(prefixed), func(ctx context.Context, g slotGroup) error {
		pipe := s.client.Pipeline()
		cmds := make([]*redis.StatusCmd, len(g.keys))
		for j, k := range g.keys {
			e := entries[g.indexes[j]]
			ttl := e.TTL
			if ttl < 0 {
				ttl = 0
			}
			cmds[j] = pipe.Set(ctx, k, e.Value, ttl)
		}
		_, err := pipe.Exec(ctx)
		for j, cmd := range cmds {
			out[g.indexes[j]] = cmd.Err() == nil
		}
		return err
	})
	if err != nil {
		return out, s.handle("setMany", "", err)
	}
	return out, nil
}

// DeleteMany removes keys with one UNLINK (or DEL) per slot and reports
// whether any key was removed.
func (s *RedisStore) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	prefixed := prefixAll(keys, s.Namespace(), s.opts.Separator)

	counts := make([]int64, len(keys))
	err := s.eachGroup(ctx, s.groups(prefixed), func(ctx context.Context, g slotGroup) error {
		n, err := s.unlink(ctx, s.client, g.keys...).Result()
		if err != nil {
			return err
		}
		counts[g.indexes[0]] = n
		return nil
	})
	if err != nil {
		return false, s.handle("deleteMany", "", err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return total > 0, nil
}

// HasMany pipelines one EXISTS per key, one pipeline per slot.
func (s *RedisStore) HasMany(ctx context.Context, keys []string) ([]bool, error) {
	out := make([]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	prefixed := prefixAll(keys, s.Namespace(), s.opts.Separator)

	err := s.eachGroup(ctx, s.groups(prefixed), func(ctx context.Context, g slotGroup) error {
		pipe := s.client.Pipeline()
		cmds := make([]*redis.IntCmd, len(g.keys))
		for j, k := range g.keys {
			cmds[j] = pipe.Exists(ctx, k)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		for j, cmd := range cmds {
			out[g.indexes[j]] = cmd.Val() > 0
		}
		return nil
	})
	if err != nil {
		return make([]bool, len(keys)), s.handle("hasMany", "", err)
	}
	return out, nil
}

// deleteBySlot removes keys through c, grouping by slot on clusters.
func (s *RedisStore) deleteBySlot(ctx context.Context, c redis.Cmdable, keys []string) (int64, error) {
	var total int64
	for _, g := range s.groups(keys) {
		n, err := s.unlink(ctx, c, g.keys...).Result()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
