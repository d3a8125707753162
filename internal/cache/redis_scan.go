package cache

import (
	"context"
	"iter"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/types"
)

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// matchPattern is the SCAN MATCH pattern for a namespace.
func (s *RedisStore) matchPattern(namespace string) string {
	if namespace == "" {
		return "*"
	}
	return globReplacer.Replace(namespace+s.opts.Separator) + "*"
}

// Clear removes the keys of the active namespace. With no namespace only
// unprefixed keys are removed, unless NoNamespaceAffectsAll is set, in which
// case the database is flushed.
func (s *RedisStore) Clear(ctx context.Context) error {
	ns := s.Namespace()

	if s.opts.NoNamespaceAffectsAll && ns == "" {
		err := s.do(ctx, func(ctx context.Context) error {
			return s.forEachNode(ctx, func(ctx context.Context, c redis.Cmdable) error {
				return c.FlushDB(ctx).Err()
			})
		})
		if err == nil {
			s.Emit(events.EventClear)
		}
		return s.handle("clear", "", err)
	}

	var deleted int64
	err := s.forEachNode(ctx, func(ctx context.Context, c redis.Cmdable) error {
		n, err := s.scanAndDelete(ctx, c, ns)
		deleted += n
		return err
	})
	if err != nil {
		return s.handle("clear", "", err)
	}

	s.logger.Debug("Cleared namespace", "namespace", ns, "deleted", deleted)
	s.Emit(events.EventClear)
	return nil
}

// forEachNode runs fn against every master of a cluster, or once against the
// client. Masters are visited sequentially so deleted counts need no locking.
func (s *RedisStore) forEachNode(ctx context.Context, fn func(ctx context.Context, c redis.Cmdable) error) error {
	cc, ok := s.client.(*redis.ClusterClient)
	if !ok {
		return fn(ctx, s.client)
	}

	var masters []*redis.Client
	err := cc.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
		masters = append(masters, c)
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range masters {
		if err := fn(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// scanAndDelete walks the keyspace of one node with SCAN, deleting each batch
// before advancing. The walk ends when the cursor returns to 0, so keys added
// or removed concurrently never make it loop forever.
func (s *RedisStore) scanAndDelete(ctx context.Context, c redis.Cmdable, namespace string) (int64, error) {
	pattern := s.matchPattern(namespace)
	count := int64(s.opts.ClearBatchSize)

	var cursor uint64
	var deleted int64
	for {
		var keys []string
		var next uint64
		err := s.do(ctx, func(ctx context.Context) error {
			var err error
			keys, next, err = c.Scan(ctx, cursor, pattern, count).Result()
			return err
		})
		if err != nil {
			return deleted, err
		}
		cursor = next

		keys = s.ownedKeys(keys, namespace)
		if len(keys) > 0 {
			err := s.do(ctx, func(ctx context.Context) error {
				n, err := s.deleteBySlot(ctx, c, keys)
				deleted += n
				return err
			})
			if err != nil {
				return deleted, err
			}
		}

		if cursor == 0 {
			return deleted, nil
		}
	}
}

// ownedKeys drops prefixed keys when scanning the unprefixed partition.
func (s *RedisStore) ownedKeys(keys []string, namespace string) []string {
	if namespace != "" {
		return keys
	}
	owned := keys[:0]
	for _, k := range keys {
		if !strings.Contains(k, s.opts.Separator) {
			owned = append(owned, k)
		}
	}
	return owned
}

// Iterator yields the entries of namespace with their prefix removed. SCAN
// cursors are node-local, so cluster clients are refused.
func (s *RedisStore) Iterator(ctx context.Context, namespace string) (iter.Seq2[string, []byte], error) {
	if s.cluster {
		return nil, types.ErrClusterIterator
	}
	if s.closed.Load() {
		return nil, types.ErrClosed
	}

	pattern := s.matchPattern(namespace)
	count := int64(s.opts.ClearBatchSize)

	return func(yield func(string, []byte) bool) {
		var cursor uint64
		for {
			var keys []string
			var values []any
			var next uint64
			err := s.do(ctx, func(ctx context.Context) error {
				var err error
				keys, next, err = s.client.Scan(ctx, cursor, pattern, count).Result()
				if err != nil {
					return err
				}
				keys = s.ownedKeys(keys, namespace)
				if len(keys) == 0 {
					values = nil
					return nil
				}
				values, err = s.client.MGet(ctx, keys...).Result()
				return err
			})
			if err != nil {
				s.EmitError(types.NewStoreError("iterator", "", "redis", err))
				return
			}
			cursor = next

			for i, v := range values {
				str, ok := v.(string)
				if !ok {
					continue
				}
				if !yield(s.getKeyWithoutPrefix(keys[i], namespace), []byte(str)) {
					return
				}
			}

			if cursor == 0 {
				return
			}
		}
	}, nil
}
