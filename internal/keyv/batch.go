package keyv

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/LavishGent/keyv/internal/hooks"
	"github.com/LavishGent/keyv/internal/types"
)

// GetMany returns one slot per key in input order. found[i] is false for a
// miss or an expired entry.
func (k *Keyv[V]) GetMany(ctx context.Context, keys []string) (values []V, found []bool, err error) {
	entries, err := k.GetManyRaw(ctx, keys)
	if err != nil {
		return nil, nil, err
	}
	values = make([]V, len(entries))
	found = make([]bool, len(entries))
	for i, env := range entries {
		if env != nil {
			values[i] = env.Value
			found[i] = true
		}
	}
	return values, found, nil
}

// GetManyRaw returns the envelopes for keys in input order, nil for misses.
func (k *Keyv[V]) GetManyRaw(ctx context.Context, keys []string) ([]*types.Envelope[V], error) {
	if err := k.checkAll(keys); err != nil {
		return nil, err
	}

	p := &GetManyPayload[V]{Keys: slices.Clone(keys)}
	k.hooks.Trigger(ctx, hooks.PreGetMany, p)

	start := k.clock.Now()
	entries, err := k.fetchMany(ctx, k.view(), p.Keys)
	if err != nil {
		k.observe("getMany", start, statusError)
		return nil, err
	}
	found := make([]bool, len(entries))
	for i, env := range entries {
		found[i] = env != nil
	}
	k.stats.HitsOrMisses(found)
	k.observe("getMany", start, statusOK)

	p.Entries = entries
	k.hooks.Trigger(ctx, hooks.PostGetMany, p)
	return p.Entries, nil
}

func (k *Keyv[V]) fetchMany(ctx context.Context, v view, keys []string) ([]*types.Envelope[V], error) {
	out := make([]*types.Envelope[V], len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	bg, ok := v.store.(types.BatchGetter)
	if !ok {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(k.opts.Concurrency)
		for i, key := range keys {
			g.Go(func() error {
				env, err := k.fetch(gctx, v, key)
				if err != nil {
					return err
				}
				out[i] = env
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	}

	raw, err := bg.GetMany(ctx, v.keys(keys))
	if err != nil {
		if err := k.fail("getMany", "", v, err); err != nil {
			return nil, err
		}
		return out, nil
	}

	now := k.clock.Now()
	var expired []string
	for i, data := range raw {
		if i >= len(keys) || data == nil {
			continue
		}
		env, err := k.decode(data)
		if err != nil {
			if err := k.fail("getMany", keys[i], v, err); err != nil {
				return nil, err
			}
			continue
		}
		if env.Expired(now) {
			expired = append(expired, keys[i])
			continue
		}
		out[i] = env
	}
	if len(expired) > 0 {
		k.evict(ctx, v, expired...)
	}
	return out, nil
}

// SetMany stores entries and always returns one result per entry in input
// order, whether or not the store has a native batch form. An unserializable
// value fails the whole batch before anything is written.
func (k *Keyv[V]) SetMany(ctx context.Context, entries []types.Entry[V]) ([]bool, error) {
	results := make([]bool, len(entries))
	if len(entries) == 0 {
		return results, nil
	}
	if k.closed.Load() {
		return results, types.ErrClosed
	}

	start := k.clock.Now()
	v := k.view()
	payloads := make([]*SetPayload[V], len(entries))
	raw := make([]types.RawEntry, len(entries))
	for i, e := range entries {
		if err := k.opts.KeyValidator.Validate(e.Key); err != nil {
			return results, err
		}
		ttl := k.opts.TTL
		if e.TTL != nil {
			if *e.TTL < 0 {
				return results, types.ErrInvalidTTL
			}
			ttl = *e.TTL
		}

		p := &SetPayload[V]{Key: e.Key, Value: e.Value, TTL: ttl}
		k.hooks.Trigger(ctx, hooks.PreSet, p)

		data, err := k.encode(p.Value, types.ExpiresAt(start, p.TTL))
		if err != nil {
			k.observe("setMany", start, statusError)
			return results, k.serializationError("setMany", p.Key, err)
		}
		payloads[i] = p
		raw[i] = types.RawEntry{Key: v.key(p.Key), Value: data, TTL: p.TTL}
	}

	if bs, ok := v.store.(types.BatchSetter); ok {
		res, err := bs.SetMany(ctx, raw)
		if err != nil {
			k.observe("setMany", start, statusError)
			return results, k.fail("setMany", "", v, err)
		}
		copy(results, res)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(k.opts.Concurrency)
		for i, e := range raw {
			g.Go(func() error {
				if err := v.store.Set(gctx, e.Key, e.Value, e.TTL); err != nil {
					return k.fail("set", payloads[i].Key, v, err)
				}
				results[i] = true
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			k.observe("setMany", start, statusError)
			return results, err
		}
	}

	k.observe("setMany", start, statusOK)
	for i, p := range payloads {
		p.OK = results[i]
		if p.OK {
			k.stats.Set()
		}
		k.hooks.Trigger(ctx, hooks.PostSet, p)
	}
	return results, nil
}

// DeleteMany removes keys. Without a native batch delete the result is true
// only if every key was deleted; a native batch follows types.BatchDeleter.
func (k *Keyv[V]) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	if err := k.checkAll(keys); err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return true, nil
	}
	return k.remove(ctx, "deleteMany", slices.Clone(keys))
}

func (k *Keyv[V]) deleteKeys(ctx context.Context, v view, op string, keys []string) (bool, error) {
	if len(keys) == 1 {
		ok, err := v.store.Delete(ctx, v.key(keys[0]))
		if err != nil {
			return false, k.fail(op, keys[0], v, err)
		}
		if ok {
			k.stats.Delete()
		}
		return ok, nil
	}

	if bd, ok := v.store.(types.BatchDeleter); ok {
		deleted, err := bd.DeleteMany(ctx, v.keys(keys))
		if err != nil {
			return false, k.fail(op, "", v, err)
		}
		// the store does not say how many keys went away
		if deleted {
			k.stats.Delete()
		}
		return deleted, nil
	}

	// The first failure cancels the rest and is reported once for the batch.
	var (
		once    sync.Once
		failKey string
		failErr error
	)
	results := make([]bool, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(k.opts.Concurrency)
	for i, key := range keys {
		g.Go(func() error {
			ok, err := v.store.Delete(gctx, v.key(key))
			if err != nil {
				once.Do(func() { failKey, failErr = key, err })
				return err
			}
			if ok {
				k.stats.Delete()
			}
			results[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, k.fail(op, failKey, v, failErr)
	}
	return !slices.Contains(results, false), nil
}

// HasMany reports presence per key in input order.
func (k *Keyv[V]) HasMany(ctx context.Context, keys []string) ([]bool, error) {
	if err := k.checkAll(keys); err != nil {
		return nil, err
	}
	out := make([]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	start := k.clock.Now()
	v := k.view()
	if bh, ok := v.store.(types.BatchHaser); ok {
		res, err := bh.HasMany(ctx, v.keys(keys))
		if err != nil {
			k.observe("hasMany", start, statusError)
			return out, k.fail("hasMany", "", v, err)
		}
		copy(out, res)
		k.observe("hasMany", start, statusOK)
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(k.opts.Concurrency)
	for i, key := range keys {
		g.Go(func() error {
			ok, err := k.has(gctx, v, key)
			out[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		k.observe("hasMany", start, statusError)
		return nil, err
	}
	k.observe("hasMany", start, statusOK)
	return out, nil
}

// Iterator yields the live entries of the active namespace. Expired entries
// found during the scan are deleted and skipped; undecodable ones are
// reported and skipped.
func (k *Keyv[V]) Iterator(ctx context.Context) (iter.Seq2[string, V], error) {
	if k.closed.Load() {
		return nil, types.ErrClosed
	}
	v := k.view()
	it, ok := v.store.(types.IterableStore)
	if !ok {
		return nil, types.ErrIteratorUnsupported
	}
	seq, err := it.Iterator(ctx, v.storeNS)
	if err != nil {
		return nil, err
	}

	return func(yield func(string, V) bool) {
		for key, data := range seq {
			if v.prefix != "" {
				rest, ok := strings.CutPrefix(key, v.prefix)
				if !ok {
					continue
				}
				key = rest
			}
			env, err := k.decode(data)
			if err != nil {
				_ = k.fail("iterator", key, v, err)
				continue
			}
			if env.Expired(k.clock.Now()) {
				k.evict(ctx, v, key)
				continue
			}
			if !yield(key, env.Value) {
				return
			}
		}
	}, nil
}
