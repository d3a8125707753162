// Package tiered composes a fast local Keyv with an authoritative remote one.
//
// Reads go to the local tier first and fall back to the remote tier on a miss
// or when the validator rejects the local value; remote hits are written back
// to the local tier with whatever ttl the remote entry has left. Writes go to
// both tiers unless LocalOnly is set. There is no coherence protocol between
// the tiers: a stale local value lives until its own ttl runs out or the
// validator rejects it.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/keyv"
	"github.com/LavishGent/keyv/internal/types"
)

// DefaultShutdownTimeout bounds how long Close waits for pending backfills.
const DefaultShutdownTimeout = 5 * time.Second

// DefaultBackfillTimeout bounds a single asynchronous backfill.
const DefaultBackfillTimeout = 5 * time.Second

// Validator reports whether a local value may be served. A nil validator
// trusts every local hit.
type Validator[V any] func(value V, key string) bool

// Options configure a Tiered cache.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Options[V any] struct {
	Validator       Validator[V]
	LocalOnly       bool
	AsyncBackfill   bool
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	Clock           clockwork.Clock
}

// OptionsFromConfig maps the tiered section of a config file.
func OptionsFromConfig[V any](cfg config.TieredConfig) *Options[V] {
	return &Options[V]{
		LocalOnly:       cfg.LocalOnly,
		AsyncBackfill:   cfg.AsyncBackfill,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Tiered is a two-level cache over two Keyv instances.
type Tiered[V any] struct {
	local  *keyv.Keyv[V]
	remote *keyv.Keyv[V]

	validator       Validator[V]
	localOnly       bool
	asyncBackfill   bool
	shutdownTimeout time.Duration

	logger *slog.Logger
	clock  clockwork.Clock
	events *events.Manager

	sfGroup        singleflight.Group
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	bgWg           sync.WaitGroup
	bgMu           sync.Mutex
	closed         atomic.Bool
	unsubscribe    []func()
}

// New builds a tiered cache. Both tiers are owned by the returned value and
// are disconnected by Close.
func New[V any](local, remote *keyv.Keyv[V], opts *Options[V]) (*Tiered[V], error) {
	if local == nil || remote == nil {
		return nil, errors.New("tiered: local and remote tiers are required")
	}
	if opts == nil {
		opts = &Options[V]{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tiered-cache")

	clock := opts.Clock
	if clock == nil {
		clock = local.Clock()
	}
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	t := &Tiered[V]{
		local:           local,
		remote:          remote,
		validator:       opts.Validator,
		localOnly:       opts.LocalOnly,
		asyncBackfill:   opts.AsyncBackfill,
		shutdownTimeout: timeout,
		logger:          logger,
		clock:           clock,
		events:          events.NewManager(logger),
		shutdownCtx:     shutdownCtx,
		shutdownCancel:  shutdownCancel,
	}
	t.unsubscribe = []func(){
		local.OnError(t.forward("local")),
		remote.OnError(t.forward("remote")),
	}
	return t, nil
}

func (t *Tiered[V]) forward(tier string) func(error) {
	return func(err error) {
		t.events.EmitError(fmt.Errorf("%s tier: %w", tier, err))
	}
}

// Local returns the local tier.
func (t *Tiered[V]) Local() *keyv.Keyv[V] { return t.local }

// Remote returns the remote tier.
func (t *Tiered[V]) Remote() *keyv.Keyv[V] { return t.remote }

// OnError subscribes to errors from either tier.
func (t *Tiered[V]) OnError(fn func(error)) func() {
	return t.events.OnError(fn)
}

func (t *Tiered[V]) On(event string, fn events.Listener) events.ListenerID {
	return t.events.On(event, fn)
}

func (t *Tiered[V]) valid(env *types.Envelope[V], key string) bool {
	if env == nil {
		return false
	}
	return t.validator == nil || t.validator(env.Value, key)
}

// Get returns the value for key, preferring a valid local copy.
func (t *Tiered[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	env, err := t.GetRaw(ctx, key)
	if err != nil || env == nil {
		return zero, false, err
	}
	return env.Value, true, nil
}

// GetRaw is Get returning the envelope. A nil envelope is a miss.
func (t *Tiered[V]) GetRaw(ctx context.Context, key string) (*types.Envelope[V], error) {
	if t.closed.Load() {
		return nil, types.ErrClosed
	}

	env, _, err := t.local.GetRaw(ctx, key)
	if err != nil {
		t.logger.Debug("Local tier read failed", "key", key, "error", err)
	} else if t.valid(env, key) {
		return env, nil
	}

	// shared by every waiter, so one caller giving up must not fail the rest
	readCtx := context.WithoutCancel(ctx)
	result, err, _ := t.sfGroup.Do(key, func() (any, error) {
		env, _, err := t.remote.GetRaw(readCtx, key)
		return env, err
	})
	if err != nil {
		return nil, err
	}
	env, _ = result.(*types.Envelope[V])
	if env == nil {
		return nil, nil
	}

	t.backfill(ctx, []string{key}, []*types.Envelope[V]{env})
	return env, nil
}

// GetMany returns one slot per key in input order. Only keys the local tier
// could not serve are read from the remote tier, in a single batch.
func (t *Tiered[V]) GetMany(ctx context.Context, keys []string) ([]V, []bool, error) {
	if t.closed.Load() {
		return nil, nil, types.ErrClosed
	}
	values := make([]V, len(keys))
	found := make([]bool, len(keys))
	if len(keys) == 0 {
		return values, found, nil
	}

	locals, err := t.local.GetManyRaw(ctx, keys)
	if err != nil {
		t.logger.Debug("Local tier batch read failed", "keys", len(keys), "error", err)
		locals = make([]*types.Envelope[V], len(keys))
	}

	var missing []string
	var slots []int
	for i, env := range locals {
		if t.valid(env, keys[i]) {
			values[i] = env.Value
			found[i] = true
			continue
		}
		missing = append(missing, keys[i])
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return values, found, nil
	}

	remotes, err := t.remote.GetManyRaw(ctx, missing)
	if err != nil {
		return nil, nil, err
	}
	var fillKeys []string
	var fill []*types.Envelope[V]
	for j, env := range remotes {
		if env == nil {
			continue
		}
		i := slots[j]
		values[i] = env.Value
		found[i] = true
		fillKeys = append(fillKeys, missing[j])
		fill = append(fill, env)
	}
	t.backfill(ctx, fillKeys, fill)
	return values, found, nil
}

// Has checks the local tier first and asks the remote tier only when the
// local copy is absent or rejected.
func (t *Tiered[V]) Has(ctx context.Context, key string) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}
	env, _, err := t.local.GetRaw(ctx, key)
	if err != nil {
		t.logger.Debug("Local tier read failed", "key", key, "error", err)
	} else if t.valid(env, key) {
		return true, nil
	}
	return t.remote.Has(ctx, key)
}

// backfill writes remote hits into the local tier with the ttl they have
// left. Entries that expire before the write are skipped.
func (t *Tiered[V]) backfill(ctx context.Context, keys []string, envs []*types.Envelope[V]) {
	if len(keys) == 0 {
		return
	}
	now := t.clock.Now()
	entries := make([]types.Entry[V], 0, len(keys))
	for i, env := range envs {
		ttl, ok := env.Remaining(now)
		if ok && ttl <= 0 {
			continue
		}
		entries = append(entries, types.Entry[V]{Key: keys[i], Value: env.Value, TTL: types.TTL(ttl)})
	}
	if len(entries) == 0 {
		return
	}

	write := func(ctx context.Context) {
		if _, err := t.local.SetMany(ctx, entries); err != nil {
			t.logger.Debug("Failed to backfill local tier", "keys", len(entries), "error", err)
		}
	}
	if t.asyncBackfill {
		t.runBackground(write)
		return
	}
	write(ctx)
}

// Set writes both tiers, or only the local one with LocalOnly. It reports
// true when every written tier accepted the value.
func (t *Tiered[V]) Set(ctx context.Context, key string, value V, opts ...types.Option) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}
	ok, err := t.local.Set(ctx, key, value, opts...)
	if t.localOnly {
		return ok, err
	}
	rok, rerr := t.remote.Set(ctx, key, value, opts...)
	if rerr != nil {
		t.logger.Warn("Remote tier set failed", "key", key, "error", rerr)
	}
	return ok && rok, errors.Join(err, rerr)
}

// SetMany writes entries to both tiers and ANDs the per-entry results.
func (t *Tiered[V]) SetMany(ctx context.Context, entries []types.Entry[V]) ([]bool, error) {
	if t.closed.Load() {
		return make([]bool, len(entries)), types.ErrClosed
	}
	results, err := t.local.SetMany(ctx, entries)
	if t.localOnly {
		return results, err
	}
	remote, rerr := t.remote.SetMany(ctx, entries)
	if rerr != nil {
		t.logger.Warn("Remote tier setMany failed", "keys", len(entries), "error", rerr)
	}
	for i := range results {
		results[i] = results[i] && i < len(remote) && remote[i]
	}
	return results, errors.Join(err, rerr)
}

// Delete removes key from both tiers. The remote tier is authoritative for
// the result unless LocalOnly is set.
func (t *Tiered[V]) Delete(ctx context.Context, key string) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}
	deleted, err := t.local.Delete(ctx, key)
	if t.localOnly {
		return deleted, err
	}
	rdeleted, rerr := t.remote.Delete(ctx, key)
	return rdeleted, errors.Join(err, rerr)
}

// DeleteMany removes keys from both tiers. The remote tier is authoritative
// for the result unless LocalOnly is set.
func (t *Tiered[V]) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}
	deleted, err := t.local.DeleteMany(ctx, keys)
	if t.localOnly {
		return deleted, err
	}
	rdeleted, rerr := t.remote.DeleteMany(ctx, keys)
	return rdeleted, errors.Join(err, rerr)
}

// Clear empties both tiers, or only the local one with LocalOnly.
func (t *Tiered[V]) Clear(ctx context.Context) error {
	if t.closed.Load() {
		return types.ErrClosed
	}
	err := t.local.Clear(ctx)
	if t.localOnly {
		return err
	}
	return errors.Join(err, t.remote.Clear(ctx))
}

// Health pings both tiers and summarizes their stats. A failing local tier
// is unhealthy; a failing remote tier only degrades the cache.
func (t *Tiered[V]) Health(ctx context.Context) *types.HealthReport {
	report := &types.HealthReport{
		Timestamp: t.clock.Now(),
		LocalOnly: t.localOnly,
		Local:     t.tierHealth(ctx, t.local),
		Remote:    t.tierHealth(ctx, t.remote),
	}

	switch {
	case !report.Local.Available:
		report.Status = types.HealthStatusUnhealthy
	case !report.Remote.Available && !t.localOnly:
		report.Status = types.HealthStatusDegraded
	default:
		report.Status = types.HealthStatusHealthy
	}
	return report
}

func (t *Tiered[V]) tierHealth(ctx context.Context, k *keyv.Keyv[V]) types.TierHealth {
	snap := k.Stats().Snapshot()
	h := types.TierHealth{
		Store:    k.StoreName(),
		Hits:     snap.Hits,
		Misses:   snap.Misses,
		HitRatio: snap.HitRatio(),
	}

	start := t.clock.Now()
	err := k.Ping(ctx)
	h.Latency = t.clock.Since(start)
	if err != nil {
		h.LastError = err.Error()
		return h
	}
	h.Available = true
	return h
}

// IsHealthy reports whether the local tier answers.
func (t *Tiered[V]) IsHealthy(ctx context.Context) bool {
	return !t.closed.Load() && t.local.Ping(ctx) == nil
}

// Disconnect is Close.
func (t *Tiered[V]) Disconnect(ctx context.Context) error {
	return t.Close(ctx)
}

// Close waits for pending backfills up to the shutdown timeout and then
// disconnects both tiers. It returns ErrShutdownTimeout, joined with any
// disconnect errors, when the wait runs out.
func (t *Tiered[V]) Close(ctx context.Context) error {
	t.bgMu.Lock()
	if t.closed.Swap(true) {
		t.bgMu.Unlock()
		return nil
	}
	t.bgMu.Unlock()

	t.logger.Debug("Closing tiered cache, waiting for backfills", "timeout", t.shutdownTimeout)

	done := make(chan struct{})
	go func() {
		t.bgWg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-t.clock.After(t.shutdownTimeout):
		t.logger.Warn("Shutdown timeout exceeded, proceeding with close", "timeout", t.shutdownTimeout)
		errs = append(errs, types.ErrShutdownTimeout)
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	t.shutdownCancel()

	for _, unsubscribe := range t.unsubscribe {
		unsubscribe()
	}
	if err := t.local.Disconnect(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.remote.Disconnect(ctx); err != nil {
		errs = append(errs, err)
	}
	t.events.Emit(events.EventDisconnect)
	return errors.Join(errs...)
}

// runBackground runs fn on a goroutine tracked by Close. Nothing starts once
// the cache is closed.
func (t *Tiered[V]) runBackground(fn func(ctx context.Context)) {
	// bgMu orders Add against the closed flag so Close never waits on a
	// WaitGroup that can still grow.
	t.bgMu.Lock()
	if t.closed.Load() {
		t.bgMu.Unlock()
		return
	}
	t.bgWg.Add(1)
	t.bgMu.Unlock()

	go func() {
		defer t.bgWg.Done()
		ctx, cancel := context.WithTimeout(t.shutdownCtx, DefaultBackfillTimeout)
		defer cancel()
		fn(ctx)
	}()
}
