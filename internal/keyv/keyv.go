// Package keyv is the orchestrator applications use. It wraps a store with
// TTL envelopes, namespaces, hooks, stats and error reporting.
package keyv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/LavishGent/keyv/internal/cache"
	"github.com/LavishGent/keyv/internal/codec"
	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/hooks"
	"github.com/LavishGent/keyv/internal/metrics"
	"github.com/LavishGent/keyv/internal/stats"
	"github.com/LavishGent/keyv/internal/types"
)

var errNilStore = errors.New("keyv: store must not be nil")

const (
	statusHit   = "hit"
	statusMiss  = "miss"
	statusOK    = "ok"
	statusError = "error"
)

// Keyv stores values of type V in a pluggable backend.
//
//nolint:govet // Orchestrator struct - logical grouping prioritized over alignment
type Keyv[V any] struct {
	opts       Options
	logger     *slog.Logger
	clock      clockwork.Clock
	events     *events.Manager
	hooks      *hooks.Manager
	stats      *stats.Manager
	publisher  metrics.Publisher
	background *metrics.BackgroundPublisher

	mu          sync.RWMutex
	store       types.Store
	caps        types.Capabilities
	namespace   string
	unsubscribe func()

	sfGroup singleflight.Group
	closed  atomic.Bool
}

// view is the store state one operation works against.
type view struct {
	store types.Store
	// prefix is prepended by the orchestrator; empty when the store
	// namespaces keys itself or prefixing is off.
	prefix string
	// storeNS is the namespace the store applies itself.
	storeNS string
}

func (v view) key(key string) string {
	return v.prefix + key
}

func (v view) keys(keys []string) []string {
	if v.prefix == "" {
		return keys
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = v.prefix + k
	}
	return out
}

// New creates an orchestrator. Without a store it uses an in-process map.
func New[V any](opts ...Option) (*Keyv[V], error) {
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.TTL < 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidTTL, o.TTL)
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Serializer == nil {
		o.Serializer = codec.NewJSONSerializer()
	}
	if o.Separator == "" {
		o.Separator = DefaultSeparator
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}

	logger := o.Logger.With("component", "keyv")
	k := &Keyv[V]{
		opts:      o,
		logger:    logger,
		clock:     o.Clock,
		events:    events.NewManager(logger),
		stats:     stats.NewManager(o.Stats),
		publisher: o.Publisher,
	}
	// hook failures are always reported, whatever EmitErrors says
	k.hooks = hooks.NewManager(k.events.EmitError)
	if k.publisher == nil {
		k.publisher = metrics.NewNoOpPublisher()
	}

	if err := types.ValidateNamespace(o.Namespace, o.Separator); err != nil {
		return nil, err
	}
	k.namespace = o.Namespace

	store := o.Store
	if store == nil {
		store = cache.NewGenericStore(cache.NewMapStore(),
			cache.WithClock(o.Clock),
			cache.WithLogger(o.Logger),
		)
	}
	if err := k.SetStore(store); err != nil {
		return nil, err
	}

	if o.Publisher != nil && o.PublishInterval > 0 {
		k.background = metrics.NewBackgroundPublisher(o.Publisher, o.PublishInterval, k.snapshot, o.Logger).
			WithClock(o.Clock)
		k.background.Start(context.Background())
	}
	return k, nil
}

func (k *Keyv[V]) snapshot() *stats.Snapshot {
	s := k.stats.Snapshot()
	return &s
}

// SetStore swaps the active store and recomputes its capabilities.
func (k *Keyv[V]) SetStore(store types.Store) error {
	if store == nil {
		return errNilStore
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if ns, ok := store.(types.Namespacer); ok && k.opts.NamespaceFunc == nil {
		if err := ns.SetNamespace(k.namespace); err != nil {
			return err
		}
	}
	if k.unsubscribe != nil {
		k.unsubscribe()
		k.unsubscribe = nil
	}
	if src, ok := store.(types.ErrorSource); ok {
		k.unsubscribe = src.OnError(k.forward)
	}
	k.store = store
	k.caps = types.DetectCapabilities(store)
	return nil
}

// forward relays errors the store reports on its own.
func (k *Keyv[V]) forward(err error) {
	k.stats.Error()
	if k.opts.EmitErrors {
		k.events.EmitError(err)
	}
}

func (k *Keyv[V]) Store() types.Store {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.store
}

// StoreName is the short type name of the active store, or its Name() when it
// has one.
func (k *Keyv[V]) StoreName() string {
	return storeName(k.Store())
}

func (k *Keyv[V]) Capabilities() types.Capabilities {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.caps
}

// Namespace returns the active namespace, evaluating NamespaceFunc if set.
func (k *Keyv[V]) Namespace() string {
	if k.opts.NamespaceFunc != nil {
		return k.opts.NamespaceFunc()
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.namespace
}

// SetNamespace changes the namespace and pushes it to a namespacing store.
func (k *Keyv[V]) SetNamespace(namespace string) error {
	if err := types.ValidateNamespace(namespace, k.opts.Separator); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if ns, ok := k.store.(types.Namespacer); ok && k.opts.NamespaceFunc == nil {
		if err := ns.SetNamespace(namespace); err != nil {
			return err
		}
	}
	k.namespace = namespace
	return nil
}

func (k *Keyv[V]) Hooks() *hooks.Manager {
	return k.hooks
}

func (k *Keyv[V]) Stats() *stats.Manager {
	return k.stats
}

func (k *Keyv[V]) Clock() clockwork.Clock {
	return k.clock
}

// DefaultTTL returns the ttl applied when a call does not pass one.
func (k *Keyv[V]) DefaultTTL() time.Duration {
	return k.opts.TTL
}

func (k *Keyv[V]) On(event string, fn events.Listener) events.ListenerID {
	return k.events.On(event, fn)
}

func (k *Keyv[V]) Off(event string, id events.ListenerID) {
	k.events.Off(event, id)
}

// OnError subscribes to error events and returns the unsubscribe func.
func (k *Keyv[V]) OnError(fn func(error)) func() {
	return k.events.OnError(fn)
}

func (k *Keyv[V]) view() view {
	k.mu.RLock()
	store, caps, ns := k.store, k.caps, k.namespace
	k.mu.RUnlock()

	if k.opts.NamespaceFunc != nil {
		ns = k.opts.NamespaceFunc()
		caps.Namespace = false
	}
	v := view{store: store}
	switch {
	case caps.Namespace:
		v.storeNS = ns
	case k.opts.UseKeyPrefix && ns != "":
		v.prefix = ns + k.opts.Separator
	}
	return v
}

func (k *Keyv[V]) check(key string) error {
	if k.closed.Load() {
		return types.ErrClosed
	}
	return k.opts.KeyValidator.Validate(key)
}

func (k *Keyv[V]) checkAll(keys []string) error {
	if k.closed.Load() {
		return types.ErrClosed
	}
	return k.opts.KeyValidator.ValidateAll(keys)
}

func (k *Keyv[V]) ttl(opts []types.Option) (time.Duration, error) {
	o := types.ApplyOptions(opts...)
	if !o.HasTTL {
		return k.opts.TTL, nil
	}
	if o.TTL < 0 {
		return 0, fmt.Errorf("%w: %s", types.ErrInvalidTTL, o.TTL)
	}
	return o.TTL, nil
}

// fail records a store failure, emits it and returns it only when
// ThrowOnErrors is set.
func (k *Keyv[V]) fail(op, key string, v view, err error) error {
	if err == nil {
		return nil
	}
	k.stats.Error()
	var se *types.StoreError
	if !errors.As(err, &se) {
		err = types.NewStoreError(op, key, storeName(v.store), err)
	}
	if k.opts.EmitErrors {
		k.events.EmitError(err)
	} else {
		k.logger.Debug("Store operation failed", "op", op, "key", key, "error", err)
	}
	if k.opts.ThrowOnErrors {
		return err
	}
	return nil
}

// serializationError is always emitted and always returned.
func (k *Keyv[V]) serializationError(op, key string, err error) error {
	k.stats.Error()
	err = types.NewStoreError(op, key, "serializer", err)
	k.events.EmitError(err)
	return err
}

func (k *Keyv[V]) observe(op string, start time.Time, status string) {
	latency := k.clock.Since(start)
	k.stats.Observe(latency)
	k.publisher.Timing(metrics.MetricOperation, latency,
		metrics.OperationTag(op),
		metrics.StatusTag(status),
	)
}

func storeName(s types.Store) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	name := fmt.Sprintf("%T", s)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// checkSerializable rejects kinds no serializer can represent.
func checkSerializable(value any) error {
	rv := reflect.ValueOf(value)
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Errorf("%w: %s", types.ErrUnserializable, rv.Type())
	default:
		return nil
	}
}

func (k *Keyv[V]) encode(value V, expires *int64) ([]byte, error) {
	if err := checkSerializable(value); err != nil {
		return nil, err
	}
	if k.opts.Compression == nil {
		data, err := k.opts.Serializer.Marshal(types.Envelope[V]{Value: value, Expires: expires})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
		}
		return data, nil
	}

	inner, err := k.opts.Serializer.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}
	packed, err := k.opts.Compression.Compress(inner)
	if err != nil {
		return nil, fmt.Errorf("%w: compress: %w", types.ErrSerializationFailed, err)
	}
	data, err := k.opts.Compression.Serialize(types.RawEnvelope{Value: packed, Expires: expires})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}
	return data, nil
}

func (k *Keyv[V]) decode(data []byte) (*types.Envelope[V], error) {
	if k.opts.Compression == nil {
		var env types.Envelope[V]
		if err := k.opts.Serializer.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
		}
		return &env, nil
	}

	raw, err := k.opts.Compression.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}
	inner, err := k.opts.Compression.Decompress(raw.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %w", types.ErrSerializationFailed, err)
	}
	env := &types.Envelope[V]{Expires: raw.Expires}
	if err := k.opts.Serializer.Unmarshal(inner, &env.Value); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}
	return env, nil
}

// Get returns the live value stored under key.
func (k *Keyv[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	env, ok, err := k.GetRaw(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	return env.Value, true, nil
}

// GetRaw returns the envelope, including its deadline. Expired entries are
// deleted and reported absent.
func (k *Keyv[V]) GetRaw(ctx context.Context, key string) (*types.Envelope[V], bool, error) {
	if err := k.check(key); err != nil {
		return nil, false, err
	}

	p := &GetPayload[V]{Key: key}
	k.hooks.Trigger(ctx, hooks.PreGet, p)

	start := k.clock.Now()
	env, err := k.fetch(ctx, k.view(), p.Key)
	if err != nil {
		k.observe("get", start, statusError)
		return nil, false, err
	}
	if env == nil {
		k.stats.Miss()
		k.observe("get", start, statusMiss)
	} else {
		k.stats.Hit()
		k.observe("get", start, statusHit)
	}

	p.Entry = env
	k.hooks.Trigger(ctx, hooks.PostGet, p)
	return p.Entry, p.Entry != nil, nil
}

// fetch reads one entry. A nil envelope with a nil error is a miss.
func (k *Keyv[V]) fetch(ctx context.Context, v view, key string) (*types.Envelope[V], error) {
	data, found, err := v.store.Get(ctx, v.key(key))
	if err != nil {
		return nil, k.fail("get", key, v, err)
	}
	if !found {
		return nil, nil
	}
	env, err := k.decode(data)
	if err != nil {
		return nil, k.fail("get", key, v, err)
	}
	if env.Expired(k.clock.Now()) {
		k.evict(ctx, v, key)
		return nil, nil
	}
	return env, nil
}

// evict lazily removes expired entries. Failures are reported but never
// returned since the caller already has its answer.
func (k *Keyv[V]) evict(ctx context.Context, v view, keys ...string) {
	for _, key := range keys {
		if _, err := v.store.Delete(ctx, v.key(key)); err != nil {
			_ = k.fail("delete", key, v, err)
		}
	}
}

// Set stores value under key. Pass types.WithTTL to override the default
// ttl; a ttl of zero never expires. A store failure returns false and is only
// returned as an error with ThrowOnErrors.
func (k *Keyv[V]) Set(ctx context.Context, key string, value V, opts ...types.Option) (bool, error) {
	if err := k.check(key); err != nil {
		return false, err
	}
	ttl, err := k.ttl(opts)
	if err != nil {
		return false, err
	}

	p := &SetPayload[V]{Key: key, Value: value, TTL: ttl}
	k.hooks.Trigger(ctx, hooks.PreSet, p)

	start := k.clock.Now()
	data, err := k.encode(p.Value, types.ExpiresAt(start, p.TTL))
	if err != nil {
		k.observe("set", start, statusError)
		return false, k.serializationError("set", p.Key, err)
	}

	v := k.view()
	if err := v.store.Set(ctx, v.key(p.Key), data, p.TTL); err != nil {
		k.observe("set", start, statusError)
		k.hooks.Trigger(ctx, hooks.PostSet, p)
		return false, k.fail("set", p.Key, v, err)
	}

	k.stats.Set()
	k.observe("set", start, statusOK)
	p.OK = true
	k.hooks.Trigger(ctx, hooks.PostSet, p)
	return true, nil
}

// Delete removes key and reports whether it existed.
func (k *Keyv[V]) Delete(ctx context.Context, key string) (bool, error) {
	if err := k.check(key); err != nil {
		return false, err
	}
	return k.remove(ctx, "delete", []string{key})
}

func (k *Keyv[V]) remove(ctx context.Context, op string, keys []string) (bool, error) {
	p := &DeletePayload{Keys: keys}
	k.hooks.Trigger(ctx, hooks.PreDelete, p)

	start := k.clock.Now()
	deleted, err := k.deleteKeys(ctx, k.view(), op, p.Keys)
	if err != nil {
		k.observe(op, start, statusError)
		return false, err
	}
	k.observe(op, start, statusOK)

	p.Deleted = deleted
	k.hooks.Trigger(ctx, hooks.PostDelete, p)
	return p.Deleted, nil
}

// Has reports whether a live entry exists under key.
func (k *Keyv[V]) Has(ctx context.Context, key string) (bool, error) {
	if err := k.check(key); err != nil {
		return false, err
	}
	start := k.clock.Now()
	ok, err := k.has(ctx, k.view(), key)
	status := statusMiss
	switch {
	case err != nil:
		status = statusError
	case ok:
		status = statusHit
	}
	k.observe("has", start, status)
	return ok, err
}

// has asks the store natively when it can. Every built-in store enforces its
// own ttl, so the native answer agrees with Get; otherwise Get decides.
func (k *Keyv[V]) has(ctx context.Context, v view, key string) (bool, error) {
	if h, ok := v.store.(types.Haser); ok {
		found, err := h.Has(ctx, v.key(key))
		if err != nil {
			return false, k.fail("has", key, v, err)
		}
		return found, nil
	}
	env, err := k.fetch(ctx, v, key)
	return env != nil, err
}

// Clear removes every entry of the active namespace.
func (k *Keyv[V]) Clear(ctx context.Context) error {
	if k.closed.Load() {
		return types.ErrClosed
	}
	start := k.clock.Now()
	v := k.view()

	var err error
	if it, ok := v.store.(types.IterableStore); ok && v.prefix != "" {
		err = k.clearPrefix(ctx, v, it)
	} else {
		err = v.store.Clear(ctx)
	}
	if err != nil {
		k.observe("clear", start, statusError)
		return k.fail("clear", "", v, err)
	}
	k.observe("clear", start, statusOK)
	k.events.Emit(events.EventClear)
	return nil
}

// clearPrefix deletes orchestrator-prefixed keys one namespace at a time so a
// shared store keeps the other namespaces.
func (k *Keyv[V]) clearPrefix(ctx context.Context, v view, it types.IterableStore) error {
	seq, err := it.Iterator(ctx, "")
	if err != nil {
		return err
	}
	var doomed []string
	for key := range seq {
		if strings.HasPrefix(key, v.prefix) {
			doomed = append(doomed, key)
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	if bd, ok := v.store.(types.BatchDeleter); ok {
		_, err := bd.DeleteMany(ctx, doomed)
		return err
	}
	for _, key := range doomed {
		if _, err := v.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the store when it supports it.
func (k *Keyv[V]) Ping(ctx context.Context) error {
	if k.closed.Load() {
		return types.ErrClosed
	}
	if p, ok := k.Store().(types.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Disconnect stops background publishing and releases the store. Later calls
// return nil.
func (k *Keyv[V]) Disconnect(ctx context.Context) error {
	if k.closed.Swap(true) {
		return nil
	}
	if k.background != nil {
		k.background.Stop()
	}

	store := k.Store()
	var err error
	if d, ok := store.(types.Disconnecter); ok {
		err = d.Disconnect(ctx)
	}

	k.mu.Lock()
	if k.unsubscribe != nil {
		k.unsubscribe()
		k.unsubscribe = nil
	}
	k.mu.Unlock()

	k.events.Emit(events.EventDisconnect)
	if err != nil {
		return types.NewStoreError("disconnect", "", storeName(store), err)
	}
	return nil
}
