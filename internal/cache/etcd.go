package cache

import (
	"context"
	"iter"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/resilience"
	"github.com/LavishGent/keyv/internal/types"
)

// etcdMaxTxnOps is the default --max-txn-ops of an etcd server.
const etcdMaxTxnOps = 128

const etcdPageSize = 500

//nolint:govet // Options struct - logical grouping prioritized over alignment
type EtcdOptions struct {
	Namespace   string
	Separator   string
	CloseClient bool
	Policy      *resilience.Policy
	Logger      *slog.Logger
}

// EtcdStore keeps entries as etcd keys. TTLs are leases rounded up to whole
// seconds.
type EtcdStore struct {
	*events.Manager

	client *clientv3.Client
	opts   EtcdOptions
	logger *slog.Logger

	mu        sync.RWMutex
	namespace string
	closed    atomic.Bool
}

func NewEtcdStore(client *clientv3.Client, opts EtcdOptions) (*EtcdStore, error) {
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	if err := types.ValidateNamespace(opts.Namespace, opts.Separator); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &EtcdStore{
		client:    client,
		opts:      opts,
		logger:    logger.With("component", "etcd-store"),
		namespace: opts.Namespace,
	}
	s.Manager = events.NewManager(s.logger)
	return s, nil
}

// OpenEtcdStore dials the configured endpoints and checks the first one.
func OpenEtcdStore(ctx context.Context, cfg config.EtcdConfig, policy *resilience.Policy, logger *slog.Logger) (*EtcdStore, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password.Value(),
	})
	if err != nil {
		return nil, types.NewStoreError("connect", "", "etcd", err)
	}

	s, err := NewEtcdStore(client, EtcdOptions{CloseClient: true, Policy: policy, Logger: logger})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *EtcdStore) Client() *clientv3.Client {
	return s.client
}

func (s *EtcdStore) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

func (s *EtcdStore) SetNamespace(namespace string) error {
	if err := types.ValidateNamespace(namespace, s.opts.Separator); err != nil {
		return err
	}
	s.mu.Lock()
	s.namespace = namespace
	s.mu.Unlock()
	return nil
}

func (s *EtcdStore) do(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	if err := s.opts.Policy.Execute(ctx, fn); err != nil {
		return types.NewStoreError(op, key, "etcd", err)
	}
	return nil
}

func (s *EtcdStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)

	var resp *clientv3.GetResponse
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		var err error
		resp, err = s.client.Get(ctx, pk)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

func (s *EtcdStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)
	return s.do(ctx, "set", key, func(ctx context.Context) error {
		return s.put(ctx, pk, value, ttl)
	})
}

func (s *EtcdStore) put(ctx context.Context, pk string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		_, err := s.client.Put(ctx, pk, string(value))
		return err
	}

	seconds := int64(math.Ceil(ttl.Seconds()))
	lease, err := s.client.Grant(ctx, seconds)
	if err != nil {
		return err
	}
	if _, err := s.client.Put(ctx, pk, string(value), clientv3.WithLease(lease.ID)); err != nil {
		revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_, _ = s.client.Revoke(revokeCtx, lease.ID)
		return err
	}
	return nil
}

func (s *EtcdStore) Delete(ctx context.Context, key string) (bool, error) {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)

	var deleted int64
	err := s.do(ctx, "delete", key, func(ctx context.Context) error {
		resp, err := s.client.Delete(ctx, pk)
		if err != nil {
			return err
		}
		deleted = resp.Deleted
		return nil
	})
	return deleted > 0, err
}

func (s *EtcdStore) Has(ctx context.Context, key string) (bool, error) {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)

	var count int64
	err := s.do(ctx, "has", key, func(ctx context.Context) error {
		resp, err := s.client.Get(ctx, pk, clientv3.WithCountOnly())
		if err != nil {
			return err
		}
		count = resp.Count
		return nil
	})
	return count > 0, err
}

// txn commits ops in server-sized chunks and hands every response to fn with
// the index of its op.
func (s *EtcdStore) txn(ctx context.Context, op string, ops []clientv3.Op, fn func(i int, resp *clientv3.TxnResponse, j int)) error {
	for start := 0; start < len(ops); start += etcdMaxTxnOps {
		end := min(start+etcdMaxTxnOps, len(ops))
		chunk := ops[start:end]

		var resp *clientv3.TxnResponse
		err := s.do(ctx, op, "", func(ctx context.Context) error {
			var err error
			resp, err = s.client.Txn(ctx).Then(chunk...).Commit()
			return err
		})
		if err != nil {
			return err
		}
		for j := range chunk {
			fn(start+j, resp, j)
		}
	}
	return nil
}

func (s *EtcdStore) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	ops := make([]clientv3.Op, len(keys))
	for i, pk := range prefixAll(keys, s.Namespace(), s.opts.Separator) {
		ops[i] = clientv3.OpGet(pk)
	}
	err := s.txn(ctx, "getMany", ops, func(i int, resp *clientv3.TxnResponse, j int) {
		if kvs := resp.Responses[j].GetResponseRange().GetKvs(); len(kvs) > 0 {
			out[i] = kvs[0].Value
		}
	})
	if err != nil {
		return make([][]byte, len(keys)), err
	}
	return out, nil
}

// SetMany writes entries one by one since each TTL needs its own lease.
func (s *EtcdStore) SetMany(ctx context.Context, entries []types.RawEntry) ([]bool, error) {
	out := make([]bool, len(entries))
	ns := s.Namespace()
	for i, e := range entries {
		pk := KeyPrefix(e.Key, ns, s.opts.Separator)
		err := s.do(ctx, "setMany", e.Key, func(ctx context.Context) error {
			return s.put(ctx, pk, e.Value, e.TTL)
		})
		if err != nil {
			s.EmitError(err)
			continue
		}
		out[i] = true
	}
	return out, nil
}

func (s *EtcdStore) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	ops := make([]clientv3.Op, len(keys))
	for i, pk := range prefixAll(keys, s.Namespace(), s.opts.Separator) {
		ops[i] = clientv3.OpDelete(pk)
	}
	var deleted int64
	err := s.txn(ctx, "deleteMany", ops, func(_ int, resp *clientv3.TxnResponse, j int) {
		deleted += resp.Responses[j].GetResponseDeleteRange().GetDeleted()
	})
	return deleted > 0, err
}

func (s *EtcdStore) HasMany(ctx context.Context, keys []string) ([]bool, error) {
	out := make([]bool, len(keys))
	ops := make([]clientv3.Op, len(keys))
	for i, pk := range prefixAll(keys, s.Namespace(), s.opts.Separator) {
		ops[i] = clientv3.OpGet(pk, clientv3.WithCountOnly())
	}
	err := s.txn(ctx, "hasMany", ops, func(i int, resp *clientv3.TxnResponse, j int) {
		out[i] = resp.Responses[j].GetResponseRange().GetCount() > 0
	})
	if err != nil {
		return make([]bool, len(keys)), err
	}
	return out, nil
}

// Clear deletes the namespace prefix in one request. Without a namespace the
// keyspace is paged and only keys without a separator are removed.
func (s *EtcdStore) Clear(ctx context.Context) error {
	ns := s.Namespace()
	if ns != "" {
		prefix := ns + s.opts.Separator
		err := s.do(ctx, "clear", "", func(ctx context.Context) error {
			_, err := s.client.Delete(ctx, prefix, clientv3.WithPrefix())
			return err
		})
		if err == nil {
			s.Emit(events.EventClear)
		}
		return err
	}

	var owned []clientv3.Op
	err := s.scan(ctx, "", true, func(key string, _ []byte) bool {
		if !strings.Contains(key, s.opts.Separator) {
			owned = append(owned, clientv3.OpDelete(key))
		}
		return true
	})
	if err != nil {
		return err
	}
	if err := s.txn(ctx, "clear", owned, func(int, *clientv3.TxnResponse, int) {}); err != nil {
		return err
	}
	s.Emit(events.EventClear)
	return nil
}

// scan pages through every key starting with prefix in key order. An empty
// prefix covers the whole keyspace.
func (s *EtcdStore) scan(ctx context.Context, prefix string, keysOnly bool, fn func(key string, value []byte) bool) error {
	start, end := prefix, clientv3.GetPrefixRangeEnd(prefix)
	if prefix == "" {
		start, end = "\x00", "\x00"
	}

	for {
		opts := []clientv3.OpOption{
			clientv3.WithRange(end),
			clientv3.WithLimit(etcdPageSize),
			clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
		}
		if keysOnly {
			opts = append(opts, clientv3.WithKeysOnly())
		}

		var resp *clientv3.GetResponse
		err := s.do(ctx, "scan", "", func(ctx context.Context) error {
			var err error
			resp, err = s.client.Get(ctx, start, opts...)
			return err
		})
		if err != nil {
			return err
		}
		for _, kv := range resp.Kvs {
			if !fn(string(kv.Key), kv.Value) {
				return nil
			}
		}
		if !resp.More || len(resp.Kvs) == 0 {
			return nil
		}
		start = string(resp.Kvs[len(resp.Kvs)-1].Key) + "\x00"
	}
}

// Iterator yields the entries of namespace with the prefix removed.
func (s *EtcdStore) Iterator(ctx context.Context, namespace string) (iter.Seq2[string, []byte], error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}
	prefix := ""
	if namespace != "" {
		prefix = namespace + s.opts.Separator
	}
	return func(yield func(string, []byte) bool) {
		err := s.scan(ctx, prefix, false, func(key string, value []byte) bool {
			if !inNamespace(key, namespace, s.opts.Separator) {
				return true
			}
			return yield(strings.TrimPrefix(key, prefix), value)
		})
		if err != nil {
			s.EmitError(err)
		}
	}, nil
}

func (s *EtcdStore) Ping(ctx context.Context) error {
	endpoints := s.client.Endpoints()
	if len(endpoints) == 0 {
		return types.NewStoreError("ping", "", "etcd", types.ErrConnection)
	}
	if _, err := s.client.Status(ctx, endpoints[0]); err != nil {
		return types.NewStoreError("ping", "", "etcd", err)
	}
	return nil
}

func (s *EtcdStore) Disconnect(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.Emit(events.EventDisconnect)
	if !s.opts.CloseClient {
		return nil
	}
	return s.client.Close()
}

var (
	_ types.BatchStore    = (*EtcdStore)(nil)
	_ types.IterableStore = (*EtcdStore)(nil)
	_ types.Namespacer    = (*EtcdStore)(nil)
	_ types.Pinger        = (*EtcdStore)(nil)
	_ types.Disconnecter  = (*EtcdStore)(nil)
)
