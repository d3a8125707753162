package cache

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/resilience"
	"github.com/LavishGent/keyv/internal/types"
)

const defaultPostgresTable = "keyv"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

//nolint:govet // Options struct - logical grouping prioritized over alignment
type PostgresOptions struct {
	Namespace string
	Separator string
	Table     string
	// ClosePool closes the pool on Disconnect.
	ClosePool bool
	Policy    *resilience.Policy
	Logger    *slog.Logger
	Clock     clockwork.Clock
}

// PostgresStore keeps entries in a key/value/expires table. Expired rows are
// filtered on read and removed lazily.
type PostgresStore struct {
	*events.Manager

	pool   *pgxpool.Pool
	opts   PostgresOptions
	logger *slog.Logger
	clock  clockwork.Clock

	mu        sync.RWMutex
	namespace string
	closed    atomic.Bool

	q queries
}

type queries struct {
	get, upsert, del, has, getMany, delMany, clearLike, clearBare, iterLike, iterBare, create string
}

func newQueries(table string) queries {
	return queries{
		create:    fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key text PRIMARY KEY, value bytea NOT NULL, expires bigint)`, table),
		get:       fmt.Sprintf(`SELECT value, expires FROM %s WHERE key = $1`, table),
		upsert:    fmt.Sprintf(`INSERT INTO %s (key, value, expires) VALUES ($1, $2, $3) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires = EXCLUDED.expires`, table),
		del:       fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, table),
		has:       fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1 AND (expires IS NULL OR expires > $2))`, table),
		getMany:   fmt.Sprintf(`SELECT key, value FROM %s WHERE key = ANY($1) AND (expires IS NULL OR expires > $2)`, table),
		delMany:   fmt.Sprintf(`DELETE FROM %s WHERE key = ANY($1)`, table),
		clearLike: fmt.Sprintf(`DELETE FROM %s WHERE key LIKE $1`, table),
		clearBare: fmt.Sprintf(`DELETE FROM %s WHERE strpos(key, $1) = 0`, table),
		iterLike:  fmt.Sprintf(`SELECT key, value FROM %s WHERE key LIKE $1 AND (expires IS NULL OR expires > $2) ORDER BY key`, table),
		iterBare:  fmt.Sprintf(`SELECT key, value FROM %s WHERE strpos(key, $1) = 0 AND (expires IS NULL OR expires > $2) ORDER BY key`, table),
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts PostgresOptions) (*PostgresStore, error) {
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	if opts.Table == "" {
		opts.Table = defaultPostgresTable
	}
	if !tableNamePattern.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid postgres table name %q", opts.Table)
	}
	if err := types.ValidateNamespace(opts.Namespace, opts.Separator); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &PostgresStore{
		pool:      pool,
		opts:      opts,
		logger:    logger.With("component", "postgres-store"),
		clock:     clock,
		namespace: opts.Namespace,
		q:         newQueries(opts.Table),
	}
	s.Manager = events.NewManager(s.logger)
	return s, nil
}

// OpenPostgresStore builds a pool from cfg and creates the table if needed.
func OpenPostgresStore(ctx context.Context, cfg config.PostgresConfig, policy *resilience.Policy, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Value())
	if err != nil {
		return nil, types.NewStoreError("connect", "", "postgres", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewStoreError("connect", "", "postgres", err)
	}

	s, err := NewPostgresStore(pool, PostgresOptions{
		Table:     cfg.Table,
		ClosePool: true,
		Policy:    policy,
		Logger:    logger,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, s.q.create); err != nil {
		return types.NewStoreError("migrate", "", "postgres", err)
	}
	return nil
}

func (s *PostgresStore) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

func (s *PostgresStore) SetNamespace(namespace string) error {
	if err := types.ValidateNamespace(namespace, s.opts.Separator); err != nil {
		return err
	}
	s.mu.Lock()
	s.namespace = namespace
	s.mu.Unlock()
	return nil
}

func (s *PostgresStore) do(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	if err := s.opts.Policy.Execute(ctx, fn); err != nil {
		return types.NewStoreError(op, key, "postgres", err)
	}
	return nil
}

func (s *PostgresStore) now() int64 {
	return s.clock.Now().UnixMilli()
}

func (s *PostgresStore) expires(ttl time.Duration) *int64 {
	return types.ExpiresAt(s.clock.Now(), ttl)
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)

	var value []byte
	var expires *int64
	found := false
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		err := s.pool.QueryRow(ctx, s.q.get, pk).Scan(&value, &expires)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	if expires != nil && *expires <= s.now() {
		if _, err := s.pool.Exec(ctx, s.q.del, pk); err != nil {
			s.logger.Debug("Failed to delete expired row", "key", pk, "error", err)
		}
		return nil, false, nil
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)
	exp := s.expires(ttl)
	return s.do(ctx, "set", key, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, s.q.upsert, pk, value, exp)
		return err
	})
}

func (s *PostgresStore) Delete(ctx context.Context, key string) (bool, error) {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)

	var deleted int64
	err := s.do(ctx, "delete", key, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, s.q.del, pk)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted > 0, err
}

func (s *PostgresStore) Has(ctx context.Context, key string) (bool, error) {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)

	var exists bool
	err := s.do(ctx, "has", key, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, s.q.has, pk, s.now()).Scan(&exists)
	})
	return exists, err
}

func (s *PostgresStore) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	prefixed := prefixAll(keys, s.Namespace(), s.opts.Separator)

	found := make(map[string][]byte, len(keys))
	err := s.do(ctx, "getMany", "", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, s.q.getMany, prefixed, s.now())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			var v []byte
			if err := rows.Scan(&k, &v); err != nil {
				return err
			}
			found[k] = v
		}
		return rows.Err()
	})
	if err != nil {
		return out, err
	}
	for i, pk := range prefixed {
		out[i] = found[pk]
	}
	return out, nil
}

// SetMany upserts all entries in one batch round trip.
func (s *PostgresStore) SetMany(ctx context.Context, entries []types.RawEntry) ([]bool, error) {
	out := make([]bool, len(entries))
	if len(entries) == 0 {
		return out, nil
	}
	ns := s.Namespace()

	err := s.do(ctx, "setMany", "", func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(s.q.upsert, KeyPrefix(e.Key, ns, s.opts.Separator), e.Value, s.expires(e.TTL))
		}
		results := s.pool.SendBatch(ctx, batch)
		var firstErr error
		for i := range entries {
			_, err := results.Exec()
			out[i] = err == nil
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := results.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	})
	if err != nil {
		s.EmitError(err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	prefixed := prefixAll(keys, s.Namespace(), s.opts.Separator)

	var deleted int64
	err := s.do(ctx, "deleteMany", "", func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, s.q.delMany, prefixed)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted > 0, err
}

func (s *PostgresStore) HasMany(ctx context.Context, keys []string) ([]bool, error) {
	values, err := s.GetMany(ctx, keys)
	out := make([]bool, len(keys))
	for i, v := range values {
		out[i] = v != nil
	}
	return out, err
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	ns := s.Namespace()
	err := s.do(ctx, "clear", "", func(ctx context.Context) error {
		var err error
		if ns == "" {
			_, err = s.pool.Exec(ctx, s.q.clearBare, s.opts.Separator)
		} else {
			_, err = s.pool.Exec(ctx, s.q.clearLike, likeReplacer.Replace(ns+s.opts.Separator)+"%")
		}
		return err
	})
	if err == nil {
		s.Emit(events.EventClear)
	}
	return err
}

func (s *PostgresStore) Iterator(ctx context.Context, namespace string) (iter.Seq2[string, []byte], error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}
	query, arg, prefix := s.q.iterBare, s.opts.Separator, ""
	if namespace != "" {
		prefix = namespace + s.opts.Separator
		query, arg = s.q.iterLike, likeReplacer.Replace(prefix)+"%"
	}

	return func(yield func(string, []byte) bool) {
		rows, err := s.pool.Query(ctx, query, arg, s.now())
		if err != nil {
			s.EmitError(types.NewStoreError("iterator", "", "postgres", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			var v []byte
			if err := rows.Scan(&k, &v); err != nil {
				s.EmitError(types.NewStoreError("iterator", "", "postgres", err))
				return
			}
			if !yield(strings.TrimPrefix(k, prefix), v) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			s.EmitError(types.NewStoreError("iterator", "", "postgres", err))
		}
	}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return types.NewStoreError("ping", "", "postgres", err)
	}
	return nil
}

func (s *PostgresStore) Disconnect(context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.Emit(events.EventDisconnect)
	if s.opts.ClosePool {
		s.pool.Close()
	}
	return nil
}

var (
	_ types.BatchStore    = (*PostgresStore)(nil)
	_ types.IterableStore = (*PostgresStore)(nil)
	_ types.Namespacer    = (*PostgresStore)(nil)
	_ types.Pinger        = (*PostgresStore)(nil)
	_ types.Disconnecter  = (*PostgresStore)(nil)
)
