package cache

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/resilience"
	"github.com/LavishGent/keyv/internal/types"
)

const (
	defaultMongoDatabase   = "keyv"
	defaultMongoCollection = "keyv"
)

type mongoDoc struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty"`
}

func (d *mongoDoc) expired(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

//nolint:govet // Options struct - logical grouping prioritized over alignment
type MongoOptions struct {
	Namespace   string
	Separator   string
	CloseClient bool
	Policy      *resilience.Policy
	Logger      *slog.Logger
	Clock       clockwork.Clock
}

// MongoStore keeps one document per key. A TTL index on expiresAt removes
// expired documents in the background and reads skip any the sweeper has not
// reached yet.
type MongoStore struct {
	*events.Manager

	client *mongo.Client
	coll   *mongo.Collection
	opts   MongoOptions
	logger *slog.Logger
	clock  clockwork.Clock

	mu        sync.RWMutex
	namespace string
	closed    atomic.Bool
}

func NewMongoStore(client *mongo.Client, coll *mongo.Collection, opts MongoOptions) (*MongoStore, error) {
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
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &MongoStore{
		client:    client,
		coll:      coll,
		opts:      opts,
		logger:    logger.With("component", "mongo-store"),
		clock:     clock,
		namespace: opts.Namespace,
	}
	s.Manager = events.NewManager(s.logger)
	return s, nil
}

// OpenMongoStore connects, pings and makes sure the TTL index exists.
func OpenMongoStore(ctx context.Context, cfg config.MongoConfig, policy *resilience.Policy, logger *slog.Logger) (*MongoStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI.Value()).SetTimeout(timeout))
	if err != nil {
		return nil, types.NewStoreError("connect", "", "mongo", err)
	}

	database := cfg.Database
	if database == "" {
		database = defaultMongoDatabase
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultMongoCollection
	}
	coll := client.Database(database).Collection(collection)

	s, err := NewMongoStore(client, coll, MongoOptions{CloseClient: true, Policy: policy, Logger: logger})
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}

	setupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Ping(setupCtx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	if err := s.EnsureIndexes(setupCtx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the expiresAt TTL index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return types.NewStoreError("ensureIndexes", "", "mongo", err)
	}
	return nil
}

func (s *MongoStore) Collection() *mongo.Collection {
	return s.coll
}

func (s *MongoStore) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

func (s *MongoStore) SetNamespace(namespace string) error {
	if err := types.ValidateNamespace(namespace, s.opts.Separator); err != nil {
		return err
	}
	s.mu.Lock()
	s.namespace = namespace
	s.mu.Unlock()
	return nil
}

func (s *MongoStore) do(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	if err := s.opts.Policy.Execute(ctx, fn); err != nil {
		return types.NewStoreError(op, key, "mongo", err)
	}
	return nil
}

// namespaceFilter matches the documents owned by namespace.
func (s *MongoStore) namespaceFilter(namespace string) bson.M {
	if namespace == "" {
		return bson.M{"_id": bson.M{"$not": bson.Regex{Pattern: regexp.QuoteMeta(s.opts.Separator)}}}
	}
	return bson.M{"_id": bson.Regex{Pattern: "^" + regexp.QuoteMeta(namespace+s.opts.Separator)}}
}

func (s *MongoStore) newDoc(pk string, value []byte, ttl time.Duration) mongoDoc {
	doc := mongoDoc{Key: pk, Value: value}
	if ttl > 0 {
		at := s.clock.Now().Add(ttl).UTC()
		doc.ExpiresAt = &at
	}
	return doc
}

func (s *MongoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)

	var doc mongoDoc
	found := false
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		err := s.coll.FindOne(ctx, bson.M{"_id": pk}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found || doc.expired(s.clock.Now()) {
		return nil, false, err
	}
	return doc.Value, true, nil
}

func (s *MongoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	doc := s.newDoc(KeyPrefix(key, s.Namespace(), s.opts.Separator), value, ttl)
	return s.do(ctx, "set", key, func(ctx context.Context) error {
		_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
		return err
	})
}

func (s *MongoStore) Delete(ctx context.Context, key string) (bool, error) {
	pk := KeyPrefix(key, s.Namespace(), s.opts.Separator)

	var deleted int64
	err := s.do(ctx, "delete", key, func(ctx context.Context) error {
		res, err := s.coll.DeleteOne(ctx, bson.M{"_id": pk})
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	return deleted > 0, err
}

func (s *MongoStore) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.Get(ctx, key)
	return found, err
}

// find decodes every live document matching filter.
func (s *MongoStore) find(ctx context.Context, op string, filter any) (map[string]mongoDoc, error) {
	docs := make(map[string]mongoDoc)
	err := s.do(ctx, op, "", func(ctx context.Context) error {
		cur, err := s.coll.Find(ctx, filter)
		if err != nil {
			return err
		}
		var batch []mongoDoc
		if err := cur.All(ctx, &batch); err != nil {
			return err
		}
		now := s.clock.Now()
		for _, d := range batch {
			if !d.expired(now) {
				docs[d.Key] = d
			}
		}
		return nil
	})
	return docs, err
}

func (s *MongoStore) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	prefixed := prefixAll(keys, s.Namespace(), s.opts.Separator)
	docs, err := s.find(ctx, "getMany", bson.M{"_id": bson.M{"$in": prefixed}})
	if err != nil {
		return out, err
	}
	for i, pk := range prefixed {
		if d, ok := docs[pk]; ok {
			out[i] = d.Value
		}
	}
	return out, nil
}

// SetMany upserts all entries in one unordered bulk write. Entries reported
// in the bulk write exception come back false.
func (s *MongoStore) SetMany(ctx context.Context, entries []types.RawEntry) ([]bool, error) {
	out := make([]bool, len(entries))
	if len(entries) == 0 {
		return out, nil
	}
	ns := s.Namespace()
	models := make([]mongo.WriteModel, len(entries))
	for i, e := range entries {
		doc := s.newDoc(KeyPrefix(e.Key, ns, s.opts.Separator), e.Value, e.TTL)
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.Key}).
			SetReplacement(doc).
			SetUpsert(true)
	}

	var bulkErr mongo.BulkWriteException
	err := s.do(ctx, "setMany", "", func(ctx context.Context) error {
		_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		return err
	})
	if err != nil && !errors.As(err, &bulkErr) {
		return out, err
	}
	for i := range out {
		out[i] = true
	}
	for _, we := range bulkErr.WriteErrors {
		if we.Index >= 0 && we.Index < len(out) {
			out[we.Index] = false
		}
	}
	if err != nil {
		s.EmitError(err)
	}
	return out, nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	prefixed := prefixAll(keys, s.Namespace(), s.opts.Separator)

	var deleted int64
	err := s.do(ctx, "deleteMany", "", func(ctx context.Context) error {
		res, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": prefixed}})
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	return deleted > 0, err
}

func (s *MongoStore) HasMany(ctx context.Context, keys []string) ([]bool, error) {
	out := make([]bool, len(keys))
	prefixed := prefixAll(keys, s.Namespace(), s.opts.Separator)
	docs, err := s.find(ctx, "hasMany", bson.M{"_id": bson.M{"$in": prefixed}})
	if err != nil {
		return out, err
	}
	for i, pk := range prefixed {
		_, out[i] = docs[pk]
	}
	return out, nil
}

func (s *MongoStore) Clear(ctx context.Context) error {
	filter := s.namespaceFilter(s.Namespace())
	err := s.do(ctx, "clear", "", func(ctx context.Context) error {
		_, err := s.coll.DeleteMany(ctx, filter)
		return err
	})
	if err == nil {
		s.Emit(events.EventClear)
	}
	return err
}

// Iterator streams the namespace with a cursor, skipping expired documents.
func (s *MongoStore) Iterator(ctx context.Context, namespace string) (iter.Seq2[string, []byte], error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}
	prefix := ""
	if namespace != "" {
		prefix = namespace + s.opts.Separator
	}
	filter := s.namespaceFilter(namespace)

	return func(yield func(string, []byte) bool) {
		cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			s.EmitError(types.NewStoreError("iterator", "", "mongo", err))
			return
		}
		defer cur.Close(context.WithoutCancel(ctx))

		for cur.Next(ctx) {
			var doc mongoDoc
			if err := cur.Decode(&doc); err != nil {
				s.EmitError(types.NewStoreError("iterator", "", "mongo", err))
				return
			}
			if doc.expired(s.clock.Now()) {
				continue
			}
			if !yield(strings.TrimPrefix(doc.Key, prefix), doc.Value) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			s.EmitError(types.NewStoreError("iterator", "", "mongo", err))
		}
	}, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return types.NewStoreError("ping", "", "mongo", err)
	}
	return nil
}

func (s *MongoStore) Disconnect(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.Emit(events.EventDisconnect)
	if !s.opts.CloseClient {
		return nil
	}
	return s.client.Disconnect(ctx)
}

var (
	_ types.BatchStore    = (*MongoStore)(nil)
	_ types.IterableStore = (*MongoStore)(nil)
	_ types.Namespacer    = (*MongoStore)(nil)
	_ types.Pinger        = (*MongoStore)(nil)
	_ types.Disconnecter  = (*MongoStore)(nil)
)
