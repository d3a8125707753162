// Package keyv is a key-value cache with one API over many backends.
//
// Values are wrapped in an envelope holding an optional absolute deadline, so
// expiry works the same on every store: expired entries are deleted the first
// time a read sees them. Backends range from in-process maps (plain map, LRU,
// bigcache, ristretto) to Redis (single node, sentinel or cluster), etcd,
// MongoDB and PostgreSQL.
//
// # Quick Start
//
//	cache, err := keyv.New[User]()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cache.Disconnect(ctx)
//
//	_, err = cache.Set(ctx, "user:1", user, keyv.WithTTL(5*time.Minute))
//	u, found, err := cache.Get(ctx, "user:1")
//
// # Namespaces
//
// A namespace isolates one logical cache inside a shared store. Stores that
// understand namespaces prefix keys themselves ("ns::key"); for the others
// the orchestrator prefixes keys with the namespace and ":".
//
//	sessions, _ := keyv.New[Session](keyv.WithStore(store), keyv.WithNamespace("sessions"))
//
// # Configuration
//
// Load a JSON or YAML file, with KEYV_* environment overrides:
//
//	cache, err := keyv.Open[User](ctx, "keyv.yaml")
//
// Or start from the defaults:
//
//	cfg := keyv.Config()
//	cfg.Store.Backend = "redis"
//	cfg.Redis.Address = "localhost:6379"
//	cache, err := keyv.NewFromConfig[User](ctx, cfg)
//
// # Tiered Caching
//
// A tiered cache reads a fast local tier first and falls back to a remote
// tier, writing remote hits back locally with the ttl they have left:
//
//	local, _ := keyv.New[User]()
//	remote, _ := keyv.New[User](keyv.WithStore(redisStore))
//	tc, err := keyv.NewTiered(local, remote, &keyv.TieredOptions[User]{AsyncBackfill: true})
//
// # Hooks and Events
//
// Hooks run before and after each operation and may rewrite its payload.
// Errors raised by stores surface on the "error" event:
//
//	cache.OnError(func(err error) { log.Println(err) })
//
// # Thread Safety
//
// All operations are safe for concurrent use.
package keyv
