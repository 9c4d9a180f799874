// Package redlite provides embedded and server mode clients for the redlite
// Redis-compatible database.
//
// Unified API:
//
//	// Embedded mode (shared library in-process, no network)
//	db, err := redlite.New(":memory:")
//	db, err := redlite.New("/path/to/data.db")
//
//	// Server mode (wraps go-redis)
//	db, err := redlite.New("redis://localhost:6379")
//
//	// Use the same API either way
//	db.Set(ctx, "key", []byte("value"), 0)
//	val, _ := db.Get(ctx, "key")
//
// For direct access to one backend:
//
//	// Direct embedded handle (no context)
//	lib, _ := redlite.LoadLibrary("")
//	embedded, _ := lib.Open(":memory:")
//	embedded.Set("key", []byte("value"), 0)
//
//	// Direct server connection
//	server, _ := redlite.Connect("redis://localhost:6379")
package redlite

import "strings"

// Option configures New.
type Option func(*config)

type config struct {
	cacheMB     int64
	libraryPath string
	library     *Library
}

// WithCacheMB sets the page cache size in megabytes (embedded mode only).
func WithCacheMB(mb int64) Option {
	return func(c *config) {
		c.cacheMB = mb
	}
}

// WithLibraryPath sets the path of the redlite shared library (embedded mode
// only). Without it the OS loader resolves DefaultLibraryName.
func WithLibraryPath(path string) Option {
	return func(c *config) {
		c.libraryPath = path
	}
}

// WithLibrary supplies an already loaded Library, skipping the dlopen. The
// caller keeps ownership; closing the client does not unload it.
func WithLibrary(l *Library) Option {
	return func(c *config) {
		c.library = l
	}
}

// New creates a client, picking the backend from the target:
//
//   - "redis://host:port" or "rediss://host:port" for server mode
//   - ":memory:" for an in-memory embedded database
//   - any other string is an embedded database file path
func New(target string, opts ...Option) (Client, error) {
	cfg := &config{cacheMB: 64}
	for _, opt := range opts {
		opt(cfg)
	}

	if strings.HasPrefix(target, "redis://") || strings.HasPrefix(target, "rediss://") {
		c, err := Connect(target)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	lib := cfg.library
	if lib == nil {
		var err error
		lib, err = LoadLibrary(cfg.libraryPath)
		if err != nil {
			return nil, err
		}
	}

	var db *EmbeddedDB
	var err error
	if target == MemoryTarget {
		db, err = lib.OpenMemory()
	} else {
		db, err = lib.OpenWithCache(target, cfg.cacheMB)
	}
	if err != nil {
		return nil, err
	}
	return &embeddedClient{db: db}, nil
}
