package redlite

import (
	"math"
	"strconv"
	"time"
)

// MemoryTarget is the special path that opens a private in-memory database.
const MemoryTarget = ":memory:"

// EmbeddedDB is a direct in-process connection to the redlite engine through
// its foreign-function boundary. No server process, no network.
//
// An EmbeddedDB is exactly as thread-safe as the engine itself: this layer
// adds no locking, and the engine's last-error slot is shared, so concurrent
// use of one handle can misattribute error messages. Calls block until the
// engine returns; there is no cancellation.
type EmbeddedDB struct {
	lib    *Library
	handle uintptr
}

// ZMemberScore is a sorted-set member with its score. Identity is the member
// bytes; the score is data.
type ZMemberScore struct {
	Member []byte
	Score  float64
}

// HashEntry is one field/value pair from a hash scan.
type HashEntry struct {
	Field string
	Value []byte
}

// Open opens an embedded database at the given path.
// Use ":memory:" for an in-memory database.
func (l *Library) Open(path string) (*EmbeddedDB, error) {
	if path == MemoryTarget {
		return l.OpenMemory()
	}
	h := l.fn.open(path)
	if h == 0 {
		return nil, &OpenError{Target: path, Err: &EngineError{Message: l.lastErrorOr("open failed")}}
	}
	return &EmbeddedDB{lib: l, handle: h}, nil
}

// OpenMemory opens an in-memory embedded database.
func (l *Library) OpenMemory() (*EmbeddedDB, error) {
	h := l.fn.openMemory()
	if h == 0 {
		return nil, &OpenError{Target: MemoryTarget, Err: &EngineError{Message: l.lastErrorOr("open failed")}}
	}
	return &EmbeddedDB{lib: l, handle: h}, nil
}

// OpenWithCache opens an embedded database with a custom page-cache size.
func (l *Library) OpenWithCache(path string, cacheMB int64) (*EmbeddedDB, error) {
	h := l.fn.openWithCache(path, cacheMB)
	if h == 0 {
		return nil, &OpenError{Target: path, Err: &EngineError{Message: l.lastErrorOr("open failed")}}
	}
	return &EmbeddedDB{lib: l, handle: h}, nil
}

func (l *Library) lastErrorOr(fallback string) string {
	if msg := l.lastError(); msg != "" {
		return msg
	}
	return fallback
}

// Close releases the native handle. Close is idempotent; only the first call
// releases engine resources.
func (db *EmbeddedDB) Close() error {
	if db.handle != 0 {
		db.lib.fn.close(db.handle)
		db.handle = 0
	}
	return nil
}

func (db *EmbeddedDB) checkOpen() error {
	if db.handle == 0 {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// String Commands
// =============================================================================

// Get returns the value of a key, or nil if the key does not exist.
func (db *EmbeddedDB) Get(key string) ([]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytes(db.lib.fn.get(db.handle, key)), nil
}

// Set sets the value of a key with an optional TTL (0 means no expiry).
func (db *EmbeddedDB) Set(key string, value []byte, ttl time.Duration) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	ttlSeconds := int64(0)
	if ttl > 0 {
		ttlSeconds = int64(ttl.Seconds())
	}
	var st argStage
	defer st.release()
	p, n := st.bytes(value)
	if db.lib.fn.set(db.handle, key, p, n, ttlSeconds) < 0 {
		return db.engineErr()
	}
	return nil
}

// SetEx sets the value with an expiration in seconds.
func (db *EmbeddedDB) SetEx(key string, seconds int64, value []byte) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	var st argStage
	defer st.release()
	p, n := st.bytes(value)
	if db.lib.fn.setex(db.handle, key, seconds, p, n) < 0 {
		return db.engineErr()
	}
	return nil
}

// PSetEx sets the value with an expiration in milliseconds.
func (db *EmbeddedDB) PSetEx(key string, millis int64, value []byte) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	var st argStage
	defer st.release()
	p, n := st.bytes(value)
	if db.lib.fn.psetex(db.handle, key, millis, p, n) < 0 {
		return db.engineErr()
	}
	return nil
}

// GetDel returns the value of a key and deletes it.
func (db *EmbeddedDB) GetDel(key string) ([]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytes(db.lib.fn.getdel(db.handle, key)), nil
}

// Append appends value to key and returns the new length.
func (db *EmbeddedDB) Append(key string, value []byte) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	var st argStage
	defer st.release()
	p, n := st.bytes(value)
	result := db.lib.fn.appendCmd(db.handle, key, p, n)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// StrLen returns the length of the value stored at key.
func (db *EmbeddedDB) StrLen(key string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.strlenCmd(db.handle, key)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// GetRange returns a substring of the value. Negative indices address from
// the end.
func (db *EmbeddedDB) GetRange(key string, start, end int64) ([]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytes(db.lib.fn.getrange(db.handle, key, start, end)), nil
}

// SetRange overwrites part of the value starting at offset, returning the
// new length.
func (db *EmbeddedDB) SetRange(key string, offset int64, value []byte) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	var st argStage
	defer st.release()
	p, n := st.bytes(value)
	result := db.lib.fn.setrange(db.handle, key, offset, p, n)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// Incr increments a key by 1.
func (db *EmbeddedDB) Incr(key string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.incr(db.handle, key)
	if result == math.MinInt64 {
		return 0, db.engineErr()
	}
	return result, nil
}

// Decr decrements a key by 1.
func (db *EmbeddedDB) Decr(key string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.decr(db.handle, key)
	if result == math.MinInt64 {
		return 0, db.engineErr()
	}
	return result, nil
}

// IncrBy increments a key by amount.
func (db *EmbeddedDB) IncrBy(key string, amount int64) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.incrby(db.handle, key, amount)
	if result == math.MinInt64 {
		return 0, db.engineErr()
	}
	return result, nil
}

// DecrBy decrements a key by amount.
func (db *EmbeddedDB) DecrBy(key string, amount int64) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.decrby(db.handle, key, amount)
	if result == math.MinInt64 {
		return 0, db.engineErr()
	}
	return result, nil
}

// IncrByFloat increments the float value of a key. The engine reports the
// new value as a string; a malformed string is a MarshalError.
func (db *EmbeddedDB) IncrByFloat(key string, amount float64) (float64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	p := db.lib.fn.incrbyfloat(db.handle, key, amount)
	if p == 0 {
		return 0, db.engineErr()
	}
	s := db.lib.takeString(p)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &MarshalError{What: "incrbyfloat result " + strconv.Quote(s), Err: err}
	}
	return f, nil
}

// MGet returns the values of keys, nil for each missing key. With no keys it
// returns nil without calling the engine.
func (db *EmbeddedDB) MGet(keys ...string) ([][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	var st argStage
	defer st.release()
	arr := db.lib.fn.mget(db.handle, st.cStrings(keys), uintptr(len(keys)))
	values := db.lib.takeBytesArray(arr)
	if len(values) != len(keys) {
		return nil, &MarshalError{What: "mget result count"}
	}
	return values, nil
}

// MSet sets the given key/value pairs atomically. With no pairs it is a
// no-op.
func (db *EmbeddedDB) MSet(pairs map[string][]byte) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(pairs))
	values := make([][]byte, 0, len(pairs))
	for k, v := range pairs {
		keys = append(keys, k)
		values = append(values, v)
	}
	var st argStage
	defer st.release()
	if db.lib.fn.mset(db.handle, st.kvEntries(keys, values), uintptr(len(keys))) < 0 {
		return db.engineErr()
	}
	return nil
}

// =============================================================================
// Key Commands
// =============================================================================

// Del deletes keys and returns the number removed. With no keys it returns 0
// without calling the engine.
func (db *EmbeddedDB) Del(keys ...string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.del(db.handle, st.cStrings(keys), uintptr(len(keys)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// Exists returns how many of the given keys exist. With no keys it returns 0
// without calling the engine.
func (db *EmbeddedDB) Exists(keys ...string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.exists(db.handle, st.cStrings(keys), uintptr(len(keys)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// Type returns the type of a key, or "none" if it does not exist.
func (db *EmbeddedDB) Type(key string) (string, error) {
	if err := db.checkOpen(); err != nil {
		return "", err
	}
	p := db.lib.fn.keyType(db.handle, key)
	if p == 0 {
		return "none", nil
	}
	return db.lib.takeString(p), nil
}

// TTL returns the TTL of a key in seconds: -1 if no expiry, -2 if the key
// does not exist.
func (db *EmbeddedDB) TTL(key string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	return db.lib.fn.ttl(db.handle, key), nil
}

// PTTL returns the TTL of a key in milliseconds.
func (db *EmbeddedDB) PTTL(key string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	return db.lib.fn.pttl(db.handle, key), nil
}

// Expire sets a TTL in seconds. Returns false if the key does not exist.
func (db *EmbeddedDB) Expire(key string, seconds int64) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	result := db.lib.fn.expire(db.handle, key, seconds)
	if result < 0 {
		return false, db.engineErr()
	}
	return result == 1, nil
}

// PExpire sets a TTL in milliseconds.
func (db *EmbeddedDB) PExpire(key string, millis int64) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	result := db.lib.fn.pexpire(db.handle, key, millis)
	if result < 0 {
		return false, db.engineErr()
	}
	return result == 1, nil
}

// ExpireAt sets the expiry to an absolute Unix time in seconds.
func (db *EmbeddedDB) ExpireAt(key string, unixSeconds int64) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	result := db.lib.fn.expireat(db.handle, key, unixSeconds)
	if result < 0 {
		return false, db.engineErr()
	}
	return result == 1, nil
}

// PExpireAt sets the expiry to an absolute Unix time in milliseconds.
func (db *EmbeddedDB) PExpireAt(key string, unixMillis int64) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	result := db.lib.fn.pexpireat(db.handle, key, unixMillis)
	if result < 0 {
		return false, db.engineErr()
	}
	return result == 1, nil
}

// Persist removes the TTL from a key. Returns false if the key has none.
func (db *EmbeddedDB) Persist(key string) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	result := db.lib.fn.persist(db.handle, key)
	if result < 0 {
		return false, db.engineErr()
	}
	return result == 1, nil
}

// Rename renames key to newKey, overwriting any existing newKey.
func (db *EmbeddedDB) Rename(key, newKey string) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.lib.fn.rename(db.handle, key, newKey) < 0 {
		return db.engineErr()
	}
	return nil
}

// RenameNX renames key to newKey only if newKey does not exist.
func (db *EmbeddedDB) RenameNX(key, newKey string) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	result := db.lib.fn.renamenx(db.handle, key, newKey)
	if result < 0 {
		return false, db.engineErr()
	}
	return result == 1, nil
}

// Keys returns all keys matching the glob pattern.
func (db *EmbeddedDB) Keys(pattern string) ([]string, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeStringArray(db.lib.fn.keys(db.handle, pattern)), nil
}

// DBSize returns the number of keys in the database.
func (db *EmbeddedDB) DBSize() (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.dbsize(db.handle)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// FlushDB deletes all keys in the selected database.
func (db *EmbeddedDB) FlushDB() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.lib.fn.flushdb(db.handle) < 0 {
		return db.engineErr()
	}
	return nil
}

// Select switches the handle to another database index.
func (db *EmbeddedDB) Select(index int) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.lib.fn.selectDB(db.handle, int32(index)) < 0 {
		return db.engineErr()
	}
	return nil
}

// =============================================================================
// Hash Commands
// =============================================================================

// HSet sets hash fields, returning the number of new fields. With an empty
// map it returns 0 without calling the engine.
func (db *EmbeddedDB) HSet(key string, fields map[string][]byte) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}
	names := make([]string, 0, len(fields))
	values := make([][]byte, 0, len(fields))
	for f, v := range fields {
		names = append(names, f)
		values = append(values, v)
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.hset(db.handle, key, st.cStrings(names), st.bytesEntries(values), uintptr(len(names)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// HGet returns a hash field value, or nil if absent.
func (db *EmbeddedDB) HGet(key, field string) ([]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytes(db.lib.fn.hget(db.handle, key, field)), nil
}

// HDel deletes hash fields, returning the number removed.
func (db *EmbeddedDB) HDel(key string, fields ...string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.hdel(db.handle, key, st.cStrings(fields), uintptr(len(fields)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// HExists reports whether a hash field exists.
func (db *EmbeddedDB) HExists(key, field string) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	result := db.lib.fn.hexists(db.handle, key, field)
	if result < 0 {
		return false, db.engineErr()
	}
	return result == 1, nil
}

// HLen returns the number of fields in a hash.
func (db *EmbeddedDB) HLen(key string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.hlen(db.handle, key)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// HKeys returns all field names in a hash.
func (db *EmbeddedDB) HKeys(key string) ([]string, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeStringArray(db.lib.fn.hkeys(db.handle, key)), nil
}

// HVals returns all values in a hash.
func (db *EmbeddedDB) HVals(key string) ([][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytesArray(db.lib.fn.hvals(db.handle, key)), nil
}

// HGetAll returns all fields and values in a hash. The engine hands back one
// interleaved field/value array.
func (db *EmbeddedDB) HGetAll(key string) (map[string][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	flat := db.lib.takeBytesArray(db.lib.fn.hgetall(db.handle, key))
	if len(flat)%2 != 0 {
		return nil, &MarshalError{What: "hgetall result length"}
	}
	out := make(map[string][]byte, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		out[string(flat[i])] = flat[i+1]
	}
	return out, nil
}

// HMGet returns the values of the given fields, nil for each missing field.
func (db *EmbeddedDB) HMGet(key string, fields ...string) ([][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	var st argStage
	defer st.release()
	arr := db.lib.fn.hmget(db.handle, key, st.cStrings(fields), uintptr(len(fields)))
	values := db.lib.takeBytesArray(arr)
	if len(values) != len(fields) {
		return nil, &MarshalError{What: "hmget result count"}
	}
	return values, nil
}

// HIncrBy increments a hash field by an integer amount.
func (db *EmbeddedDB) HIncrBy(key, field string, amount int64) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.hincrby(db.handle, key, field, amount)
	if result == math.MinInt64 {
		return 0, db.engineErr()
	}
	return result, nil
}

// =============================================================================
// List Commands
// =============================================================================

// LPush pushes values to the head of a list, returning the new length.
func (db *EmbeddedDB) LPush(key string, values ...[]byte) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.lpush(db.handle, key, st.bytesEntries(values), uintptr(len(values)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// RPush pushes values to the tail of a list, returning the new length.
func (db *EmbeddedDB) RPush(key string, values ...[]byte) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.rpush(db.handle, key, st.bytesEntries(values), uintptr(len(values)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// LPop pops up to count values from the head of a list.
func (db *EmbeddedDB) LPop(key string, count int) ([][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytesArray(db.lib.fn.lpop(db.handle, key, uintptr(count))), nil
}

// RPop pops up to count values from the tail of a list.
func (db *EmbeddedDB) RPop(key string, count int) ([][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytesArray(db.lib.fn.rpop(db.handle, key, uintptr(count))), nil
}

// LLen returns the length of a list.
func (db *EmbeddedDB) LLen(key string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.llen(db.handle, key)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// LRange returns list elements between start and stop, inclusive. Negative
// indices address from the end.
func (db *EmbeddedDB) LRange(key string, start, stop int64) ([][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytesArray(db.lib.fn.lrange(db.handle, key, start, stop)), nil
}

// LIndex returns the element at index, or nil if out of range.
func (db *EmbeddedDB) LIndex(key string, index int64) ([]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytes(db.lib.fn.lindex(db.handle, key, index)), nil
}

// =============================================================================
// Set Commands
// =============================================================================

// SAdd adds members to a set, returning the number newly added.
func (db *EmbeddedDB) SAdd(key string, members ...[]byte) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.sadd(db.handle, key, st.bytesEntries(members), uintptr(len(members)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// SRem removes members from a set, returning the number removed.
func (db *EmbeddedDB) SRem(key string, members ...[]byte) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.srem(db.handle, key, st.bytesEntries(members), uintptr(len(members)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// SMembers returns all members of a set.
func (db *EmbeddedDB) SMembers(key string) ([][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytesArray(db.lib.fn.smembers(db.handle, key)), nil
}

// SIsMember reports whether member is in the set.
func (db *EmbeddedDB) SIsMember(key string, member []byte) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	var st argStage
	defer st.release()
	p, n := st.bytes(member)
	result := db.lib.fn.sismember(db.handle, key, p, n)
	if result < 0 {
		return false, db.engineErr()
	}
	return result == 1, nil
}

// SCard returns the number of members in a set.
func (db *EmbeddedDB) SCard(key string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.scard(db.handle, key)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// =============================================================================
// Sorted Set Commands
// =============================================================================

// ZAdd adds scored members to a sorted set, returning the number newly added.
func (db *EmbeddedDB) ZAdd(key string, members ...ZMemberScore) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.zadd(db.handle, key, st.zEntries(members), uintptr(len(members)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// ZRem removes members from a sorted set, returning the number removed.
func (db *EmbeddedDB) ZRem(key string, members ...[]byte) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	var st argStage
	defer st.release()
	result := db.lib.fn.zrem(db.handle, key, st.bytesEntries(members), uintptr(len(members)))
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// ZScore returns the score of a member; the second result is false if the
// member or key is absent. Absence is not an error.
func (db *EmbeddedDB) ZScore(key string, member []byte) (float64, bool, error) {
	if err := db.checkOpen(); err != nil {
		return 0, false, err
	}
	var st argStage
	defer st.release()
	p, n := st.bytes(member)
	score := db.lib.fn.zscore(db.handle, key, p, n)
	if math.IsNaN(score) {
		return 0, false, nil
	}
	return score, true, nil
}

// ZCard returns the number of members in a sorted set.
func (db *EmbeddedDB) ZCard(key string) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.zcard(db.handle, key)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// ZCount counts members with scores between min and max, inclusive.
func (db *EmbeddedDB) ZCount(key string, min, max float64) (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.zcount(db.handle, key, min, max)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}

// ZIncrBy increments a member's score, returning the new score.
func (db *EmbeddedDB) ZIncrBy(key string, increment float64, member []byte) (float64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	var st argStage
	defer st.release()
	p, n := st.bytes(member)
	score := db.lib.fn.zincrby(db.handle, key, increment, p, n)
	if math.IsNaN(score) {
		return 0, db.engineErr()
	}
	return score, nil
}

// ZRange returns members by ascending rank. Negative indices address from
// the end.
func (db *EmbeddedDB) ZRange(key string, start, stop int64) ([][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytesArray(db.lib.fn.zrange(db.handle, key, start, stop, 0)), nil
}

// ZRangeWithScores returns members and scores by ascending rank.
func (db *EmbeddedDB) ZRangeWithScores(key string, start, stop int64) ([]ZMemberScore, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	flat := db.lib.takeBytesArray(db.lib.fn.zrange(db.handle, key, start, stop, 1))
	return scoredPairs(flat, "zrange")
}

// ZRevRange returns members by descending rank.
func (db *EmbeddedDB) ZRevRange(key string, start, stop int64) ([][]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.lib.takeBytesArray(db.lib.fn.zrevrange(db.handle, key, start, stop, 0)), nil
}

// ZRevRangeWithScores returns members and scores by descending rank.
func (db *EmbeddedDB) ZRevRangeWithScores(key string, start, stop int64) ([]ZMemberScore, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	flat := db.lib.takeBytesArray(db.lib.fn.zrevrange(db.handle, key, start, stop, 1))
	return scoredPairs(flat, "zrevrange")
}

// scoredPairs decodes an interleaved member/score array. The engine formats
// scores as strings; a malformed score is a MarshalError.
func scoredPairs(flat [][]byte, what string) ([]ZMemberScore, error) {
	if len(flat)%2 != 0 {
		return nil, &MarshalError{What: what + " result length"}
	}
	out := make([]ZMemberScore, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		score, err := strconv.ParseFloat(string(flat[i+1]), 64)
		if err != nil {
			return nil, &MarshalError{What: what + " score " + strconv.Quote(string(flat[i+1])), Err: err}
		}
		out = append(out, ZMemberScore{Member: flat[i], Score: score})
	}
	return out, nil
}

// =============================================================================
// Scan Commands
// =============================================================================

// CursorDone is the reserved cursor value: pass it to begin a scan, receive
// it back when the scan is complete.
const CursorDone uint64 = 0

const defaultScanCount = 10

func scanArgs(st *argStage, match string, count int64) (uintptr, uintptr) {
	pattern := uintptr(0)
	if match != "" {
		pattern = st.cString(match)
	}
	if count <= 0 {
		count = defaultScanCount
	}
	return pattern, uintptr(count)
}

// Scan incrementally iterates the keyspace. Feed the returned cursor back in
// until it equals CursorDone. Count is a batch-size hint; match filters
// within each batch, so an empty batch does not mean the scan is done.
func (db *EmbeddedDB) Scan(cursor uint64, match string, count int64) ([]string, uint64, error) {
	if err := db.checkOpen(); err != nil {
		return nil, 0, err
	}
	var st argStage
	defer st.release()
	pattern, cnt := scanArgs(&st, match, count)
	out, outPtr := st.outStringArray()
	next := db.lib.fn.scan(db.handle, cursor, pattern, cnt, outPtr)
	if next < 0 {
		return nil, 0, db.engineErr()
	}
	return db.lib.takeStringArray(*out), uint64(next), nil
}

// HScan incrementally iterates the fields of a hash.
func (db *EmbeddedDB) HScan(key string, cursor uint64, match string, count int64) ([]HashEntry, uint64, error) {
	if err := db.checkOpen(); err != nil {
		return nil, 0, err
	}
	var st argStage
	defer st.release()
	pattern, cnt := scanArgs(&st, match, count)
	out, outPtr := st.outBytesArray()
	next := db.lib.fn.hscan(db.handle, key, cursor, pattern, cnt, outPtr)
	if next < 0 {
		return nil, 0, db.engineErr()
	}
	flat := db.lib.takeBytesArray(*out)
	if len(flat)%2 != 0 {
		return nil, 0, &MarshalError{What: "hscan result length"}
	}
	entries := make([]HashEntry, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		entries = append(entries, HashEntry{Field: string(flat[i]), Value: flat[i+1]})
	}
	return entries, uint64(next), nil
}

// SScan incrementally iterates the members of a set.
func (db *EmbeddedDB) SScan(key string, cursor uint64, match string, count int64) ([][]byte, uint64, error) {
	if err := db.checkOpen(); err != nil {
		return nil, 0, err
	}
	var st argStage
	defer st.release()
	pattern, cnt := scanArgs(&st, match, count)
	out, outPtr := st.outBytesArray()
	next := db.lib.fn.sscan(db.handle, key, cursor, pattern, cnt, outPtr)
	if next < 0 {
		return nil, 0, db.engineErr()
	}
	return db.lib.takeBytesArray(*out), uint64(next), nil
}

// ZScan incrementally iterates the members of a sorted set with scores.
func (db *EmbeddedDB) ZScan(key string, cursor uint64, match string, count int64) ([]ZMemberScore, uint64, error) {
	if err := db.checkOpen(); err != nil {
		return nil, 0, err
	}
	var st argStage
	defer st.release()
	pattern, cnt := scanArgs(&st, match, count)
	out, outPtr := st.outBytesArray()
	next := db.lib.fn.zscan(db.handle, key, cursor, pattern, cnt, outPtr)
	if next < 0 {
		return nil, 0, db.engineErr()
	}
	flat := db.lib.takeBytesArray(*out)
	members, err := scoredPairs(flat, "zscan")
	if err != nil {
		return nil, 0, err
	}
	return members, uint64(next), nil
}

// =============================================================================
// Server Commands
// =============================================================================

// Vacuum compacts the database and returns the bytes reclaimed.
func (db *EmbeddedDB) Vacuum() (int64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	result := db.lib.fn.vacuum(db.handle)
	if result < 0 {
		return 0, db.engineErr()
	}
	return result, nil
}
