package redlite

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

// ABI shapes from redlite.h. Pointers are carried as uintptr: the pointed-to
// memory is owned by the engine (results) or staged by buffer.go (arguments),
// never by the Go garbage collector.

// redliteBytes is a (pointer, length) byte buffer. A zero Data with zero Len
// means "no data" and needs no release.
type redliteBytes struct {
	Data uintptr
	Len  uintptr
}

// redliteStringArray is a counted array of NUL-terminated C strings.
type redliteStringArray struct {
	Strings uintptr
	Len     uintptr
}

// redliteBytesArray is a counted array of redliteBytes entries. Releasing the
// array releases every entry; entries are never released individually.
type redliteBytesArray struct {
	Items uintptr
	Len   uintptr
}

// redliteKV is one staged MSET pair.
type redliteKV struct {
	Key      uintptr
	Value    uintptr
	ValueLen uintptr
}

// redliteZMember is one staged ZADD entry.
type redliteZMember struct {
	Score     float64
	Member    uintptr
	MemberLen uintptr
}

// libredlite is the pre-bound function table, one field per redlite_* symbol.
// Binding happens once in LoadLibrary; tests may populate the table with an
// in-process stub instead.
type libredlite struct {
	// lifecycle
	open          func(path string) uintptr
	openMemory    func() uintptr
	openWithCache func(path string, cacheMB int64) uintptr
	close         func(handle uintptr)
	lastError     func() uintptr

	// memory management
	freeString      func(s uintptr)
	freeBytes       func(b redliteBytes)
	freeStringArray func(a redliteStringArray)
	freeBytesArray  func(a redliteBytesArray)

	// string commands
	get         func(h uintptr, key string) redliteBytes
	set         func(h uintptr, key string, value, valueLen uintptr, ttlSeconds int64) int32
	setex       func(h uintptr, key string, seconds int64, value, valueLen uintptr) int32
	psetex      func(h uintptr, key string, millis int64, value, valueLen uintptr) int32
	getdel      func(h uintptr, key string) redliteBytes
	appendCmd   func(h uintptr, key string, value, valueLen uintptr) int64
	strlenCmd   func(h uintptr, key string) int64
	getrange    func(h uintptr, key string, start, end int64) redliteBytes
	setrange    func(h uintptr, key string, offset int64, value, valueLen uintptr) int64
	incr        func(h uintptr, key string) int64
	decr        func(h uintptr, key string) int64
	incrby      func(h uintptr, key string, delta int64) int64
	decrby      func(h uintptr, key string, delta int64) int64
	incrbyfloat func(h uintptr, key string, delta float64) uintptr
	mget        func(h uintptr, keys, keysLen uintptr) redliteBytesArray
	mset        func(h uintptr, pairs, pairsLen uintptr) int32

	// key commands
	del       func(h uintptr, keys, keysLen uintptr) int64
	exists    func(h uintptr, keys, keysLen uintptr) int64
	keyType   func(h uintptr, key string) uintptr
	ttl       func(h uintptr, key string) int64
	pttl      func(h uintptr, key string) int64
	expire    func(h uintptr, key string, seconds int64) int32
	pexpire   func(h uintptr, key string, millis int64) int32
	expireat  func(h uintptr, key string, unixSeconds int64) int32
	pexpireat func(h uintptr, key string, unixMillis int64) int32
	persist   func(h uintptr, key string) int32
	rename    func(h uintptr, key, newKey string) int32
	renamenx  func(h uintptr, key, newKey string) int32
	keys      func(h uintptr, pattern string) redliteStringArray
	dbsize    func(h uintptr) int64
	flushdb   func(h uintptr) int32
	selectDB  func(h uintptr, db int32) int32

	// hash commands
	hset    func(h uintptr, key string, fields, values, count uintptr) int64
	hget    func(h uintptr, key, field string) redliteBytes
	hdel    func(h uintptr, key string, fields, fieldsLen uintptr) int64
	hexists func(h uintptr, key, field string) int32
	hlen    func(h uintptr, key string) int64
	hkeys   func(h uintptr, key string) redliteStringArray
	hvals   func(h uintptr, key string) redliteBytesArray
	hincrby func(h uintptr, key, field string, delta int64) int64
	hgetall func(h uintptr, key string) redliteBytesArray
	hmget   func(h uintptr, key string, fields, fieldsLen uintptr) redliteBytesArray

	// list commands
	lpush  func(h uintptr, key string, values, valuesLen uintptr) int64
	rpush  func(h uintptr, key string, values, valuesLen uintptr) int64
	lpop   func(h uintptr, key string, count uintptr) redliteBytesArray
	rpop   func(h uintptr, key string, count uintptr) redliteBytesArray
	llen   func(h uintptr, key string) int64
	lrange func(h uintptr, key string, start, stop int64) redliteBytesArray
	lindex func(h uintptr, key string, index int64) redliteBytes

	// set commands
	sadd      func(h uintptr, key string, members, membersLen uintptr) int64
	srem      func(h uintptr, key string, members, membersLen uintptr) int64
	smembers  func(h uintptr, key string) redliteBytesArray
	sismember func(h uintptr, key string, member, memberLen uintptr) int32
	scard     func(h uintptr, key string) int64

	// sorted set commands
	zadd      func(h uintptr, key string, members, membersLen uintptr) int64
	zrem      func(h uintptr, key string, members, membersLen uintptr) int64
	zscore    func(h uintptr, key string, member, memberLen uintptr) float64
	zcard     func(h uintptr, key string) int64
	zcount    func(h uintptr, key string, min, max float64) int64
	zincrby   func(h uintptr, key string, delta float64, member, memberLen uintptr) float64
	zrange    func(h uintptr, key string, start, stop int64, withScores int32) redliteBytesArray
	zrevrange func(h uintptr, key string, start, stop int64, withScores int32) redliteBytesArray

	// scan commands: each returns the next cursor, or a negative value on
	// failure, and fills the caller-passed array struct.
	scan  func(h uintptr, cursor uint64, pattern, count, out uintptr) int64
	hscan func(h uintptr, key string, cursor uint64, pattern, count, out uintptr) int64
	sscan func(h uintptr, key string, cursor uint64, pattern, count, out uintptr) int64
	zscan func(h uintptr, key string, cursor uint64, pattern, count, out uintptr) int64

	// server commands
	vacuum  func(h uintptr) int64
	version func() uintptr
}

// Library is a loaded redlite shared library: an opaque dlopen handle plus
// the bound function table. One Library may back any number of EmbeddedDBs.
type Library struct {
	fn libredlite
}

// DefaultLibraryName returns the platform soname of the redlite FFI library.
// Passing it to LoadLibrary defers resolution to the OS loader's standard
// search; no path probing happens in this package.
func DefaultLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libredlite_ffi.dylib"
	case "windows":
		return "redlite_ffi.dll"
	default:
		return "libredlite_ffi.so"
	}
}

// LoadLibrary opens the redlite shared library at the given path and binds
// every redlite_* symbol. An empty path loads DefaultLibraryName through the
// OS loader.
func LoadLibrary(path string) (*Library, error) {
	if path == "" {
		path = DefaultLibraryName()
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("redlite: load library %s: %w", path, err)
	}

	l := &Library{}
	fn := &l.fn

	purego.RegisterLibFunc(&fn.open, handle, "redlite_open")
	purego.RegisterLibFunc(&fn.openMemory, handle, "redlite_open_memory")
	purego.RegisterLibFunc(&fn.openWithCache, handle, "redlite_open_with_cache")
	purego.RegisterLibFunc(&fn.close, handle, "redlite_close")
	purego.RegisterLibFunc(&fn.lastError, handle, "redlite_last_error")

	purego.RegisterLibFunc(&fn.freeString, handle, "redlite_free_string")
	purego.RegisterLibFunc(&fn.freeBytes, handle, "redlite_free_bytes")
	purego.RegisterLibFunc(&fn.freeStringArray, handle, "redlite_free_string_array")
	purego.RegisterLibFunc(&fn.freeBytesArray, handle, "redlite_free_bytes_array")

	purego.RegisterLibFunc(&fn.get, handle, "redlite_get")
	purego.RegisterLibFunc(&fn.set, handle, "redlite_set")
	purego.RegisterLibFunc(&fn.setex, handle, "redlite_setex")
	purego.RegisterLibFunc(&fn.psetex, handle, "redlite_psetex")
	purego.RegisterLibFunc(&fn.getdel, handle, "redlite_getdel")
	purego.RegisterLibFunc(&fn.appendCmd, handle, "redlite_append")
	purego.RegisterLibFunc(&fn.strlenCmd, handle, "redlite_strlen")
	purego.RegisterLibFunc(&fn.getrange, handle, "redlite_getrange")
	purego.RegisterLibFunc(&fn.setrange, handle, "redlite_setrange")
	purego.RegisterLibFunc(&fn.incr, handle, "redlite_incr")
	purego.RegisterLibFunc(&fn.decr, handle, "redlite_decr")
	purego.RegisterLibFunc(&fn.incrby, handle, "redlite_incrby")
	purego.RegisterLibFunc(&fn.decrby, handle, "redlite_decrby")
	purego.RegisterLibFunc(&fn.incrbyfloat, handle, "redlite_incrbyfloat")
	purego.RegisterLibFunc(&fn.mget, handle, "redlite_mget")
	purego.RegisterLibFunc(&fn.mset, handle, "redlite_mset")

	purego.RegisterLibFunc(&fn.del, handle, "redlite_del")
	purego.RegisterLibFunc(&fn.exists, handle, "redlite_exists")
	purego.RegisterLibFunc(&fn.keyType, handle, "redlite_type")
	purego.RegisterLibFunc(&fn.ttl, handle, "redlite_ttl")
	purego.RegisterLibFunc(&fn.pttl, handle, "redlite_pttl")
	purego.RegisterLibFunc(&fn.expire, handle, "redlite_expire")
	purego.RegisterLibFunc(&fn.pexpire, handle, "redlite_pexpire")
	purego.RegisterLibFunc(&fn.expireat, handle, "redlite_expireat")
	purego.RegisterLibFunc(&fn.pexpireat, handle, "redlite_pexpireat")
	purego.RegisterLibFunc(&fn.persist, handle, "redlite_persist")
	purego.RegisterLibFunc(&fn.rename, handle, "redlite_rename")
	purego.RegisterLibFunc(&fn.renamenx, handle, "redlite_renamenx")
	purego.RegisterLibFunc(&fn.keys, handle, "redlite_keys")
	purego.RegisterLibFunc(&fn.dbsize, handle, "redlite_dbsize")
	purego.RegisterLibFunc(&fn.flushdb, handle, "redlite_flushdb")
	purego.RegisterLibFunc(&fn.selectDB, handle, "redlite_select")

	purego.RegisterLibFunc(&fn.hset, handle, "redlite_hset")
	purego.RegisterLibFunc(&fn.hget, handle, "redlite_hget")
	purego.RegisterLibFunc(&fn.hdel, handle, "redlite_hdel")
	purego.RegisterLibFunc(&fn.hexists, handle, "redlite_hexists")
	purego.RegisterLibFunc(&fn.hlen, handle, "redlite_hlen")
	purego.RegisterLibFunc(&fn.hkeys, handle, "redlite_hkeys")
	purego.RegisterLibFunc(&fn.hvals, handle, "redlite_hvals")
	purego.RegisterLibFunc(&fn.hincrby, handle, "redlite_hincrby")
	purego.RegisterLibFunc(&fn.hgetall, handle, "redlite_hgetall")
	purego.RegisterLibFunc(&fn.hmget, handle, "redlite_hmget")

	purego.RegisterLibFunc(&fn.lpush, handle, "redlite_lpush")
	purego.RegisterLibFunc(&fn.rpush, handle, "redlite_rpush")
	purego.RegisterLibFunc(&fn.lpop, handle, "redlite_lpop")
	purego.RegisterLibFunc(&fn.rpop, handle, "redlite_rpop")
	purego.RegisterLibFunc(&fn.llen, handle, "redlite_llen")
	purego.RegisterLibFunc(&fn.lrange, handle, "redlite_lrange")
	purego.RegisterLibFunc(&fn.lindex, handle, "redlite_lindex")

	purego.RegisterLibFunc(&fn.sadd, handle, "redlite_sadd")
	purego.RegisterLibFunc(&fn.srem, handle, "redlite_srem")
	purego.RegisterLibFunc(&fn.smembers, handle, "redlite_smembers")
	purego.RegisterLibFunc(&fn.sismember, handle, "redlite_sismember")
	purego.RegisterLibFunc(&fn.scard, handle, "redlite_scard")

	purego.RegisterLibFunc(&fn.zadd, handle, "redlite_zadd")
	purego.RegisterLibFunc(&fn.zrem, handle, "redlite_zrem")
	purego.RegisterLibFunc(&fn.zscore, handle, "redlite_zscore")
	purego.RegisterLibFunc(&fn.zcard, handle, "redlite_zcard")
	purego.RegisterLibFunc(&fn.zcount, handle, "redlite_zcount")
	purego.RegisterLibFunc(&fn.zincrby, handle, "redlite_zincrby")
	purego.RegisterLibFunc(&fn.zrange, handle, "redlite_zrange")
	purego.RegisterLibFunc(&fn.zrevrange, handle, "redlite_zrevrange")

	purego.RegisterLibFunc(&fn.scan, handle, "redlite_scan")
	purego.RegisterLibFunc(&fn.hscan, handle, "redlite_hscan")
	purego.RegisterLibFunc(&fn.sscan, handle, "redlite_sscan")
	purego.RegisterLibFunc(&fn.zscan, handle, "redlite_zscan")

	purego.RegisterLibFunc(&fn.vacuum, handle, "redlite_vacuum")
	purego.RegisterLibFunc(&fn.version, handle, "redlite_version")

	return l, nil
}

// Version returns the engine's version string.
func (l *Library) Version() string {
	p := l.fn.version()
	if p == 0 {
		return ""
	}
	s := goStringAt(p)
	l.fn.freeString(p)
	return s
}

// lastError drains the engine's last-error slot. The slot holds only the most
// recent failure; callers read it immediately after the failing call.
func (l *Library) lastError() string {
	p := l.fn.lastError()
	if p == 0 {
		return ""
	}
	s := goStringAt(p)
	l.fn.freeString(p)
	return s
}
