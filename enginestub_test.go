package redlite

import (
	"errors"
	"fmt"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unsafe"
)

// memEngine is an in-process stand-in for the shared library. It implements
// the full function table over Go maps, hands results back through real
// pointers the way the engine does, and keeps an allocation registry so
// tests can assert that every buffer is released exactly once.
type memEngine struct {
	t *testing.T

	mu         sync.Mutex
	handles    map[uintptr]*memHandle
	nextHandle uintptr
	lastErr    string

	// allocation registry: pointer -> backing Go allocations. An entry keeps
	// the memory reachable until the matching free call removes it.
	bufs   map[uintptr][]any
	allocs int
	freed  int

	calls map[string]int
}

type memHandle struct {
	cur int
	dbs map[int]*memDB
}

type memDB struct {
	strings map[string]string
	hashes  map[string]map[string]string
	lists   map[string][]string
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	expiry  map[string]time.Time
}

func newMemDB() *memDB {
	return &memDB{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]float64),
		expiry:  make(map[string]time.Time),
	}
}

func newMemEngine(t *testing.T) *memEngine {
	return &memEngine{
		t:       t,
		handles: make(map[uintptr]*memHandle),
		bufs:    make(map[uintptr][]any),
		calls:   make(map[string]int),
	}
}

// newTestLibrary builds a Library bound to a fresh memEngine and registers a
// leak check that runs at test cleanup.
func newTestLibrary(t *testing.T) (*Library, *memEngine) {
	e := newMemEngine(t)
	l := &Library{fn: e.table()}
	t.Cleanup(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if len(e.bufs) != 0 {
			t.Errorf("leaked %d engine allocations (%d allocated, %d freed)",
				len(e.bufs), e.allocs, e.freed)
		}
	})
	return l, e
}

func newTestDB(t *testing.T) (*EmbeddedDB, *memEngine) {
	l, e := newTestLibrary(t)
	db, err := l.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, e
}

func (e *memEngine) callCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

func (e *memEngine) fail(msg string) {
	e.lastErr = msg
}

// db resolves the current database of a handle.
func (e *memEngine) db(h uintptr) *memDB {
	mh, ok := e.handles[h]
	if !ok {
		panic(fmt.Sprintf("memEngine: unknown handle %d", h))
	}
	d, ok := mh.dbs[mh.cur]
	if !ok {
		d = newMemDB()
		mh.dbs[mh.cur] = d
	}
	return d
}

// =============================================================================
// Allocation registry
// =============================================================================

func (e *memEngine) register(p uintptr, backing ...any) {
	if _, dup := e.bufs[p]; dup {
		e.t.Errorf("memEngine: pointer %#x registered twice", p)
	}
	e.bufs[p] = backing
	e.allocs++
}

func (e *memEngine) unregister(name string, p uintptr) {
	if _, ok := e.bufs[p]; !ok {
		e.t.Errorf("memEngine: %s of unknown or already freed pointer %#x", name, p)
		return
	}
	delete(e.bufs, p)
	e.freed++
}

func (e *memEngine) allocCString(s string) uintptr {
	b := make([]byte, len(s)+1)
	copy(b, s)
	p := uintptr(unsafe.Pointer(&b[0]))
	e.register(p, b)
	return p
}

func (e *memEngine) allocBytes(v string) redliteBytes {
	if len(v) == 0 {
		return redliteBytes{}
	}
	b := []byte(v)
	p := uintptr(unsafe.Pointer(&b[0]))
	e.register(p, b)
	return redliteBytes{Data: p, Len: uintptr(len(b))}
}

func (e *memEngine) allocStringArray(vs []string) redliteStringArray {
	if len(vs) == 0 {
		return redliteStringArray{}
	}
	backing := make([]any, 0, len(vs)+1)
	ptrs := make([]uintptr, len(vs))
	for i, s := range vs {
		b := make([]byte, len(s)+1)
		copy(b, s)
		ptrs[i] = uintptr(unsafe.Pointer(&b[0]))
		backing = append(backing, b)
	}
	backing = append(backing, ptrs)
	p := uintptr(unsafe.Pointer(&ptrs[0]))
	e.register(p, backing...)
	return redliteStringArray{Strings: p, Len: uintptr(len(vs))}
}

// allocBytesArray builds a counted entry array; nil elements become null
// entries, the MGET miss convention.
func (e *memEngine) allocBytesArray(vs [][]byte) redliteBytesArray {
	if len(vs) == 0 {
		return redliteBytesArray{}
	}
	backing := make([]any, 0, len(vs)+1)
	items := make([]redliteBytes, len(vs))
	for i, v := range vs {
		if len(v) == 0 {
			continue
		}
		b := make([]byte, len(v))
		copy(b, v)
		items[i] = redliteBytes{Data: uintptr(unsafe.Pointer(&b[0])), Len: uintptr(len(b))}
		backing = append(backing, b)
	}
	backing = append(backing, items)
	p := uintptr(unsafe.Pointer(&items[0]))
	e.register(p, backing...)
	return redliteBytesArray{Items: p, Len: uintptr(len(vs))}
}

// =============================================================================
// Staged argument decoding (what the C side would do)
// =============================================================================

func readBytesArg(p, n uintptr) string {
	if p == 0 || n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

func readStringsArg(p, n uintptr) []string {
	if p == 0 || n == 0 {
		return nil
	}
	ptrs := unsafe.Slice((*uintptr)(unsafe.Pointer(p)), n)
	out := make([]string, len(ptrs))
	for i, sp := range ptrs {
		out[i] = goStringAt(sp)
	}
	return out
}

func readBytesEntries(p, n uintptr) []string {
	if p == 0 || n == 0 {
		return nil
	}
	items := unsafe.Slice((*redliteBytes)(unsafe.Pointer(p)), n)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = readBytesArg(it.Data, it.Len)
	}
	return out
}

// =============================================================================
// Keyspace semantics
// =============================================================================

func (d *memDB) dropExpired(key string) {
	at, ok := d.expiry[key]
	if !ok || time.Now().Before(at) {
		return
	}
	delete(d.expiry, key)
	delete(d.strings, key)
	delete(d.hashes, key)
	delete(d.lists, key)
	delete(d.sets, key)
	delete(d.zsets, key)
}

func (d *memDB) typeOf(key string) string {
	d.dropExpired(key)
	switch {
	case hasKey(d.strings, key):
		return "string"
	case hasKey(d.hashes, key):
		return "hash"
	case hasKey(d.lists, key):
		return "list"
	case hasKey(d.sets, key):
		return "set"
	case hasKey(d.zsets, key):
		return "zset"
	}
	return ""
}

func hasKey[V any](m map[string]V, key string) bool {
	_, ok := m[key]
	return ok
}

func (d *memDB) exists(key string) bool {
	return d.typeOf(key) != ""
}

func (d *memDB) removeKey(key string) bool {
	existed := d.exists(key)
	delete(d.strings, key)
	delete(d.hashes, key)
	delete(d.lists, key)
	delete(d.sets, key)
	delete(d.zsets, key)
	delete(d.expiry, key)
	return existed
}

func (d *memDB) allKeys() []string {
	seen := make(map[string]struct{})
	for k := range d.strings {
		seen[k] = struct{}{}
	}
	for k := range d.hashes {
		seen[k] = struct{}{}
	}
	for k := range d.lists {
		seen[k] = struct{}{}
	}
	for k := range d.sets {
		seen[k] = struct{}{}
	}
	for k := range d.zsets {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		if d.exists(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func globMatch(pattern, s string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, s)
	return err == nil && ok
}

// checkType guards a typed command: empty type (missing key) passes, a
// different type is a WRONGTYPE failure.
func (e *memEngine) checkType(d *memDB, key, want string) bool {
	got := d.typeOf(key)
	if got == "" || got == want {
		return true
	}
	e.fail("WRONGTYPE Operation against a key holding the wrong kind of value")
	return false
}

func clampRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

// scanPage pages through a sorted element list by offset cursor, filtering
// each page by pattern.
func scanPage(elems []string, cursor uint64, pattern string, count uintptr) (batch []string, next int64) {
	if cursor >= uint64(len(elems)) {
		return nil, 0
	}
	end := cursor + uint64(count)
	if end >= uint64(len(elems)) {
		end = uint64(len(elems))
		next = 0
	} else {
		next = int64(end)
	}
	for _, el := range elems[cursor:end] {
		if globMatch(pattern, el) {
			batch = append(batch, el)
		}
	}
	return batch, next
}

// =============================================================================
// Function table
// =============================================================================

// table builds the full function table. Each closure locks the engine,
// counts the call, and mimics the engine's sentinel conventions.
func (e *memEngine) table() libredlite {
	var fn libredlite

	enter := func(name string) func() {
		e.mu.Lock()
		e.calls[name]++
		return e.mu.Unlock
	}

	fn.open = func(string) uintptr {
		defer enter("open")()
		e.nextHandle++
		e.handles[e.nextHandle] = &memHandle{dbs: map[int]*memDB{0: newMemDB()}}
		return e.nextHandle
	}
	fn.openMemory = func() uintptr { return fn.open(MemoryTarget) }
	fn.openWithCache = func(p string, _ int64) uintptr { return fn.open(p) }
	fn.close = func(h uintptr) {
		defer enter("close")()
		delete(e.handles, h)
	}
	fn.lastError = func() uintptr {
		defer enter("lastError")()
		if e.lastErr == "" {
			return 0
		}
		p := e.allocCString(e.lastErr)
		e.lastErr = ""
		return p
	}

	fn.freeString = func(p uintptr) {
		defer enter("freeString")()
		e.unregister("freeString", p)
	}
	fn.freeBytes = func(b redliteBytes) {
		defer enter("freeBytes")()
		e.unregister("freeBytes", b.Data)
	}
	fn.freeStringArray = func(a redliteStringArray) {
		defer enter("freeStringArray")()
		e.unregister("freeStringArray", a.Strings)
	}
	fn.freeBytesArray = func(a redliteBytesArray) {
		defer enter("freeBytesArray")()
		e.unregister("freeBytesArray", a.Items)
	}

	// ---- strings ----

	fn.get = func(h uintptr, key string) redliteBytes {
		defer enter("get")()
		d := e.db(h)
		if !e.checkType(d, key, "string") {
			return redliteBytes{}
		}
		v, ok := d.strings[key]
		if !ok {
			return redliteBytes{}
		}
		return e.allocBytes(v)
	}
	setValue := func(d *memDB, key, value string, ttl time.Duration) int32 {
		d.removeKey(key)
		d.strings[key] = value
		if ttl > 0 {
			d.expiry[key] = time.Now().Add(ttl)
		}
		return 0
	}
	fn.set = func(h uintptr, key string, value, valueLen uintptr, ttlSeconds int64) int32 {
		defer enter("set")()
		return setValue(e.db(h), key, readBytesArg(value, valueLen), time.Duration(ttlSeconds)*time.Second)
	}
	fn.setex = func(h uintptr, key string, seconds int64, value, valueLen uintptr) int32 {
		defer enter("setex")()
		if seconds <= 0 {
			e.fail("invalid expire time in 'setex' command")
			return -1
		}
		return setValue(e.db(h), key, readBytesArg(value, valueLen), time.Duration(seconds)*time.Second)
	}
	fn.psetex = func(h uintptr, key string, millis int64, value, valueLen uintptr) int32 {
		defer enter("psetex")()
		if millis <= 0 {
			e.fail("invalid expire time in 'psetex' command")
			return -1
		}
		return setValue(e.db(h), key, readBytesArg(value, valueLen), time.Duration(millis)*time.Millisecond)
	}
	fn.getdel = func(h uintptr, key string) redliteBytes {
		defer enter("getdel")()
		d := e.db(h)
		d.dropExpired(key)
		v, ok := d.strings[key]
		if !ok {
			return redliteBytes{}
		}
		d.removeKey(key)
		return e.allocBytes(v)
	}
	fn.appendCmd = func(h uintptr, key string, value, valueLen uintptr) int64 {
		defer enter("append")()
		d := e.db(h)
		if !e.checkType(d, key, "string") {
			return -1
		}
		d.strings[key] += readBytesArg(value, valueLen)
		return int64(len(d.strings[key]))
	}
	fn.strlenCmd = func(h uintptr, key string) int64 {
		defer enter("strlen")()
		d := e.db(h)
		if !e.checkType(d, key, "string") {
			return -1
		}
		return int64(len(d.strings[key]))
	}
	fn.getrange = func(h uintptr, key string, start, end int64) redliteBytes {
		defer enter("getrange")()
		d := e.db(h)
		d.dropExpired(key)
		v := d.strings[key]
		start, end = clampRange(start, end, int64(len(v)))
		if start > end || len(v) == 0 {
			return redliteBytes{}
		}
		return e.allocBytes(v[start : end+1])
	}
	fn.setrange = func(h uintptr, key string, offset int64, value, valueLen uintptr) int64 {
		defer enter("setrange")()
		d := e.db(h)
		if !e.checkType(d, key, "string") {
			return -1
		}
		patch := readBytesArg(value, valueLen)
		buf := []byte(d.strings[key])
		need := int(offset) + len(patch)
		for len(buf) < need {
			buf = append(buf, 0)
		}
		copy(buf[offset:], patch)
		d.strings[key] = string(buf)
		return int64(len(buf))
	}
	incrBy := func(h uintptr, key string, delta int64) int64 {
		d := e.db(h)
		if !e.checkType(d, key, "string") {
			return math.MinInt64
		}
		cur := int64(0)
		if v, ok := d.strings[key]; ok {
			var err error
			cur, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				e.fail("value is not an integer or out of range")
				return math.MinInt64
			}
		}
		cur += delta
		d.strings[key] = strconv.FormatInt(cur, 10)
		return cur
	}
	fn.incr = func(h uintptr, key string) int64 {
		defer enter("incr")()
		return incrBy(h, key, 1)
	}
	fn.decr = func(h uintptr, key string) int64 {
		defer enter("decr")()
		return incrBy(h, key, -1)
	}
	fn.incrby = func(h uintptr, key string, delta int64) int64 {
		defer enter("incrby")()
		return incrBy(h, key, delta)
	}
	fn.decrby = func(h uintptr, key string, delta int64) int64 {
		defer enter("decrby")()
		return incrBy(h, key, -delta)
	}
	fn.incrbyfloat = func(h uintptr, key string, delta float64) uintptr {
		defer enter("incrbyfloat")()
		d := e.db(h)
		if !e.checkType(d, key, "string") {
			return 0
		}
		cur := 0.0
		if v, ok := d.strings[key]; ok {
			var err error
			cur, err = strconv.ParseFloat(v, 64)
			if err != nil {
				e.fail("value is not a valid float")
				return 0
			}
		}
		cur += delta
		s := strconv.FormatFloat(cur, 'f', -1, 64)
		d.strings[key] = s
		return e.allocCString(s)
	}
	fn.mget = func(h uintptr, keys, keysLen uintptr) redliteBytesArray {
		defer enter("mget")()
		d := e.db(h)
		names := readStringsArg(keys, keysLen)
		out := make([][]byte, len(names))
		for i, k := range names {
			d.dropExpired(k)
			if v, ok := d.strings[k]; ok {
				out[i] = []byte(v)
			}
		}
		return e.allocBytesArray(out)
	}
	fn.mset = func(h uintptr, pairs, pairsLen uintptr) int32 {
		defer enter("mset")()
		d := e.db(h)
		entries := unsafe.Slice((*redliteKV)(unsafe.Pointer(pairs)), pairsLen)
		for _, kv := range entries {
			setValue(d, goStringAt(kv.Key), readBytesArg(kv.Value, kv.ValueLen), 0)
		}
		return 0
	}

	// ---- keys ----

	fn.del = func(h uintptr, keys, keysLen uintptr) int64 {
		defer enter("del")()
		d := e.db(h)
		n := int64(0)
		for _, k := range readStringsArg(keys, keysLen) {
			if d.removeKey(k) {
				n++
			}
		}
		return n
	}
	fn.exists = func(h uintptr, keys, keysLen uintptr) int64 {
		defer enter("exists")()
		d := e.db(h)
		n := int64(0)
		for _, k := range readStringsArg(keys, keysLen) {
			if d.exists(k) {
				n++
			}
		}
		return n
	}
	fn.keyType = func(h uintptr, key string) uintptr {
		defer enter("type")()
		tp := e.db(h).typeOf(key)
		if tp == "" {
			return 0
		}
		return e.allocCString(tp)
	}
	fn.ttl = func(h uintptr, key string) int64 {
		defer enter("ttl")()
		d := e.db(h)
		if !d.exists(key) {
			return -2
		}
		at, ok := d.expiry[key]
		if !ok {
			return -1
		}
		return int64(math.Ceil(time.Until(at).Seconds()))
	}
	fn.pttl = func(h uintptr, key string) int64 {
		defer enter("pttl")()
		d := e.db(h)
		if !d.exists(key) {
			return -2
		}
		at, ok := d.expiry[key]
		if !ok {
			return -1
		}
		return time.Until(at).Milliseconds()
	}
	expireAt := func(h uintptr, key string, at time.Time) int32 {
		d := e.db(h)
		if !d.exists(key) {
			return 0
		}
		d.expiry[key] = at
		return 1
	}
	fn.expire = func(h uintptr, key string, seconds int64) int32 {
		defer enter("expire")()
		return expireAt(h, key, time.Now().Add(time.Duration(seconds)*time.Second))
	}
	fn.pexpire = func(h uintptr, key string, millis int64) int32 {
		defer enter("pexpire")()
		return expireAt(h, key, time.Now().Add(time.Duration(millis)*time.Millisecond))
	}
	fn.expireat = func(h uintptr, key string, unixSeconds int64) int32 {
		defer enter("expireat")()
		return expireAt(h, key, time.Unix(unixSeconds, 0))
	}
	fn.pexpireat = func(h uintptr, key string, unixMillis int64) int32 {
		defer enter("pexpireat")()
		return expireAt(h, key, time.UnixMilli(unixMillis))
	}
	fn.persist = func(h uintptr, key string) int32 {
		defer enter("persist")()
		d := e.db(h)
		if !d.exists(key) {
			return 0
		}
		if _, ok := d.expiry[key]; !ok {
			return 0
		}
		delete(d.expiry, key)
		return 1
	}
	moveKey := func(d *memDB, key, newKey string) {
		d.removeKey(newKey)
		if v, ok := d.strings[key]; ok {
			d.strings[newKey] = v
		}
		if v, ok := d.hashes[key]; ok {
			d.hashes[newKey] = v
		}
		if v, ok := d.lists[key]; ok {
			d.lists[newKey] = v
		}
		if v, ok := d.sets[key]; ok {
			d.sets[newKey] = v
		}
		if v, ok := d.zsets[key]; ok {
			d.zsets[newKey] = v
		}
		if at, ok := d.expiry[key]; ok {
			d.expiry[newKey] = at
		}
		d.removeKey(key)
	}
	fn.rename = func(h uintptr, key, newKey string) int32 {
		defer enter("rename")()
		d := e.db(h)
		if !d.exists(key) {
			e.fail("no such key")
			return -1
		}
		moveKey(d, key, newKey)
		return 0
	}
	fn.renamenx = func(h uintptr, key, newKey string) int32 {
		defer enter("renamenx")()
		d := e.db(h)
		if !d.exists(key) {
			e.fail("no such key")
			return -1
		}
		if d.exists(newKey) {
			return 0
		}
		moveKey(d, key, newKey)
		return 1
	}
	fn.keys = func(h uintptr, pattern string) redliteStringArray {
		defer enter("keys")()
		var matched []string
		for _, k := range e.db(h).allKeys() {
			if globMatch(pattern, k) {
				matched = append(matched, k)
			}
		}
		return e.allocStringArray(matched)
	}
	fn.dbsize = func(h uintptr) int64 {
		defer enter("dbsize")()
		return int64(len(e.db(h).allKeys()))
	}
	fn.flushdb = func(h uintptr) int32 {
		defer enter("flushdb")()
		mh := e.handles[h]
		mh.dbs[mh.cur] = newMemDB()
		return 0
	}
	fn.selectDB = func(h uintptr, db int32) int32 {
		defer enter("select")()
		if db < 0 {
			e.fail("DB index is out of range")
			return -1
		}
		e.handles[h].cur = int(db)
		return 0
	}

	// ---- hashes ----

	fn.hset = func(h uintptr, key string, fields, values, count uintptr) int64 {
		defer enter("hset")()
		d := e.db(h)
		if !e.checkType(d, key, "hash") {
			return -1
		}
		hm, ok := d.hashes[key]
		if !ok {
			hm = make(map[string]string)
			d.hashes[key] = hm
		}
		names := readStringsArg(fields, count)
		vals := readBytesEntries(values, count)
		added := int64(0)
		for i, f := range names {
			if _, dup := hm[f]; !dup {
				added++
			}
			hm[f] = vals[i]
		}
		return added
	}
	fn.hget = func(h uintptr, key, field string) redliteBytes {
		defer enter("hget")()
		d := e.db(h)
		d.dropExpired(key)
		v, ok := d.hashes[key][field]
		if !ok {
			return redliteBytes{}
		}
		return e.allocBytes(v)
	}
	fn.hdel = func(h uintptr, key string, fields, fieldsLen uintptr) int64 {
		defer enter("hdel")()
		d := e.db(h)
		if !e.checkType(d, key, "hash") {
			return -1
		}
		hm := d.hashes[key]
		n := int64(0)
		for _, f := range readStringsArg(fields, fieldsLen) {
			if _, ok := hm[f]; ok {
				delete(hm, f)
				n++
			}
		}
		if len(hm) == 0 {
			delete(d.hashes, key)
		}
		return n
	}
	fn.hexists = func(h uintptr, key, field string) int32 {
		defer enter("hexists")()
		d := e.db(h)
		d.dropExpired(key)
		if _, ok := d.hashes[key][field]; ok {
			return 1
		}
		return 0
	}
	fn.hlen = func(h uintptr, key string) int64 {
		defer enter("hlen")()
		d := e.db(h)
		if !e.checkType(d, key, "hash") {
			return -1
		}
		return int64(len(d.hashes[key]))
	}
	sortedFields := func(hm map[string]string) []string {
		fields := make([]string, 0, len(hm))
		for f := range hm {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		return fields
	}
	fn.hkeys = func(h uintptr, key string) redliteStringArray {
		defer enter("hkeys")()
		d := e.db(h)
		d.dropExpired(key)
		return e.allocStringArray(sortedFields(d.hashes[key]))
	}
	fn.hvals = func(h uintptr, key string) redliteBytesArray {
		defer enter("hvals")()
		d := e.db(h)
		d.dropExpired(key)
		hm := d.hashes[key]
		out := make([][]byte, 0, len(hm))
		for _, f := range sortedFields(hm) {
			out = append(out, []byte(hm[f]))
		}
		return e.allocBytesArray(out)
	}
	fn.hincrby = func(h uintptr, key, field string, delta int64) int64 {
		defer enter("hincrby")()
		d := e.db(h)
		if !e.checkType(d, key, "hash") {
			return math.MinInt64
		}
		hm, ok := d.hashes[key]
		if !ok {
			hm = make(map[string]string)
			d.hashes[key] = hm
		}
		cur := int64(0)
		if v, ok := hm[field]; ok {
			var err error
			cur, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				e.fail("hash value is not an integer")
				return math.MinInt64
			}
		}
		cur += delta
		hm[field] = strconv.FormatInt(cur, 10)
		return cur
	}
	fn.hgetall = func(h uintptr, key string) redliteBytesArray {
		defer enter("hgetall")()
		d := e.db(h)
		d.dropExpired(key)
		hm := d.hashes[key]
		flat := make([][]byte, 0, len(hm)*2)
		for _, f := range sortedFields(hm) {
			flat = append(flat, []byte(f), []byte(hm[f]))
		}
		return e.allocBytesArray(flat)
	}
	fn.hmget = func(h uintptr, key string, fields, fieldsLen uintptr) redliteBytesArray {
		defer enter("hmget")()
		d := e.db(h)
		d.dropExpired(key)
		hm := d.hashes[key]
		names := readStringsArg(fields, fieldsLen)
		out := make([][]byte, len(names))
		for i, f := range names {
			if v, ok := hm[f]; ok {
				out[i] = []byte(v)
			}
		}
		return e.allocBytesArray(out)
	}

	// ---- lists ----

	push := func(h uintptr, key string, values, valuesLen uintptr, head bool) int64 {
		d := e.db(h)
		if !e.checkType(d, key, "list") {
			return -1
		}
		for _, v := range readBytesEntries(values, valuesLen) {
			if head {
				d.lists[key] = append([]string{v}, d.lists[key]...)
			} else {
				d.lists[key] = append(d.lists[key], v)
			}
		}
		return int64(len(d.lists[key]))
	}
	fn.lpush = func(h uintptr, key string, values, valuesLen uintptr) int64 {
		defer enter("lpush")()
		return push(h, key, values, valuesLen, true)
	}
	fn.rpush = func(h uintptr, key string, values, valuesLen uintptr) int64 {
		defer enter("rpush")()
		return push(h, key, values, valuesLen, false)
	}
	pop := func(h uintptr, key string, count uintptr, head bool) redliteBytesArray {
		d := e.db(h)
		d.dropExpired(key)
		l := d.lists[key]
		n := int(count)
		if n > len(l) {
			n = len(l)
		}
		out := make([][]byte, 0, n)
		for i := 0; i < n; i++ {
			if head {
				out = append(out, []byte(l[0]))
				l = l[1:]
			} else {
				out = append(out, []byte(l[len(l)-1]))
				l = l[:len(l)-1]
			}
		}
		if len(l) == 0 {
			delete(d.lists, key)
		} else {
			d.lists[key] = l
		}
		return e.allocBytesArray(out)
	}
	fn.lpop = func(h uintptr, key string, count uintptr) redliteBytesArray {
		defer enter("lpop")()
		return pop(h, key, count, true)
	}
	fn.rpop = func(h uintptr, key string, count uintptr) redliteBytesArray {
		defer enter("rpop")()
		return pop(h, key, count, false)
	}
	fn.llen = func(h uintptr, key string) int64 {
		defer enter("llen")()
		d := e.db(h)
		if !e.checkType(d, key, "list") {
			return -1
		}
		return int64(len(d.lists[key]))
	}
	fn.lrange = func(h uintptr, key string, start, stop int64) redliteBytesArray {
		defer enter("lrange")()
		d := e.db(h)
		d.dropExpired(key)
		l := d.lists[key]
		start, stop = clampRange(start, stop, int64(len(l)))
		if start > stop || len(l) == 0 {
			return e.allocBytesArray(nil)
		}
		out := make([][]byte, 0, stop-start+1)
		for _, v := range l[start : stop+1] {
			out = append(out, []byte(v))
		}
		return e.allocBytesArray(out)
	}
	fn.lindex = func(h uintptr, key string, index int64) redliteBytes {
		defer enter("lindex")()
		d := e.db(h)
		d.dropExpired(key)
		l := d.lists[key]
		if index < 0 {
			index += int64(len(l))
		}
		if index < 0 || index >= int64(len(l)) {
			return redliteBytes{}
		}
		return e.allocBytes(l[index])
	}

	// ---- sets ----

	fn.sadd = func(h uintptr, key string, members, membersLen uintptr) int64 {
		defer enter("sadd")()
		d := e.db(h)
		if !e.checkType(d, key, "set") {
			return -1
		}
		s, ok := d.sets[key]
		if !ok {
			s = make(map[string]struct{})
			d.sets[key] = s
		}
		n := int64(0)
		for _, m := range readBytesEntries(members, membersLen) {
			if _, dup := s[m]; !dup {
				s[m] = struct{}{}
				n++
			}
		}
		return n
	}
	fn.srem = func(h uintptr, key string, members, membersLen uintptr) int64 {
		defer enter("srem")()
		d := e.db(h)
		if !e.checkType(d, key, "set") {
			return -1
		}
		s := d.sets[key]
		n := int64(0)
		for _, m := range readBytesEntries(members, membersLen) {
			if _, ok := s[m]; ok {
				delete(s, m)
				n++
			}
		}
		if len(s) == 0 {
			delete(d.sets, key)
		}
		return n
	}
	sortedMembers := func(s map[string]struct{}) []string {
		members := make([]string, 0, len(s))
		for m := range s {
			members = append(members, m)
		}
		sort.Strings(members)
		return members
	}
	fn.smembers = func(h uintptr, key string) redliteBytesArray {
		defer enter("smembers")()
		d := e.db(h)
		d.dropExpired(key)
		members := sortedMembers(d.sets[key])
		out := make([][]byte, len(members))
		for i, m := range members {
			out[i] = []byte(m)
		}
		return e.allocBytesArray(out)
	}
	fn.sismember = func(h uintptr, key string, member, memberLen uintptr) int32 {
		defer enter("sismember")()
		d := e.db(h)
		d.dropExpired(key)
		if _, ok := d.sets[key][readBytesArg(member, memberLen)]; ok {
			return 1
		}
		return 0
	}
	fn.scard = func(h uintptr, key string) int64 {
		defer enter("scard")()
		d := e.db(h)
		if !e.checkType(d, key, "set") {
			return -1
		}
		return int64(len(d.sets[key]))
	}

	// ---- sorted sets ----

	fn.zadd = func(h uintptr, key string, members, membersLen uintptr) int64 {
		defer enter("zadd")()
		d := e.db(h)
		if !e.checkType(d, key, "zset") {
			return -1
		}
		z, ok := d.zsets[key]
		if !ok {
			z = make(map[string]float64)
			d.zsets[key] = z
		}
		entries := unsafe.Slice((*redliteZMember)(unsafe.Pointer(members)), membersLen)
		n := int64(0)
		for _, m := range entries {
			name := readBytesArg(m.Member, m.MemberLen)
			if _, dup := z[name]; !dup {
				n++
			}
			z[name] = m.Score
		}
		return n
	}
	fn.zrem = func(h uintptr, key string, members, membersLen uintptr) int64 {
		defer enter("zrem")()
		d := e.db(h)
		if !e.checkType(d, key, "zset") {
			return -1
		}
		z := d.zsets[key]
		n := int64(0)
		for _, m := range readBytesEntries(members, membersLen) {
			if _, ok := z[m]; ok {
				delete(z, m)
				n++
			}
		}
		if len(z) == 0 {
			delete(d.zsets, key)
		}
		return n
	}
	fn.zscore = func(h uintptr, key string, member, memberLen uintptr) float64 {
		defer enter("zscore")()
		d := e.db(h)
		d.dropExpired(key)
		score, ok := d.zsets[key][readBytesArg(member, memberLen)]
		if !ok {
			return math.NaN()
		}
		return score
	}
	fn.zcard = func(h uintptr, key string) int64 {
		defer enter("zcard")()
		d := e.db(h)
		if !e.checkType(d, key, "zset") {
			return -1
		}
		return int64(len(d.zsets[key]))
	}
	fn.zcount = func(h uintptr, key string, min, max float64) int64 {
		defer enter("zcount")()
		d := e.db(h)
		d.dropExpired(key)
		n := int64(0)
		for _, score := range d.zsets[key] {
			if score >= min && score <= max {
				n++
			}
		}
		return n
	}
	fn.zincrby = func(h uintptr, key string, delta float64, member, memberLen uintptr) float64 {
		defer enter("zincrby")()
		d := e.db(h)
		if !e.checkType(d, key, "zset") {
			return math.NaN()
		}
		z, ok := d.zsets[key]
		if !ok {
			z = make(map[string]float64)
			d.zsets[key] = z
		}
		name := readBytesArg(member, memberLen)
		z[name] += delta
		return z[name]
	}
	ranked := func(z map[string]float64) []string {
		members := make([]string, 0, len(z))
		for m := range z {
			members = append(members, m)
		}
		sort.Slice(members, func(i, j int) bool {
			if z[members[i]] != z[members[j]] {
				return z[members[i]] < z[members[j]]
			}
			return members[i] < members[j]
		})
		return members
	}
	zrange := func(h uintptr, key string, start, stop int64, withScores int32, rev bool) redliteBytesArray {
		d := e.db(h)
		d.dropExpired(key)
		z := d.zsets[key]
		members := ranked(z)
		if rev {
			for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
				members[i], members[j] = members[j], members[i]
			}
		}
		start, stop = clampRange(start, stop, int64(len(members)))
		if start > stop || len(members) == 0 {
			return e.allocBytesArray(nil)
		}
		var flat [][]byte
		for _, m := range members[start : stop+1] {
			flat = append(flat, []byte(m))
			if withScores != 0 {
				flat = append(flat, []byte(strconv.FormatFloat(z[m], 'f', -1, 64)))
			}
		}
		return e.allocBytesArray(flat)
	}
	fn.zrange = func(h uintptr, key string, start, stop int64, withScores int32) redliteBytesArray {
		defer enter("zrange")()
		return zrange(h, key, start, stop, withScores, false)
	}
	fn.zrevrange = func(h uintptr, key string, start, stop int64, withScores int32) redliteBytesArray {
		defer enter("zrevrange")()
		return zrange(h, key, start, stop, withScores, true)
	}

	// ---- scans ----

	fn.scan = func(h uintptr, cursor uint64, pattern, count, out uintptr) int64 {
		defer enter("scan")()
		batch, next := scanPage(e.db(h).allKeys(), cursor, goStringAt(pattern), count)
		*(*redliteStringArray)(unsafe.Pointer(out)) = e.allocStringArray(batch)
		return next
	}
	fn.hscan = func(h uintptr, key string, cursor uint64, pattern, count, out uintptr) int64 {
		defer enter("hscan")()
		d := e.db(h)
		d.dropExpired(key)
		hm := d.hashes[key]
		batch, next := scanPage(sortedFields(hm), cursor, goStringAt(pattern), count)
		flat := make([][]byte, 0, len(batch)*2)
		for _, f := range batch {
			flat = append(flat, []byte(f), []byte(hm[f]))
		}
		*(*redliteBytesArray)(unsafe.Pointer(out)) = e.allocBytesArray(flat)
		return next
	}
	fn.sscan = func(h uintptr, key string, cursor uint64, pattern, count, out uintptr) int64 {
		defer enter("sscan")()
		d := e.db(h)
		d.dropExpired(key)
		batch, next := scanPage(sortedMembers(d.sets[key]), cursor, goStringAt(pattern), count)
		out2 := make([][]byte, len(batch))
		for i, m := range batch {
			out2[i] = []byte(m)
		}
		*(*redliteBytesArray)(unsafe.Pointer(out)) = e.allocBytesArray(out2)
		return next
	}
	fn.zscan = func(h uintptr, key string, cursor uint64, pattern, count, out uintptr) int64 {
		defer enter("zscan")()
		d := e.db(h)
		d.dropExpired(key)
		z := d.zsets[key]
		batch, next := scanPage(sortedMembers2(z), cursor, goStringAt(pattern), count)
		flat := make([][]byte, 0, len(batch)*2)
		for _, m := range batch {
			flat = append(flat, []byte(m), []byte(strconv.FormatFloat(z[m], 'f', -1, 64)))
		}
		*(*redliteBytesArray)(unsafe.Pointer(out)) = e.allocBytesArray(flat)
		return next
	}

	// ---- server ----

	fn.vacuum = func(h uintptr) int64 {
		defer enter("vacuum")()
		return 4096
	}
	fn.version = func() uintptr {
		defer enter("version")()
		return e.allocCString("0.0.0-memengine")
	}

	return fn
}

func sortedMembers2(z map[string]float64) []string {
	members := make([]string, 0, len(z))
	for m := range z {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// sanity check that the stub's error text flows through EngineError.
func TestMemEngineLastError(t *testing.T) {
	db, _ := newTestDB(t)

	if err := db.Set("k", []byte("not-a-number"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	_, err := db.Incr("k")
	if err == nil {
		t.Fatal("expected an error incrementing a non-numeric value")
	}
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("expected EngineError, got %T: %v", err, err)
	}
	if !strings.Contains(engineErr.Message, "integer") {
		t.Errorf("unexpected message: %q", engineErr.Message)
	}
}
