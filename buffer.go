package redlite

import (
	"runtime"
	"unsafe"
)

// Extraction helpers. Every engine-owned buffer is copied into Go memory and
// then released, exactly once, before the result leaves this file. A null
// pointer is "absent" and is never passed to a free function; non-null memory
// is freed regardless of length.

// goStringAt reads a NUL-terminated C string without taking ownership.
func goStringAt(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

// takeString copies an engine-owned C string and frees it.
func (l *Library) takeString(p uintptr) string {
	if p == 0 {
		return ""
	}
	s := goStringAt(p)
	l.fn.freeString(p)
	return s
}

// takeBytes copies an engine-owned buffer and frees it. Absent results come
// back as nil. Only a null pointer means absent; a non-null empty buffer is
// still engine-owned and must be freed.
func (l *Library) takeBytes(b redliteBytes) []byte {
	if b.Data == 0 {
		return nil
	}
	if b.Len == 0 {
		l.fn.freeBytes(b)
		return nil
	}
	out := make([]byte, b.Len)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(b.Data)), b.Len))
	l.fn.freeBytes(b)
	return out
}

// takeStringArray copies an engine-owned string array and frees it as a
// whole; individual entries are owned by the array and are not freed here.
func (l *Library) takeStringArray(a redliteStringArray) []string {
	if a.Strings == 0 {
		return nil
	}
	if a.Len == 0 {
		l.fn.freeStringArray(a)
		return nil
	}
	ptrs := unsafe.Slice((*uintptr)(unsafe.Pointer(a.Strings)), a.Len)
	out := make([]string, len(ptrs))
	for i, p := range ptrs {
		out[i] = goStringAt(p)
	}
	l.fn.freeStringArray(a)
	return out
}

// takeBytesArray copies an engine-owned bytes array and frees it as a whole.
// Null entries map to nil elements (e.g. MGET misses).
func (l *Library) takeBytesArray(a redliteBytesArray) [][]byte {
	if a.Items == 0 {
		return nil
	}
	if a.Len == 0 {
		l.fn.freeBytesArray(a)
		return nil
	}
	items := unsafe.Slice((*redliteBytes)(unsafe.Pointer(a.Items)), a.Len)
	out := make([][]byte, len(items))
	for i, it := range items {
		if it.Data != 0 && it.Len != 0 {
			b := make([]byte, it.Len)
			copy(b, unsafe.Slice((*byte)(unsafe.Pointer(it.Data)), it.Len))
			out[i] = b
		}
	}
	l.fn.freeBytesArray(a)
	return out
}

// argStage builds call-scoped native argument arrays. Everything it hands out
// points into Go allocations recorded in pins; the caller defers release()
// so the allocations stay reachable until the foreign call has returned. The
// callee does not retain staged memory.
type argStage struct {
	pins []any
}

func (s *argStage) release() {
	// Keeps every pinned allocation live until the foreign call has returned.
	runtime.KeepAlive(s.pins)
	s.pins = nil
}

func (s *argStage) pin(v any) {
	s.pins = append(s.pins, v)
}

// cString stages one NUL-terminated string, returning its address.
func (s *argStage) cString(v string) uintptr {
	b := make([]byte, len(v)+1)
	copy(b, v)
	s.pin(b)
	return uintptr(unsafe.Pointer(&b[0]))
}

// bytes stages one byte buffer. Empty buffers stage as (NULL, 0), the same
// encoding the engine uses for empty values.
func (s *argStage) bytes(v []byte) (uintptr, uintptr) {
	if len(v) == 0 {
		return 0, 0
	}
	s.pin(v)
	return uintptr(unsafe.Pointer(&v[0])), uintptr(len(v))
}

// cStrings stages a char** array of exactly len(vs) entries.
func (s *argStage) cStrings(vs []string) uintptr {
	ptrs := make([]uintptr, len(vs))
	for i, v := range vs {
		ptrs[i] = s.cString(v)
	}
	s.pin(ptrs)
	return uintptr(unsafe.Pointer(&ptrs[0]))
}

// bytesEntries stages a RedliteBytes* array of exactly len(vs) entries.
func (s *argStage) bytesEntries(vs [][]byte) uintptr {
	entries := make([]redliteBytes, len(vs))
	for i, v := range vs {
		entries[i].Data, entries[i].Len = s.bytes(v)
	}
	s.pin(entries)
	return uintptr(unsafe.Pointer(&entries[0]))
}

// kvEntries stages a RedliteKV* array for MSET.
func (s *argStage) kvEntries(keys []string, values [][]byte) uintptr {
	entries := make([]redliteKV, len(keys))
	for i := range keys {
		entries[i].Key = s.cString(keys[i])
		entries[i].Value, entries[i].ValueLen = s.bytes(values[i])
	}
	s.pin(entries)
	return uintptr(unsafe.Pointer(&entries[0]))
}

// zEntries stages a RedliteZMember* array for ZADD.
func (s *argStage) zEntries(members []ZMemberScore) uintptr {
	entries := make([]redliteZMember, len(members))
	for i, m := range members {
		entries[i].Score = m.Score
		entries[i].Member, entries[i].MemberLen = s.bytes(m.Member)
	}
	s.pin(entries)
	return uintptr(unsafe.Pointer(&entries[0]))
}

// outStringArray / outBytesArray stage the out-parameter for scan calls.
func (s *argStage) outStringArray() (*redliteStringArray, uintptr) {
	out := &redliteStringArray{}
	s.pin(out)
	return out, uintptr(unsafe.Pointer(out))
}

func (s *argStage) outBytesArray() (*redliteBytesArray, uintptr) {
	out := &redliteBytesArray{}
	s.pin(out)
	return out, uintptr(unsafe.Pointer(out))
}
