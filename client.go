package redlite

import (
	"context"
	"time"
)

// Mode identifies which backend a Client runs against.
type Mode string

const (
	// ModeEmbedded runs the engine in-process through the shared library.
	ModeEmbedded Mode = "embedded"
	// ModeServer talks to a redlite (or Redis) server over the wire protocol.
	ModeServer Mode = "server"
)

// Client is the unified command surface over both backends. Every command
// behaves identically in embedded and server mode: same results, same
// absent-key conventions, same error categories. The exceptions are the
// mode-exclusive commands Vacuum, Select and Do, which return a ModeError
// from the backend that cannot serve them.
//
// The context is honored before dispatch in both modes; in embedded mode a
// call that has entered the engine runs to completion.
type Client interface {
	// Close releases the backend. Calls after Close return ErrClosed.
	Close() error

	// Mode reports which backend this client runs against.
	Mode() Mode

	// String commands
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetEx(ctx context.Context, key string, seconds int64, value []byte) error
	PSetEx(ctx context.Context, key string, millis int64, value []byte) error
	GetDel(ctx context.Context, key string) ([]byte, error)
	Append(ctx context.Context, key string, value []byte) (int64, error)
	StrLen(ctx context.Context, key string) (int64, error)
	GetRange(ctx context.Context, key string, start, end int64) ([]byte, error)
	SetRange(ctx context.Context, key string, offset int64, value []byte) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, amount int64) (int64, error)
	DecrBy(ctx context.Context, key string, amount int64) (int64, error)
	IncrByFloat(ctx context.Context, key string, amount float64) (float64, error)
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	MSet(ctx context.Context, pairs map[string][]byte) error

	// Key commands
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Type(ctx context.Context, key string) (string, error)
	TTL(ctx context.Context, key string) (int64, error)
	PTTL(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, seconds int64) (bool, error)
	PExpire(ctx context.Context, key string, millis int64) (bool, error)
	ExpireAt(ctx context.Context, key string, unixSeconds int64) (bool, error)
	PExpireAt(ctx context.Context, key string, unixMillis int64) (bool, error)
	Persist(ctx context.Context, key string) (bool, error)
	Rename(ctx context.Context, key, newKey string) error
	RenameNX(ctx context.Context, key, newKey string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	DBSize(ctx context.Context) (int64, error)
	FlushDB(ctx context.Context) error

	// Hash commands
	HSet(ctx context.Context, key string, fields map[string][]byte) (int64, error)
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
	HExists(ctx context.Context, key, field string) (bool, error)
	HLen(ctx context.Context, key string) (int64, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	HVals(ctx context.Context, key string) ([][]byte, error)
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HMGet(ctx context.Context, key string, fields ...string) ([][]byte, error)
	HIncrBy(ctx context.Context, key, field string, amount int64) (int64, error)

	// List commands
	LPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	RPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	LPop(ctx context.Context, key string, count int) ([][]byte, error)
	RPop(ctx context.Context, key string, count int) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LIndex(ctx context.Context, key string, index int64) ([]byte, error)

	// Set commands
	SAdd(ctx context.Context, key string, members ...[]byte) (int64, error)
	SRem(ctx context.Context, key string, members ...[]byte) (int64, error)
	SMembers(ctx context.Context, key string) ([][]byte, error)
	SIsMember(ctx context.Context, key string, member []byte) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Sorted set commands
	ZAdd(ctx context.Context, key string, members ...ZMemberScore) (int64, error)
	ZRem(ctx context.Context, key string, members ...[]byte) (int64, error)
	ZScore(ctx context.Context, key string, member []byte) (float64, bool, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)
	ZIncrBy(ctx context.Context, key string, increment float64, member []byte) (float64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMemberScore, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMemberScore, error)

	// Scan commands. Feed the returned cursor back in until it equals
	// CursorDone; count is a batch-size hint, and an empty batch with a
	// nonzero cursor means keep going.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	HScan(ctx context.Context, key string, cursor uint64, match string, count int64) ([]HashEntry, uint64, error)
	SScan(ctx context.Context, key string, cursor uint64, match string, count int64) ([][]byte, uint64, error)
	ZScan(ctx context.Context, key string, cursor uint64, match string, count int64) ([]ZMemberScore, uint64, error)

	// Mode-exclusive commands.

	// Vacuum compacts the database file (embedded only).
	Vacuum(ctx context.Context) (int64, error)
	// Select switches the logical database index (embedded only).
	Select(ctx context.Context, index int) error
	// Do sends a raw command to the server (server only).
	Do(ctx context.Context, args ...interface{}) (interface{}, error)
}

// embeddedClient adapts EmbeddedDB to the Client interface. The context is
// checked once before dispatch; the engine itself does not cancel.
type embeddedClient struct {
	db *EmbeddedDB
}

func (c *embeddedClient) Close() error {
	return c.db.Close()
}

func (c *embeddedClient) Mode() Mode {
	return ModeEmbedded
}

func (c *embeddedClient) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.Get(key)
}

func (c *embeddedClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Set(key, value, ttl)
}

func (c *embeddedClient) SetEx(ctx context.Context, key string, seconds int64, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.SetEx(key, seconds, value)
}

func (c *embeddedClient) PSetEx(ctx context.Context, key string, millis int64, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.PSetEx(key, millis, value)
}

func (c *embeddedClient) GetDel(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.GetDel(key)
}

func (c *embeddedClient) Append(ctx context.Context, key string, value []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.Append(key, value)
}

func (c *embeddedClient) StrLen(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.StrLen(key)
}

func (c *embeddedClient) GetRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.GetRange(key, start, end)
}

func (c *embeddedClient) SetRange(ctx context.Context, key string, offset int64, value []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.SetRange(key, offset, value)
}

func (c *embeddedClient) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.Incr(key)
}

func (c *embeddedClient) Decr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.Decr(key)
}

func (c *embeddedClient) IncrBy(ctx context.Context, key string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.IncrBy(key, amount)
}

func (c *embeddedClient) DecrBy(ctx context.Context, key string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.DecrBy(key, amount)
}

func (c *embeddedClient) IncrByFloat(ctx context.Context, key string, amount float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.IncrByFloat(key, amount)
}

func (c *embeddedClient) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.MGet(keys...)
}

func (c *embeddedClient) MSet(ctx context.Context, pairs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.MSet(pairs)
}

func (c *embeddedClient) Del(ctx context.Context, keys ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.Del(keys...)
}

func (c *embeddedClient) Exists(ctx context.Context, keys ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.Exists(keys...)
}

func (c *embeddedClient) Type(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.db.Type(key)
}

func (c *embeddedClient) TTL(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.TTL(key)
}

func (c *embeddedClient) PTTL(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.PTTL(key)
}

func (c *embeddedClient) Expire(ctx context.Context, key string, seconds int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.db.Expire(key, seconds)
}

func (c *embeddedClient) PExpire(ctx context.Context, key string, millis int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.db.PExpire(key, millis)
}

func (c *embeddedClient) ExpireAt(ctx context.Context, key string, unixSeconds int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.db.ExpireAt(key, unixSeconds)
}

func (c *embeddedClient) PExpireAt(ctx context.Context, key string, unixMillis int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.db.PExpireAt(key, unixMillis)
}

func (c *embeddedClient) Persist(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.db.Persist(key)
}

func (c *embeddedClient) Rename(ctx context.Context, key, newKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Rename(key, newKey)
}

func (c *embeddedClient) RenameNX(ctx context.Context, key, newKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.db.RenameNX(key, newKey)
}

func (c *embeddedClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.Keys(pattern)
}

func (c *embeddedClient) DBSize(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.DBSize()
}

func (c *embeddedClient) FlushDB(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.FlushDB()
}

func (c *embeddedClient) HSet(ctx context.Context, key string, fields map[string][]byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.HSet(key, fields)
}

func (c *embeddedClient) HGet(ctx context.Context, key, field string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.HGet(key, field)
}

func (c *embeddedClient) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.HDel(key, fields...)
}

func (c *embeddedClient) HExists(ctx context.Context, key, field string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.db.HExists(key, field)
}

func (c *embeddedClient) HLen(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.HLen(key)
}

func (c *embeddedClient) HKeys(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.HKeys(key)
}

func (c *embeddedClient) HVals(ctx context.Context, key string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.HVals(key)
}

func (c *embeddedClient) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.HGetAll(key)
}

func (c *embeddedClient) HMGet(ctx context.Context, key string, fields ...string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.HMGet(key, fields...)
}

func (c *embeddedClient) HIncrBy(ctx context.Context, key, field string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.HIncrBy(key, field, amount)
}

func (c *embeddedClient) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.LPush(key, values...)
}

func (c *embeddedClient) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.RPush(key, values...)
}

func (c *embeddedClient) LPop(ctx context.Context, key string, count int) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.LPop(key, count)
}

func (c *embeddedClient) RPop(ctx context.Context, key string, count int) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.RPop(key, count)
}

func (c *embeddedClient) LLen(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.LLen(key)
}

func (c *embeddedClient) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.LRange(key, start, stop)
}

func (c *embeddedClient) LIndex(ctx context.Context, key string, index int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.LIndex(key, index)
}

func (c *embeddedClient) SAdd(ctx context.Context, key string, members ...[]byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.SAdd(key, members...)
}

func (c *embeddedClient) SRem(ctx context.Context, key string, members ...[]byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.SRem(key, members...)
}

func (c *embeddedClient) SMembers(ctx context.Context, key string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.SMembers(key)
}

func (c *embeddedClient) SIsMember(ctx context.Context, key string, member []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.db.SIsMember(key, member)
}

func (c *embeddedClient) SCard(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.SCard(key)
}

func (c *embeddedClient) ZAdd(ctx context.Context, key string, members ...ZMemberScore) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.ZAdd(key, members...)
}

func (c *embeddedClient) ZRem(ctx context.Context, key string, members ...[]byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.ZRem(key, members...)
}

func (c *embeddedClient) ZScore(ctx context.Context, key string, member []byte) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	return c.db.ZScore(key, member)
}

func (c *embeddedClient) ZCard(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.ZCard(key)
}

func (c *embeddedClient) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.ZCount(key, min, max)
}

func (c *embeddedClient) ZIncrBy(ctx context.Context, key string, increment float64, member []byte) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.ZIncrBy(key, increment, member)
}

func (c *embeddedClient) ZRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.ZRange(key, start, stop)
}

func (c *embeddedClient) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMemberScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.ZRangeWithScores(key, start, stop)
}

func (c *embeddedClient) ZRevRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.ZRevRange(key, start, stop)
}

func (c *embeddedClient) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMemberScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.ZRevRangeWithScores(key, start, stop)
}

func (c *embeddedClient) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return c.db.Scan(cursor, match, count)
}

func (c *embeddedClient) HScan(ctx context.Context, key string, cursor uint64, match string, count int64) ([]HashEntry, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return c.db.HScan(key, cursor, match, count)
}

func (c *embeddedClient) SScan(ctx context.Context, key string, cursor uint64, match string, count int64) ([][]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return c.db.SScan(key, cursor, match, count)
}

func (c *embeddedClient) ZScan(ctx context.Context, key string, cursor uint64, match string, count int64) ([]ZMemberScore, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return c.db.ZScan(key, cursor, match, count)
}

func (c *embeddedClient) Vacuum(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.db.Vacuum()
}

func (c *embeddedClient) Select(ctx context.Context, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Select(index)
}

func (c *embeddedClient) Do(ctx context.Context, args ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, &ModeError{Command: "Do", Mode: ModeEmbedded}
}
