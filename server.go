package redlite

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// serverClient adapts a go-redis connection to the Client interface. Absent
// keys come back from go-redis as redis.Nil; this adapter normalizes them to
// the nil/zero-value success the embedded backend produces, so callers never
// see redis.Nil.
type serverClient struct {
	rdb    *redis.Client
	closed bool
}

// Connect opens a server-mode client from a redis:// or rediss:// URL and
// verifies the connection with a PING.
func Connect(url string) (Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &OpenError{Target: url, Err: err}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, &OpenError{Target: url, Err: err}
	}
	return &serverClient{rdb: rdb}, nil
}

func (c *serverClient) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rdb.Close()
}

func (c *serverClient) checkOpen() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *serverClient) Mode() Mode {
	return ModeServer
}

// absentBytes collapses redis.Nil to a nil value.
func absentBytes(b []byte, err error) ([]byte, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (c *serverClient) Get(ctx context.Context, key string) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return absentBytes(c.rdb.Get(ctx, key).Bytes())
}

func (c *serverClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *serverClient) SetEx(ctx context.Context, key string, seconds int64, value []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.rdb.SetEx(ctx, key, value, time.Duration(seconds)*time.Second).Err()
}

func (c *serverClient) PSetEx(ctx context.Context, key string, millis int64, value []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, value, time.Duration(millis)*time.Millisecond).Err()
}

func (c *serverClient) GetDel(ctx context.Context, key string) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return absentBytes(c.rdb.GetDel(ctx, key).Bytes())
}

func (c *serverClient) Append(ctx context.Context, key string, value []byte) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.Append(ctx, key, string(value)).Result()
}

func (c *serverClient) StrLen(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.StrLen(ctx, key).Result()
}

func (c *serverClient) GetRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	s, err := c.rdb.GetRange(ctx, key, start, end).Result()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (c *serverClient) SetRange(ctx context.Context, key string, offset int64, value []byte) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.SetRange(ctx, key, offset, string(value)).Result()
}

func (c *serverClient) Incr(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.Incr(ctx, key).Result()
}

func (c *serverClient) Decr(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.Decr(ctx, key).Result()
}

func (c *serverClient) IncrBy(ctx context.Context, key string, amount int64) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.IncrBy(ctx, key, amount).Result()
}

func (c *serverClient) DecrBy(ctx context.Context, key string, amount int64) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.DecrBy(ctx, key, amount).Result()
}

func (c *serverClient) IncrByFloat(ctx context.Context, key string, amount float64) (float64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.IncrByFloat(ctx, key, amount).Result()
}

func (c *serverClient) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	result, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	return anySliceToBytes(result, "mget")
}

func (c *serverClient) MSet(ctx context.Context, pairs map[string][]byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(pairs)*2)
	for k, v := range pairs {
		args = append(args, k, v)
	}
	return c.rdb.MSet(ctx, args...).Err()
}

func (c *serverClient) Del(ctx context.Context, keys ...string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return c.rdb.Del(ctx, keys...).Result()
}

func (c *serverClient) Exists(ctx context.Context, keys ...string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return c.rdb.Exists(ctx, keys...).Result()
}

func (c *serverClient) Type(ctx context.Context, key string) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	return c.rdb.Type(ctx, key).Result()
}

// ttlInt maps go-redis TTL durations to the integer convention: -2 for
// missing key, -1 for no expiry, otherwise whole seconds. go-redis carries
// the two negative replies through as raw Duration values.
func ttlInt(d time.Duration, unit time.Duration) int64 {
	if d < 0 {
		return int64(d)
	}
	return int64(d / unit)
}

func (c *serverClient) TTL(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return ttlInt(d, time.Second), nil
}

func (c *serverClient) PTTL(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	d, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return ttlInt(d, time.Millisecond), nil
}

func (c *serverClient) Expire(ctx context.Context, key string, seconds int64) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.rdb.Expire(ctx, key, time.Duration(seconds)*time.Second).Result()
}

func (c *serverClient) PExpire(ctx context.Context, key string, millis int64) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.rdb.PExpire(ctx, key, time.Duration(millis)*time.Millisecond).Result()
}

func (c *serverClient) ExpireAt(ctx context.Context, key string, unixSeconds int64) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.rdb.ExpireAt(ctx, key, time.Unix(unixSeconds, 0)).Result()
}

func (c *serverClient) PExpireAt(ctx context.Context, key string, unixMillis int64) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.rdb.PExpireAt(ctx, key, time.UnixMilli(unixMillis)).Result()
}

func (c *serverClient) Persist(ctx context.Context, key string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.rdb.Persist(ctx, key).Result()
}

func (c *serverClient) Rename(ctx context.Context, key, newKey string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.rdb.Rename(ctx, key, newKey).Err()
}

func (c *serverClient) RenameNX(ctx context.Context, key, newKey string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.rdb.RenameNX(ctx, key, newKey).Result()
}

func (c *serverClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.rdb.Keys(ctx, pattern).Result()
}

func (c *serverClient) DBSize(ctx context.Context) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.DBSize(ctx).Result()
}

func (c *serverClient) FlushDB(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.rdb.FlushDB(ctx).Err()
}

func (c *serverClient) HSet(ctx context.Context, key string, fields map[string][]byte) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for f, v := range fields {
		args = append(args, f, v)
	}
	return c.rdb.HSet(ctx, key, args...).Result()
}

func (c *serverClient) HGet(ctx context.Context, key, field string) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return absentBytes(c.rdb.HGet(ctx, key, field).Bytes())
}

func (c *serverClient) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}
	return c.rdb.HDel(ctx, key, fields...).Result()
}

func (c *serverClient) HExists(ctx context.Context, key, field string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.rdb.HExists(ctx, key, field).Result()
}

func (c *serverClient) HLen(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.HLen(ctx, key).Result()
}

func (c *serverClient) HKeys(ctx context.Context, key string) ([]string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.rdb.HKeys(ctx, key).Result()
}

func (c *serverClient) HVals(ctx context.Context, key string) ([][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.HVals(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return stringsToBytes(result), nil
}

func (c *serverClient) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(result))
	for f, v := range result {
		out[f] = []byte(v)
	}
	return out, nil
}

func (c *serverClient) HMGet(ctx context.Context, key string, fields ...string) ([][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	result, err := c.rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	return anySliceToBytes(result, "hmget")
}

func (c *serverClient) HIncrBy(ctx context.Context, key, field string, amount int64) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.HIncrBy(ctx, key, field, amount).Result()
}

func (c *serverClient) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return c.rdb.LPush(ctx, key, bytesToAnys(values)...).Result()
}

func (c *serverClient) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return c.rdb.RPush(ctx, key, bytesToAnys(values)...).Result()
}

func (c *serverClient) LPop(ctx context.Context, key string, count int) ([][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.LPopCount(ctx, key, count).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stringsToBytes(result), nil
}

func (c *serverClient) RPop(ctx context.Context, key string, count int) ([][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.RPopCount(ctx, key, count).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stringsToBytes(result), nil
}

func (c *serverClient) LLen(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.LLen(ctx, key).Result()
}

func (c *serverClient) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return stringsToBytes(result), nil
}

func (c *serverClient) LIndex(ctx context.Context, key string, index int64) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return absentBytes(c.rdb.LIndex(ctx, key, index).Bytes())
}

func (c *serverClient) SAdd(ctx context.Context, key string, members ...[]byte) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	return c.rdb.SAdd(ctx, key, bytesToAnys(members)...).Result()
}

func (c *serverClient) SRem(ctx context.Context, key string, members ...[]byte) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	return c.rdb.SRem(ctx, key, bytesToAnys(members)...).Result()
}

func (c *serverClient) SMembers(ctx context.Context, key string) ([][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return stringsToBytes(result), nil
}

func (c *serverClient) SIsMember(ctx context.Context, key string, member []byte) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.rdb.SIsMember(ctx, key, member).Result()
}

func (c *serverClient) SCard(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.SCard(ctx, key).Result()
}

func (c *serverClient) ZAdd(ctx context.Context, key string, members ...ZMemberScore) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	return c.rdb.ZAdd(ctx, key, zs...).Result()
}

func (c *serverClient) ZRem(ctx context.Context, key string, members ...[]byte) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	return c.rdb.ZRem(ctx, key, bytesToAnys(members)...).Result()
}

func (c *serverClient) ZScore(ctx context.Context, key string, member []byte) (float64, bool, error) {
	if err := c.checkOpen(); err != nil {
		return 0, false, err
	}
	score, err := c.rdb.ZScore(ctx, key, string(member)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (c *serverClient) ZCard(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.ZCard(ctx, key).Result()
}

func (c *serverClient) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.ZCount(ctx, key,
		strconv.FormatFloat(min, 'f', -1, 64),
		strconv.FormatFloat(max, 'f', -1, 64)).Result()
}

func (c *serverClient) ZIncrBy(ctx context.Context, key string, increment float64, member []byte) (float64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rdb.ZIncrBy(ctx, key, increment, string(member)).Result()
}

func (c *serverClient) ZRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return stringsToBytes(result), nil
}

func (c *serverClient) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMemberScore, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return zSliceToMembers(result, "zrange")
}

func (c *serverClient) ZRevRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return stringsToBytes(result), nil
}

func (c *serverClient) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMemberScore, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.rdb.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return zSliceToMembers(result, "zrevrange")
}

func (c *serverClient) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if err := c.checkOpen(); err != nil {
		return nil, 0, err
	}
	return c.rdb.Scan(ctx, cursor, match, count).Result()
}

func (c *serverClient) HScan(ctx context.Context, key string, cursor uint64, match string, count int64) ([]HashEntry, uint64, error) {
	if err := c.checkOpen(); err != nil {
		return nil, 0, err
	}
	flat, next, err := c.rdb.HScan(ctx, key, cursor, match, count).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(flat)%2 != 0 {
		return nil, 0, &MarshalError{What: "hscan result length"}
	}
	entries := make([]HashEntry, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		entries = append(entries, HashEntry{Field: flat[i], Value: []byte(flat[i+1])})
	}
	return entries, next, nil
}

func (c *serverClient) SScan(ctx context.Context, key string, cursor uint64, match string, count int64) ([][]byte, uint64, error) {
	if err := c.checkOpen(); err != nil {
		return nil, 0, err
	}
	result, next, err := c.rdb.SScan(ctx, key, cursor, match, count).Result()
	if err != nil {
		return nil, 0, err
	}
	return stringsToBytes(result), next, nil
}

func (c *serverClient) ZScan(ctx context.Context, key string, cursor uint64, match string, count int64) ([]ZMemberScore, uint64, error) {
	if err := c.checkOpen(); err != nil {
		return nil, 0, err
	}
	flat, next, err := c.rdb.ZScan(ctx, key, cursor, match, count).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(flat)%2 != 0 {
		return nil, 0, &MarshalError{What: "zscan result length"}
	}
	members := make([]ZMemberScore, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		score, err := strconv.ParseFloat(flat[i+1], 64)
		if err != nil {
			return nil, 0, &MarshalError{What: "zscan score " + strconv.Quote(flat[i+1]), Err: err}
		}
		members = append(members, ZMemberScore{Member: []byte(flat[i]), Score: score})
	}
	return members, next, nil
}

func (c *serverClient) Vacuum(ctx context.Context) (int64, error) {
	return 0, &ModeError{Command: "Vacuum", Mode: ModeServer}
}

func (c *serverClient) Select(ctx context.Context, index int) error {
	return &ModeError{Command: "Select", Mode: ModeServer}
}

func (c *serverClient) Do(ctx context.Context, args ...interface{}) (interface{}, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.rdb.Do(ctx, args...).Result()
}

func bytesToAnys(vs [][]byte) []interface{} {
	args := make([]interface{}, len(vs))
	for i, v := range vs {
		args[i] = v
	}
	return args
}

func stringsToBytes(vs []string) [][]byte {
	out := make([][]byte, len(vs))
	for i, v := range vs {
		out[i] = []byte(v)
	}
	return out
}

// anySliceToBytes converts a go-redis multi-value reply, keeping nil for
// absent entries.
func anySliceToBytes(vs []interface{}, what string) ([][]byte, error) {
	out := make([][]byte, len(vs))
	for i, v := range vs {
		switch t := v.(type) {
		case nil:
		case string:
			out[i] = []byte(t)
		case []byte:
			out[i] = t
		default:
			return nil, &MarshalError{What: what + " reply element"}
		}
	}
	return out, nil
}

func zSliceToMembers(zs []redis.Z, what string) ([]ZMemberScore, error) {
	out := make([]ZMemberScore, len(zs))
	for i, z := range zs {
		s, ok := z.Member.(string)
		if !ok {
			return nil, &MarshalError{What: what + " member"}
		}
		out[i] = ZMemberScore{Member: []byte(s), Score: z.Score}
	}
	return out, nil
}
