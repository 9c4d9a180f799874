// Command redlite-oracle executes YAML conformance specifications against an
// embedded database and reports pass/fail results.
//
// Usage:
//
//	redlite-oracle                    # run every spec in ./spec
//	redlite-oracle spec/strings.yaml  # run one spec
//	redlite-oracle -v                 # verbose output
//
// The shared library is resolved through REDLITE_LIBRARY when set, otherwise
// through the OS loader.
package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	redlite "github.com/russellromney/redlite-go"
)

// Spec is one test specification file.
type Spec struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Tests   []Test `yaml:"tests"`
}

// Test is a single test case: setup commands, then checked operations.
type Test struct {
	Name       string      `yaml:"name"`
	Setup      []Operation `yaml:"setup"`
	Operations []Operation `yaml:"operations"`
}

// Operation is one command execution with an expected result.
type Operation struct {
	Cmd    string        `yaml:"cmd"`
	Args   []interface{} `yaml:"args"`
	Expect interface{}   `yaml:"expect"`
}

// Runner executes oracle tests against fresh in-memory databases.
type Runner struct {
	lib     *redlite.Library
	verbose bool
	passed  int
	failed  int
	errors  []TestError
}

// TestError records one failure.
type TestError struct {
	Spec     string
	Test     string
	Cmd      string
	Expected interface{}
	Actual   interface{}
	Error    string
}

func NewRunner(lib *redlite.Library, verbose bool) *Runner {
	return &Runner{lib: lib, verbose: verbose}
}

func (r *Runner) RunSpecFile(specPath string) bool {
	data, err := os.ReadFile(specPath)
	if err != nil {
		fmt.Printf("Error reading spec file: %v\n", err)
		return false
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		fmt.Printf("Error parsing spec file: %v\n", err)
		return false
	}

	specName := spec.Name
	if specName == "" {
		specName = filepath.Base(specPath)
	}

	if r.verbose {
		fmt.Printf("\n%s\n", strings.Repeat("=", 60))
		fmt.Printf("Running: %s (%d tests)\n", specName, len(spec.Tests))
		fmt.Println(strings.Repeat("=", 60))
	}

	for _, test := range spec.Tests {
		r.runTest(test, specName)
	}

	return len(r.errors) == 0
}

func (r *Runner) fail(specName string, test Test, cmd, msg string) {
	r.failed++
	r.errors = append(r.errors, TestError{Spec: specName, Test: test.Name, Cmd: cmd, Error: msg})
	if r.verbose {
		fmt.Printf("ERROR: %s\n", msg)
	}
}

func (r *Runner) runTest(test Test, specName string) {
	if r.verbose {
		fmt.Printf("\n  %s... ", test.Name)
	}

	db, err := redlite.New(":memory:", redlite.WithLibrary(r.lib))
	if err != nil {
		r.fail(specName, test, "", fmt.Sprintf("open database: %v", err))
		return
	}
	defer db.Close()

	ctx := context.Background()

	for _, op := range test.Setup {
		if _, err := executeCmd(ctx, db, op); err != nil {
			r.fail(specName, test, op.Cmd, fmt.Sprintf("setup %s: %v", op.Cmd, err))
			return
		}
	}

	for _, op := range test.Operations {
		actual, err := executeCmd(ctx, db, op)
		if err != nil {
			r.fail(specName, test, op.Cmd, err.Error())
			return
		}

		if !compare(actual, op.Expect) {
			r.failed++
			r.errors = append(r.errors, TestError{
				Spec:     specName,
				Test:     test.Name,
				Cmd:      op.Cmd,
				Expected: op.Expect,
				Actual:   serialize(actual),
			})
			if r.verbose {
				fmt.Println("FAILED")
				fmt.Printf("      Expected: %v\n", op.Expect)
				fmt.Printf("      Actual:   %v\n", serialize(actual))
			}
			return
		}
	}

	r.passed++
	if r.verbose {
		fmt.Println("PASSED")
	}
}

func executeCmd(ctx context.Context, db redlite.Client, op Operation) (interface{}, error) {
	cmd := strings.ToLower(op.Cmd)
	args := op.Args

	switch cmd {
	// String commands
	case "get":
		return db.Get(ctx, getString(args, 0))
	case "set":
		return true, db.Set(ctx, getString(args, 0), getBytes(args, 1), 0)
	case "setex":
		return true, db.SetEx(ctx, getString(args, 0), getInt64(args, 1), getBytes(args, 2))
	case "psetex":
		return true, db.PSetEx(ctx, getString(args, 0), getInt64(args, 1), getBytes(args, 2))
	case "getdel":
		return db.GetDel(ctx, getString(args, 0))
	case "getrange":
		return db.GetRange(ctx, getString(args, 0), getInt64(args, 1), getInt64(args, 2))
	case "setrange":
		return db.SetRange(ctx, getString(args, 0), getInt64(args, 1), getBytes(args, 2))
	case "incr":
		return db.Incr(ctx, getString(args, 0))
	case "decr":
		return db.Decr(ctx, getString(args, 0))
	case "incrby":
		return db.IncrBy(ctx, getString(args, 0), getInt64(args, 1))
	case "decrby":
		return db.DecrBy(ctx, getString(args, 0), getInt64(args, 1))
	case "incrbyfloat":
		return db.IncrByFloat(ctx, getString(args, 0), toFloat64(args[1]))
	case "append":
		return db.Append(ctx, getString(args, 0), getBytes(args, 1))
	case "strlen":
		return db.StrLen(ctx, getString(args, 0))
	case "mget":
		return db.MGet(ctx, getStringSlice(args, 0)...)
	case "mset":
		// args is [[k1, v1], [k2, v2], ...]
		pairs := make(map[string][]byte)
		for _, pairRaw := range args {
			pair := pairRaw.([]interface{})
			if len(pair) >= 2 {
				pairs[fmt.Sprintf("%v", pair[0])] = toBytes(pair[1])
			}
		}
		return true, db.MSet(ctx, pairs)

	// Key commands
	case "del":
		return db.Del(ctx, getStringSlice(args, 0)...)
	case "exists":
		return db.Exists(ctx, getStringSlice(args, 0)...)
	case "type":
		return db.Type(ctx, getString(args, 0))
	case "ttl":
		return db.TTL(ctx, getString(args, 0))
	case "pttl":
		return db.PTTL(ctx, getString(args, 0))
	case "expire":
		return db.Expire(ctx, getString(args, 0), getInt64(args, 1))
	case "pexpire":
		return db.PExpire(ctx, getString(args, 0), getInt64(args, 1))
	case "expireat":
		return db.ExpireAt(ctx, getString(args, 0), getInt64(args, 1))
	case "pexpireat":
		return db.PExpireAt(ctx, getString(args, 0), getInt64(args, 1))
	case "persist":
		return db.Persist(ctx, getString(args, 0))
	case "rename":
		return true, db.Rename(ctx, getString(args, 0), getString(args, 1))
	case "renamenx":
		return db.RenameNX(ctx, getString(args, 0), getString(args, 1))
	case "keys":
		return db.Keys(ctx, getString(args, 0))
	case "dbsize":
		return db.DBSize(ctx)
	case "flushdb":
		return true, db.FlushDB(ctx)

	// Hash commands
	case "hset":
		return db.HSet(ctx, getString(args, 0), map[string][]byte{getString(args, 1): getBytes(args, 2)})
	case "hget":
		return db.HGet(ctx, getString(args, 0), getString(args, 1))
	case "hgetall":
		return db.HGetAll(ctx, getString(args, 0))
	case "hmget":
		return db.HMGet(ctx, getString(args, 0), getStringSlice(args, 1)...)
	case "hdel":
		return db.HDel(ctx, getString(args, 0), getStringSlice(args, 1)...)
	case "hexists":
		return db.HExists(ctx, getString(args, 0), getString(args, 1))
	case "hlen":
		return db.HLen(ctx, getString(args, 0))
	case "hkeys":
		return db.HKeys(ctx, getString(args, 0))
	case "hvals":
		return db.HVals(ctx, getString(args, 0))
	case "hincrby":
		return db.HIncrBy(ctx, getString(args, 0), getString(args, 1), getInt64(args, 2))

	// List commands
	case "lpush":
		return db.LPush(ctx, getString(args, 0), getBytesSlice(args, 1)...)
	case "rpush":
		return db.RPush(ctx, getString(args, 0), getBytesSlice(args, 1)...)
	case "lpop":
		return popResult(db.LPop(ctx, getString(args, 0), popCount(args)))(len(args) > 1)
	case "rpop":
		return popResult(db.RPop(ctx, getString(args, 0), popCount(args)))(len(args) > 1)
	case "llen":
		return db.LLen(ctx, getString(args, 0))
	case "lrange":
		return db.LRange(ctx, getString(args, 0), getInt64(args, 1), getInt64(args, 2))
	case "lindex":
		return db.LIndex(ctx, getString(args, 0), getInt64(args, 1))

	// Set commands
	case "sadd":
		return db.SAdd(ctx, getString(args, 0), getBytesSlice(args, 1)...)
	case "srem":
		return db.SRem(ctx, getString(args, 0), getBytesSlice(args, 1)...)
	case "smembers":
		return db.SMembers(ctx, getString(args, 0))
	case "sismember":
		return db.SIsMember(ctx, getString(args, 0), getBytes(args, 1))
	case "scard":
		return db.SCard(ctx, getString(args, 0))

	// Sorted set commands
	case "zadd":
		// args is [key, [[score, member], ...]]
		key := getString(args, 0)
		var members []redlite.ZMemberScore
		for _, m := range args[1].([]interface{}) {
			pair := m.([]interface{})
			members = append(members, redlite.ZMemberScore{
				Score:  toFloat64(pair[0]),
				Member: toBytes(pair[1]),
			})
		}
		return db.ZAdd(ctx, key, members...)
	case "zrem":
		return db.ZRem(ctx, getString(args, 0), getBytesSlice(args, 1)...)
	case "zrange":
		if withScores(args, 3) {
			result, err := db.ZRangeWithScores(ctx, getString(args, 0), getInt64(args, 1), getInt64(args, 2))
			return flattenScored(result), err
		}
		return db.ZRange(ctx, getString(args, 0), getInt64(args, 1), getInt64(args, 2))
	case "zrevrange":
		if withScores(args, 3) {
			result, err := db.ZRevRangeWithScores(ctx, getString(args, 0), getInt64(args, 1), getInt64(args, 2))
			return flattenScored(result), err
		}
		return db.ZRevRange(ctx, getString(args, 0), getInt64(args, 1), getInt64(args, 2))
	case "zscore":
		score, ok, err := db.ZScore(ctx, getString(args, 0), getBytes(args, 1))
		if err != nil || !ok {
			return nil, err
		}
		return score, nil
	case "zcard":
		return db.ZCard(ctx, getString(args, 0))
	case "zcount":
		return db.ZCount(ctx, getString(args, 0), toFloat64(args[1]), toFloat64(args[2]))
	case "zincrby":
		return db.ZIncrBy(ctx, getString(args, 0), toFloat64(args[1]), getBytes(args, 2))

	// Scan commands drain the full cursor loop so specs can assert the
	// complete result set.
	case "scan":
		var all []string
		cursor := redlite.CursorDone
		for {
			batch, next, err := db.Scan(ctx, cursor, getString(args, 0), getInt64(args, 1))
			if err != nil {
				return nil, err
			}
			all = append(all, batch...)
			if next == redlite.CursorDone {
				return all, nil
			}
			cursor = next
		}
	case "sscan":
		var all [][]byte
		cursor := redlite.CursorDone
		for {
			batch, next, err := db.SScan(ctx, getString(args, 0), cursor, getString(args, 1), getInt64(args, 2))
			if err != nil {
				return nil, err
			}
			all = append(all, batch...)
			if next == redlite.CursorDone {
				return all, nil
			}
			cursor = next
		}
	case "hscan":
		all := make(map[string][]byte)
		cursor := redlite.CursorDone
		for {
			batch, next, err := db.HScan(ctx, getString(args, 0), cursor, getString(args, 1), getInt64(args, 2))
			if err != nil {
				return nil, err
			}
			for _, e := range batch {
				all[e.Field] = e.Value
			}
			if next == redlite.CursorDone {
				return all, nil
			}
			cursor = next
		}

	default:
		return nil, fmt.Errorf("unknown command: %s", cmd)
	}
}

func popCount(args []interface{}) int {
	if len(args) > 1 {
		return int(getInt64(args, 1))
	}
	return 1
}

// popResult normalizes LPop/RPop: without an explicit count the spec expects
// a single value or nil, with a count it expects the list.
func popResult(items [][]byte, err error) func(hasCount bool) (interface{}, error) {
	return func(hasCount bool) (interface{}, error) {
		if err != nil {
			return nil, err
		}
		if hasCount {
			return items, nil
		}
		if len(items) == 0 {
			return nil, nil
		}
		return items[0], nil
	}
}

func withScores(args []interface{}, idx int) bool {
	return len(args) > idx && strings.EqualFold(getString(args, idx), "WITHSCORES")
}

// flattenScored converts scored members to the wire shape the specs expect:
// interleaved member, score-string pairs.
func flattenScored(members []redlite.ZMemberScore) [][]byte {
	flat := make([][]byte, 0, len(members)*2)
	for _, m := range members {
		flat = append(flat, m.Member, []byte(strconv.FormatFloat(m.Score, 'f', -1, 64)))
	}
	return flat
}

// Argument extraction helpers.

func getString(args []interface{}, idx int) string {
	if idx >= len(args) {
		return ""
	}
	if s, ok := args[idx].(string); ok {
		return s
	}
	return fmt.Sprintf("%v", args[idx])
}

func getBytes(args []interface{}, idx int) []byte {
	if idx >= len(args) {
		return nil
	}
	return toBytes(args[idx])
}

func toBytes(v interface{}) []byte {
	switch val := v.(type) {
	case string:
		return []byte(val)
	case []byte:
		return val
	case map[string]interface{}:
		// {bytes: [1, 2, 3]} encodes non-UTF8 payloads
		if b, ok := val["bytes"]; ok {
			if arr, ok := b.([]interface{}); ok {
				result := make([]byte, len(arr))
				for i, x := range arr {
					result[i] = byte(toInt64(x))
				}
				return result
			}
		}
		return nil
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

func getInt64(args []interface{}, idx int) int64 {
	if idx >= len(args) {
		return 0
	}
	return toInt64(args[idx])
}

func toInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int64:
		return val
	case float64:
		return int64(val)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return 0
	}
}

func getStringSlice(args []interface{}, idx int) []string {
	if idx >= len(args) {
		return nil
	}
	switch v := args[idx].(type) {
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			result[i] = fmt.Sprintf("%v", item)
		}
		return result
	case []string:
		return v
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

func getBytesSlice(args []interface{}, idx int) [][]byte {
	if idx >= len(args) {
		return nil
	}
	switch v := args[idx].(type) {
	case []interface{}:
		result := make([][]byte, len(v))
		for i, item := range v {
			result[i] = toBytes(item)
		}
		return result
	default:
		return [][]byte{toBytes(v)}
	}
}

func compare(actual, expected interface{}) bool {
	if expected == nil {
		if actual == nil {
			return true
		}
		if b, ok := actual.([]byte); ok {
			return len(b) == 0
		}
		return false
	}

	switch exp := expected.(type) {
	case map[string]interface{}:
		return compareSpecial(actual, exp)
	case bool:
		a, ok := actual.(bool)
		return ok && a == exp
	case int:
		return compareInt(actual, int64(exp))
	case int64:
		return compareInt(actual, exp)
	case float64:
		if math.Floor(exp) == exp {
			return compareInt(actual, int64(exp))
		}
		return compareFloat(actual, exp)
	case string:
		return compareString(actual, exp)
	case []interface{}:
		return compareList(actual, exp)
	}

	return false
}

func compareInt(actual interface{}, expected int64) bool {
	switch a := actual.(type) {
	case int64:
		return a == expected
	case int:
		return int64(a) == expected
	case float64:
		return int64(a) == expected
	}
	return false
}

func compareFloat(actual interface{}, expected float64) bool {
	a, ok := actual.(float64)
	return ok && math.Abs(a-expected) < 0.001
}

func compareString(actual interface{}, expected string) bool {
	switch a := actual.(type) {
	case []byte:
		return string(a) == expected
	case string:
		return a == expected
	}
	return false
}

func compareList(actual interface{}, expected []interface{}) bool {
	switch a := actual.(type) {
	case [][]byte:
		if len(a) != len(expected) {
			return false
		}
		for i, item := range a {
			if !compare(item, expected[i]) {
				return false
			}
		}
		return true
	case []string:
		if len(a) != len(expected) {
			return false
		}
		for i, item := range a {
			if !compare(item, expected[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// compareSpecial handles the spec's tagged expectations: {bytes: ...} for
// binary payloads, {dict: ...} for hashes, {set: ...} for unordered results,
// {range: [lo, hi]} and {approx: x, tol: t} for inexact numbers.
func compareSpecial(actual interface{}, expected map[string]interface{}) bool {
	if b, ok := expected["bytes"]; ok {
		arr := b.([]interface{})
		expBytes := make([]byte, len(arr))
		for i, x := range arr {
			expBytes[i] = byte(toInt64(x))
		}
		actBytes, ok := actual.([]byte)
		return ok && bytes.Equal(actBytes, expBytes)
	}

	if dict, ok := expected["dict"]; ok {
		expDict := dict.(map[string]interface{})

		var actMap map[string]string
		switch a := actual.(type) {
		case [][]byte:
			actMap = make(map[string]string)
			for i := 0; i+1 < len(a); i += 2 {
				actMap[string(a[i])] = string(a[i+1])
			}
		case map[string][]byte:
			actMap = make(map[string]string)
			for k, v := range a {
				actMap[k] = string(v)
			}
		default:
			return false
		}

		if len(actMap) != len(expDict) {
			return false
		}
		for k, v := range expDict {
			if actMap[k] != fmt.Sprintf("%v", v) {
				return false
			}
		}
		return true
	}

	if set, ok := expected["set"]; ok {
		expSet := set.([]interface{})
		expStrings := make([]string, len(expSet))
		for i, x := range expSet {
			expStrings[i] = fmt.Sprintf("%v", x)
		}
		sort.Strings(expStrings)

		var actStrings []string
		switch a := actual.(type) {
		case [][]byte:
			actStrings = make([]string, len(a))
			for i, x := range a {
				actStrings[i] = string(x)
			}
		case []string:
			actStrings = append(actStrings, a...)
		default:
			return false
		}
		sort.Strings(actStrings)

		if len(actStrings) != len(expStrings) {
			return false
		}
		for i := range actStrings {
			if actStrings[i] != expStrings[i] {
				return false
			}
		}
		return true
	}

	if rng, ok := expected["range"]; ok {
		bounds := rng.([]interface{})
		val := toInt64(actual)
		return val >= toInt64(bounds[0]) && val <= toInt64(bounds[1])
	}

	if approx, ok := expected["approx"]; ok {
		tol := 0.001
		if t, ok := expected["tol"]; ok {
			tol = toFloat64(t)
		}
		return math.Abs(toFloat64(actual)-toFloat64(approx)) <= tol
	}

	return false
}

func serialize(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case [][]byte:
		result := make([]string, len(val))
		for i, b := range val {
			result[i] = string(b)
		}
		return result
	}
	return v
}

func (r *Runner) Summary() string {
	return fmt.Sprintf("%d/%d passed, %d failed", r.passed, r.passed+r.failed, r.failed)
}

func main() {
	args := os.Args[1:]
	verbose := false
	var specArgs []string

	for _, arg := range args {
		if arg == "-v" || arg == "--verbose" {
			verbose = true
		} else {
			specArgs = append(specArgs, arg)
		}
	}

	lib, err := redlite.LoadLibrary(os.Getenv("REDLITE_LIBRARY"))
	if err != nil {
		fmt.Printf("Error loading redlite library: %v\n", err)
		os.Exit(1)
	}

	specDir := "spec"
	if _, err := os.Stat(specDir); os.IsNotExist(err) {
		specDir = "../spec"
	}

	var specFiles []string
	if len(specArgs) > 0 {
		specFiles = specArgs
	} else {
		entries, err := os.ReadDir(specDir)
		if err != nil {
			fmt.Printf("Error reading spec directory: %v\n", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".yaml") {
				specFiles = append(specFiles, filepath.Join(specDir, e.Name()))
			}
		}
		sort.Strings(specFiles)
	}

	runner := NewRunner(lib, verbose)

	for _, specFile := range specFiles {
		runner.RunSpecFile(specFile)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 60))
	fmt.Printf("Oracle Test Results: %s\n", runner.Summary())
	fmt.Println(strings.Repeat("=", 60))

	if len(runner.errors) > 0 {
		fmt.Println("\nFailures:")
		for _, e := range runner.errors {
			if e.Error != "" {
				fmt.Printf("  - %s / %s: %s\n", e.Spec, e.Test, e.Error)
			} else {
				fmt.Printf("  - %s / %s / %s\n", e.Spec, e.Test, e.Cmd)
				fmt.Printf("      Expected: %v\n", e.Expected)
				fmt.Printf("      Actual:   %v\n", e.Actual)
			}
		}
		os.Exit(1)
	}
}
