package seq

import (
	"context"
	"time"

	errors "RProject/tools/errs"

	"github.com/redis/go-redis/v9"
)

// In-segment atomic allocation: KEYS[1]=key; ARGV[1]=need; ARGV[2]=segEnd; ARGV[3]=nowMs
// Returns {0,start,0,end,nowMs} ok; {1} not found; {3,curr,end,0,nowMs} exhausted/mismatch.
var luaInSegment = redis.NewScript(`
  local k = KEYS[1]
  local need = tonumber(ARGV[1])
  local segEnd = tonumber(ARGV[2])
  local nowms = tonumber(ARGV[3])

  local curr = redis.call('HGET', k, 'curr')
  local endv = redis.call('HGET', k, 'end')
  if not curr or not endv then
    return {1}
  end
  curr = tonumber(curr); endv = tonumber(endv)

  if segEnd ~= 0 and segEnd ~= endv then
    return {3, curr, endv, 0, nowms}
  end

  local start = curr + 1
  local newv  = curr + need
  if newv > endv then
    return {3, curr, endv, 0, nowms}
  end
  redis.call('HSET', k, 'curr', newv, 'mill', nowms)
  return {0, start, 0, endv, nowms}
`)

// Load/refresh a segment: curr=start-1, end=end, mill=nowMs, with TTL.
var luaSetSegment = redis.NewScript(`
  local k = KEYS[1]
  local curr = tonumber(ARGV[1])
  local endv = tonumber(ARGV[2])
  local nowms= tonumber(ARGV[3])
  redis.call('HSET', k, 'curr', curr, 'end', endv, 'mill', nowms)
  redis.call('PEXPIRE', k, 3600000)
  return 1
`)

type DAOIface interface {
	AllocSegment(ctx context.Context, tenantID, conversationID string, block int64) (start, end int64, err error)
}

// Allocator hands out per-conversation monotonic sequence numbers. Redis
// serves numbers from a leased segment; exhausted or lost segments fall back
// to the Mongo DAO for a fresh lease.
type Allocator struct {
	Rdb         redis.Scripter
	DAO         DAOIface
	BlockSizeFn func(tenantID, conversationID string, want int64) int64
	KeyFn       func(tenantID, conversationID string) string
	MaxRetry    int
}

func defaultBlock(_ string, _ string, want int64) int64 {
	if want <= 0 {
		want = 1
	}
	if want < 32 {
		return 256 // cold conversation, small segment
	}
	return want * 8 // hot conversation, widen
}

func defaultKey(tenant, conv string) string { return "seq:blk:" + tenant + ":" + conv }

func (a *Allocator) ensure() {
	if a.BlockSizeFn == nil {
		a.BlockSizeFn = defaultBlock
	}
	if a.KeyFn == nil {
		a.KeyFn = defaultKey
	}
	if a.MaxRetry == 0 {
		a.MaxRetry = 10
	}
}

// Malloc allocates need consecutive seqs; returns the first one and the
// allocation timestamp in ms.
func (a *Allocator) Malloc(ctx context.Context, tenantID, conversationID string, need int64) (start int64, mill int64, err error) {
	a.ensure()
	if need <= 0 {
		need = 1
	}
	key := a.KeyFn(tenantID, conversationID)
	nowms := time.Now().UnixMilli()

	// 1) try the currently leased segment
	if res, e := luaInSegment.Run(ctx, a.Rdb, []string{key}, need, 0, nowms).Result(); e == nil {
		arr := res.([]interface{})
		switch arr[0].(int64) {
		case 0:
			return arr[1].(int64), arr[4].(int64), nil
		case 1, 3:
			// not found / exhausted -> lease from source of truth
		default:
			return 0, 0, errors.New("unknown redis state", "state", arr[0])
		}
	}

	// 2) lease a segment from Mongo, push to Redis, allocate in-segment
	var lastErr error
	for i := 0; i < a.MaxRetry; i++ {
		block := a.BlockSizeFn(tenantID, conversationID, need)

		segStart, segEnd, e := a.DAO.AllocSegment(ctx, tenantID, conversationID, block)
		if e != nil {
			lastErr = e
			break
		}

		if _, e = luaSetSegment.Run(ctx, a.Rdb, []string{key}, segStart-1, segEnd, nowms).Result(); e != nil {
			lastErr = e
			time.Sleep(10 * time.Millisecond)
			continue
		}

		res2, e := luaInSegment.Run(ctx, a.Rdb, []string{key}, need, segEnd, nowms).Result()
		if e != nil {
			lastErr = e
			time.Sleep(10 * time.Millisecond)
			continue
		}
		arr := res2.([]interface{})
		if arr[0].(int64) == 0 {
			return arr[1].(int64), arr[4].(int64), nil
		}
		time.Sleep(5 * time.Millisecond) // segment raced away, brief pause
	}
	if lastErr == nil {
		lastErr = errors.New("malloc retry exceeded")
	}
	return 0, 0, lastErr
}
