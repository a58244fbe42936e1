package state

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/ai-router/internal/circuitbreaker"
)

// Breaker state is held in one hash per backend (key cb:<name>) with the
// fields state, failures, opened_at and inflight. Each operation is a single
// Lua script so the read-check-transition sequence is atomic across router
// instances; plain GET/SET would race between instances sharing the store.

const stateKeyPrefix = "cb:"

const eligibleScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local recovery = tonumber(ARGV[2])

local t = redis.call('HMGET', key, 'state', 'opened_at', 'inflight')
local state = tonumber(t[1]) or 0
local opened_at = tonumber(t[2]) or 0
local inflight = tonumber(t[3]) or 0

if state == 0 then
  return 1
end

if state == 1 then
  if now - opened_at >= recovery then
    redis.call('HMSET', key, 'state', 2, 'inflight', 0)
    return 1
  end
  return 0
end

if inflight == 0 then
  return 1
end
return 0
`

const acquireScript = `
local key = KEYS[1]

local t = redis.call('HMGET', key, 'state', 'inflight')
local state = tonumber(t[1]) or 0
local inflight = tonumber(t[2]) or 0

if state == 0 then
  return 1
end

if state == 2 and inflight == 0 then
  redis.call('HSET', key, 'inflight', 1)
  return 1
end
return 0
`

const releaseScript = `
local key = KEYS[1]

local state = tonumber(redis.call('HGET', key, 'state')) or 0

if state == 2 then
  redis.call('HSET', key, 'inflight', 0)
end
return state
`

const successScript = `
local key = KEYS[1]

local state = tonumber(redis.call('HGET', key, 'state')) or 0

if state == 2 then
  redis.call('HMSET', key, 'state', 0, 'failures', 0, 'inflight', 0)
elseif state == 0 then
  redis.call('HSET', key, 'failures', 0)
end
return state
`

const failureScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])

local t = redis.call('HMGET', key, 'state', 'failures')
local state = tonumber(t[1]) or 0
local failures = (tonumber(t[2]) or 0) + 1

redis.call('HSET', key, 'failures', failures)

if state == 0 and failures >= threshold then
  redis.call('HMSET', key, 'state', 1, 'opened_at', now)
elseif state == 2 then
  redis.call('HMSET', key, 'state', 1, 'opened_at', now, 'inflight', 0)
end
return state
`

// RedisBreaker implements circuitbreaker.Breaker against a Redis hash so
// independently scheduled router instances share one state machine. When
// Redis is unreachable the breaker fails open: traffic keeps flowing and
// reports are dropped, which matches the in-memory behavior of a fresh
// process.
type RedisBreaker struct {
	client           *redis.Client
	key              string
	failureThreshold int
	recoveryTimeout  time.Duration
	opTimeout        time.Duration
}

func NewRedisBreaker(client *redis.Client, name string, threshold int, recovery time.Duration) *RedisBreaker {
	return &RedisBreaker{
		client:           client,
		key:              stateKeyPrefix + name,
		failureThreshold: threshold,
		recoveryTimeout:  recovery,
		opTimeout:        2 * time.Second,
	}
}

// NewFactory returns a circuitbreaker.Factory producing Redis-backed
// breakers, selected by the state.store configuration.
func NewFactory(client *redis.Client, threshold int, recovery time.Duration) circuitbreaker.Factory {
	return func(name string) circuitbreaker.Breaker {
		return NewRedisBreaker(client, name, threshold, recovery)
	}
}

func (rb *RedisBreaker) Eligible() bool {
	ctx, cancel := rb.opContext()
	defer cancel()

	res, err := rb.client.Eval(ctx, eligibleScript, []string{rb.key},
		time.Now().UnixMilli(), rb.recoveryTimeout.Milliseconds()).Result()
	if err != nil {
		return true
	}
	return res.(int64) == 1
}

func (rb *RedisBreaker) Acquire() bool {
	ctx, cancel := rb.opContext()
	defer cancel()

	res, err := rb.client.Eval(ctx, acquireScript, []string{rb.key}).Result()
	if err != nil {
		return true
	}
	return res.(int64) == 1
}

func (rb *RedisBreaker) RecordSuccess() {
	ctx, cancel := rb.opContext()
	defer cancel()

	rb.client.Eval(ctx, successScript, []string{rb.key})
}

func (rb *RedisBreaker) Release() {
	ctx, cancel := rb.opContext()
	defer cancel()

	rb.client.Eval(ctx, releaseScript, []string{rb.key})
}

func (rb *RedisBreaker) RecordFailure() {
	ctx, cancel := rb.opContext()
	defer cancel()

	rb.client.Eval(ctx, failureScript, []string{rb.key},
		time.Now().UnixMilli(), rb.failureThreshold)
}

func (rb *RedisBreaker) State() circuitbreaker.State {
	ctx, cancel := rb.opContext()
	defer cancel()

	n, err := rb.client.HGet(ctx, rb.key, "state").Int()
	if err != nil {
		return circuitbreaker.StateClosed
	}
	return circuitbreaker.State(n)
}

func (rb *RedisBreaker) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rb.opTimeout)
}
