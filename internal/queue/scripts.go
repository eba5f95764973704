package queue

import "github.com/redis/go-redis/v9"

// claimScript moves a job to STARTED when it is PENDING or being redelivered.
// KEYS[1] job hash. ARGV[1] now.
// Returns false when the hash is gone, otherwise {previous state, attempts}.
var claimScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
	return false
end
if state == 'PENDING' or state == 'STARTED' then
	redis.call('HSET', KEYS[1], 'state', 'STARTED', 'started_at', ARGV[1])
	local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
	return {state, attempts}
end
return {state, tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')}
`)

// finishScript records a terminal state and acks the delivery.
// KEYS[1] job hash, KEYS[2] processing list.
// ARGV[1] state, ARGV[2] result, ARGV[3] error, ARGV[4] now, ARGV[5] raw message, ARGV[6] ttl seconds.
// Returns 1 on success, 0 when the job is not STARTED, -1 when the hash is gone.
var finishScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
redis.call('LREM', KEYS[2], 1, ARGV[5])
if not state then
	return -1
end
if state ~= 'STARTED' then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'result', ARGV[2], 'error', ARGV[3], 'completed_at', ARGV[4])
redis.call('EXPIRE', KEYS[1], ARGV[6])
return 1
`)

// requeueScript moves one raw message from processing back to the consumer
// end of pending. KEYS[1] processing, KEYS[2] pending. ARGV[1] raw message.
var requeueScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) > 0 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
	return 1
end
return 0
`)
