package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type repo struct {
	rc                          *redis.Client
	logger                      *slog.Logger
	expireDuration              time.Duration
	expireKeysWithPrefixScript  string
	deleteKeysWithPrefixScript  string
	mergeHashScript             string
	setPlaybackIfQueueKeyScript string
	removeEntryScript           string
	restoreEntryScript          string
}

func NewRepo(rc *redis.Client, logger *slog.Logger, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		logger:         logger,
		expireDuration: expireDuration,
		expireKeysWithPrefixScript: rc.ScriptLoad(context.Background(), `
			local pattern = ARGV[1]
			local timestamp = ARGV[2]
			local cursor = "0"
			local count = 0

			repeat
				local result = redis.call('SCAN', cursor, 'MATCH', pattern)
				cursor = result[1]
				local keys = result[2]

				for i, key in ipairs(keys) do
					redis.call('EXPIREAT', key, timestamp)
					count = count + 1
				end
			until cursor == "0"

			return count
		`).Val(),
		deleteKeysWithPrefixScript: rc.ScriptLoad(context.Background(), `
			local count = 0

			for _, pattern in ipairs(ARGV) do
				local cursor = "0"
				repeat
					local result = redis.call('SCAN', cursor, 'MATCH', pattern)
					cursor = result[1]
					for i, key in ipairs(result[2]) do
						redis.call('DEL', key)
						count = count + 1
					end
				until cursor == "0"
			end

			return count
		`).Val(),
		// ARGV[1] is the number of field/value pairs to set, the rest are fields to delete
		mergeHashScript: rc.ScriptLoad(context.Background(), `
			if redis.call('EXISTS', KEYS[1]) == 0 then
				return 0
			end

			local n = tonumber(ARGV[1])
			for i = 2, 1 + n * 2, 2 do
				redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
			end
			for i = 2 + n * 2, #ARGV do
				redis.call('HDEL', KEYS[1], ARGV[i])
			end

			return 1
		`).Val(),
		// KEYS: playback hash, events channel
		// ARGV: expected queue key, event payload, ttl seconds, field/value pairs
		setPlaybackIfQueueKeyScript: rc.ScriptLoad(context.Background(), `
			local current = redis.call('HGET', KEYS[1], 'queue_key')
			if not current then
				current = ''
			end
			if current ~= ARGV[1] then
				return 0
			end

			redis.call('DEL', KEYS[1])
			for i = 4, #ARGV, 2 do
				redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
			end
			redis.call('EXPIRE', KEYS[1], ARGV[3])
			redis.call('PUBLISH', KEYS[2], ARGV[2])

			return 1
		`).Val(),
		// KEYS: queue, entry hash, removed entry hash
		// ARGV: entry key, undo window in milliseconds
		removeEntryScript: rc.ScriptLoad(context.Background(), `
			if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
				return 0
			end

			if redis.call('EXISTS', KEYS[2]) == 1 then
				redis.call('RENAME', KEYS[2], KEYS[3])
				redis.call('PEXPIRE', KEYS[3], ARGV[2])
			end

			return 1
		`).Val(),
		// KEYS: removed entry hash, entry hash, queue
		// ARGV: entry key, queue limit (0 means none), entry ttl in milliseconds
		restoreEntryScript: rc.ScriptLoad(context.Background(), `
			if redis.call('EXISTS', KEYS[1]) == 0 then
				return -1
			end

			if redis.call('EXISTS', KEYS[2]) == 1 or redis.call('ZSCORE', KEYS[3], ARGV[1]) then
				return -2
			end

			local limit = tonumber(ARGV[2])
			if limit > 0 and redis.call('ZCARD', KEYS[3]) >= limit then
				return -3
			end

			local score = redis.call('HGET', KEYS[1], 'created_at') or '0'
			redis.call('RENAME', KEYS[1], KEYS[2])
			redis.call('PEXPIRE', KEYS[2], ARGV[3])
			redis.call('ZADD', KEYS[3], score, ARGV[1])
			redis.call('PEXPIRE', KEYS[3], ARGV[3])

			return 1
		`).Val(),
	}
}
