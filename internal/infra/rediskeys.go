package infra

const (
	// RedisNamespace isolates the project's keys in a shared Redis.
	RedisNamespace = "proctor"
)

// Set keys (state).
const (
	RedisKeyEnabledHalls   = RedisNamespace + ":halls:detection_enabled_set"
	RedisKeyLockWarmupHall = RedisNamespace + ":lock:warmup:halls"
)

// Pub/Sub channels (events).
const (
	// RedisChanHallDetection carries "<hall_id>:on" / "<hall_id>:off".
	RedisChanHallDetection = RedisNamespace + ":halls:detection-signal"
	// RedisChanViolations carries accepted violation records as JSON.
	RedisChanViolations = RedisNamespace + ":violations"
	// RedisChanRepeatOffenders carries repeat offender notices as JSON.
	RedisChanRepeatOffenders = RedisNamespace + ":offenders"
)
