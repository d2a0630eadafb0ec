package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL          string
	RedisRelayEnabled bool
	RedisRelayChannel string

	// PubNub configuration
	PubNubPublishKey     string
	PubNubSubscribeKey   string
	PubNubSecretKey      string
	PubNubMirrorEnabled  bool
	PubNubPaymentChannel string

	// Slot locks
	SlotLockTimeout   time.Duration
	LockSweepInterval time.Duration

	// Realtime server
	LegacyBroadMode         bool
	LegacyFrames            bool
	SendBuffer              int
	JoinRatePerSecond       float64
	JoinBurst               int
	HandshakeLimitPerMinute int

	// Realtime client
	DebounceWindow   time.Duration
	ToastDedupWindow time.Duration

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),
		RedisRelayEnabled: getEnvAsBool("REDIS_RELAY_ENABLED", false),
		RedisRelayChannel: getEnv("REDIS_RELAY_CHANNEL", "realtime:events"),

		// PubNub
		PubNubPublishKey:     getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey:   getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:      getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubMirrorEnabled:  getEnvAsBool("PUBNUB_MIRROR_ENABLED", false),
		PubNubPaymentChannel: getEnv("PUBNUB_PAYMENT_CHANNEL", "bank-payment-notifications"),

		// Slot locks
		SlotLockTimeout:   getEnvAsDuration("SLOT_LOCK_TIMEOUT", "5m"),
		LockSweepInterval: getEnvAsDuration("LOCK_SWEEP_INTERVAL", "30s"),

		// Realtime server
		LegacyBroadMode:         getEnvAsBool("REALTIME_LEGACY_BROAD_MODE", true),
		LegacyFrames:            getEnvAsBool("REALTIME_LEGACY_FRAMES", true),
		SendBuffer:              getEnvAsInt("REALTIME_SEND_BUFFER", 256),
		JoinRatePerSecond:       getEnvAsFloat("REALTIME_JOIN_RATE", 5),
		JoinBurst:               getEnvAsInt("REALTIME_JOIN_BURST", 10),
		HandshakeLimitPerMinute: getEnvAsInt("HANDSHAKE_LIMIT_PER_MINUTE", 30),

		// Realtime client
		DebounceWindow:   getEnvAsDuration("REALTIME_DEBOUNCE_WINDOW", "250ms"),
		ToastDedupWindow: getEnvAsDuration("REALTIME_TOAST_DEDUP_WINDOW", "3s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func (c *Config) PubNubConfigured() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
