package config

import (
	"os"
	"strconv"
)

type Config struct {
	// MQTT inbound
	MQTTBrokerURL string
	MQTTClientID  string
	MQTTTopic     string

	// Postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Fallback vehicle-status API
	ResolverURL       string
	ResolverTimeoutMS int

	// Session policy
	SessionMaxHours        float64
	SessionHoursCorrection bool
	CompanyName            string

	// Fill detection
	FillMinLiters       float64
	FillMinPctOfTank    float64
	TankCapacityLiters  float64
	LevelWindowMinutes  int
	MergeWindowMinutes  int
	FillDedupTTLSeconds int

	// Pipeline tuning
	VehicleQueueSize int
	EmitQueueSize    int
	SweepIntervalSec int

	// Metrics/health listener
	HTTPPort string
}

func Load() *Config {
	return &Config{
		MQTTBrokerURL:          getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:           getEnv("MQTT_CLIENT_ID", "fuelwatch-ingestion"),
		MQTTTopic:              getEnv("MQTT_TOPIC", "fleet/telemetry/#"),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "fuelwatch_user"),
		DBPassword:             getEnv("DB_PASSWORD", "fuelwatch_password"),
		DBName:                 getEnv("DB_NAME", "fuelwatch"),
		DBMaxConns:             int32(getEnvInt("DB_MAX_CONNS", 10)),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		ResolverURL:            getEnv("RESOLVER_URL", ""),
		ResolverTimeoutMS:      getEnvInt("RESOLVER_TIMEOUT_MS", 3000),
		SessionMaxHours:        getEnvFloat("SESSION_MAX_HOURS", 18),
		SessionHoursCorrection: getEnvBool("SESSION_HOURS_CORRECTION", true),
		CompanyName:            getEnv("COMPANY_NAME", ""),
		FillMinLiters:          getEnvFloat("FILL_MIN_LITERS", 20),
		FillMinPctOfTank:       getEnvFloat("FILL_MIN_PCT_OF_TANK", 15),
		TankCapacityLiters:     getEnvFloat("TANK_CAPACITY_LITERS", 200),
		LevelWindowMinutes:     getEnvInt("LEVEL_WINDOW_MINUTES", 60),
		MergeWindowMinutes:     getEnvInt("MERGE_WINDOW_MINUTES", 10),
		FillDedupTTLSeconds:    getEnvInt("FILL_DEDUP_TTL_SECONDS", 3600),
		VehicleQueueSize:       getEnvInt("VEHICLE_QUEUE_SIZE", 256),
		EmitQueueSize:          getEnvInt("EMIT_QUEUE_SIZE", 10000),
		SweepIntervalSec:       getEnvInt("SWEEP_INTERVAL_SEC", 60),
		HTTPPort:               getEnv("HTTP_PORT", "8001"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
