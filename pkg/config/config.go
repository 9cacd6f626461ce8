package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	SourceDB DatabaseConfig
	DestDB   DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Sync     SyncConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type KafkaConfig struct {
	Brokers    []string
	TopicTasks string
	GroupID    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SyncConfig struct {
	ChunkSize      int
	CreatedBy      string
	PreviewPath    string
	PreviewLimit   int
	BarrierTimeout time.Duration
	BarrierPoll    time.Duration
	CacheTTL       time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		SourceDB: DatabaseConfig{
			Host:     getEnv("SOURCE_DB_HOST", "localhost"),
			Port:     getEnvAsInt("SOURCE_DB_PORT", 5432),
			User:     getEnv("SOURCE_DB_USER", "weather_user"),
			Password: getEnv("SOURCE_DB_PASSWORD", "weather_pass"),
			DBName:   getEnv("SOURCE_DB_NAME", "weather_db"),
			SSLMode:  getEnv("SOURCE_DB_SSLMODE", "disable"),
		},
		DestDB: DatabaseConfig{
			Host:     getEnv("DEST_DB_HOST", "localhost"),
			Port:     getEnvAsInt("DEST_DB_PORT", 5432),
			User:     getEnv("DEST_DB_USER", "models_user"),
			Password: getEnv("DEST_DB_PASSWORD", "models_pass"),
			DBName:   getEnv("DEST_DB_NAME", "models_db"),
			SSLMode:  getEnv("DEST_DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicTasks: getEnv("KAFKA_TOPIC_TASKS", "trapsync.chunks"),
			GroupID:    getEnv("KAFKA_GROUP_ID", "chunkworker-group"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Sync: SyncConfig{
			ChunkSize:      getEnvAsInt("SYNC_CHUNK_SIZE", 500),
			CreatedBy:      getEnv("SYNC_CREATED_BY", "trapsync"),
			PreviewPath:    getEnv("SYNC_PREVIEW_PATH", "preview.txt"),
			PreviewLimit:   getEnvAsInt("SYNC_PREVIEW_LIMIT", 100),
			BarrierTimeout: getEnvAsDuration("SYNC_BARRIER_TIMEOUT", 2*time.Minute),
			BarrierPoll:    getEnvAsDuration("SYNC_BARRIER_POLL", 2*time.Second),
			CacheTTL:       getEnvAsDuration("SYNC_CACHE_TTL", 24*time.Hour),
		},
	}

	return config, nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
