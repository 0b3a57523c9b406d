package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaGroupID string

	// Object storage
	StorageEndpoint     string
	StorageAccessKey    string
	StorageSecretKey    string
	StorageUseSSL       bool
	TrainingDataBucket  string
	GeneratedImgsBucket string
	SignedURLTTL        time.Duration

	// Inference provider
	ReplicateBaseURL  string
	ReplicateAPIToken string
	ReplicateOwner    string
	TrainerVersion    string
	TrainingSteps     int
	TriggerWord       string

	// Webhook callback
	SiteURL          string
	WebhookDedupeTTL time.Duration

	// Identity provider
	AuthBaseURL        string
	AuthServiceRoleKey string
	OIDCIssuer         string
	OIDCClientID       string
	OIDCClientSecret   string

	// Email
	EmailAPIBaseURL string
	EmailAPIKey     string
	EmailFrom       string

	// Credit plans
	PlansFile string

	// Outbound HTTP
	ProviderRequestTimeout time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "aivisio"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "aivisio123"),
		PostgresDB:       getEnv("POSTGRES_DB", "aivisio"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "aivisio-platform"),

		StorageEndpoint:     getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey:    getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey:    getEnv("STORAGE_SECRET_KEY", ""),
		StorageUseSSL:       getBoolEnv("STORAGE_USE_SSL", false),
		TrainingDataBucket:  getEnv("TRAINING_DATA_BUCKET", "training-data"),
		GeneratedImgsBucket: getEnv("GENERATED_IMAGES_BUCKET", "generated-images"),
		SignedURLTTL:        getDuration("SIGNED_URL_TTL", time.Hour),

		ReplicateBaseURL:  getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateAPIToken: getEnv("REPLICATE_API_TOKEN", ""),
		ReplicateOwner:    getEnv("REPLICATE_MODEL_OWNER", "aivisio"),
		TrainerVersion:    getEnv("REPLICATE_TRAINER_VERSION", "ostris/flux-dev-lora-trainer:26dce37af90b9d997eeb970d92e47de3064d46c300504ae376c75bef6a9022d2"),
		TrainingSteps:     getIntEnv("TRAINING_STEPS", 1000),
		TriggerWord:       getEnv("TRIGGER_WORD", "ohai"),

		SiteURL:          getEnv("SITE_URL", "http://localhost:8080"),
		WebhookDedupeTTL: getDuration("WEBHOOK_DEDUPE_TTL", 24*time.Hour),

		AuthBaseURL:        getEnv("AUTH_BASE_URL", "http://localhost:9999"),
		AuthServiceRoleKey: getEnv("AUTH_SERVICE_ROLE_KEY", ""),
		OIDCIssuer:         getEnv("OIDC_ISSUER", ""),
		OIDCClientID:       getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret:   getEnv("OIDC_CLIENT_SECRET", ""),

		EmailAPIBaseURL: getEnv("EMAIL_API_BASE_URL", "https://api.resend.com"),
		EmailAPIKey:     getEnv("EMAIL_API_KEY", ""),
		EmailFrom:       getEnv("EMAIL_FROM", "Aivisio <onboarding@resend.dev>"),

		PlansFile: getEnv("PLANS_FILE", "configs/plans.yaml"),

		ProviderRequestTimeout: getDuration("PROVIDER_REQUEST_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
