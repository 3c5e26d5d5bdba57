package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	DatabaseURL         string
	FirebaseCredentials string
	GoogleProjectID     string
	PubSubTopic         string
	ServiceTokenSecret  string

	// Fan-out tuning
	CandidateQueryTimeout time.Duration
	DeliveryTimeout       time.Duration
	LocationStaleness     time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=buddyalert port=5432 sslmode=disable"),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		PubSubTopic:         getEnv("PUBSUB_TOPIC", "alert-created"),
		ServiceTokenSecret:  getEnv("SERVICE_TOKEN_SECRET", ""),

		CandidateQueryTimeout: getDuration("CANDIDATE_QUERY_TIMEOUT", 5*time.Second),
		DeliveryTimeout:       getDuration("DELIVERY_TIMEOUT", 10*time.Second),
		LocationStaleness:     getDuration("LOCATION_STALENESS", 30*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
