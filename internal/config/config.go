package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port                      string
	VerifyToken               string
	WhatsAppToken             string
	PhoneNumberID             string
	WhatsAppBusinessAccountID string
	GraphBaseURL              string

	DBDriver string // "sqlite" or "postgres"
	DBPath   string
	DBHost   string
	DBUser   string
	DBPass   string
	DBName   string
	DBPort   string

	RedisAddr     string
	RedisPassword string

	S3Bucket  string
	S3Region  string
	S3BaseURL string // public URL prefix for uploaded objects

	// PublicBaseURL is the externally reachable base URL of this gateway,
	// used to build media proxy references stored alongside messages.
	PublicBaseURL string

	WelcomeMessage  string
	AwayMessage     string
	CampaignWorkers int

	BusinessTimezone  string
	BusinessOpenHour  int
	BusinessCloseHour int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("no .env file found, relying on environment")
	}

	return &Config{
		Port:                      getEnv("PORT", "8080"),
		VerifyToken:               getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:             getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:             getEnv("PHONE_NUMBER_ID", ""),
		WhatsAppBusinessAccountID: getEnv("WABA_ID", ""),
		GraphBaseURL:              getEnv("GRAPH_BASE_URL", "https://graph.facebook.com/v19.0"),

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBPath:   getEnv("DB_PATH", "./convogate.db"),
		DBHost:   getEnv("DB_HOST", "localhost"),
		DBUser:   getEnv("DB_USER", "postgres"),
		DBPass:   getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", "convogate"),
		DBPort:   getEnv("DB_PORT", "5432"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		S3Bucket:  getEnv("S3_BUCKET", ""),
		S3Region:  getEnv("S3_REGION", "us-east-1"),
		S3BaseURL: getEnv("S3_BASE_URL", ""),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		WelcomeMessage:  getEnv("WELCOME_MESSAGE", "Hi! Thanks for reaching out. How can we help you today?"),
		AwayMessage:     getEnv("AWAY_MESSAGE", "We are currently closed, but we got your message and will reply during business hours."),
		CampaignWorkers: getEnvInt("CAMPAIGN_WORKERS", 4),

		BusinessTimezone:  getEnv("BUSINESS_TZ", "America/Mexico_City"),
		BusinessOpenHour:  getEnvInt("BUSINESS_OPEN_HOUR", 9),
		BusinessCloseHour: getEnvInt("BUSINESS_CLOSE_HOUR", 19),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
