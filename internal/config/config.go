package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process configuration read from the environment.
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL string

	// TabsFile lists the tabs to sync; see LoadTabs.
	TabsFile          string
	SheetsCredentials string
	// XLSXDir, when set, reads tabs from local workbooks instead of Sheets.
	XLSXDir string

	AutoSyncEnabled bool
	SyncInterval    time.Duration
	EchoWindow      time.Duration
	WriteBackMode   string
	WriteBackClear  bool

	UseMemoryQueue    bool
	SyncQueueURL      string
	WorkerWaitSeconds int
	JobLockTTL        time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ArchiveBucket       string
	ArchivePrefix       string

	// OpsToken guards the manual trigger endpoints; empty disables them.
	OpsToken             string
	TriggerRatePerMinute int
	TriggerBurst         int

	HealthCheckInterval time.Duration
	MaxSyncGap          time.Duration
	AlertEmails         []string
	AlertInterval       time.Duration
	EmailProvider       string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	SESFromEmail        string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		TabsFile:          getEnv("SYNC_TABS_FILE", "config/tabs.yaml"),
		SheetsCredentials: getEnv("SHEETS_CREDENTIALS_FILE", ""),
		XLSXDir:           getEnv("XLSX_DIR", ""),

		AutoSyncEnabled: getEnvAsBool("AUTO_SYNC_ENABLED", true),
		SyncInterval:    getEnvAsDuration("SYNC_INTERVAL", 10*time.Minute),
		EchoWindow:      getEnvAsDuration("ECHO_WINDOW", 30*time.Minute),
		WriteBackMode:   strings.ToLower(strings.TrimSpace(getEnv("WRITE_BACK_MODE", "log"))),
		WriteBackClear:  getEnvAsBool("WRITE_BACK_CLEAR_OVERRIDE", false),

		UseMemoryQueue:    getEnvAsBool("USE_MEMORY_QUEUE", false),
		SyncQueueURL:      getEnv("SYNC_QUEUE_URL", ""),
		WorkerWaitSeconds: getEnvAsInt("WORKER_WAIT_SECONDS", 20),
		JobLockTTL:        getEnvAsDuration("JOB_LOCK_TTL", 15*time.Minute),
		RedisAddr:         getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "ap-northeast-2"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ArchiveBucket:       getEnv("EXPORT_ARCHIVE_BUCKET", ""),
		ArchivePrefix:       getEnv("EXPORT_ARCHIVE_PREFIX", ""),

		OpsToken:             getEnv("OPS_TOKEN", ""),
		TriggerRatePerMinute: getEnvAsInt("TRIGGER_RATE_PER_MINUTE", 6),
		TriggerBurst:         getEnvAsInt("TRIGGER_BURST", 3),

		HealthCheckInterval: getEnvAsDuration("HEALTH_CHECK_INTERVAL", 30*time.Minute),
		MaxSyncGap:          getEnvAsDuration("MAX_SYNC_GAP", 5*time.Hour),
		AlertEmails:         getEnvAsList("ALERT_EMAILS"),
		AlertInterval:       getEnvAsDuration("ALERT_INTERVAL", time.Hour),
		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Clinic Sheet Sync"),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
