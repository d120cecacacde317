package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	QueueURL string

	TelephonyAccountSID string
	TelephonyAuthToken  string
	TelephonyFromNumber string
	TelephonyBaseURL    string
	WebhookBaseURL      string

	STTBaseURL string
	STTAPIKey  string
	STTModel   string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	ConsentBaseURL string
	ConsentTTL     time.Duration

	NotifyWebhookURL    string
	NotifyWebhookSecret string

	// Pipeline tuning. All retry/backoff/timeout constants are explicit
	// configuration rather than code constants.
	MaxCallAttempts       int
	MinCallDuration       time.Duration
	MaxTranscribeAttempts int
	MaxAnalyzeAttempts    int
	JobPollInterval       time.Duration
	JobSLA                time.Duration
	StageTimeout          time.Duration
	RetryBackoffBase      time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		QueueURL: getEnv("PS_SQS_QUEUE_URL", ""),

		TelephonyAccountSID: getEnv("TELEPHONY_ACCOUNT_SID", ""),
		TelephonyAuthToken:  getEnv("TELEPHONY_AUTH_TOKEN", ""),
		TelephonyFromNumber: getEnv("TELEPHONY_FROM_NUMBER", ""),
		TelephonyBaseURL:    getEnv("TELEPHONY_BASE_URL", "https://api.twilio.com"),
		WebhookBaseURL:      getEnv("WEBHOOK_BASE_URL", "http://localhost:8080"),

		STTBaseURL: getEnv("STT_BASE_URL", ""),
		STTAPIKey:  getEnv("STT_API_KEY", ""),
		STTModel:   getEnv("STT_MODEL", "whisper-large-v3"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.anthropic.com"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "claude-sonnet-4-20250514"),

		ConsentBaseURL: getEnv("CONSENT_BASE_URL", "http://localhost:5173/consent"),
		ConsentTTL:     time.Duration(getEnvInt("CONSENT_TTL_HOURS", 168)) * time.Hour,

		NotifyWebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyWebhookSecret: getEnv("NOTIFY_WEBHOOK_SECRET", ""),

		MaxCallAttempts:       getEnvInt("MAX_CALL_ATTEMPTS", 3),
		MinCallDuration:       time.Duration(getEnvInt("MIN_CALL_DURATION_SECONDS", 10)) * time.Second,
		MaxTranscribeAttempts: getEnvInt("MAX_TRANSCRIBE_ATTEMPTS", 3),
		MaxAnalyzeAttempts:    getEnvInt("MAX_ANALYZE_ATTEMPTS", 3),
		JobPollInterval:       time.Duration(getEnvInt("JOB_POLL_INTERVAL_SECONDS", 30)) * time.Second,
		JobSLA:                time.Duration(getEnvInt("JOB_SLA_SECONDS", 600)) * time.Second,
		StageTimeout:          time.Duration(getEnvInt("STAGE_TIMEOUT_MINUTES", 30)) * time.Minute,
		RetryBackoffBase:      time.Duration(getEnvInt("RETRY_BACKOFF_BASE_SECONDS", 30)) * time.Second,
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
